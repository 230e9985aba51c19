// Package store holds the process-wide conversation state shared by
// every UI surface: the per-thread message lists, the unread index
// derived from them, and the registry of surfaces currently focused on a
// thread. All three are pure in-memory containers; the I/O that feeds
// them lives behind the reconciliation engine.
package store

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ridewire/dispatchsync/internal/logging"
	"github.com/ridewire/dispatchsync/internal/models"
)

// MessageStore owns the ordered message sequence for every thread.
// Threads are created lazily on first message and live for the process
// lifetime; the backend holds the durable conversation.
type MessageStore struct {
	logger zerolog.Logger

	mu      sync.RWMutex
	threads map[models.ThreadID][]*models.Message
	seq     uint64
}

// NewMessageStore creates an empty MessageStore.
func NewMessageStore() *MessageStore {
	return &MessageStore{
		logger:  logging.Component("message-store"),
		threads: make(map[models.ThreadID][]*models.Message),
	}
}

// Append inserts a message maintaining (CreatedAt, insertion order)
// ordering. Duplicate delivery of a server id is a logged no-op; Append
// reports whether the message was actually inserted.
func (s *MessageStore) Append(threadID models.ThreadID, msg *models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID != 0 && s.findByIDLocked(threadID, msg.ID) != nil {
		s.logger.Debug().
			Int64("message_id", msg.ID).
			Str("thread_id", string(threadID)).
			Msg("duplicate delivery ignored")
		return false
	}

	msg.ThreadID = threadID
	s.insertLocked(threadID, msg)
	return true
}

// Seed backfills a thread from history. Messages whose server id is
// already present are skipped, so seeding after live events have arrived
// never duplicates. Returns the number of messages inserted.
func (s *MessageStore) Seed(threadID models.ThreadID, history []models.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for i := range history {
		msg := history[i]
		if msg.ID != 0 && s.findByIDLocked(threadID, msg.ID) != nil {
			continue
		}
		msg.ThreadID = threadID
		s.insertLocked(threadID, &msg)
		inserted++
	}
	return inserted
}

// ResolvePending replaces a pending message's temporary identity with
// the authoritative server identity in place: the message keeps its list
// position, and any consumer holding the pointer observes the update. If
// the server echoed the message back before the send response returned,
// the echo entry is collapsed into the pending one so exactly one
// message carries the id.
func (s *MessageStore) ResolvePending(threadID models.ThreadID, clientTempID string, ack models.MessageAck) (*models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.findByTempIDLocked(threadID, clientTempID)
	if msg == nil {
		return nil, false
	}

	if echo := s.findByIDLocked(threadID, ack.ID); echo != nil && echo != msg {
		s.removeLocked(threadID, echo)
		s.logger.Debug().
			Int64("message_id", ack.ID).
			Str("thread_id", string(threadID)).
			Msg("collapsed send echo into pending message")
	}

	msg.ID = ack.ID
	if !ack.CreatedAt.IsZero() {
		msg.CreatedAt = ack.CreatedAt
	}
	msg.DeliveryState = models.DeliveryStateSent
	return msg, true
}

// MarkRead transitions the given driver messages from unread to read and
// returns the messages actually changed. Already-read ids are excluded
// from the result, which makes the operation idempotent.
func (s *MessageStore) MarkRead(threadID models.ThreadID, ids []int64) []*models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	var changed []*models.Message
	for _, msg := range s.threads[threadID] {
		if msg.ID == 0 {
			continue
		}
		if _, ok := want[msg.ID]; !ok {
			continue
		}
		if !msg.Unread() {
			continue
		}
		msg.ReadState = models.ReadStateRead
		changed = append(changed, msg)
	}
	return changed
}

// MarkReceipt sets the driver-read receipt flag on a dispatcher-authored
// message. It reports whether the flag actually changed.
func (s *MessageStore) MarkReceipt(threadID models.ThreadID, id int64) (*models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.findByIDLocked(threadID, id)
	if msg == nil || msg.Direction == models.DirectionFromDriver {
		return nil, false
	}
	if msg.ReadByDriver {
		return msg, false
	}
	msg.ReadByDriver = true
	return msg, true
}

// SetDeliveryState transitions an optimistic message's delivery state.
func (s *MessageStore) SetDeliveryState(threadID models.ThreadID, clientTempID string, state models.DeliveryState) (*models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.findByTempIDLocked(threadID, clientTempID)
	if msg == nil {
		return nil, false
	}
	msg.DeliveryState = state
	return msg, true
}

// Discard removes a failed optimistic message. It is the only removal
// the store supports: a failed send stays visible until the caller
// explicitly discards it, so no typed text is silently lost.
func (s *MessageStore) Discard(threadID models.ThreadID, clientTempID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.findByTempIDLocked(threadID, clientTempID)
	if msg == nil || msg.DeliveryState != models.DeliveryStateFailed {
		return false
	}
	s.removeLocked(threadID, msg)
	return true
}

// Get returns a copy of the thread's messages in display order.
func (s *MessageStore) Get(threadID models.ThreadID) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.threads[threadID]
	out := make([]models.Message, len(msgs))
	for i, msg := range msgs {
		out[i] = *msg
	}
	return out
}

// Find returns a copy of a single message by thread-scoped lookup.
func (s *MessageStore) Find(threadID models.ThreadID, id int64) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if msg := s.findByIDLocked(threadID, id); msg != nil {
		return *msg, true
	}
	return models.Message{}, false
}

// FindPending returns a copy of a pending or failed optimistic message.
func (s *MessageStore) FindPending(threadID models.ThreadID, clientTempID string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if msg := s.findByTempIDLocked(threadID, clientTempID); msg != nil {
		return *msg, true
	}
	return models.Message{}, false
}

// Contains reports whether a server id is already known in the thread.
func (s *MessageStore) Contains(threadID models.ThreadID, id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findByIDLocked(threadID, id) != nil
}

// HasThread reports whether any in-memory state exists for the thread.
func (s *MessageStore) HasThread(threadID models.ThreadID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads[threadID]) > 0
}

// ThreadIDs returns every thread with in-memory state, sorted for
// deterministic iteration.
func (s *MessageStore) ThreadIDs() []models.ThreadID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]models.ThreadID, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// UnreadIDs returns the server ids of the thread's unread driver
// messages in display order.
func (s *MessageStore) UnreadIDs(threadID models.ThreadID) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []int64
	for _, msg := range s.threads[threadID] {
		if msg.Unread() && msg.ID != 0 {
			ids = append(ids, msg.ID)
		}
	}
	return ids
}

// CountUnread recounts the thread's unread driver messages.
func (s *MessageStore) CountUnread(threadID models.ThreadID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, msg := range s.threads[threadID] {
		if msg.Unread() {
			count++
		}
	}
	return count
}

func (s *MessageStore) insertLocked(threadID models.ThreadID, msg *models.Message) {
	s.seq++
	msg.Seq = s.seq

	msgs := s.threads[threadID]
	// New messages almost always sort last; walk back from the end to
	// find the insertion point for late-arriving history.
	pos := len(msgs)
	for pos > 0 && msg.Before(msgs[pos-1]) {
		pos--
	}
	msgs = append(msgs, nil)
	copy(msgs[pos+1:], msgs[pos:])
	msgs[pos] = msg
	s.threads[threadID] = msgs
}

func (s *MessageStore) removeLocked(threadID models.ThreadID, target *models.Message) {
	msgs := s.threads[threadID]
	for i, msg := range msgs {
		if msg == target {
			s.threads[threadID] = append(msgs[:i], msgs[i+1:]...)
			return
		}
	}
}

func (s *MessageStore) findByIDLocked(threadID models.ThreadID, id int64) *models.Message {
	if id == 0 {
		return nil
	}
	for _, msg := range s.threads[threadID] {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

func (s *MessageStore) findByTempIDLocked(threadID models.ThreadID, clientTempID string) *models.Message {
	if clientTempID == "" {
		return nil
	}
	for _, msg := range s.threads[threadID] {
		if msg.ClientTempID == clientTempID {
			return msg
		}
	}
	return nil
}
