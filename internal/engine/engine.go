// Package engine implements the reconciliation core of dispatchsync: it
// applies incoming channel events and local dispatcher actions to the
// shared stores without double counting, without losing messages to
// races between mark-read calls and arriving messages, and without
// re-surfacing notifications the dispatcher already saw.
package engine

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ridewire/dispatchsync/internal/events"
	"github.com/ridewire/dispatchsync/internal/logging"
	"github.com/ridewire/dispatchsync/internal/models"
	"github.com/ridewire/dispatchsync/internal/store"
)

// Engine is the reconciliation engine. All mutations to the shared
// stores flow through it; its mutex serializes reconciliation steps so
// no two run concurrently. The engine performs no I/O itself: outgoing
// commands run with the mutex released and their results are applied as
// their own serialized step when they complete.
type Engine struct {
	logger    zerolog.Logger
	store     *store.MessageStore
	unread    *store.UnreadIndex
	surfaces  *store.SurfaceRegistry
	publisher events.Publisher
	commander Commander
	historian Historian
	cache     SessionCache

	now       func() time.Time
	newTempID func() string

	// online mirrors the push channel state as reported by the router.
	// Mark-read echoes only travel over the push stream, so while the
	// channel is down there is no echo to wait for.
	online atomic.Bool

	mu sync.Mutex
	// pendingMarkRead holds ids submitted for mark-as-read whose echo
	// has not been consumed yet. Membership is what distinguishes an
	// echoed receipt of our own mark from a peer session's mark.
	pendingMarkRead map[int64]models.ThreadID
	// retryMarkRead holds ids whose mark-as-read command failed; the
	// local read mark is kept and the ids are re-sent on the next
	// reconnect or poll.
	retryMarkRead map[int64]models.ThreadID
	// rideContext remembers the ride id attached to an unresolved
	// optimistic message so a retry re-sends it.
	rideContext map[string]int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithHistorian configures the history collaborator used by SeedThread.
func WithHistorian(historian Historian) Option {
	return func(e *Engine) { e.historian = historian }
}

// WithSessionCache configures optional persistence of in-flight state.
func WithSessionCache(cache SessionCache) Option {
	return func(e *Engine) { e.cache = cache }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithTempIDGenerator overrides client temp id generation, for tests.
func WithTempIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newTempID = gen
		}
	}
}

// New creates an Engine over the shared stores.
func New(msgs *store.MessageStore, unread *store.UnreadIndex, surfaces *store.SurfaceRegistry, publisher events.Publisher, commander Commander, opts ...Option) *Engine {
	e := &Engine{
		logger:          logging.Component("reconciliation-engine"),
		store:           msgs,
		unread:          unread,
		surfaces:        surfaces,
		publisher:       publisher,
		commander:       commander,
		now:             func() time.Time { return time.Now().UTC() },
		newTempID:       uuid.NewString,
		pendingMarkRead: make(map[int64]models.ThreadID),
		retryMarkRead:   make(map[int64]models.ThreadID),
		rideContext:     make(map[string]int64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the shared message store surfaces render from.
func (e *Engine) Store() *store.MessageStore { return e.store }

// Unread returns the shared unread index.
func (e *Engine) Unread() *store.UnreadIndex { return e.unread }

// Surfaces returns the shared surface registry.
func (e *Engine) Surfaces() *store.SurfaceRegistry { return e.surfaces }

// SetChannelOnline records a push channel transition reported by the
// router. With the channel down, acknowledged mark-read ids settle
// immediately instead of waiting for an echo: a reconnect resumes
// messages only, so the echo is lost and a lingering entry would
// misclassify a later peer receipt.
func (e *Engine) SetChannelOnline(online bool) {
	e.online.Store(online)
}

// PendingMarkReadCount reports the number of ids awaiting their echo.
func (e *Engine) PendingMarkReadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pendingMarkRead)
}

// Restore reloads in-flight state from the session cache: unsent
// optimistic messages come back as failed sends (the user decides
// between resend and discard), and unacknowledged mark-read ids join
// the retry set so the next flush re-sends them.
func (e *Engine) Restore(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}

	pending, err := e.cache.ListPendingMessages(ctx)
	if err != nil {
		return err
	}
	marks, err := e.cache.ListMarkReads(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	restored := 0
	for i := range pending {
		msg := pending[i]
		if msg.ClientTempID == "" {
			continue
		}
		msg.DeliveryState = models.DeliveryStateFailed
		if e.store.Append(msg.ThreadID, &msg) {
			restored++
		}
	}
	for id, threadID := range marks {
		e.retryMarkRead[id] = threadID
	}
	e.mu.Unlock()

	e.logger.Info().
		Int("pending_messages", restored).
		Int("mark_read_retries", len(marks)).
		Msg("restored session state")
	return nil
}

// publish emits a UI notification. The engine mutex must not be held:
// handlers run synchronously and may read back through the stores.
func (e *Engine) publish(ctx context.Context, eventType models.EventType, threadID models.ThreadID, payload any) {
	if e.publisher == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			e.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to marshal event payload")
			return
		}
		raw = data
	}
	e.publisher.Publish(ctx, &models.Event{
		ID:        uuid.NewString(),
		Timestamp: e.now(),
		Type:      eventType,
		ThreadID:  threadID,
		Payload:   raw,
	})
}

// publishUnreadChanged emits the recomputed counts for a thread.
func (e *Engine) publishUnreadChanged(ctx context.Context, threadID models.ThreadID) {
	e.publish(ctx, models.EventTypeUnreadChanged, threadID, models.UnreadChangedPayload{
		ThreadID: threadID,
		Count:    e.unread.Recompute(threadID),
		Global:   e.unread.GlobalUnreadCount(),
	})
}
