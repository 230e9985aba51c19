package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ridewire/dispatchsync/internal/models"
	"github.com/ridewire/dispatchsync/internal/store"
)

// Local action errors.
var (
	ErrEmptyBody       = errors.New("message body is empty")
	ErrMissingThread   = errors.New("thread id is required")
	ErrUnknownMessage  = errors.New("message not found")
	ErrNotFailed       = errors.New("message is not in failed state")
	ErrNoHistorian     = errors.New("no history collaborator configured")
	ErrAlreadyResolved = errors.New("message already resolved")
)

// Send creates an optimistic pending message, appends it immediately,
// and issues the send command. On success the pending entry is resolved
// in place with the server identity. On failure the message stays in the
// thread as failed until explicitly retried or discarded, so the typed
// text is never silently lost; the returned message carries the body for
// restoring a compose box.
func (e *Engine) Send(ctx context.Context, threadID models.ThreadID, body string, rideID int64) (models.Message, error) {
	if threadID == "" {
		return models.Message{}, ErrMissingThread
	}
	if strings.TrimSpace(body) == "" {
		return models.Message{}, ErrEmptyBody
	}

	e.mu.Lock()
	// Replying counts as having seen the thread: mark outstanding
	// unread messages read in the same step.
	marked := e.markReadLocked(ctx, threadID, e.store.UnreadIDs(threadID))

	tempID := e.newTempID()
	msg := &models.Message{
		ClientTempID:  tempID,
		ThreadID:      threadID,
		Direction:     models.DirectionFromDispatcher,
		Body:          body,
		CreatedAt:     e.now(),
		DeliveryState: models.DeliveryStatePending,
	}
	e.store.Append(threadID, msg)
	if rideID != 0 {
		e.rideContext[tempID] = rideID
	}
	if e.cache != nil {
		if err := e.cache.SavePendingMessage(ctx, *msg); err != nil {
			e.logger.Warn().Err(err).Msg("failed to cache pending message")
		}
	}
	e.mu.Unlock()

	if len(marked) > 0 {
		go e.dispatchMarkRead(context.WithoutCancel(ctx), threadID, marked)
		e.publishUnreadChanged(ctx, threadID)
	}

	return e.deliver(ctx, threadID, tempID, body, rideID)
}

// RetrySend transitions a failed optimistic message back to pending and
// re-issues the send command with its original ride context.
func (e *Engine) RetrySend(ctx context.Context, threadID models.ThreadID, clientTempID string) (models.Message, error) {
	e.mu.Lock()
	msg, ok := e.store.FindPending(threadID, clientTempID)
	if !ok {
		e.mu.Unlock()
		return models.Message{}, ErrUnknownMessage
	}
	if msg.DeliveryState != models.DeliveryStateFailed {
		e.mu.Unlock()
		return models.Message{}, ErrNotFailed
	}
	e.store.SetDeliveryState(threadID, clientTempID, models.DeliveryStatePending)
	rideID := e.rideContext[clientTempID]
	e.mu.Unlock()

	return e.deliver(ctx, threadID, clientTempID, msg.Body, rideID)
}

// DiscardFailed removes a failed optimistic message. This is the only
// path that ever removes a message from a thread.
func (e *Engine) DiscardFailed(ctx context.Context, threadID models.ThreadID, clientTempID string) bool {
	e.mu.Lock()
	discarded := e.store.Discard(threadID, clientTempID)
	if discarded {
		delete(e.rideContext, clientTempID)
		if e.cache != nil {
			if err := e.cache.DeletePendingMessage(ctx, clientTempID); err != nil {
				e.logger.Warn().Err(err).Msg("failed to drop cached pending message")
			}
		}
	}
	e.mu.Unlock()
	return discarded
}

// deliver runs the send round-trip for an optimistic message and applies
// the result as its own reconciliation step.
func (e *Engine) deliver(ctx context.Context, threadID models.ThreadID, clientTempID, body string, rideID int64) (models.Message, error) {
	ack, err := e.commander.SendMessage(ctx, threadID, body, rideID)

	e.mu.Lock()
	if err != nil {
		e.store.SetDeliveryState(threadID, clientTempID, models.DeliveryStateFailed)
		failed, _ := e.store.FindPending(threadID, clientTempID)
		e.mu.Unlock()

		e.publish(ctx, models.EventTypeMessageFailed, threadID, models.MessageFailedPayload{
			ClientTempID: clientTempID,
			ThreadID:     threadID,
			Body:         body,
			Error:        err.Error(),
		})
		return failed, fmt.Errorf("send message: %w", err)
	}

	resolved, ok := e.store.ResolvePending(threadID, clientTempID, ack)
	if !ok {
		// The pending entry vanished while the command was in flight
		// (discarded by the caller). The backend kept the message; the
		// next history seed will show it.
		e.mu.Unlock()
		return models.Message{}, ErrAlreadyResolved
	}
	delete(e.rideContext, clientTempID)
	if e.cache != nil {
		if err := e.cache.DeletePendingMessage(ctx, clientTempID); err != nil {
			e.logger.Warn().Err(err).Msg("failed to drop cached pending message")
		}
	}
	snapshot := *resolved
	e.mu.Unlock()

	e.publish(ctx, models.EventTypeMessageSent, threadID, snapshot)
	return snapshot, nil
}

// MarkThreadRead marks every unread driver message in the thread read,
// optimistically and immediately, then reports exactly the set of ids
// that were actually unread to the backend. Calling it twice in a row is
// a no-op the second time. The failure of the backend call never rolls
// back the local mark: a notification the dispatcher already saw must
// not come back.
func (e *Engine) MarkThreadRead(ctx context.Context, threadID models.ThreadID) []int64 {
	e.mu.Lock()
	marked := e.markReadLocked(ctx, threadID, e.store.UnreadIDs(threadID))
	e.mu.Unlock()

	if len(marked) == 0 {
		return nil
	}
	e.publishUnreadChanged(ctx, threadID)
	go e.dispatchMarkRead(context.WithoutCancel(ctx), threadID, marked)
	return marked
}

// Focus declares a surface actively viewing a thread and marks its
// outstanding unread messages read. While focused, newly arriving
// messages are marked read as they are applied, so the badge never
// increments for a conversation the dispatcher is looking at.
func (e *Engine) Focus(ctx context.Context, threadID models.ThreadID, kind store.SurfaceKind) {
	e.surfaces.Focus(threadID, kind)
	e.MarkThreadRead(ctx, threadID)
	e.publishUnreadChanged(ctx, threadID)
}

// Unfocus withdraws a surface from a thread. Safe to call redundantly;
// UI teardown order is not guaranteed.
func (e *Engine) Unfocus(ctx context.Context, threadID models.ThreadID, kind store.SurfaceKind) {
	e.surfaces.Unfocus(threadID, kind)
	e.publishUnreadChanged(ctx, threadID)
}

// SeedThread backfills a thread from conversation history on first open.
// A thread that already has in-memory state is left untouched: live
// events are authoritative for the current session.
func (e *Engine) SeedThread(ctx context.Context, threadID models.ThreadID, scope HistoryScope) error {
	if threadID == "" {
		return ErrMissingThread
	}
	if e.historian == nil {
		return ErrNoHistorian
	}
	if e.store.HasThread(threadID) {
		return nil
	}

	history, err := e.historian.GetThreadHistory(ctx, threadID, scope)
	if err != nil {
		return fmt.Errorf("fetch thread history: %w", err)
	}

	e.mu.Lock()
	inserted := e.store.Seed(threadID, history)
	e.mu.Unlock()

	if inserted > 0 {
		e.publish(ctx, models.EventTypeThreadSeeded, threadID, nil)
		e.publishUnreadChanged(ctx, threadID)
	}
	return nil
}
