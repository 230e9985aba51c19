package engine

import (
	"context"

	"github.com/ridewire/dispatchsync/internal/action"
	"github.com/ridewire/dispatchsync/internal/logging"
	"github.com/ridewire/dispatchsync/internal/models"
)

// Apply feeds one channel event through the reconciliation rules. It is
// the single entry point for everything arriving from the push channel
// or the polling fallback. Apply never fails: duplicate deliveries are
// absorbed, echoes are suppressed, and the router has already rejected
// malformed payloads.
func (e *Engine) Apply(ctx context.Context, event models.ChannelEvent) {
	switch ev := event.(type) {
	case models.MessageReceived:
		e.applyMessageReceived(ctx, ev)
	case models.ReadReceiptUpdated:
		e.applyReadReceipt(ctx, ev)
	case models.UnreadSnapshot:
		e.applySnapshot(ctx, ev)
	default:
		e.logger.Warn().Type("event", event).Msg("unknown channel event dropped")
	}
}

// applyMessageReceived handles a pushed message. If a surface is focused
// on the thread at the moment the event is processed, the new message is
// marked read in the same step, before any badge can observe it, and the
// mark is reported to the backend.
func (e *Engine) applyMessageReceived(ctx context.Context, ev models.MessageReceived) {
	msg := &models.Message{
		ID:        ev.ID,
		ThreadID:  ev.ThreadID,
		Direction: ev.Direction,
		Body:      ev.Body,
		CreatedAt: ev.CreatedAt,
	}
	switch ev.Direction {
	case models.DirectionFromDriver:
		msg.ReadState = models.ReadStateUnread
	case models.DirectionFromDispatcher:
		msg.DeliveryState = models.DeliveryStateSent
	}

	e.mu.Lock()
	if !e.store.Append(ev.ThreadID, msg) {
		// Duplicate delivery, already logged by the store.
		e.mu.Unlock()
		return
	}

	var markIDs []int64
	if msg.Unread() && e.surfaces.Suppressed(ev.ThreadID) {
		markIDs = e.markReadLocked(ctx, ev.ThreadID, []int64{ev.ID})
	}
	snapshot := *msg
	e.mu.Unlock()

	e.logger.Debug().
		Int64("message_id", ev.ID).
		Str("thread_id", string(ev.ThreadID)).
		Str("body", logging.Snippet(ev.Body, 0)).
		Msg("message received")

	if len(markIDs) > 0 {
		go e.dispatchMarkRead(context.WithoutCancel(ctx), ev.ThreadID, markIDs)
	}

	payload := models.MessageReceivedPayload{Message: snapshot}
	if parsed, ok := action.Parse(ev.Body); ok {
		payload.Action = &parsed
	}
	e.publish(ctx, models.EventTypeMessageReceived, ev.ThreadID, payload)
	e.publishUnreadChanged(ctx, ev.ThreadID)
}

// applyReadReceipt handles a pushed read receipt. Receipts fall into
// three cases: an echo of our own mark (ids present in the pending
// mark-read set), a peer dispatcher session's mark, or the driver
// reading one of our outgoing messages.
func (e *Engine) applyReadReceipt(ctx context.Context, ev models.ReadReceiptUpdated) {
	if ev.MarkedBy == models.MarkerDispatcher {
		e.mu.Lock()
		if _, ours := e.pendingMarkRead[ev.MessageID]; ours {
			delete(e.pendingMarkRead, ev.MessageID)
			e.mu.Unlock()
			e.logger.Debug().
				Int64("message_id", ev.MessageID).
				Str("thread_id", string(ev.ThreadID)).
				Msg("suppressed echo of own mark-read")
			return
		}
		// A peer dispatcher session marked the message read; adopt it.
		changed := e.store.MarkRead(ev.ThreadID, []int64{ev.MessageID})
		e.mu.Unlock()
		if len(changed) > 0 {
			e.publishUnreadChanged(ctx, ev.ThreadID)
		}
		return
	}

	// Driver receipt on a dispatcher-authored message. Does not touch
	// unread counts, which track driver-to-dispatcher messages only.
	e.mu.Lock()
	_, changed := e.store.MarkReceipt(ev.ThreadID, ev.MessageID)
	e.mu.Unlock()
	if changed {
		e.publish(ctx, models.EventTypeReceiptUpdated, ev.ThreadID, models.ReceiptUpdatedPayload{
			MessageID: ev.MessageID,
			ThreadID:  ev.ThreadID,
		})
	}
}

// applySnapshot diffs a polling snapshot of currently-unread driver
// messages against local state. Ids already known locally are left
// alone: a message the dispatcher cleared this session stays read even
// if the backend has not caught up. Unknown ids are appended as new
// arrivals, covering messages that landed while the channel was down.
func (e *Engine) applySnapshot(ctx context.Context, ev models.UnreadSnapshot) {
	type arrival struct {
		msg    models.Message
		marked []int64
	}

	e.mu.Lock()
	var arrivals []arrival
	for _, entry := range ev.Messages {
		if e.store.Contains(entry.ThreadID, entry.ID) {
			continue
		}
		if _, ours := e.pendingMarkRead[entry.ID]; ours {
			// Marked read locally; the backend just hasn't seen it yet.
			continue
		}
		if _, retrying := e.retryMarkRead[entry.ID]; retrying {
			continue
		}

		msg := &models.Message{
			ID:        entry.ID,
			ThreadID:  entry.ThreadID,
			Direction: models.DirectionFromDriver,
			Body:      entry.Body,
			CreatedAt: entry.CreatedAt,
			ReadState: models.ReadStateUnread,
		}
		if !e.store.Append(entry.ThreadID, msg) {
			continue
		}
		a := arrival{msg: *msg}
		if e.surfaces.Suppressed(entry.ThreadID) {
			a.marked = e.markReadLocked(ctx, entry.ThreadID, []int64{entry.ID})
		}
		arrivals = append(arrivals, a)
	}
	e.mu.Unlock()

	touched := make(map[models.ThreadID]struct{})
	for _, a := range arrivals {
		if len(a.marked) > 0 {
			go e.dispatchMarkRead(context.WithoutCancel(ctx), a.msg.ThreadID, a.marked)
		}
		payload := models.MessageReceivedPayload{Message: a.msg}
		if parsed, ok := action.Parse(a.msg.Body); ok {
			payload.Action = &parsed
		}
		e.publish(ctx, models.EventTypeMessageReceived, a.msg.ThreadID, payload)
		touched[a.msg.ThreadID] = struct{}{}
	}
	for threadID := range touched {
		e.publishUnreadChanged(ctx, threadID)
	}
}

// markReadLocked transitions the given ids to read, records them in the
// pending mark-read set, and mirrors them to the session cache. Returns
// the ids actually changed; already-read ids drop out here, which is the
// idempotence boundary that keeps acknowledged ids from being re-sent.
func (e *Engine) markReadLocked(ctx context.Context, threadID models.ThreadID, ids []int64) []int64 {
	changed := e.store.MarkRead(threadID, ids)
	if len(changed) == 0 {
		return nil
	}
	out := make([]int64, 0, len(changed))
	for _, msg := range changed {
		e.pendingMarkRead[msg.ID] = threadID
		out = append(out, msg.ID)
	}
	if e.cache != nil {
		if err := e.cache.SaveMarkReads(ctx, threadID, out); err != nil {
			e.logger.Warn().Err(err).Msg("failed to cache mark-read ids")
		}
	}
	return out
}

// dispatchMarkRead reports a mark-as-read to the backend. On failure the
// optimistic local mark is kept (a false read is preferred over
// re-surfacing a seen notification) and the ids move to the retry set
// for the next reconnect or poll.
func (e *Engine) dispatchMarkRead(ctx context.Context, threadID models.ThreadID, ids []int64) {
	err := e.commander.MarkAsRead(ctx, ids)
	if err == nil {
		e.settleMarkReads(ids)
		if e.cache != nil {
			if cacheErr := e.cache.DeleteMarkReads(ctx, ids); cacheErr != nil {
				e.logger.Warn().Err(cacheErr).Msg("failed to clear cached mark-read ids")
			}
		}
		return
	}

	e.logger.Warn().Err(err).
		Str("thread_id", string(threadID)).
		Ints64("message_ids", ids).
		Msg("mark-as-read failed, keeping local mark and queueing retry")

	e.mu.Lock()
	for _, id := range ids {
		delete(e.pendingMarkRead, id)
		e.retryMarkRead[id] = threadID
	}
	e.mu.Unlock()
}

// FlushPendingMarkReads re-sends mark-read ids whose command previously
// failed. The router calls this on reconnect and on every poll tick.
func (e *Engine) FlushPendingMarkReads(ctx context.Context) {
	e.mu.Lock()
	if len(e.retryMarkRead) == 0 {
		e.mu.Unlock()
		return
	}
	byThread := make(map[models.ThreadID][]int64)
	for id, threadID := range e.retryMarkRead {
		byThread[threadID] = append(byThread[threadID], id)
		e.pendingMarkRead[id] = threadID
		delete(e.retryMarkRead, id)
	}
	e.mu.Unlock()

	for threadID, ids := range byThread {
		if err := e.commander.MarkAsRead(ctx, ids); err != nil {
			e.logger.Warn().Err(err).
				Str("thread_id", string(threadID)).
				Msg("mark-read retry failed")
			e.mu.Lock()
			for _, id := range ids {
				delete(e.pendingMarkRead, id)
				e.retryMarkRead[id] = threadID
			}
			e.mu.Unlock()
			continue
		}
		e.settleMarkReads(ids)
		if e.cache != nil {
			if err := e.cache.DeleteMarkReads(ctx, ids); err != nil {
				e.logger.Warn().Err(err).Msg("failed to clear cached mark-read ids")
			}
		}
	}
}

// settleMarkReads drops acknowledged ids from the pending set when no
// echo can arrive for them. While the channel is online the echo itself
// consumes the entry.
func (e *Engine) settleMarkReads(ids []int64) {
	if e.online.Load() {
		return
	}
	e.mu.Lock()
	for _, id := range ids {
		delete(e.pendingMarkRead, id)
	}
	e.mu.Unlock()
}
