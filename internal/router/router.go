// Package router connects the external channel to the reconciliation
// engine: it decodes raw push envelopes into typed events, drops
// malformed payloads at the boundary, and owns the single polling
// fallback that feeds the same pipeline while the push channel is down.
package router

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
)

// Wire event names delivered by the push channel.
const (
	EventMessageReceived    = "message.received"
	EventReadReceiptUpdated = "read_receipt.updated"
)

// Applier consumes decoded channel events. Implemented by the
// reconciliation engine.
type Applier interface {
	Apply(ctx context.Context, event models.ChannelEvent)
	FlushPendingMarkReads(ctx context.Context)
	SetChannelOnline(online bool)
}

// Router is the single funnel between the outside world and the engine.
// One Router serves every UI surface; there are no per-surface timers or
// sockets racing each other.
type Router struct {
	logger    zerolog.Logger
	engine    Applier
	publisher events.Publisher

	online atomic.Bool

	mu     sync.Mutex
	poller *Poller
}

// New creates a Router feeding the given engine.
func New(engine Applier, publisher events.Publisher) *Router {
	return &Router{
		logger:    logging.Component("event-router"),
		engine:    engine,
		publisher: publisher,
	}
}

// AttachPoller registers the polling fallback so reconnects can trigger
// an immediate catch-up poll.
func (r *Router) AttachPoller(p *Poller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.poller = p
}

// HandleEnvelope decodes one raw push payload and forwards it to the
// engine. Malformed payloads are dropped with a diagnostic log; a bad
// event must never stop subsequent valid events from being processed.
func (r *Router) HandleEnvelope(ctx context.Context, eventName string, payload []byte) {
	switch eventName {
	case EventMessageReceived:
		var ev models.MessageReceived
		if err := json.Unmarshal(payload, &ev); err != nil {
			r.dropMalformed(eventName, err)
			return
		}
		if err := ev.Validate(); err != nil {
			r.dropMalformed(eventName, err)
			return
		}
		r.engine.Apply(ctx, ev)
	case EventReadReceiptUpdated:
		var ev models.ReadReceiptUpdated
		if err := json.Unmarshal(payload, &ev); err != nil {
			r.dropMalformed(eventName, err)
			return
		}
		if err := ev.Validate(); err != nil {
			r.dropMalformed(eventName, err)
			return
		}
		r.engine.Apply(ctx, ev)
	default:
		r.logger.Debug().Str("event", eventName).Msg("unknown push event dropped")
	}
}

// HandleSnapshot validates and applies a polling snapshot.
func (r *Router) HandleSnapshot(ctx context.Context, entries []models.SnapshotEntry) {
	snapshot := models.UnreadSnapshot{Messages: entries}
	if err := snapshot.Validate(); err != nil {
		r.dropMalformed("unread.snapshot", err)
		return
	}
	r.engine.Apply(ctx, snapshot)
}

// SetOnline records a push channel transition. Going online flushes
// mark-read retries and triggers an immediate catch-up poll; going
// offline announces the polling fallback to surfaces that render a
// connectivity indicator.
func (r *Router) SetOnline(ctx context.Context, online bool) {
	if r.online.Swap(online) == online {
		return
	}
	r.engine.SetChannelOnline(online)

	if online {
		r.logger.Info().Msg("push channel connected")
		r.publishChannelState(ctx, models.EventTypeChannelOnline)
		r.engine.FlushPendingMarkReads(ctx)
		r.mu.Lock()
		poller := r.poller
		r.mu.Unlock()
		if poller != nil {
			poller.PollNow()
		}
		return
	}

	r.logger.Warn().Msg("push channel lost, polling fallback active")
	r.publishChannelState(ctx, models.EventTypeChannelOffline)
}

// Online reports whether the push channel is currently connected.
func (r *Router) Online() bool {
	return r.online.Load()
}

func (r *Router) publishChannelState(ctx context.Context, eventType models.EventType) {
	if r.publisher == nil {
		return
	}
	r.publisher.Publish(ctx, &models.Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
	})
}

func (r *Router) dropMalformed(eventName string, err error) {
	r.logger.Warn().Err(err).Str("event", eventName).Msg("malformed event dropped")
}
