package engine

import (
	"context"

	"github.com/ridewire/dispatchsync/internal/models"
)

// Commander issues outgoing commands to the dispatch backend. Commands
// may suspend for a network round-trip; the engine never holds its lock
// across a call, so event processing continues while a command is in
// flight and the result is applied as its own reconciliation step.
type Commander interface {
	// SendMessage persists a dispatcher message and returns its
	// authoritative identity. rideID is optional ride context, zero
	// when the message is not tied to a ride.
	SendMessage(ctx context.Context, threadID models.ThreadID, body string, rideID int64) (models.MessageAck, error)

	// MarkAsRead acknowledges driver messages as read by the
	// dispatcher.
	MarkAsRead(ctx context.Context, ids []int64) error
}

// HistoryScope selects how much conversation history to fetch.
type HistoryScope string

const (
	HistoryScopeToday HistoryScope = "today"
	HistoryScopeAll   HistoryScope = "all"
)

// Historian fetches conversation history from the REST collaborator,
// used to seed a thread that has no in-memory state yet.
type Historian interface {
	GetThreadHistory(ctx context.Context, threadID models.ThreadID, scope HistoryScope) ([]models.Message, error)
}

// SessionCache optionally persists in-flight state across daemon
// restarts: unsent optimistic messages and unacknowledged mark-read ids.
// The engine works without one; on restart the backend remains the
// source of truth and the cache only restores what the backend cannot
// know about.
type SessionCache interface {
	SavePendingMessage(ctx context.Context, msg models.Message) error
	DeletePendingMessage(ctx context.Context, clientTempID string) error
	ListPendingMessages(ctx context.Context) ([]models.Message, error)

	SaveMarkReads(ctx context.Context, threadID models.ThreadID, ids []int64) error
	DeleteMarkReads(ctx context.Context, ids []int64) error
	ListMarkReads(ctx context.Context) (map[int64]models.ThreadID, error)
}
