package daemon

import (
	"encoding/json"
	"strings"

	"github.com/ridewire/dispatchsync/internal/models"
)

// surfaceRequest is one line-JSON command from a UI surface.
type surfaceRequest struct {
	Cmd   string `json:"cmd"`
	ReqID string `json:"req_id,omitempty"`

	ThreadID models.ThreadID `json:"thread_id,omitempty"`
	Body     string          `json:"body,omitempty"`
	RideID   int64           `json:"ride_id,omitempty"`

	// ClientTempID addresses an optimistic message for retry/discard.
	ClientTempID string `json:"client_temp_id,omitempty"`

	// Surface identifies who is focusing (notification-panel,
	// chat-modal, list-badge-context).
	Surface string `json:"surface,omitempty"`

	// Scope selects history depth for seed ("today" or "all").
	Scope string `json:"scope,omitempty"`

	// EventTypes filters a subscribe stream (empty = all).
	EventTypes []string `json:"event_types,omitempty"`

	// OlderThan is the retention age for prune, as a Go duration.
	OlderThan string `json:"older_than,omitempty"`

	Limit int `json:"limit,omitempty"`
}

type surfaceErr struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// surfaceResponse is the reply to one command.
type surfaceResponse struct {
	OK     bool            `json:"ok"`
	ReqID  string          `json:"req_id,omitempty"`
	Error  *surfaceErr     `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// surfaceEnvelope is one pushed event on a subscribe stream.
type surfaceEnvelope struct {
	Event *models.Event `json:"event,omitempty"`
	Error *surfaceErr   `json:"error,omitempty"`
}

type statusResult struct {
	Online           bool `json:"online"`
	Threads          int  `json:"threads"`
	GlobalUnread     int  `json:"global_unread"`
	PendingMarkReads int  `json:"pending_mark_reads"`
}

type countsResult struct {
	Global    int                     `json:"global"`
	PerThread map[models.ThreadID]int `json:"per_thread"`
}

type threadSummary struct {
	ThreadID models.ThreadID `json:"thread_id"`
	Unread   int             `json:"unread"`
	Messages int             `json:"messages"`
	Focused  bool            `json:"focused"`
}

type historyResult struct {
	ThreadID models.ThreadID  `json:"thread_id"`
	Messages []models.Message `json:"messages"`
}

type markReadResult struct {
	ThreadID models.ThreadID `json:"thread_id"`
	Marked   []int64         `json:"marked"`
}

type eventsResult struct {
	Events []*models.Event `json:"events"`
}

type pruneResult struct {
	Deleted   int64 `json:"deleted"`
	Remaining int64 `json:"remaining"`
}

func parseListenAddress(address string) (network, addr string) {
	trimmed := strings.TrimSpace(address)
	switch {
	case strings.HasPrefix(trimmed, "unix://"):
		return "unix", strings.TrimPrefix(trimmed, "unix://")
	case strings.HasPrefix(trimmed, "tcp://"):
		return "tcp", strings.TrimPrefix(trimmed, "tcp://")
	default:
		return "tcp", trimmed
	}
}
