package models

import (
	"encoding/json"
	"time"

	"github.com/ridewire/dispatchsync/internal/action"
)

// Marker identifies which side of the conversation marked a message read.
type Marker string

const (
	MarkerDispatcher Marker = "dispatcher"
	MarkerDriver     Marker = "driver"
)

// ChannelEvent is the closed set of event kinds the reconciliation engine
// consumes. Every push payload and polling result is decoded into one of
// these before it reaches the engine, so the engine's apply switch is the
// single place event semantics live.
type ChannelEvent interface {
	channelEvent()
}

// MessageReceived is a driver (or broadcast) message delivered by the
// push channel.
type MessageReceived struct {
	ID        int64     `json:"id"`
	ThreadID  ThreadID  `json:"thread_id"`
	Direction Direction `json:"direction"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func (MessageReceived) channelEvent() {}

// ReadReceiptUpdated reports that a message was marked read, either by
// the driver (a receipt on our outgoing message) or by a dispatcher
// session (possibly an echo of our own mark).
type ReadReceiptUpdated struct {
	MessageID int64     `json:"message_id"`
	ThreadID  ThreadID  `json:"thread_id"`
	MarkedBy  Marker    `json:"marked_by"`
	Timestamp time.Time `json:"timestamp"`
}

func (ReadReceiptUpdated) channelEvent() {}

// SnapshotEntry is one currently-unread driver message in a polling
// snapshot.
type SnapshotEntry struct {
	ID        int64     `json:"id"`
	ThreadID  ThreadID  `json:"thread_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// UnreadSnapshot is the polling-fallback view of all currently-unread
// driver messages.
type UnreadSnapshot struct {
	Messages []SnapshotEntry `json:"messages"`
}

func (UnreadSnapshot) channelEvent() {}

// EventType categorizes notifications published to UI surfaces.
type EventType string

const (
	EventTypeMessageReceived EventType = "message.received"
	EventTypeMessageSent     EventType = "message.sent"
	EventTypeMessageFailed   EventType = "message.failed"
	EventTypeUnreadChanged   EventType = "unread.changed"
	EventTypeReceiptUpdated  EventType = "receipt.updated"
	EventTypeThreadSeeded    EventType = "thread.seeded"
	EventTypeChannelOnline   EventType = "channel.online"
	EventTypeChannelOffline  EventType = "channel.offline"
)

// Event is a notification published to UI surfaces. Surfaces render from
// the shared stores; events only tell them when and what to re-read.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event was published.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// ThreadID is the affected thread, empty for channel-level events.
	ThreadID ThreadID `json:"thread_id,omitempty"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageReceivedPayload is the payload for message.received events.
// Action carries the parsed ride action when the body matches one of the
// structured request phrases, so surfaces can render the message
// clickable without re-parsing.
type MessageReceivedPayload struct {
	Message Message        `json:"message"`
	Action  *action.Action `json:"action,omitempty"`
}

// UnreadChangedPayload is the payload for unread.changed events.
type UnreadChangedPayload struct {
	ThreadID ThreadID `json:"thread_id"`
	Count    int      `json:"count"`
	Global   int      `json:"global"`
}

// MessageFailedPayload is the payload for message.failed events. Body is
// included so a compose box can be restored without a store lookup.
type MessageFailedPayload struct {
	ClientTempID string   `json:"client_temp_id"`
	ThreadID     ThreadID `json:"thread_id"`
	Body         string   `json:"body"`
	Error        string   `json:"error"`
}

// ReceiptUpdatedPayload is the payload for receipt.updated events.
type ReceiptUpdatedPayload struct {
	MessageID int64    `json:"message_id"`
	ThreadID  ThreadID `json:"thread_id"`
}
