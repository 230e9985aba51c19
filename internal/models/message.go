// Package models defines the core data types for dispatchsync.
package models

import (
	"time"
)

// ThreadID identifies a conversation: one driver's thread, or the
// broadcast channel.
type ThreadID string

// ThreadBroadcast is the sentinel thread for broadcast messages.
const ThreadBroadcast ThreadID = "broadcast"

// Direction identifies who authored a message.
type Direction string

const (
	DirectionFromDispatcher Direction = "from_dispatcher"
	DirectionFromDriver     Direction = "from_driver"
	DirectionBroadcast      Direction = "broadcast"
)

// ReadState tracks whether a driver-authored message has been read by the
// dispatcher. It is only meaningful for DirectionFromDriver messages;
// dispatcher-authored messages track driver receipts via ReadByDriver.
type ReadState string

const (
	ReadStateUnread ReadState = "unread"
	ReadStateRead   ReadState = "read"
)

// DeliveryState is the lifecycle of an optimistic dispatcher message
// before the server acknowledges it: pending -> sent | failed, and
// failed -> pending again on retry.
type DeliveryState string

const (
	DeliveryStatePending DeliveryState = "pending"
	DeliveryStateSent    DeliveryState = "sent"
	DeliveryStateFailed  DeliveryState = "failed"
)

// Message is one entry in a thread.
//
// A message with ClientTempID set and ID zero is an optimistic local
// message awaiting its send round-trip. Exactly one server ID ever
// replaces exactly one ClientTempID.
type Message struct {
	// ID is the server-assigned identifier, zero until the send
	// round-trip completes.
	ID int64 `json:"id,omitempty"`

	// ClientTempID is the locally-generated identity of an optimistic
	// message, stable until reconciled with a server ID.
	ClientTempID string `json:"client_temp_id,omitempty"`

	// ThreadID is the driver thread (or broadcast sentinel) this
	// message belongs to.
	ThreadID ThreadID `json:"thread_id"`

	Direction Direction `json:"direction"`
	Body      string    `json:"body"`

	// CreatedAt is client-supplied for optimistic messages and replaced
	// by the server timestamp once known.
	CreatedAt time.Time `json:"created_at"`

	// ReadState is set for driver-authored messages only.
	ReadState ReadState `json:"read_state,omitempty"`

	// DeliveryState is set for optimistic dispatcher messages only.
	DeliveryState DeliveryState `json:"delivery_state,omitempty"`

	// ReadByDriver is the receipt flag on dispatcher-authored messages.
	ReadByDriver bool `json:"read_by_driver,omitempty"`

	// Seq is the store-assigned insertion order, used to keep display
	// ordering stable across re-renders. Not serialized.
	Seq uint64 `json:"-"`
}

// MessageAck is the backend's acknowledgement of a sent message: the
// authoritative identity that replaces the client temp id.
type MessageAck struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Pending reports whether the message is still awaiting its server
// identity.
func (m *Message) Pending() bool {
	return m.ID == 0 && m.ClientTempID != ""
}

// Unread reports whether the message counts toward the thread's unread
// total.
func (m *Message) Unread() bool {
	return m.Direction == DirectionFromDriver && m.ReadState == ReadStateUnread
}

// Before reports whether m sorts ahead of other in thread display order:
// by CreatedAt, ties broken by insertion order.
func (m *Message) Before(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.Seq < other.Seq
}
