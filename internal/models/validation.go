package models

import (
	"errors"
	"fmt"
)

// ErrMalformedEvent marks a push payload that is missing required fields.
// Malformed events are dropped at the router boundary; they never reach
// the reconciliation engine.
var ErrMalformedEvent = errors.New("malformed event")

// Validate checks required fields on an incoming message event.
func (e MessageReceived) Validate() error {
	if e.ID <= 0 {
		return fmt.Errorf("%w: message id missing", ErrMalformedEvent)
	}
	if e.ThreadID == "" {
		return fmt.Errorf("%w: thread id missing", ErrMalformedEvent)
	}
	switch e.Direction {
	case DirectionFromDriver, DirectionFromDispatcher, DirectionBroadcast:
	default:
		return fmt.Errorf("%w: unknown direction %q", ErrMalformedEvent, e.Direction)
	}
	return nil
}

// Validate checks required fields on an incoming read receipt event.
func (e ReadReceiptUpdated) Validate() error {
	if e.MessageID <= 0 {
		return fmt.Errorf("%w: message id missing", ErrMalformedEvent)
	}
	if e.ThreadID == "" {
		return fmt.Errorf("%w: thread id missing", ErrMalformedEvent)
	}
	switch e.MarkedBy {
	case MarkerDispatcher, MarkerDriver:
	default:
		return fmt.Errorf("%w: unknown marker %q", ErrMalformedEvent, e.MarkedBy)
	}
	return nil
}

// Validate checks a polling snapshot. Entries missing an id or thread are
// rejected as a whole so a partial snapshot is never half-applied.
func (s UnreadSnapshot) Validate() error {
	for i, entry := range s.Messages {
		if entry.ID <= 0 {
			return fmt.Errorf("%w: snapshot entry %d missing id", ErrMalformedEvent, i)
		}
		if entry.ThreadID == "" {
			return fmt.Errorf("%w: snapshot entry %d missing thread id", ErrMalformedEvent, i)
		}
	}
	return nil
}
