// Package action recognizes structured command phrases embedded in
// free-text driver messages. A matched message can be rendered as a
// clickable ride action by a UI surface; the parser itself carries no
// state and performs no dispatching.
package action

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind is the ride action a message requests.
type Kind string

const (
	KindCancel      Kind = "cancel"
	KindReassign    Kind = "reassign"
	KindResetPickup Kind = "reset_pickup"
)

// Action is a parsed ride action request.
type Action struct {
	Kind   Kind  `json:"kind"`
	RideID int64 `json:"ride_id"`
}

// The three fixed phrases the dispatch backend embeds in driver messages.
var (
	cancelPattern      = regexp.MustCompile(`(?i)^\s*cancel ride request:\s*rideid\s+(\d+)\s*$`)
	reassignPattern    = regexp.MustCompile(`(?i)^\s*reassign ride request:\s*rideid\s+(\d+)\s*$`)
	resetPickupPattern = regexp.MustCompile(`(?i)^\s*reset pickup request:\s*rideid\s+(\d+)\s*$`)
)

// Parse classifies a message body. It returns the matched action and
// true, or the zero Action and false when the body is not actionable.
func Parse(body string) (Action, bool) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Action{}, false
	}

	for _, candidate := range []struct {
		kind    Kind
		pattern *regexp.Regexp
	}{
		{KindCancel, cancelPattern},
		{KindReassign, reassignPattern},
		{KindResetPickup, resetPickupPattern},
	} {
		match := candidate.pattern.FindStringSubmatch(body)
		if match == nil {
			continue
		}
		rideID, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			// Digits beyond int64 range; treat as not actionable.
			return Action{}, false
		}
		return Action{Kind: candidate.kind, RideID: rideID}, true
	}
	return Action{}, false
}
