package store

import (
	"github.com/ridewire/dispatchsync/internal/models"
)

// UnreadIndex derives unread counts from the MessageStore, adjusted by
// surface suppression. It keeps no counters of its own: every query is a
// full recount from the authoritative message lists, which is bounded
// per thread and self-healing against the incremental-counter drift
// that plagues plus-one/minus-one bookkeeping.
type UnreadIndex struct {
	store    *MessageStore
	surfaces *SurfaceRegistry
}

// NewUnreadIndex creates an UnreadIndex over the shared store and
// surface registry.
func NewUnreadIndex(store *MessageStore, surfaces *SurfaceRegistry) *UnreadIndex {
	return &UnreadIndex{store: store, surfaces: surfaces}
}

// Recompute recounts a thread's unread driver messages. While a surface
// is focused on the thread its contribution is suppressed to zero; with
// no suppression active the result always equals the literal recount of
// the thread's own messages.
func (x *UnreadIndex) Recompute(threadID models.ThreadID) int {
	if x.surfaces.Suppressed(threadID) {
		return 0
	}
	return x.store.CountUnread(threadID)
}

// GlobalUnreadCount sums unread counts across all threads, excluding
// suppressed ones. This is what the header and notification badges
// render.
func (x *UnreadIndex) GlobalUnreadCount() int {
	total := 0
	for _, threadID := range x.store.ThreadIDs() {
		total += x.Recompute(threadID)
	}
	return total
}

// PerThreadCounts returns a thread-to-count mapping for list-view
// badges, one entry per thread with in-memory state.
func (x *UnreadIndex) PerThreadCounts() map[models.ThreadID]int {
	counts := make(map[models.ThreadID]int)
	for _, threadID := range x.store.ThreadIDs() {
		counts[threadID] = x.Recompute(threadID)
	}
	return counts
}
