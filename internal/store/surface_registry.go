package store

import (
	"sort"
	"sync"

	"github.com/ridewire/dispatchsync/internal/models"
)

// SurfaceKind identifies which kind of UI surface has a thread open.
type SurfaceKind string

const (
	SurfaceNotificationPanel SurfaceKind = "notification-panel"
	SurfaceChatModal         SurfaceKind = "chat-modal"
	SurfaceListBadge         SurfaceKind = "list-badge-context"
)

// SurfaceRegistry tracks which surfaces are actively viewing which
// threads. A thread is suppressed (withheld from global badge totals)
// while its focus set is non-empty. Multiple surfaces may focus the same
// thread concurrently; teardown order is not guaranteed, so Unfocus is
// safe to call redundantly.
type SurfaceRegistry struct {
	mu    sync.RWMutex
	focus map[models.ThreadID]map[SurfaceKind]struct{}
}

// NewSurfaceRegistry creates an empty SurfaceRegistry.
func NewSurfaceRegistry() *SurfaceRegistry {
	return &SurfaceRegistry{
		focus: make(map[models.ThreadID]map[SurfaceKind]struct{}),
	}
}

// Focus declares a surface actively viewing a thread.
func (r *SurfaceRegistry) Focus(threadID models.ThreadID, kind SurfaceKind) {
	if threadID == "" || kind == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	kinds := r.focus[threadID]
	if kinds == nil {
		kinds = make(map[SurfaceKind]struct{})
		r.focus[threadID] = kinds
	}
	kinds[kind] = struct{}{}
}

// Unfocus withdraws a surface from a thread. Unknown surfaces and
// threads are ignored.
func (r *SurfaceRegistry) Unfocus(threadID models.ThreadID, kind SurfaceKind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kinds := r.focus[threadID]
	if kinds == nil {
		return
	}
	delete(kinds, kind)
	if len(kinds) == 0 {
		delete(r.focus, threadID)
	}
}

// Suppressed reports whether at least one surface is focused on the
// thread.
func (r *SurfaceRegistry) Suppressed(threadID models.ThreadID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.focus[threadID]) > 0
}

// Kinds returns the surfaces currently focused on a thread, sorted.
func (r *SurfaceRegistry) Kinds(threadID models.ThreadID) []SurfaceKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]SurfaceKind, 0, len(r.focus[threadID]))
	for kind := range r.focus[threadID] {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
