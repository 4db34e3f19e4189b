package bot

import (
	"sort"
	"sync"
)

// GroupRegistry is the in-memory set of active broadcast targets plus a
// cache of each group's branding media reference. It fronts the
// group_settings table so the broadcaster never touches the database on
// the hot path. Deactivate, when set, persists evictions.
type GroupRegistry struct {
	mu         sync.RWMutex
	groups     map[int64]string
	Deactivate func(chatID int64)
}

func NewGroupRegistry() *GroupRegistry {
	return &GroupRegistry{groups: make(map[int64]string)}
}

// Register adds or refreshes a target. Branding is kept as-is when the
// group is already known and ref is empty.
func (r *GroupRegistry) Register(chatID int64, ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.groups[chatID]; ok && ref == "" {
		r.groups[chatID] = prev
		return
	}
	r.groups[chatID] = ref
}

// SetBranding updates the cached media reference for a known group.
func (r *GroupRegistry) SetBranding(chatID int64, ref string) {
	r.mu.Lock()
	r.groups[chatID] = ref
	r.mu.Unlock()
}

// Branding returns the cached media reference, empty when unset.
func (r *GroupRegistry) Branding(chatID int64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.groups[chatID]
}

// Targets returns the active chat ids in stable order.
func (r *GroupRegistry) Targets() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.groups))
	for id := range r.groups {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Evict removes a target and invokes the persistence hook.
func (r *GroupRegistry) Evict(chatID int64) {
	r.mu.Lock()
	_, ok := r.groups[chatID]
	delete(r.groups, chatID)
	r.mu.Unlock()
	if ok && r.Deactivate != nil {
		r.Deactivate(chatID)
	}
}

// Contains reports whether the chat id is a registered target.
func (r *GroupRegistry) Contains(chatID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.groups[chatID]
	return ok
}
