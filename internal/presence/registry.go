package presence

import (
	"sort"
	"sync"
)

// Registry maps a user to the set of connection handles currently open for it.
// It lives in process memory only and starts empty.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]map[string]struct{})}
}

// Register adds handle to userID's set. Registering the same handle twice is a no-op.
func (r *Registry) Register(userID, handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.handles[userID]
	if !ok {
		set = make(map[string]struct{})
		r.handles[userID] = set
	}
	set[handle] = struct{}{}
}

// Unregister removes exactly that handle and drops the user once the set is empty.
// It reports whether anything was removed.
func (r *Registry) Unregister(userID, handle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.handles[userID]
	if !ok {
		return false
	}
	if _, ok := set[handle]; !ok {
		return false
	}
	delete(set, handle)
	if len(set) == 0 {
		delete(r.handles, userID)
	}
	return true
}

// ActiveHandles returns a sorted snapshot of userID's handles, possibly empty.
func (r *Registry) ActiveHandles(userID string) []string {
	r.mu.RLock()
	set := r.handles[userID]
	out := make([]string, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles[userID]) > 0
}

// Users returns how many users hold at least one handle.
func (r *Registry) Users() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
