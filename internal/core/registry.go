package core

import "sync"

// ConnRegistry maps a user to the set of its currently open connections.
// It is the single source of truth for "is this user online": a user with
// zero connections has no entry at all, which is what makes the transition
// flags returned by Add and Remove reliable.
type ConnRegistry struct {
	mu    sync.RWMutex
	conns map[int64]map[string]struct{}
}

// NewConnRegistry constructs an empty registry.
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{conns: make(map[int64]map[string]struct{})}
}

// Add inserts a connection into the user's set, creating the set if absent.
// Returns true if this is the user's first connection (offline -> online).
func (r *ConnRegistry) Add(userID int64, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		r.conns[userID] = map[string]struct{}{connID: {}}
		return true
	}
	set[connID] = struct{}{}
	return false
}

// Remove deletes a connection from the user's set; the entry is dropped
// entirely once the set is empty. Returns true if this was the user's last
// connection (online -> offline). Removing an unknown pair is a no-op.
func (r *ConnRegistry) Remove(userID int64, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.conns, userID)
		return true
	}
	return false
}

// IsOnline reports whether the user has at least one registered connection.
func (r *ConnRegistry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}

// OnlineUsers returns a snapshot of all currently online user ids.
func (r *ConnRegistry) OnlineUsers() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]int64, 0, len(r.conns))
	for id := range r.conns {
		users = append(users, id)
	}
	return users
}

// Connections returns a snapshot of the user's connection ids.
func (r *ConnRegistry) Connections(userID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[userID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}
