package core

import (
	"fmt"
	"sync"
)

// DirectKey derives the canonical conversation key for a pair of users.
// Both participants compute the identical key regardless of who initiates:
// DirectKey(a, b) == DirectKey(b, a).
func DirectKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("dm:%d:%d", a, b)
}

// conversationTable tracks which connections currently have a conversation
// view open. A connection belongs to at most one conversation at a time;
// joining a new one leaves the previous group first. Group entries are
// created on first join and dropped when the last member leaves.
type conversationTable struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{}
	byConn  map[string]string
}

func newConversationTable() *conversationTable {
	return &conversationTable{
		members: make(map[string]map[string]struct{}),
		byConn:  make(map[string]string),
	}
}

// Join adds the connection to the group for key, removing it from its
// previous group if it had one.
func (t *conversationTable) Join(connID, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.byConn[connID]; ok {
		if prev == key {
			return
		}
		t.removeLocked(connID, prev)
	}

	set, ok := t.members[key]
	if !ok {
		set = make(map[string]struct{})
		t.members[key] = set
	}
	set[connID] = struct{}{}
	t.byConn[connID] = key
}

// Leave removes the connection from whatever group it belongs to.
// Idempotent: leaving while not in any group is a no-op.
func (t *conversationTable) Leave(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key, ok := t.byConn[connID]
	if !ok {
		return
	}
	t.removeLocked(connID, key)
}

func (t *conversationTable) removeLocked(connID, key string) {
	delete(t.byConn, connID)
	if set, ok := t.members[key]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(t.members, key)
		}
	}
}

// Members returns a snapshot of the connection ids joined to the group.
func (t *conversationTable) Members(key string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	set := t.members[key]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// KeyFor returns the conversation key the connection is joined to, if any.
func (t *conversationTable) KeyFor(connID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	key, ok := t.byConn[connID]
	return key, ok
}
