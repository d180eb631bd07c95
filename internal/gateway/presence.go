package gateway

import (
	"sync"
	"time"
)

// Registry is the in-memory presence table: user identity to the set of that
// user's live connections. It is authoritative only for the current process
// lifetime and is advisory — used for online indicators and push routing,
// never for delivery guarantees.
//
// Supporting a set of connections per user keeps multi-device and multi-tab
// sessions from clobbering each other: a user goes offline only when the
// last connection drops.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[*Client]struct{}
	since map[string]time.Time
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]map[*Client]struct{}),
		since: make(map[string]time.Time),
	}
}

// Add records a connection for a user. Returns true when this is the user's
// first live connection (the transition that triggers a userOnline broadcast).
// Re-adding the same connection is a no-op and never reports a transition.
func (r *Registry) Add(userID string, client *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[*Client]struct{})
		r.conns[userID] = set
		r.since[userID] = time.Now()
	}
	if _, exists := set[client]; exists {
		return false
	}
	set[client] = struct{}{}
	return len(set) == 1
}

// Remove drops a connection. Returns the user it belonged to and true when it
// was the user's last connection (the transition that triggers userOffline).
// Calling with an unauthenticated or already-removed connection is a no-op.
func (r *Registry) Remove(client *Client) (string, bool) {
	userID := client.UserID()
	if userID == "" {
		return "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return userID, false
	}
	if _, exists := set[client]; !exists {
		return userID, false
	}
	delete(set, client)
	if len(set) == 0 {
		delete(r.conns, userID)
		delete(r.since, userID)
		return userID, true
	}
	return userID, false
}

// IsOnline reports whether a user has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}

// Connections returns the user's live connections.
func (r *Registry) Connections(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.conns[userID]))
	for client := range r.conns[userID] {
		clients = append(clients, client)
	}
	return clients
}

// ConnectionCount returns the number of live connections for a user.
func (r *Registry) ConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID])
}

// OnlineUsers returns the ids of all users with live connections.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.conns))
	for userID := range r.conns {
		users = append(users, userID)
	}
	return users
}

// OnlineSince returns when the user's current presence began.
func (r *Registry) OnlineSince(userID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	since, ok := r.since[userID]
	return since, ok
}
