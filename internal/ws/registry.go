package ws

import (
	"sync"

	"go.uber.org/zap"

	"chatrelay/internal/models"
	"chatrelay/internal/observability"
)

// Registry is the process-wide map from user identity to the one live
// connection for that user. It is the only mutable state shared between
// connection goroutines; everything else reaches shared data through the
// store. Lookups never fail: absence just means "not reachable right now".
type Registry struct {
	mu      sync.RWMutex
	clients map[int]*Client
	logger  *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		clients: make(map[int]*Client),
		logger:  logger,
	}
}

// Register inserts or overwrites the user's connection mapping and announces
// the user online to every connection. A newer connection silently supersedes
// an older one; the superseded transport is left to its own read loop to die.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	r.clients[c.UserID] = c
	total := len(r.clients)
	r.mu.Unlock()

	observability.SetOnlineUsers(total)
	r.logger.Info("user online", zap.Int("user_id", c.UserID), zap.String("conn_id", c.ConnID), zap.Int("online", total))
	r.Broadcast(models.ServerEvent{Type: models.EvtPresence, Payload: models.PresenceUpdate{UserID: c.UserID, Online: true}})
}

// Unregister removes the mapping only if it still points at the disconnecting
// client, so a stale disconnect never evicts a newer connection. Reports
// whether the user actually went offline.
func (r *Registry) Unregister(c *Client) bool {
	r.mu.Lock()
	current, ok := r.clients[c.UserID]
	if !ok || current != c {
		r.mu.Unlock()
		return false
	}
	delete(r.clients, c.UserID)
	total := len(r.clients)
	r.mu.Unlock()

	observability.SetOnlineUsers(total)
	r.logger.Info("user offline", zap.Int("user_id", c.UserID), zap.String("conn_id", c.ConnID), zap.Int("online", total))
	r.Broadcast(models.ServerEvent{Type: models.EvtPresence, Payload: models.PresenceUpdate{UserID: c.UserID, Online: false}})
	return true
}

// Resolve returns the user's live connection, if any.
func (r *Registry) Resolve(userID int) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[userID]
	return c, ok
}

// OnlineIDs snapshots the ids of every reachable user.
func (r *Registry) OnlineIDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// Broadcast pushes an event to every connection. The client set is
// snapshotted first so no enqueue happens under the lock.
func (r *Registry) Broadcast(event models.ServerEvent) {
	r.mu.RLock()
	targets := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	for _, c := range targets {
		c.Enqueue(event)
	}
}
