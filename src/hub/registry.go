package hub

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrClientNotFound  = errors.New("client not found")
	ErrDuplicateClient = errors.New("client already registered")
)

// RegistryStats summarises registry activity since startup.
type RegistryStats struct {
	Connected    int   `json:"connected"`
	Accepted     int64 `json:"accepted"`
	MessagesSent int64 `json:"messages_sent"`
}

// Registry is the authoritative table of connected clients.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client

	onAdd    []func(*Client)
	onRemove []func(*Client)

	accepted    int64
	retiredSent int64

	logger zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		logger:  logger.With().Str("component", "registry").Logger(),
	}
}

// OnAdd registers a callback run after a client is added.
func (r *Registry) OnAdd(cb func(*Client)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAdd = append(r.onAdd, cb)
}

// OnRemove registers a callback run once per removed client.
func (r *Registry) OnRemove(cb func(*Client)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemove = append(r.onRemove, cb)
}

// Add registers c under its ID.
func (r *Registry) Add(c *Client) error {
	r.mu.Lock()
	if _, ok := r.clients[c.ID]; ok {
		r.mu.Unlock()
		return ErrDuplicateClient
	}
	r.clients[c.ID] = c
	r.accepted++
	callbacks := append([]func(*Client){}, r.onAdd...)
	r.mu.Unlock()

	r.logger.Info().Str("client_id", c.ID).Msg("client registered")

	for _, cb := range callbacks {
		cb(c)
	}
	return nil
}

// Remove deletes the client with the given id. Removing an unknown id is a
// no-op that returns false.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	c, ok := r.clients[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.clients, id)
	r.retiredSent += c.Sent()
	callbacks := append([]func(*Client){}, r.onRemove...)
	r.mu.Unlock()

	c.clearChannels()
	c.markClosed()

	r.logger.Info().
		Str("client_id", id).
		Str("reason", c.CloseReason()).
		Msg("client unregistered")

	for _, cb := range callbacks {
		cb(c)
	}
	return true
}

// Get returns the client registered under id.
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// Count returns the number of connected clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Clients returns a snapshot of the connected clients.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// ForEach calls fn for every client connected at the time of the call.
// fn runs without the registry lock held.
func (r *Registry) ForEach(fn func(*Client)) {
	for _, c := range r.Clients() {
		fn(c)
	}
}

// Stats returns connection and delivery totals.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sent := r.retiredSent
	for _, c := range r.clients {
		sent += c.Sent()
	}
	return RegistryStats{
		Connected:    len(r.clients),
		Accepted:     r.accepted,
		MessagesSent: sent,
	}
}
