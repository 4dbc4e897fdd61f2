package hub

import (
	"sort"
	"time"

	"github.com/orchestra-mcp/monitor-socket/src/types"
)

// ConnectedClients returns a sorted list of connected client IDs.
func (h *Hub) ConnectedClients() []string {
	clients := h.registry.Clients()
	ids := make([]string, 0, len(clients))
	for _, c := range clients {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids
}

// ClientInfo returns info for a connected client, or nil.
func (h *Hub) ClientInfo(clientID string) *types.ClientInfo {
	client, ok := h.registry.Get(clientID)
	if !ok {
		return nil
	}
	info := client.Info()
	return &info
}

// Channels returns channel names with their subscriber counts.
func (h *Hub) Channels() map[string]int {
	return h.router.Channels()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return h.registry.Count()
}

// Uptime returns how long the hub has been running.
func (h *Hub) Uptime() time.Duration {
	return time.Since(h.startedAt)
}

// Stats returns connection and delivery totals.
func (h *Hub) Stats() RegistryStats {
	return h.registry.Stats()
}

// Disconnect closes the client with the given id. Its handler removes it
// from the registry once the read loop ends.
func (h *Hub) Disconnect(clientID string) error {
	client, ok := h.registry.Get(clientID)
	if !ok {
		return ErrClientNotFound
	}
	client.closeWith(ReasonAdmin)
	return nil
}
