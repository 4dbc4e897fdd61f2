package service

import (
	"context"
	"fmt"

	"github.com/orchestra-mcp/monitor-socket/src/hub"
	"github.com/orchestra-mcp/monitor-socket/src/protocol"
	"github.com/orchestra-mcp/monitor-socket/src/source"
	"github.com/orchestra-mcp/monitor-socket/src/types"
	"github.com/rs/zerolog"
)

// Info summarises the WebSocket endpoint for operators.
type Info struct {
	WebSocket     bool           `json:"websocket"`
	Endpoint      string         `json:"endpoint"`
	Clients       int            `json:"clients"`
	Channels      map[string]int `json:"channels"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Accepted      int64          `json:"connections_accepted"`
	MessagesSent  int64          `json:"messages_sent"`
}

// Service is the operator-facing API over the hub.
type Service struct {
	hub      *hub.Hub
	alerts   source.AlertSource
	endpoint string
	logger   zerolog.Logger
}

// New creates a new service backed by the given hub.
func New(h *hub.Hub, alerts source.AlertSource, endpoint string, logger zerolog.Logger) *Service {
	return &Service{
		hub:      h,
		alerts:   alerts,
		endpoint: endpoint,
		logger:   logger.With().Str("component", "service").Logger(),
	}
}

// Hub returns the underlying hub.
func (s *Service) Hub() *hub.Hub { return s.hub }

// Info returns connection counts and delivery totals.
func (s *Service) Info() Info {
	stats := s.hub.Stats()
	return Info{
		WebSocket:     true,
		Endpoint:      s.endpoint,
		Clients:       stats.Connected,
		Channels:      s.hub.Channels(),
		UptimeSeconds: s.hub.Uptime().Seconds(),
		Accepted:      stats.Accepted,
		MessagesSent:  stats.MessagesSent,
	}
}

// GetConnectedClients returns IDs of all connected clients.
func (s *Service) GetConnectedClients() []string {
	return s.hub.ConnectedClients()
}

// GetClients returns info for every connected client.
func (s *Service) GetClients() []types.ClientInfo {
	ids := s.hub.ConnectedClients()
	infos := make([]types.ClientInfo, 0, len(ids))
	for _, id := range ids {
		// The client may have left since the listing.
		if info := s.hub.ClientInfo(id); info != nil {
			infos = append(infos, *info)
		}
	}
	return infos
}

// GetClientInfo returns info for a connected client, or error.
func (s *Service) GetClientInfo(clientID string) (*types.ClientInfo, error) {
	info := s.hub.ClientInfo(clientID)
	if info == nil {
		return nil, fmt.Errorf("client %s: %w", clientID, hub.ErrClientNotFound)
	}
	return info, nil
}

// GetChannels returns every channel with its subscriber count.
func (s *Service) GetChannels() map[string]int {
	return s.hub.Channels()
}

// Disconnect closes a client connection.
func (s *Service) Disconnect(clientID string) error {
	if err := s.hub.Disconnect(clientID); err != nil {
		return fmt.Errorf("client %s: %w", clientID, err)
	}
	s.logger.Info().Str("client_id", clientID).Msg("client disconnected by operator")
	return nil
}

// TriggerAlert generates an alert for targetID and broadcasts it to the
// alerts channel. An empty severity means warning. It returns the alert and
// the number of clients it was queued for.
func (s *Service) TriggerAlert(ctx context.Context, targetID string, severity types.Severity) (types.Alert, int, error) {
	if severity == "" {
		severity = types.SeverityWarning
	}
	alert, err := s.alerts.Generate(ctx, targetID, severity)
	if err != nil {
		return types.Alert{}, 0, err
	}
	n := s.hub.Router().Broadcast(protocol.ChannelAlerts, protocol.NewNewAlert(alert))
	s.logger.Info().
		Str("target_id", targetID).
		Str("severity", string(severity)).
		Int("recipients", n).
		Msg("alert triggered by operator")
	return alert, n, nil
}
