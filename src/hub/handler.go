package hub

import (
	"context"
	"errors"
	"time"

	"github.com/orchestra-mcp/monitor-socket/src/protocol"
	"github.com/orchestra-mcp/monitor-socket/src/source"
	"github.com/orchestra-mcp/monitor-socket/src/types"
	"github.com/rs/zerolog"
)

// ErrRateLimited is reported to clients sending commands too quickly.
var ErrRateLimited = errors.New("rate limit exceeded")

const defaultSourceTimeout = 5 * time.Second

// Handler runs the per-connection read loop and dispatches client commands.
type Handler struct {
	registry      *Registry
	router        *Router
	metricsSource source.MetricsSource
	alertSource   source.AlertSource
	metrics       *Metrics
	sourceTimeout time.Duration
	logger        zerolog.Logger
}

// HandlerConfig wires a Handler to its collaborators.
type HandlerConfig struct {
	Registry      *Registry
	Router        *Router
	MetricsSource source.MetricsSource
	AlertSource   source.AlertSource
	Metrics       *Metrics
	SourceTimeout time.Duration
}

// NewHandler creates a connection handler.
func NewHandler(cfg HandlerConfig, logger zerolog.Logger) *Handler {
	timeout := cfg.SourceTimeout
	if timeout <= 0 {
		timeout = defaultSourceTimeout
	}
	return &Handler{
		registry:      cfg.Registry,
		router:        cfg.Router,
		metricsSource: cfg.MetricsSource,
		alertSource:   cfg.AlertSource,
		metrics:       cfg.Metrics,
		sourceTimeout: timeout,
		logger:        logger.With().Str("component", "handler").Logger(),
	}
}

// Serve reads frames from c until the connection ends, then removes c from
// the registry. It blocks for the lifetime of the connection.
func (h *Handler) Serve(ctx context.Context, c *Client) {
	defer h.Release(c)

	for {
		data, err := c.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, types.ErrPeerClosed) {
				c.closeWith(ReasonPeerClosed)
			} else {
				c.closeWith(ReasonReadError)
				h.logger.Debug().Err(err).Str("client_id", c.ID).Msg("read failed")
			}
			return
		}
		h.Handle(ctx, c, data)
	}
}

// Release closes c and removes it from the registry. It is safe to call
// more than once and from several goroutines.
func (h *Handler) Release(c *Client) {
	c.closeWith(ReasonShutdown)
	h.registry.Remove(c.ID)
}

// Handle processes one inbound frame from c.
func (h *Handler) Handle(ctx context.Context, c *Client, data []byte) {
	if !c.allow() {
		h.replyError(c, "rate_limit", ErrRateLimited.Error())
		return
	}

	cmd, err := protocol.Decode(data)
	if err != nil {
		h.logger.Debug().Err(err).Str("client_id", c.ID).Msg("rejected frame")
		h.replyError(c, "protocol", err.Error())
		return
	}

	switch cmd := cmd.(type) {
	case protocol.Ping:
		h.reply(c, protocol.NewPong(cmd.Timestamp))

	case protocol.Subscribe:
		if err := h.router.Subscribe(c.ID, cmd.Channel); err != nil {
			h.replyError(c, "validation", err.Error())
			return
		}
		h.reply(c, protocol.NewSubscriptionConfirmed(cmd.Channel))

	case protocol.Unsubscribe:
		if err := h.router.Unsubscribe(c.ID, cmd.Channel); err != nil {
			h.replyError(c, "validation", err.Error())
			return
		}
		h.reply(c, protocol.NewSubscriptionCancelled(cmd.Channel))

	case protocol.RequestData:
		h.requestData(ctx, c)

	case protocol.SimulateAlert:
		h.simulateAlert(ctx, c, cmd)

	case protocol.ClientInfo:
		h.reply(c, protocol.NewClientInfoResponse(c.ID, c.ConnectedAt(), c.Subscriptions()))
	}
}

func (h *Handler) requestData(ctx context.Context, c *Client) {
	ctx, cancel := context.WithTimeout(ctx, h.sourceTimeout)
	defer cancel()

	snap, err := h.metricsSource.Snapshot(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Str("client_id", c.ID).Msg("metrics source failed")
		h.replyError(c, "source", "system data unavailable")
		return
	}
	h.reply(c, protocol.NewSystemData(snap))
}

// simulateAlert broadcasts to every alerts subscriber, whether or not the
// requester is one of them.
func (h *Handler) simulateAlert(ctx context.Context, c *Client, cmd protocol.SimulateAlert) {
	if cmd.TargetID == "" {
		h.replyError(c, "validation", source.ErrMissingTarget.Error())
		return
	}
	severity := types.Severity(cmd.Severity)
	if severity == "" {
		severity = types.SeverityWarning
	}
	if !severity.Valid() {
		h.replyError(c, "validation", "severity must be warning or critical")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.sourceTimeout)
	defer cancel()

	alert, err := h.alertSource.Generate(ctx, cmd.TargetID, severity)
	if err != nil {
		h.logger.Warn().Err(err).Str("client_id", c.ID).Msg("alert source failed")
		h.replyError(c, "source", "alert generation failed")
		return
	}

	n := h.router.Broadcast(protocol.ChannelAlerts, protocol.NewNewAlert(alert))
	h.logger.Debug().
		Str("client_id", c.ID).
		Str("target_id", alert.TargetID).
		Int("recipients", n).
		Msg("simulated alert broadcast")
}

func (h *Handler) reply(c *Client, msg protocol.Outbound) {
	err := c.Send(msg)
	switch {
	case err == nil:
		h.metrics.messageQueued(msg.MessageType())
	case errors.Is(err, ErrSendBufferFull):
		h.metrics.sendDropped()
		c.closeWith(ReasonSlowConsumer)
	case errors.Is(err, ErrClientClosed):
	default:
		h.logger.Error().Err(err).Str("client_id", c.ID).Msg("reply failed")
	}
}

func (h *Handler) replyError(c *Client, kind, message string) {
	h.metrics.commandError(kind)
	h.reply(c, protocol.NewError(message))
}
