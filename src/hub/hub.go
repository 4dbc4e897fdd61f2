package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/orchestra-mcp/monitor-socket/src/protocol"
	"github.com/orchestra-mcp/monitor-socket/src/source"
	"github.com/orchestra-mcp/monitor-socket/src/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// ErrShuttingDown is returned by Connect once Shutdown has started.
var ErrShuttingDown = errors.New("hub is shutting down")

// Config holds everything needed to build a Hub.
type Config struct {
	Client        ClientOptions
	MetricsSource source.MetricsSource
	AlertSource   source.AlertSource
	SourceTimeout time.Duration
	// Registerer receives the hub metrics. Nil disables metrics.
	Registerer prometheus.Registerer
}

// Hub manages all WebSocket client connections and channel subscriptions.
type Hub struct {
	registry *Registry
	router   *Router
	handler  *Handler
	metrics  *Metrics
	opts     ClientOptions

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup

	startedAt time.Time
	logger    zerolog.Logger
}

// New creates a new Hub instance.
func New(cfg Config, logger zerolog.Logger) *Hub {
	metrics := NewMetrics(cfg.Registerer)
	reg := NewRegistry(logger)
	metrics.Attach(reg)
	router := NewRouter(reg, metrics, logger)
	handler := NewHandler(HandlerConfig{
		Registry:      reg,
		Router:        router,
		MetricsSource: cfg.MetricsSource,
		AlertSource:   cfg.AlertSource,
		Metrics:       metrics,
		SourceTimeout: cfg.SourceTimeout,
	}, logger)

	return &Hub{
		registry:  reg,
		router:    router,
		handler:   handler,
		metrics:   metrics,
		opts:      cfg.Client,
		startedAt: time.Now(),
		logger:    logger.With().Str("component", "hub").Logger(),
	}
}

// Registry returns the client registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Router returns the channel router.
func (h *Hub) Router() *Router { return h.router }

// Metrics returns the hub metrics, or nil when disabled.
func (h *Hub) Metrics() *Metrics { return h.metrics }

// StartedAt returns the hub creation time.
func (h *Hub) StartedAt() time.Time { return h.startedAt }

// Connect registers a client for conn under id, queues the welcome message
// and serves the connection. It blocks until the connection ends and the
// client has been removed.
func (h *Hub) Connect(ctx context.Context, id string, conn types.Conn) error {
	c := NewClient(id, conn, h.opts)

	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		_ = conn.Close()
		return ErrShuttingDown
	}
	if err := h.registry.Add(c); err != nil {
		h.mu.Unlock()
		_ = conn.Close()
		return err
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	// The welcome is queued before the writer starts, so it is always the
	// first frame the client sees.
	if err := c.Send(protocol.NewWelcome(id)); err != nil {
		h.handler.Release(c)
		return err
	}
	h.metrics.messageQueued(protocol.TypeWelcome)
	c.MarkOpen()

	go c.WritePump()
	h.handler.Serve(ctx, c)
	return nil
}

// Shutdown refuses new connections, closes every client and waits for
// their handlers to finish. Clients still registered when ctx expires are
// removed directly. Closing a client does not wait on its socket, so ctx
// bounds the whole call.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	h.registry.ForEach(func(c *Client) { c.Close() })

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info().Msg("all clients closed")
		return nil
	case <-ctx.Done():
		h.registry.ForEach(func(c *Client) { h.handler.Release(c) })
		return ctx.Err()
	}
}
