// Package server runs the monitoring socket: a fasthttp listener serving the
// websocket endpoint, the admin routes and /metrics, plus the broadcast
// scheduler, under one lifecycle.
package server

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/orchestra-mcp/monitor-socket/config"
	"github.com/orchestra-mcp/monitor-socket/src/hub"
	"github.com/orchestra-mcp/monitor-socket/src/scheduler"
	"github.com/orchestra-mcp/monitor-socket/src/service"
	"github.com/orchestra-mcp/monitor-socket/src/source"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"golang.org/x/sync/errgroup"
)

const metricsPath = "/metrics"

// Server owns the listener, the hub and the scheduler.
type Server struct {
	cfg       *config.SocketConfig
	hub       *hub.Hub
	scheduler *scheduler.Scheduler
	service   *service.Service
	app       *fiber.App
	fast      *fasthttp.Server
	upgrader  websocket.FastHTTPUpgrader
	metrics   fasthttp.RequestHandler

	// active counts upgraded connections, including ones not yet registered.
	active atomic.Int64
	ctx    context.Context

	logger zerolog.Logger
}

// New wires a server from cfg and the two external sources.
func New(cfg *config.SocketConfig, metrics source.MetricsSource, alerts source.AlertSource, logger zerolog.Logger) *Server {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	h := hub.New(hub.Config{
		Client: hub.ClientOptions{
			SendBuffer:   cfg.SendBuffer,
			WriteTimeout: cfg.WriteTimeout,
			PingInterval: cfg.PingInterval,
			CommandRate:  cfg.CommandRate,
			CommandBurst: cfg.CommandBurst,
		},
		MetricsSource: metrics,
		AlertSource:   alerts,
		Registerer:    promReg,
	}, logger)

	sched := scheduler.New(scheduler.Config{
		MetricsInterval:   cfg.MetricsInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
		AlertInterval:     cfg.AlertInterval,
		AlertTargets:      cfg.AlertTargets,
	}, scheduler.Deps{
		Router:   h.Router(),
		Clients:  h.Registry(),
		Metrics:  metrics,
		Alerts:   alerts,
		Recorder: h.Metrics(),
	}, h.StartedAt(), logger)

	s := &Server{
		cfg:       cfg,
		hub:       h,
		scheduler: sched,
		service:   service.New(h, alerts, cfg.Path, logger),
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			// Dashboards are served from other origins.
			CheckOrigin: func(*fasthttp.RequestCtx) bool { return true },
		},
		metrics: fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})),
		ctx:     context.Background(),
		logger:  logger.With().Str("component", "server").Logger(),
	}

	s.app = fiber.New(fiber.Config{ErrorHandler: errorHandler})
	s.registerRoutes(s.app)

	s.fast = &fasthttp.Server{
		Handler:         s.Handler(),
		Name:            "monitor-socket",
		ReadBufferSize:  cfg.ReadBufferSize * 4,
		Logger:          fasthttpLogger{s.logger},
		CloseOnShutdown: true,
	}
	return s
}

// Hub returns the connection hub.
func (s *Server) Hub() *hub.Hub { return s.hub }

// Service returns the operator service.
func (s *Server) Service() *service.Service { return s.service }

// Handler dispatches the websocket path and /metrics directly and everything
// else to the admin routes.
func (s *Server) Handler() fasthttp.RequestHandler {
	admin := s.app.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case s.cfg.Path:
			s.handleUpgrade(ctx)
		case metricsPath:
			s.metrics(ctx)
		default:
			admin(ctx)
		}
	}
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and runs the scheduler until ctx is
// cancelled or the listener fails, then shuts everything down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.ctx = ctx
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info().Str("addr", ln.Addr().String()).Str("path", s.cfg.Path).Msg("listening")
		return s.fast.Serve(ln)
	})
	g.Go(func() error {
		return s.scheduler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

// shutdown closes every client first so no upgraded connection outlives the
// listener, then stops the listener.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info().Int("clients", s.hub.ClientCount()).Msg("shutting down")

	hubErr := s.hub.Shutdown(ctx)
	if hubErr != nil {
		s.logger.Warn().Err(hubErr).Msg("clients did not drain in time")
	}
	fastErr := s.fast.ShutdownWithContext(ctx)

	s.logger.Info().Msg("server stopped")
	return errors.Join(hubErr, fastErr)
}

func (s *Server) handleUpgrade(ctx *fasthttp.RequestCtx) {
	upgrade := string(ctx.Request.Header.Peek("Upgrade"))
	if !strings.EqualFold(upgrade, "websocket") {
		ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
		return
	}

	if s.active.Add(1) > int64(s.cfg.MaxConnections) {
		s.active.Add(-1)
		s.logger.Warn().Int("max_connections", s.cfg.MaxConnections).Msg("connection refused, limit reached")
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":"too_many_connections","message":"connection limit reached"}`)
		return
	}

	clientID := uuid.NewString()
	pongWait := s.cfg.PingInterval * 10 / 9

	err := s.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		defer s.active.Add(-1)
		wc := newWSConn(conn, s.cfg.MaxMessageSize, pongWait)
		if err := s.hub.Connect(s.ctx, clientID, wc); err != nil && !errors.Is(err, hub.ErrShuttingDown) {
			s.logger.Error().Err(err).Str("client_id", clientID).Msg("connect failed")
		}
	})
	if err != nil {
		s.active.Add(-1)
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
	}
}

// fasthttpLogger routes fasthttp's internal messages through zerolog.
type fasthttpLogger struct {
	logger zerolog.Logger
}

func (l fasthttpLogger) Printf(format string, args ...any) {
	l.logger.Warn().Msgf(format, args...)
}
