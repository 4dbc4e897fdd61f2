// Package scheduler drives the periodic channel broadcasts: system metrics,
// heartbeats and synthetic alerts. It only depends on the router and the
// external sources, never on connections.
package scheduler

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/orchestra-mcp/monitor-socket/src/protocol"
	"github.com/orchestra-mcp/monitor-socket/src/source"
	"github.com/orchestra-mcp/monitor-socket/src/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Tick names used in logs and failure metrics.
const (
	TickMetrics   = "metrics"
	TickHeartbeat = "heartbeat"
	TickAlert     = "alert"
)

// Broadcaster fans a message out to the subscribers of a channel.
type Broadcaster interface {
	Broadcast(channel string, msg protocol.Outbound) int
	SubscriberCount(channel string) int
}

// ClientCounter reports the number of live connections.
type ClientCounter interface {
	Count() int
}

// Recorder is notified when a tick is skipped because its source failed.
type Recorder interface {
	TickFailed(tick string)
}

// Config holds scheduler timing.
type Config struct {
	MetricsInterval   time.Duration
	HeartbeatInterval time.Duration
	AlertInterval     time.Duration
	AlertTargets      []string
	SourceTimeout     time.Duration
}

// DefaultConfig returns the default tick intervals.
func DefaultConfig() Config {
	return Config{
		MetricsInterval:   5 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		AlertInterval:     15 * time.Second,
		AlertTargets:      source.DefaultServers,
		SourceTimeout:     5 * time.Second,
	}
}

// Deps are the collaborators a Scheduler broadcasts through.
type Deps struct {
	Router   Broadcaster
	Clients  ClientCounter
	Metrics  source.MetricsSource
	Alerts   source.AlertSource
	Recorder Recorder // optional
}

// Scheduler runs the three broadcast timers.
type Scheduler struct {
	cfg       Config
	deps      Deps
	startedAt time.Time
	seq       atomic.Uint64
	next      atomic.Uint64
	logger    zerolog.Logger
}

// New creates a Scheduler. Uptime in heartbeats is measured from startedAt.
func New(cfg Config, deps Deps, startedAt time.Time, logger zerolog.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = def.SourceTimeout
	}
	if len(cfg.AlertTargets) == 0 {
		cfg.AlertTargets = def.AlertTargets
	}
	return &Scheduler{
		cfg:       cfg,
		deps:      deps,
		startedAt: startedAt,
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run starts every timer with a positive interval and blocks until ctx is
// cancelled. A failing tick never stops its timer.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	s.every(ctx, g, TickMetrics, s.cfg.MetricsInterval, s.tickMetrics)
	s.every(ctx, g, TickHeartbeat, s.cfg.HeartbeatInterval, s.tickHeartbeat)
	s.every(ctx, g, TickAlert, s.cfg.AlertInterval, s.tickAlert)

	s.logger.Info().
		Dur("metrics_interval", s.cfg.MetricsInterval).
		Dur("heartbeat_interval", s.cfg.HeartbeatInterval).
		Dur("alert_interval", s.cfg.AlertInterval).
		Msg("scheduler started")

	err := g.Wait()
	s.logger.Info().Msg("scheduler stopped")
	return err
}

func (s *Scheduler) every(ctx context.Context, g *errgroup.Group, name string, interval time.Duration, tick func(context.Context)) {
	if interval <= 0 {
		s.logger.Info().Str("tick", name).Msg("tick disabled")
		return
	}
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				tick(ctx)
			}
		}
	})
}

// Sequence returns the last sequenceId sent on the system-data channel.
func (s *Scheduler) Sequence() uint64 { return s.seq.Load() }

func (s *Scheduler) tickMetrics(ctx context.Context) {
	if s.deps.Router.SubscriberCount(protocol.ChannelSystemData) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SourceTimeout)
	defer cancel()

	snap, err := s.deps.Metrics.Snapshot(ctx)
	if err != nil {
		s.failed(TickMetrics, err)
		return
	}

	seq := s.seq.Add(1)
	n := s.deps.Router.Broadcast(protocol.ChannelSystemData, protocol.NewSystemDataUpdate(seq, snap))
	s.logger.Debug().Uint64("sequence_id", seq).Int("recipients", n).Msg("system data broadcast")
}

func (s *Scheduler) tickHeartbeat(context.Context) {
	if s.deps.Router.SubscriberCount(protocol.ChannelHeartbeat) == 0 {
		return
	}
	msg := protocol.NewHeartbeat(s.deps.Clients.Count(), time.Since(s.startedAt))
	s.deps.Router.Broadcast(protocol.ChannelHeartbeat, msg)
}

func (s *Scheduler) tickAlert(ctx context.Context) {
	if s.deps.Router.SubscriberCount(protocol.ChannelAlerts) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SourceTimeout)
	defer cancel()

	target := s.nextTarget()
	alert, err := s.deps.Alerts.Generate(ctx, target, randomSeverity())
	if err != nil {
		s.failed(TickAlert, err)
		return
	}

	n := s.deps.Router.Broadcast(protocol.ChannelAlerts, protocol.NewNewAlert(alert))
	s.logger.Debug().Str("target_id", target).Int("recipients", n).Msg("alert broadcast")
}

// nextTarget walks the alert target pool round-robin.
func (s *Scheduler) nextTarget() string {
	i := s.next.Add(1) - 1
	return s.cfg.AlertTargets[i%uint64(len(s.cfg.AlertTargets))]
}

func (s *Scheduler) failed(tick string, err error) {
	s.logger.Warn().Err(err).Str("tick", tick).Msg("tick skipped")
	if s.deps.Recorder != nil {
		s.deps.Recorder.TickFailed(tick)
	}
}

func randomSeverity() types.Severity {
	if rand.IntN(4) == 0 {
		return types.SeverityCritical
	}
	return types.SeverityWarning
}
