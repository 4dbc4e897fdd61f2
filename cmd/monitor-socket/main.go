package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/orchestra-mcp/monitor-socket/config"
	"github.com/orchestra-mcp/monitor-socket/src/server"
	"github.com/orchestra-mcp/monitor-socket/src/source"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	envErr := godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("invalid configuration")
	}

	logger := newLogger(cfg)
	if envErr != nil {
		logger.Debug().Msg("no .env file found, using environment variables")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics, closeMetrics := newMetricsSource(ctx, cfg, logger)
	defer closeMetrics()

	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, logger, func(updated *config.SocketConfig) {
				setLevel(updated.LogLevel)
				logger.Info().Str("log_level", updated.LogLevel).Msg("log level applied")
			})
			if err != nil {
				logger.Error().Err(err).Msg("config watcher stopped")
			}
		}()
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Str("metrics_source", cfg.MetricsSource).
		Int("max_connections", cfg.MaxConnections).
		Msg("monitor-socket starting")

	srv := server.New(cfg, metrics, source.NewSimulatedAlerts(), logger)
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.SocketConfig, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.SocketConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	setLevel(cfg.LogLevel)

	var out io.Writer = os.Stdout
	if cfg.LogPretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).With().Timestamp().Str("service", "monitor-socket").Logger()
}

func setLevel(name string) {
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// newMetricsSource builds the configured source. An unreachable Redis falls
// back to simulated data.
func newMetricsSource(ctx context.Context, cfg *config.SocketConfig, logger zerolog.Logger) (source.MetricsSource, func()) {
	switch cfg.MetricsSource {
	case config.SourceHost:
		return source.NewHostMetrics(cfg.DiskPath), func() {}

	case config.SourceRedis:
		redisCfg := cfg.Redis
		rm := source.NewRedisMetrics(redisCfg, logger)

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rm.Ping(pingCtx); err != nil {
			_ = rm.Close()
			logger.Warn().Err(err).Str("redis_addr", redisCfg.Addr).Msg("redis unavailable, using simulated metrics")
			return source.NewSimulatedMetrics(cfg.AlertTargets), func() {}
		}
		logger.Info().Str("redis_addr", redisCfg.Addr).Str("key", redisCfg.SnapshotKey()).Msg("redis metrics source connected")
		return rm, func() { _ = rm.Close() }

	default:
		return source.NewSimulatedMetrics(cfg.AlertTargets), func() {}
	}
}
