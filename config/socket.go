package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Metrics source kinds.
const (
	SourceSimulated = "simulated"
	SourceHost      = "host"
	SourceRedis     = "redis"
)

// SocketConfig holds WebSocket server configuration.
type SocketConfig struct {
	Addr            string        `json:"addr" yaml:"addr"`
	Path            string        `json:"path" yaml:"path"`
	MaxConnections  int           `json:"max_connections" yaml:"max_connections"`
	PingInterval    time.Duration `json:"ping_interval" yaml:"ping_interval"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	ReadBufferSize  int           `json:"read_buffer_size" yaml:"read_buffer_size"`
	WriteBufferSize int           `json:"write_buffer_size" yaml:"write_buffer_size"`
	SendBuffer      int           `json:"send_buffer" yaml:"send_buffer"`
	MaxMessageSize  int64         `json:"max_message_size" yaml:"max_message_size"`

	// Per-client inbound command limit. A zero rate disables it.
	CommandRate  float64 `json:"command_rate" yaml:"command_rate"`
	CommandBurst int     `json:"command_burst" yaml:"command_burst"`

	MetricsInterval   time.Duration `json:"metrics_interval" yaml:"metrics_interval"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	AlertInterval     time.Duration `json:"alert_interval" yaml:"alert_interval"`
	AlertTargets      []string      `json:"alert_targets" yaml:"alert_targets"`

	// MetricsSource is one of: simulated | host | redis.
	MetricsSource string `json:"metrics_source" yaml:"metrics_source"`
	// DiskPath is the filesystem reported by the host source.
	DiskPath string `json:"disk_path" yaml:"disk_path"`
	// Redis is only used by the redis metrics source.
	Redis RedisConfig `json:"redis" yaml:"redis"`

	LogLevel        string        `json:"log_level" yaml:"log_level"`
	LogPretty       bool          `json:"log_pretty" yaml:"log_pretty"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// RedisConfig holds connection settings for the Redis snapshot source.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Prefix   string `json:"prefix" yaml:"prefix"`
}

// SnapshotKey is the key agents write the latest snapshot to.
func (c RedisConfig) SnapshotKey() string {
	return c.Prefix + "snapshot"
}

// DefaultConfig returns the default WebSocket configuration.
func DefaultConfig() *SocketConfig {
	return &SocketConfig{
		Addr:              ":8080",
		Path:              "/ws",
		MaxConnections:    1000,
		PingInterval:      30 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		SendBuffer:        256,
		MaxMessageSize:    64 << 10,
		CommandRate:       20,
		CommandBurst:      40,
		MetricsInterval:   5 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		AlertInterval:     15 * time.Second,
		AlertTargets:      []string{"server-1", "server-2", "server-3", "server-4"},
		MetricsSource:     SourceSimulated,
		DiskPath:          "/",
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "orchestra:monitor:",
		},
		LogLevel:          "info",
		ShutdownTimeout:   10 * time.Second,
	}
}

// Load reads the YAML file at path over the defaults and validates it.
func Load(path string) (*SocketConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays MONITOR_* and REDIS_* environment variables onto cfg.
func ApplyEnv(cfg *SocketConfig) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("MONITOR_ADDR", &cfg.Addr)
	str("MONITOR_PATH", &cfg.Path)
	str("MONITOR_METRICS_SOURCE", &cfg.MetricsSource)
	str("MONITOR_DISK_PATH", &cfg.DiskPath)
	str("MONITOR_LOG_LEVEL", &cfg.LogLevel)
	integer("MONITOR_MAX_CONNECTIONS", &cfg.MaxConnections)
	integer("MONITOR_SEND_BUFFER", &cfg.SendBuffer)
	duration("MONITOR_PING_INTERVAL", &cfg.PingInterval)
	duration("MONITOR_METRICS_INTERVAL", &cfg.MetricsInterval)
	duration("MONITOR_HEARTBEAT_INTERVAL", &cfg.HeartbeatInterval)
	duration("MONITOR_ALERT_INTERVAL", &cfg.AlertInterval)
	duration("MONITOR_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	integer("REDIS_DB", &cfg.Redis.DB)
	str("REDIS_MONITOR_PREFIX", &cfg.Redis.Prefix)

	if v, ok := os.LookupEnv("MONITOR_LOG_PRETTY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("MONITOR_LOG_PRETTY: %w", err))
		} else {
			cfg.LogPretty = b
		}
	}
	if v, ok := os.LookupEnv("MONITOR_ALERT_TARGETS"); ok {
		cfg.AlertTargets = splitList(v)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: env: %w", err)
	}
	return nil
}

// Validate checks required fields and structural constraints.
func (c *SocketConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr is required")
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("config: path %q must start with /", c.Path)
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("config: max_connections must be positive")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("config: send_buffer must be positive")
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("config: max_message_size must be positive")
	}
	if c.CommandRate < 0 || c.CommandBurst < 0 {
		return fmt.Errorf("config: command_rate and command_burst must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"ping_interval":      c.PingInterval,
		"write_timeout":      c.WriteTimeout,
		"metrics_interval":   c.MetricsInterval,
		"heartbeat_interval": c.HeartbeatInterval,
		"alert_interval":     c.AlertInterval,
		"shutdown_timeout":   c.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}
	if len(c.AlertTargets) == 0 {
		return fmt.Errorf("config: alert_targets must not be empty")
	}
	switch c.MetricsSource {
	case SourceSimulated, SourceHost:
	case SourceRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("config: redis.addr is required for the redis metrics source")
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("config: redis.db must not be negative")
		}
	default:
		return fmt.Errorf("config: unknown metrics_source %q", c.MetricsSource)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
