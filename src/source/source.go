package source

import (
	"context"
	"errors"

	"github.com/orchestra-mcp/monitor-socket/src/types"
)

var (
	// ErrNoSnapshot is returned when no snapshot has been collected yet.
	ErrNoSnapshot = errors.New("no snapshot available")

	// ErrInvalidSeverity is returned for severities other than warning or critical.
	ErrInvalidSeverity = errors.New("invalid severity")

	// ErrMissingTarget is returned when an alert has no target.
	ErrMissingTarget = errors.New("target id is required")
)

// MetricsSource produces system snapshots on demand.
// Implementations must be safe for concurrent use.
type MetricsSource interface {
	Snapshot(ctx context.Context) (types.Snapshot, error)
}

// AlertSource produces alert records for a target.
// Implementations must be safe for concurrent use.
type AlertSource interface {
	Generate(ctx context.Context, targetID string, severity types.Severity) (types.Alert, error)
}

// MetricsFunc adapts a function to MetricsSource.
type MetricsFunc func(ctx context.Context) (types.Snapshot, error)

func (f MetricsFunc) Snapshot(ctx context.Context) (types.Snapshot, error) { return f(ctx) }

// AlertFunc adapts a function to AlertSource.
type AlertFunc func(ctx context.Context, targetID string, severity types.Severity) (types.Alert, error)

func (f AlertFunc) Generate(ctx context.Context, targetID string, severity types.Severity) (types.Alert, error) {
	return f(ctx, targetID, severity)
}
