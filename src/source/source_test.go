package source

import (
	"context"
	"testing"

	"github.com/orchestra-mcp/monitor-socket/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedMetricsSnapshot(t *testing.T) {
	src := NewSimulatedMetrics(nil)

	snap, err := src.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Len(t, snap.ServerList, len(DefaultServers))
	assert.Equal(t, len(DefaultServers), snap.Stats.TotalServers)
	assert.Equal(t, len(DefaultServers), snap.Stats.OnlineServers)
	assert.GreaterOrEqual(t, snap.CPU.UsagePercent, 0.0)
	assert.LessOrEqual(t, snap.CPU.UsagePercent, 100.0)
	assert.Greater(t, snap.Memory.Total, uint64(0))
	assert.LessOrEqual(t, snap.Memory.Used, snap.Memory.Total)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestSimulatedMetricsCustomPool(t *testing.T) {
	src := NewSimulatedMetrics([]string{"db-1"})
	snap, err := src.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.ServerList, 1)
	assert.Equal(t, "db-1", snap.ServerList[0].ID)
}

func TestSimulatedMetricsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSimulatedMetrics(nil).Snapshot(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulatedAlertsGenerate(t *testing.T) {
	src := NewSimulatedAlerts()

	alert, err := src.Generate(context.Background(), "server-1", types.SeverityCritical)
	require.NoError(t, err)
	assert.Equal(t, "server-1", alert.TargetID)
	assert.Equal(t, types.SeverityCritical, alert.Severity)
	assert.Contains(t, alert.Message, "server-1")
	assert.False(t, alert.Timestamp.IsZero())
}

func TestSimulatedAlertsValidation(t *testing.T) {
	src := NewSimulatedAlerts()

	_, err := src.Generate(context.Background(), "", types.SeverityWarning)
	assert.ErrorIs(t, err, ErrMissingTarget)

	_, err = src.Generate(context.Background(), "server-1", types.Severity("info"))
	assert.ErrorIs(t, err, ErrInvalidSeverity)
}

func TestHostMetricsSnapshot(t *testing.T) {
	snap, err := NewHostMetrics("").Snapshot(context.Background())
	require.NoError(t, err)

	assert.Greater(t, snap.CPU.Cores, 0)
	assert.Greater(t, snap.Memory.Total, uint64(0))
	assert.Equal(t, "/", snap.Disk.Path)
	require.Len(t, snap.ServerList, 1)
	assert.Equal(t, 1, snap.Stats.TotalServers)
}

func TestFuncAdapters(t *testing.T) {
	var ms MetricsSource = MetricsFunc(func(context.Context) (types.Snapshot, error) {
		return types.Snapshot{CPU: types.CPUStats{Cores: 2}}, nil
	})
	snap, err := ms.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.CPU.Cores)

	var as AlertSource = AlertFunc(func(_ context.Context, id string, sev types.Severity) (types.Alert, error) {
		return types.Alert{TargetID: id, Severity: sev}, nil
	})
	alert, err := as.Generate(context.Background(), "x", types.SeverityWarning)
	require.NoError(t, err)
	assert.Equal(t, "x", alert.TargetID)
}
