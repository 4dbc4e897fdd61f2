package source

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/orchestra-mcp/monitor-socket/src/types"
)

// DefaultServers is the fixed pool of simulated servers, also used as the
// default alert target pool.
var DefaultServers = []string{"server-1", "server-2", "server-3", "server-4"}

// SimulatedMetrics produces random snapshots for a fixed server pool.
type SimulatedMetrics struct {
	servers []string
}

// NewSimulatedMetrics creates a simulated source. An empty pool falls back
// to DefaultServers.
func NewSimulatedMetrics(servers []string) *SimulatedMetrics {
	if len(servers) == 0 {
		servers = DefaultServers
	}
	return &SimulatedMetrics{servers: append([]string(nil), servers...)}
}

// Snapshot returns a new random snapshot.
func (s *SimulatedMetrics) Snapshot(ctx context.Context) (types.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return types.Snapshot{}, err
	}

	const gib = 1 << 30
	memTotal := uint64(16 * gib)
	memUsed := uint64(between(0.2, 0.9) * float64(memTotal))
	diskTotal := uint64(500 * gib)
	diskUsed := uint64(between(0.1, 0.8) * float64(diskTotal))

	snap := types.Snapshot{
		CPU: types.CPUStats{UsagePercent: between(0, 100), Cores: 8},
		Memory: types.MemoryStats{
			Total:       memTotal,
			Used:        memUsed,
			UsedPercent: percent(memUsed, memTotal),
		},
		Disk: types.DiskStats{
			Path:        "/",
			Total:       diskTotal,
			Used:        diskUsed,
			UsedPercent: percent(diskUsed, diskTotal),
		},
		Network: types.NetworkStats{
			BytesSent:   rand.Uint64N(1 << 30),
			BytesRecv:   rand.Uint64N(1 << 30),
			PacketsSent: rand.Uint64N(1 << 20),
			PacketsRecv: rand.Uint64N(1 << 20),
		},
		ServerList:  make([]types.ServerStatus, 0, len(s.servers)),
		CollectedAt: time.Now().UTC(),
	}

	for i, id := range s.servers {
		st := types.ServerStatus{
			ID:     id,
			Name:   fmt.Sprintf("Server %d", i+1),
			Status: "online",
			CPU:    between(0, 100),
			Memory: between(20, 90),
		}
		if st.CPU > 85 || st.Memory > 85 {
			st.Status = "warning"
		}
		snap.ServerList = append(snap.ServerList, st)
	}
	snap.Stats = summarize(snap.ServerList)
	return snap, nil
}

// SimulatedAlerts produces synthetic alert records.
type SimulatedAlerts struct{}

// NewSimulatedAlerts creates a synthetic alert source.
func NewSimulatedAlerts() *SimulatedAlerts { return &SimulatedAlerts{} }

var alertConditions = []string{
	"High CPU usage",
	"Memory usage above threshold",
	"Disk space running low",
	"Network latency elevated",
	"Service not responding",
}

// Generate builds an alert for targetID. The severity must be warning or
// critical.
func (SimulatedAlerts) Generate(ctx context.Context, targetID string, severity types.Severity) (types.Alert, error) {
	if err := ctx.Err(); err != nil {
		return types.Alert{}, err
	}
	if targetID == "" {
		return types.Alert{}, ErrMissingTarget
	}
	if !severity.Valid() {
		return types.Alert{}, fmt.Errorf("%w: %q", ErrInvalidSeverity, severity)
	}

	condition := alertConditions[rand.IntN(len(alertConditions))]
	return types.Alert{
		TargetID:  targetID,
		Severity:  severity,
		Message:   fmt.Sprintf("%s detected on %s", condition, targetID),
		Timestamp: time.Now().UTC(),
	}, nil
}

func summarize(servers []types.ServerStatus) types.SummaryStats {
	stats := types.SummaryStats{TotalServers: len(servers)}
	for _, s := range servers {
		switch s.Status {
		case "online":
			stats.OnlineServers++
		case "warning":
			stats.OnlineServers++
			stats.WarningCount++
		}
	}
	return stats
}

func between(lo, hi float64) float64 {
	return lo + rand.Float64()*(hi-lo)
}

func percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
