package source

import (
	"context"
	"fmt"
	"time"

	"github.com/orchestra-mcp/monitor-socket/src/types"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
)

// HostMetrics samples the local machine.
type HostMetrics struct {
	diskPath string
}

// NewHostMetrics creates a host source reporting usage of the filesystem
// mounted at diskPath ("/" when empty).
func NewHostMetrics(diskPath string) *HostMetrics {
	if diskPath == "" {
		diskPath = "/"
	}
	return &HostMetrics{diskPath: diskPath}
}

// Snapshot samples CPU, memory, disk and network counters. CPU usage is
// measured since the previous call.
func (h *HostMetrics) Snapshot(ctx context.Context) (types.Snapshot, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("cpu percent: %w", err)
	}
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("cpu counts: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("virtual memory: %w", err)
	}
	du, err := disk.UsageWithContext(ctx, h.diskPath)
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("disk usage %s: %w", h.diskPath, err)
	}
	counters, err := psnet.IOCountersWithContext(ctx, false)
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("net counters: %w", err)
	}

	snap := types.Snapshot{
		CPU: types.CPUStats{Cores: cores},
		Memory: types.MemoryStats{
			Total:       vm.Total,
			Used:        vm.Used,
			UsedPercent: vm.UsedPercent,
		},
		Disk: types.DiskStats{
			Path:        du.Path,
			Total:       du.Total,
			Used:        du.Used,
			UsedPercent: du.UsedPercent,
		},
		CollectedAt: time.Now().UTC(),
	}
	if len(percents) > 0 {
		snap.CPU.UsagePercent = percents[0]
	}
	if len(counters) > 0 {
		snap.Network = types.NetworkStats{
			BytesSent:   counters[0].BytesSent,
			BytesRecv:   counters[0].BytesRecv,
			PacketsSent: counters[0].PacketsSent,
			PacketsRecv: counters[0].PacketsRecv,
		}
	}

	name := "localhost"
	if info, err := host.InfoWithContext(ctx); err == nil && info.Hostname != "" {
		name = info.Hostname
	}
	local := types.ServerStatus{
		ID:     name,
		Name:   name,
		Status: "online",
		CPU:    snap.CPU.UsagePercent,
		Memory: snap.Memory.UsedPercent,
	}
	if local.CPU > 85 || local.Memory > 85 {
		local.Status = "warning"
	}
	snap.ServerList = []types.ServerStatus{local}
	snap.Stats = summarize(snap.ServerList)
	return snap, nil
}
