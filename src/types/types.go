package types

import (
	"errors"
	"time"
)

// ErrPeerClosed is returned by Conn.ReadMessage when the peer closed the
// connection normally.
var ErrPeerClosed = errors.New("connection closed by peer")

// Severity is the urgency level of an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a recognised severity.
func (s Severity) Valid() bool {
	return s == SeverityWarning || s == SeverityCritical
}

// Alert is a single alert notification produced by an alert source.
// It is broadcast once and never stored.
type Alert struct {
	TargetID  string    `json:"targetId"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a point-in-time view of the monitored system.
type Snapshot struct {
	CPU         CPUStats       `json:"cpu"`
	Memory      MemoryStats    `json:"memory"`
	Disk        DiskStats      `json:"disk"`
	Network     NetworkStats   `json:"network"`
	ServerList  []ServerStatus `json:"serverList"`
	Stats       SummaryStats   `json:"stats"`
	CollectedAt time.Time      `json:"collectedAt"`
}

// CPUStats holds processor utilisation.
type CPUStats struct {
	UsagePercent float64 `json:"usagePercent"`
	Cores        int     `json:"cores"`
}

// MemoryStats holds physical memory usage in bytes.
type MemoryStats struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"usedPercent"`
}

// DiskStats holds usage of the monitored filesystem in bytes.
type DiskStats struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"usedPercent"`
}

// NetworkStats holds cumulative interface counters.
type NetworkStats struct {
	BytesSent   uint64 `json:"bytesSent"`
	BytesRecv   uint64 `json:"bytesRecv"`
	PacketsSent uint64 `json:"packetsSent"`
	PacketsRecv uint64 `json:"packetsRecv"`
}

// ServerStatus is one entry of the monitored server list.
type ServerStatus struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Status string  `json:"status"`
	CPU    float64 `json:"cpu"`
	Memory float64 `json:"memory"`
}

// SummaryStats aggregates the server list.
type SummaryStats struct {
	TotalServers  int `json:"totalServers"`
	OnlineServers int `json:"onlineServers"`
	WarningCount  int `json:"warningCount"`
}

// ClientInfo holds metadata about a connected WebSocket client.
type ClientInfo struct {
	ID          string    `json:"id"`
	ConnectedAt time.Time `json:"connected_at"`
	Channels    []string  `json:"channels"`
	State       string    `json:"state"`
}

// Conn abstracts a WebSocket connection for testability.
// Only the owning client's writer calls the write methods.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	WritePing() error
	SetWriteDeadline(t time.Time) error
	Close() error
}
