package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/orchestra-mcp/monitor-socket/src/source"
	"github.com/orchestra-mcp/monitor-socket/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var errConnClosed = errors.New("use of closed connection")

// mockConn implements types.Conn for testing without a real WebSocket.
type mockConn struct {
	mu       sync.Mutex
	written  [][]byte
	pings    int
	writeErr error
	closed   bool

	readCh   chan []byte
	errCh    chan error
	closedCh chan struct{}

	// closeGate, when set, holds Close until it is closed. It stands in for
	// a close frame stuck behind a stalled writer.
	closeGate chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		readCh:   make(chan []byte, 16),
		errCh:    make(chan error, 1),
		closedCh: make(chan struct{}),
	}
}

func (m *mockConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-m.readCh:
		return data, nil
	case err := <-m.errCh:
		return nil, err
	case <-m.closedCh:
		return nil, errConnClosed
	}
}

func (m *mockConn) WriteMessage(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.written = append(m.written, data)
	return nil
}

func (m *mockConn) WritePing() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pings++
	return nil
}

func (m *mockConn) SetWriteDeadline(time.Time) error { return nil }

// newStalledConn returns a conn whose Close blocks until the test ends.
func newStalledConn(t *testing.T) *mockConn {
	t.Helper()
	m := newMockConn()
	m.closeGate = make(chan struct{})
	t.Cleanup(func() { close(m.closeGate) })
	return m
}

func (m *mockConn) Close() error {
	if m.closeGate != nil {
		<-m.closeGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConn) failWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// send feeds an inbound frame to the read loop.
func (m *mockConn) send(frame string) { m.readCh <- []byte(frame) }

// frames decodes every frame written so far.
func (m *mockConn) frames(t *testing.T) []map[string]any {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, 0, len(m.written))
	for _, data := range m.written {
		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		out = append(out, msg)
	}
	return out
}

// waitFrames waits until at least n frames were written and returns them.
func (m *mockConn) waitFrames(t *testing.T, n int) []map[string]any {
	t.Helper()
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.written) >= n
	}, time.Second, 5*time.Millisecond, "expected %d frames", n)
	return m.frames(t)
}

// nth waits for frame n (1-based) and returns it.
func (m *mockConn) nth(t *testing.T, n int) map[string]any {
	t.Helper()
	return m.waitFrames(t, n)[n-1]
}

func fixedSnapshot() types.Snapshot {
	return types.Snapshot{
		CPU:    types.CPUStats{UsagePercent: 12.5, Cores: 4},
		Memory: types.MemoryStats{Total: 1024, Used: 512, UsedPercent: 50},
		Stats:  types.SummaryStats{TotalServers: 1, OnlineServers: 1},
	}
}

func testOptions() ClientOptions {
	return ClientOptions{SendBuffer: 16, WriteTimeout: time.Second}
}

func newTestHub(t *testing.T, mutate ...func(*Config)) *Hub {
	t.Helper()
	cfg := Config{
		Client: testOptions(),
		MetricsSource: source.MetricsFunc(func(context.Context) (types.Snapshot, error) {
			return fixedSnapshot(), nil
		}),
		AlertSource: source.NewSimulatedAlerts(),
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	h := New(cfg, zerolog.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	return h
}

// connect serves a mock connection on h under id and waits for the welcome.
func connect(t *testing.T, h *Hub, id string) *mockConn {
	t.Helper()
	return serveConn(t, h, id, newMockConn())
}

func serveConn(t *testing.T, h *Hub, id string, conn *mockConn) *mockConn {
	t.Helper()
	go func() { _ = h.Connect(context.Background(), id, conn) }()
	conn.waitFrames(t, 1)
	return conn
}

func waitClosed(t *testing.T, conn *mockConn) {
	t.Helper()
	require.Eventually(t, conn.isClosed, time.Second, 5*time.Millisecond)
}

func waitGone(t *testing.T, h *Hub, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, ok := h.Registry().Get(id)
		return !ok
	}, time.Second, 5*time.Millisecond)
}
