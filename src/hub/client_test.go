package hub

import (
	"errors"
	"testing"
	"time"

	"github.com/orchestra-mcp/monitor-socket/src/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientLifecycle(t *testing.T) {
	conn := newMockConn()
	c := NewClient("c1", conn, testOptions())

	assert.Equal(t, StateConnecting, c.State())
	assert.True(t, c.MarkOpen())
	assert.Equal(t, StateOpen, c.State())
	assert.False(t, c.MarkOpen(), "second open is a no-op")

	c.Close()
	assert.Equal(t, StateClosing, c.State())
	assert.Equal(t, ReasonShutdown, c.CloseReason())
	waitClosed(t, conn)

	select {
	case <-c.Done():
	default:
		t.Fatal("done should be closed")
	}

	assert.ErrorIs(t, c.Send(protocol.NewError("late")), ErrClientClosed)
}

func TestClientCloseDoesNotWaitOnConn(t *testing.T) {
	conn := newStalledConn(t)
	c := NewClient("c1", conn, testOptions())

	closed := make(chan struct{})
	go func() {
		c.closeWith(ReasonSlowConsumer)
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("closeWith blocked on the connection")
	}
	assert.Equal(t, StateClosing, c.State())
	assert.False(t, conn.isClosed())

	select {
	case <-c.Released():
		t.Fatal("released before the connection closed")
	default:
	}
}

func TestClientFirstCloseReasonWins(t *testing.T) {
	c := NewClient("c1", newMockConn(), testOptions())
	c.closeWith(ReasonSlowConsumer)
	c.closeWith(ReasonPeerClosed)
	c.Close()
	assert.Equal(t, ReasonSlowConsumer, c.CloseReason())
}

func TestClientMarkOpenAfterClose(t *testing.T) {
	c := NewClient("c1", newMockConn(), testOptions())
	c.Close()
	assert.False(t, c.MarkOpen())
	assert.Equal(t, StateClosing, c.State())
}

func TestClientSendBufferFull(t *testing.T) {
	c := NewClient("c1", newMockConn(), ClientOptions{SendBuffer: 1})

	require.NoError(t, c.Send(protocol.NewError("one")))
	assert.ErrorIs(t, c.Send(protocol.NewError("two")), ErrSendBufferFull)
}

func TestWritePumpPreservesOrder(t *testing.T) {
	conn := newMockConn()
	c := NewClient("c1", conn, testOptions())

	for _, msg := range []string{"a", "b", "c"} {
		require.NoError(t, c.Send(protocol.NewError(msg)))
	}
	go c.WritePump()
	t.Cleanup(c.Close)

	frames := conn.waitFrames(t, 3)
	assert.Equal(t, "a", frames[0]["message"])
	assert.Equal(t, "b", frames[1]["message"])
	assert.Equal(t, "c", frames[2]["message"])
	require.Eventually(t, func() bool { return c.Sent() == 3 }, time.Second, 5*time.Millisecond)
}

func TestWritePumpWriteErrorClosesClient(t *testing.T) {
	conn := newMockConn()
	conn.failWrites(errors.New("broken pipe"))
	c := NewClient("c1", conn, testOptions())

	require.NoError(t, c.Send(protocol.NewError("x")))
	done := make(chan struct{})
	go func() {
		c.WritePump()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write pump did not exit")
	}
	assert.Equal(t, ReasonWriteError, c.CloseReason())
	waitClosed(t, conn)
}

func TestWritePumpSendsPings(t *testing.T) {
	conn := newMockConn()
	opts := testOptions()
	opts.PingInterval = 10 * time.Millisecond
	c := NewClient("c1", conn, opts)
	go c.WritePump()
	t.Cleanup(c.Close)

	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return conn.pings >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestClientRateLimit(t *testing.T) {
	c := NewClient("c1", newMockConn(), ClientOptions{CommandRate: 1, CommandBurst: 2})
	assert.True(t, c.allow())
	assert.True(t, c.allow())
	assert.False(t, c.allow())

	unlimited := NewClient("c2", newMockConn(), ClientOptions{})
	for i := 0; i < 100; i++ {
		require.True(t, unlimited.allow())
	}
}

func TestClientSubscriptionsSorted(t *testing.T) {
	c := NewClient("c1", newMockConn(), testOptions())
	c.addChannel(protocol.ChannelSystemData)
	c.addChannel(protocol.ChannelAlerts)

	assert.Equal(t, []string{"alerts", "system-data"}, c.Subscriptions())
	assert.True(t, c.Subscribed(protocol.ChannelAlerts))

	c.removeChannel(protocol.ChannelAlerts)
	assert.Equal(t, []string{"system-data"}, c.Info().Channels)
}
