package hub

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orchestra-mcp/monitor-socket/src/protocol"
	"github.com/orchestra-mcp/monitor-socket/src/types"
	"golang.org/x/time/rate"
)

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// ConnState is the lifecycle state of a client connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Close reasons recorded on the client and used as metric labels.
const (
	ReasonPeerClosed   = "peer_closed"
	ReasonReadError    = "read_error"
	ReasonWriteError   = "write_error"
	ReasonSlowConsumer = "slow_consumer"
	ReasonShutdown     = "shutdown"
	ReasonAdmin        = "admin"
)

// ClientOptions tunes the per-client send path.
type ClientOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	CommandRate  float64
	CommandBurst int
}

// DefaultClientOptions returns the options used when none are configured.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		SendBuffer:   256,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		CommandRate:  20,
		CommandBurst: 40,
	}
}

// Client wraps a WebSocket connection and manages message flow.
// All writes to the connection happen in WritePump.
type Client struct {
	ID          string
	conn        types.Conn
	send        chan []byte
	connectedAt time.Time
	opts        ClientOptions
	limiter     *rate.Limiter

	mu       sync.RWMutex
	channels map[string]bool

	state     atomic.Int32
	sent      atomic.Int64
	reason    atomic.Value // string
	closeOnce sync.Once
	done      chan struct{}
	released  chan struct{}
}

// NewClient creates a new WebSocket client wrapper in the connecting state.
func NewClient(id string, conn types.Conn, opts ClientOptions) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultClientOptions().SendBuffer
	}
	c := &Client{
		ID:          id,
		conn:        conn,
		send:        make(chan []byte, opts.SendBuffer),
		connectedAt: time.Now(),
		opts:        opts,
		channels:    make(map[string]bool),
		done:        make(chan struct{}),
		released:    make(chan struct{}),
	}
	if opts.CommandRate > 0 {
		burst := opts.CommandBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.CommandRate), burst)
	}
	return c
}

// ConnectedAt returns the time the client was created.
func (c *Client) ConnectedAt() time.Time { return c.connectedAt }

// State returns the current lifecycle state.
func (c *Client) State() ConnState { return ConnState(c.state.Load()) }

// MarkOpen moves a connecting client to open. It has no effect once the
// client started closing.
func (c *Client) MarkOpen() bool {
	return c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

func (c *Client) markClosed() { c.state.Store(int32(StateClosed)) }

// CloseReason returns the reason recorded by the first Close, or "".
func (c *Client) CloseReason() string {
	r, _ := c.reason.Load().(string)
	return r
}

// Sent returns how many frames were written to the connection.
func (c *Client) Sent() int64 { return c.sent.Load() }

// Info returns metadata about this client.
func (c *Client) Info() types.ClientInfo {
	return types.ClientInfo{
		ID:          c.ID,
		ConnectedAt: c.connectedAt,
		Channels:    c.Subscriptions(),
		State:       c.State().String(),
	}
}

// Subscriptions returns the channels this client is subscribed to, sorted.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	channels := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	return channels
}

// Subscribed reports whether the client is subscribed to channel.
func (c *Client) Subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[channel]
}

func (c *Client) addChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channel] = true
}

func (c *Client) removeChannel(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.channels, channel)
}

func (c *Client) clearChannels() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels = make(map[string]bool)
}

// allow reports whether another inbound command fits the rate limit.
func (c *Client) allow() bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.Allow()
}

// Send encodes msg and queues it for this client only.
func (c *Client) Send(msg protocol.Outbound) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// enqueue queues an encoded frame without blocking.
func (c *Client) enqueue(data []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSendBufferFull
	}
}

// WritePump writes queued frames and keepalive pings to the connection.
// It returns when the client is closed or a write fails.
func (c *Client) WritePump() {
	var ping <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case data := <-c.send:
			c.setWriteDeadline()
			if err := c.conn.WriteMessage(data); err != nil {
				c.closeWith(ReasonWriteError)
				return
			}
			c.sent.Add(1)
		case <-ping:
			c.setWriteDeadline()
			if err := c.conn.WritePing(); err != nil {
				c.closeWith(ReasonWriteError)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) setWriteDeadline() {
	if c.opts.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
}

// Done is closed when the client starts closing.
func (c *Client) Done() <-chan struct{} { return c.done }

// Released is closed once the underlying connection has been closed.
func (c *Client) Released() <-chan struct{} { return c.released }

// Close signals the client to stop its pumps and closes the connection.
func (c *Client) Close() {
	c.closeWith(ReasonShutdown)
}

// closeWith never blocks. Closing the connection may write a close frame
// behind a stalled writer, so it runs on its own goroutine.
func (c *Client) closeWith(reason string) {
	c.closeOnce.Do(func() {
		c.reason.Store(reason)
		if c.State() != StateClosed {
			c.state.Store(int32(StateClosing))
		}
		close(c.done)
		go func() {
			defer close(c.released)
			_ = c.conn.Close()
		}()
	})
}
