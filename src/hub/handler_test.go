package hub

import (
	"context"
	"errors"
	"testing"

	"github.com/orchestra-mcp/monitor-socket/src/source"
	"github.com/orchestra-mcp/monitor-socket/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectSendsWelcomeFirst(t *testing.T) {
	h := newTestHub(t)
	conn := connect(t, h, "c1")

	welcome := conn.nth(t, 1)
	assert.Equal(t, "welcome", welcome["type"])
	assert.Equal(t, "c1", welcome["clientId"])
	assert.Equal(t, "c1", welcome["id"])
	assert.ElementsMatch(t, []any{"system-data", "alerts", "heartbeat"}, welcome["availableChannels"])
	assert.NotEmpty(t, welcome["timestamp"])

	c, ok := h.Registry().Get("c1")
	require.True(t, ok)
	assert.Equal(t, StateOpen, c.State())
}

func TestHandlePing(t *testing.T) {
	h := newTestHub(t)
	conn := connect(t, h, "c1")

	conn.send(`{"type":"ping","timestamp":1700000000000}`)
	pong := conn.nth(t, 2)
	assert.Equal(t, "pong", pong["type"])
	assert.Equal(t, 1700000000000.0, pong["clientTimestamp"])

	conn.send(`{"type":"ping"}`)
	pong = conn.nth(t, 3)
	assert.Equal(t, "pong", pong["type"])
	assert.NotContains(t, pong, "clientTimestamp")
}

func TestHandleSubscribeAndUnsubscribe(t *testing.T) {
	h := newTestHub(t)
	conn := connect(t, h, "c1")

	conn.send(`{"type":"subscribe","channel":"alerts"}`)
	msg := conn.nth(t, 2)
	assert.Equal(t, "subscription-confirmed", msg["type"])
	assert.Equal(t, "alerts", msg["channel"])
	assert.Equal(t, 1, h.Channels()["alerts"])

	conn.send(`{"type":"unsubscribe","channel":"alerts"}`)
	msg = conn.nth(t, 3)
	assert.Equal(t, "subscription-cancelled", msg["type"])
	assert.Equal(t, "alerts", msg["channel"])
	assert.Zero(t, h.Channels()["alerts"])
}

func TestHandleInvalidChannel(t *testing.T) {
	h := newTestHub(t)
	conn := connect(t, h, "c1")

	conn.send(`{"type":"subscribe","channel":"bogus"}`)
	msg := conn.nth(t, 2)
	assert.Equal(t, "error", msg["type"])
	assert.Contains(t, msg["message"], "bogus")

	conn.send(`{"type":"client-info"}`)
	info := conn.nth(t, 3)
	assert.Equal(t, "client-info-response", info["type"])
	assert.Equal(t, "c1", info["clientId"])
	assert.Equal(t, []any{}, info["subscriptions"])
}

func TestHandleClientInfo(t *testing.T) {
	h := newTestHub(t)
	conn := connect(t, h, "c1")

	conn.send(`{"type":"subscribe","channel":"system-data"}`)
	conn.send(`{"type":"subscribe","channel":"alerts"}`)
	conn.send(`{"type":"client-info"}`)

	info := conn.nth(t, 4)
	assert.Equal(t, "client-info-response", info["type"])
	assert.Equal(t, []any{"alerts", "system-data"}, info["subscriptions"])
	assert.GreaterOrEqual(t, info["connectionDuration"], 0.0)
	assert.NotEmpty(t, info["connectedAt"])
}

func TestHandleRequestData(t *testing.T) {
	h := newTestHub(t)
	requester := connect(t, h, "c1")
	subscriber := connect(t, h, "c2")
	subscriber.send(`{"type":"subscribe","channel":"system-data"}`)
	subscriber.nth(t, 2)

	requester.send(`{"type":"request-data"}`)
	msg := requester.nth(t, 2)
	assert.Equal(t, "system-data", msg["type"])
	data, ok := msg["data"].(map[string]any)
	require.True(t, ok)
	cpu := data["cpu"].(map[string]any)
	assert.Equal(t, 12.5, cpu["usagePercent"])

	// The next reply follows directly, so exactly one system-data was sent.
	requester.send(`{"type":"ping"}`)
	assert.Equal(t, "pong", requester.nth(t, 3)["type"])
	assert.Len(t, requester.frames(t), 3)

	// Subscribers of system-data do not see the reply.
	subscriber.send(`{"type":"ping"}`)
	assert.Equal(t, "pong", subscriber.nth(t, 3)["type"])
	for _, f := range subscriber.frames(t) {
		assert.NotEqual(t, "system-data", f["type"])
	}
	assert.Len(t, subscriber.frames(t), 3)
}

func TestHandleRequestDataSourceFailure(t *testing.T) {
	h := newTestHub(t, func(cfg *Config) {
		cfg.MetricsSource = source.MetricsFunc(func(context.Context) (types.Snapshot, error) {
			return types.Snapshot{}, errors.New("collector down")
		})
	})
	conn := connect(t, h, "c1")

	conn.send(`{"type":"request-data"}`)
	msg := conn.nth(t, 2)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "system data unavailable", msg["message"])

	// The connection stays usable.
	conn.send(`{"type":"ping"}`)
	assert.Equal(t, "pong", conn.nth(t, 3)["type"])
}

func TestHandleSimulateAlert(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h, "a")
	b := connect(t, h, "b")
	requester := connect(t, h, "requester")

	a.send(`{"type":"subscribe","channel":"alerts"}`)
	b.send(`{"type":"subscribe","channel":"alerts"}`)
	a.nth(t, 2)
	b.nth(t, 2)

	requester.send(`{"type":"simulate-alert","targetId":"server-2","severity":"critical"}`)

	for _, conn := range []*mockConn{a, b} {
		msg := conn.nth(t, 3)
		assert.Equal(t, "new-alert", msg["type"])
		alert := msg["alert"].(map[string]any)
		assert.Equal(t, "server-2", alert["targetId"])
		assert.Equal(t, "critical", alert["severity"])
	}

	// The requester is not an alerts subscriber and gets nothing back.
	requester.send(`{"type":"ping"}`)
	assert.Equal(t, "pong", requester.nth(t, 2)["type"])
}

func TestHandleSimulateAlertValidation(t *testing.T) {
	h := newTestHub(t)
	conn := connect(t, h, "c1")
	conn.send(`{"type":"subscribe","channel":"alerts"}`)
	conn.nth(t, 2)

	conn.send(`{"type":"simulate-alert"}`)
	msg := conn.nth(t, 3)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, source.ErrMissingTarget.Error(), msg["message"])

	conn.send(`{"type":"simulate-alert","targetId":"server-1","severity":"info"}`)
	msg = conn.nth(t, 4)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "severity must be warning or critical", msg["message"])

	conn.send(`{"type":"simulate-alert","targetId":"server-1"}`)
	msg = conn.nth(t, 5)
	assert.Equal(t, "new-alert", msg["type"])
	assert.Equal(t, "warning", msg["alert"].(map[string]any)["severity"])
}

func TestHandleRejectedFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"malformed", `{"type":`},
		{"missing type", `{"channel":"alerts"}`},
		{"unknown type", `{"type":"shutdown"}`},
		{"not an object", `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHub(t)
			conn := connect(t, h, "c1")

			conn.send(tt.frame)
			msg := conn.nth(t, 2)
			assert.Equal(t, "error", msg["type"])
			assert.NotEmpty(t, msg["message"])

			_, ok := h.Registry().Get("c1")
			assert.True(t, ok, "client stays connected after a bad frame")
		})
	}
}

func TestHandleRateLimit(t *testing.T) {
	h := newTestHub(t, func(cfg *Config) {
		cfg.Client.CommandRate = 0.001
		cfg.Client.CommandBurst = 1
	})
	conn := connect(t, h, "c1")

	conn.send(`{"type":"ping"}`)
	conn.send(`{"type":"ping"}`)
	frames := conn.waitFrames(t, 3)
	assert.Equal(t, "pong", frames[1]["type"])
	assert.Equal(t, "error", frames[2]["type"])
	assert.Equal(t, ErrRateLimited.Error(), frames[2]["message"])
}

func TestServeRemovesClientOnPeerClose(t *testing.T) {
	h := newTestHub(t)
	conn := connect(t, h, "c1")
	conn.send(`{"type":"subscribe","channel":"heartbeat"}`)
	conn.nth(t, 2)

	c, ok := h.Registry().Get("c1")
	require.True(t, ok)

	conn.errCh <- types.ErrPeerClosed
	waitGone(t, h, "c1")

	assert.Equal(t, ReasonPeerClosed, c.CloseReason())
	assert.Equal(t, StateClosed, c.State())
	assert.Zero(t, h.Channels()["heartbeat"])
	waitClosed(t, conn)
}

func TestServeRemovesClientOnReadError(t *testing.T) {
	h := newTestHub(t)
	conn := connect(t, h, "c1")
	c, _ := h.Registry().Get("c1")

	conn.errCh <- errors.New("i/o timeout")
	waitGone(t, h, "c1")
	assert.Equal(t, ReasonReadError, c.CloseReason())
}

func TestServeWriteFailureRemovesClient(t *testing.T) {
	h := newTestHub(t)
	conn := connect(t, h, "c1")
	c, _ := h.Registry().Get("c1")

	conn.failWrites(errors.New("broken pipe"))
	conn.send(`{"type":"ping"}`)

	waitGone(t, h, "c1")
	assert.Equal(t, ReasonWriteError, c.CloseReason())
	waitClosed(t, conn)
}
