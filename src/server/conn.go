package server

import (
	"time"

	"github.com/fasthttp/websocket"
	"github.com/orchestra-mcp/monitor-socket/src/types"
)

const closeGrace = time.Second

// wsConn wraps fasthttp/websocket.Conn to satisfy types.Conn.
type wsConn struct {
	conn *websocket.Conn
}

// newWSConn applies the read limit and, when pongWait is positive, a read
// deadline that every pong extends.
func newWSConn(conn *websocket.Conn, readLimit int64, pongWait time.Duration) *wsConn {
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	if pongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}
	return &wsConn{conn: conn}
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				return nil, types.ErrPeerClosed
			}
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (w *wsConn) WriteMessage(data []byte) error {
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) WritePing() error {
	return w.conn.WriteMessage(websocket.PingMessage, nil)
}

func (w *wsConn) SetWriteDeadline(t time.Time) error { return w.conn.SetWriteDeadline(t) }

// Close sends a best-effort close frame before closing the socket.
func (w *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	return w.conn.Close()
}
