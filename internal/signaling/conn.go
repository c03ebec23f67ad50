package signaling

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/protocol"
)

// wsConn adapts a WebSocket to presence.Conn.
type wsConn struct {
	id      string
	conn    *websocket.Conn
	queue   *sendQueue
	log     *slog.Logger
	metrics *metrics.Metrics

	writeTimeout time.Duration

	open      atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func newWSConn(conn *websocket.Conn, sendQueueBytes int, writeTimeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *wsConn {
	id := uuid.NewString()
	c := &wsConn{
		id:           id,
		conn:         conn,
		queue:        newSendQueue(sendQueueBytes),
		log:          logger.With("conn_id", id),
		metrics:      m,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
	c.open.Store(true)
	return c
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Open() bool { return c.open.Load() }

// Send encodes msg and queues it for the writer goroutine. It never blocks.
func (c *wsConn) Send(msg protocol.ServerMessage) bool {
	if !c.open.Load() {
		return false
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		c.log.Error("encode outbound message", "type", msg.Type, "err", err)
		return false
	}
	if !c.queue.Enqueue(data) {
		c.metrics.Inc(metrics.SendQueueDropped)
		c.log.Warn("send queue full; dropping message", "type", msg.Type)
		return false
	}
	return true
}

// writeLoop drains the send queue until the connection closes.
func (c *wsConn) writeLoop() {
	for {
		frame, ok := c.queue.Dequeue()
		if !ok {
			return
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			c.log.Debug("websocket write failed", "err", err)
			c.close()
			return
		}
	}
}

// pingLoop sends pings until the connection closes. WriteControl is safe to
// call concurrently with writeLoop.
func (c *wsConn) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				c.log.Debug("websocket ping failed", "err", err)
				c.close()
				return
			}
		}
	}
}

// readLoop calls handle for every inbound data frame until the connection
// fails or closes. A positive idleTimeout bounds the silence between frames
// (pongs included).
func (c *wsConn) readLoop(maxMessageBytes int64, idleTimeout time.Duration, handle func([]byte)) {
	c.conn.SetReadLimit(maxMessageBytes)
	extend := func() {
		if idleTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		}
	}
	extend()
	c.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		extend()
		handle(data)
	}
}

func (c *wsConn) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		// gorilla has already sent close 1009.
		c.log.Info("websocket message too large; closing", "err", err)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.log.Debug("websocket closed by peer", "err", err)
	case isTimeout(err):
		c.log.Info("websocket idle timeout", "err", err)
	default:
		c.log.Debug("websocket read failed", "err", err)
	}
}

// closeWith sends a close frame before tearing the connection down.
func (c *wsConn) closeWith(code int, reason string) {
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(c.writeTimeout))
	c.close()
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)
		c.queue.Close()
		_ = c.conn.Close()
	})
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
