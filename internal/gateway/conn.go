package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gigroom/gigroom/internal/broadcast"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Ping period. Must be less than pongWait.
	pingPeriod = 30 * time.Second

	// Maximum inbound frame size.
	maxMessageSize = 16 << 10

	sendQueueSize = 64
)

// conn is one push connection. It satisfies broadcast.Subscriber; envelopes
// are queued and written by writePump so Deliver never blocks the sender.
type conn struct {
	ws   *websocket.Conn
	send chan broadcast.Envelope
	done chan struct{}
	once sync.Once
	log  *slog.Logger
}

func newConn(ws *websocket.Conn, logger *slog.Logger) *conn {
	return &conn{
		ws:   ws,
		send: make(chan broadcast.Envelope, sendQueueSize),
		done: make(chan struct{}),
		log:  logger,
	}
}

// Deliver queues env. It returns false if the queue is full or the
// connection is closing.
func (c *conn) Deliver(env broadcast.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// shutdown stops the write pump. Safe to call more than once.
func (c *conn) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// writePump writes queued envelopes and keepalive pings until shutdown or
// a write error.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case env := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(env); err != nil {
				c.log.Debug("gateway: write failed", "error", err)
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump hands each inbound text frame to handle until the peer goes
// away or the pong deadline lapses.
func (c *conn) readPump(handle func([]byte)) {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Debug("gateway: read failed", "error", err)
			}
			return
		}
		handle(data)
	}
}

// closeWith rejects a freshly upgraded connection with an application
// close code.
func closeWith(ws *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	ws.Close()
}
