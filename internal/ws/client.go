package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dmoreira/interchat/internal/chaterr"
	"github.com/dmoreira/interchat/internal/hub"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 64 * 1024
)

var (
	errClosed     = errors.New("connection closed")
	errBufferFull = errors.New("send buffer full")
)

// client adapts one gorilla connection to hub.Sender. Outbound events go
// through a buffered channel drained by a single write pump, which keeps
// per-connection delivery FIFO and keeps Send non-blocking for the hub.
type client struct {
	conn   *websocket.Conn
	out    chan []byte
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

func newClient(conn *websocket.Conn, sendBuf int, logger *zap.Logger) *client {
	return &client{
		conn:   conn,
		out:    make(chan []byte, sendBuf),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Send queues an event for the write pump. A closed connection or a full
// buffer is a transport failure the hub isolates per target; it never blocks
// a fan-out on one slow client.
func (c *client) Send(ev hub.Outbound) error {
	data, err := encodeOutbound(ev)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return chaterr.Transport(c.conn.RemoteAddr().String(), errClosed)
	default:
	}
	select {
	case c.out <- data:
		return nil
	default:
		return chaterr.Transport(c.conn.RemoteAddr().String(), errBufferFull)
	}
}

// Close releases the write pump; the underlying conn is closed there.
func (c *client) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *client) sendError(msg string) {
	select {
	case c.out <- encodeError(msg):
	default:
	}
}

// writePump owns all writes to the socket: queued frames, keepalive pings,
// and the close frame. Gorilla allows one concurrent writer, so nothing else
// may call conn.Write*.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
