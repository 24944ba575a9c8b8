// Package ws is the live transport: one WebSocket per client, a read loop
// feeding the coordinator and a write pump draining fan-out. All room and
// message semantics live in the hub; this package only frames and moves
// bytes.
package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dmoreira/interchat/internal/auth"
	"github.com/dmoreira/interchat/internal/hub"
)

type Handler struct {
	coord     *hub.Coordinator
	upgrader  websocket.Upgrader
	jwtSecret string
	sendBuf   int
	logger    *zap.Logger
}

func NewHandler(coord *hub.Coordinator, jwtSecret string, sendBuf int, logger *zap.Logger) *Handler {
	return &Handler{
		coord: coord,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin enforcement happens at the edge proxy; the server
			// accepts browser clients from any host.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		jwtSecret: jwtSecret,
		sendBuf:   sendBuf,
		logger:    logger,
	}
}

// Serve handles GET /v1/ws. An optional token query parameter binds the
// connection's identity up front; otherwise identity is bound from the first
// event that carries a userId.
func (h *Handler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := newClient(conn, h.sendBuf, h.logger)
	connID := h.coord.Connect(cl)

	if token := c.Query("token"); token != "" {
		if claims, err := auth.ParseToken(token, h.jwtSecret); err == nil {
			h.coord.Bind(connID, claims.UserID)
		} else {
			h.logger.Warn("websocket token rejected", zap.String("conn_id", connID), zap.Error(err))
		}
	}

	go cl.writePump()
	h.readLoop(c, connID, cl)
}

// readLoop processes the connection's events in order. Per-connection FIFO is
// exactly this: one goroutine reading and dispatching sequentially.
func (h *Handler) readLoop(c *gin.Context, connID string, cl *client) {
	defer func() {
		h.coord.Disconnect(connID)
		cl.Close()
	}()

	cl.conn.SetReadLimit(maxMsgSize)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read failed", zap.String("conn_id", connID), zap.Error(err))
			}
			return
		}

		ev, err := decodeInbound(data)
		if err != nil {
			cl.sendError(err.Error())
			continue
		}

		if err := h.coord.Dispatch(c.Request.Context(), connID, ev); err != nil {
			h.logger.Debug("dispatch failed",
				zap.String("conn_id", connID),
				zap.Error(err),
			)
			cl.sendError(err.Error())
		}
	}
}
