package handlers

import (
	"net/http"
	"time"

	"docsync-api/internal/middleware"
	"docsync-api/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSOptions tunes the websocket transport.
type WSOptions struct {
	// HeartbeatTimeout is how long a connection may stay silent (no pong, no
	// message) before it is treated as closed.
	HeartbeatTimeout time.Duration
	WriteTimeout     time.Duration
	MaxMessageBytes  int64
}

func (o WSOptions) pingPeriod() time.Duration {
	return (o.HeartbeatTimeout * 9) / 10
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is already handled at Gin level; allow upgrade from any origin here
		return true
	},
}

// WebSocketHandler upgrades the request and attaches it to the broker as a
// new connection bound to the caller's verified identity. It requires
// JWTAuthMiddleware in front of it.
func WebSocketHandler(broker *realtime.Broker, opts WSOptions, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := middleware.IdentityFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authorized"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		conn := broker.Open()
		if err := conn.Authenticate(identity); err != nil {
			conn.Close()
			_ = ws.Close()
			return
		}
		log.Info("websocket connected",
			zap.String("connectionId", conn.ID()),
			zap.String("userId", identity.UserID))

		go writePump(ws, conn, opts, log)
		readPump(ws, conn, broker.Router(), opts, log)
	}
}

// readPump feeds inbound frames to the router in arrival order. Any read
// error, including a missed heartbeat, closes the connection.
func readPump(ws *websocket.Conn, conn *realtime.Connection, router *realtime.Router, opts WSOptions, log *zap.Logger) {
	defer conn.Close()

	ws.SetReadLimit(opts.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(opts.HeartbeatTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(opts.HeartbeatTimeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info("websocket read ended", zap.String("connectionId", conn.ID()), zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(opts.HeartbeatTimeout))
		router.Dispatch(conn, data)
	}
}

// writePump is the only writer on ws. It drains the connection's queue,
// sends heartbeat pings, and closes the socket once the connection is done.
func writePump(ws *websocket.Conn, conn *realtime.Connection, opts WSOptions, log *zap.Logger) {
	ticker := time.NewTicker(opts.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case frame := <-conn.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(opts.WriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug("websocket write failed", zap.String("connectionId", conn.ID()), zap.Error(err))
				conn.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(opts.WriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		case <-conn.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(opts.WriteTimeout))
			return
		}
	}
}
