package http

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/auction_live/internal/config"
	"github.com/immxrtalbeast/auction_live/internal/service"
)

// ConnectionController upgrades clients to websockets and pumps their
// messages through the hub.
type ConnectionController struct {
	hub      service.Connections
	gate     service.ConnectionGate
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewConnectionController(
	hub service.Connections,
	gate service.ConnectionGate,
	cfg config.WebSocketConfig,
	allowedOrigins []string,
	log *slog.Logger,
) *ConnectionController {
	if log == nil {
		log = slog.Default()
	}
	return &ConnectionController{
		hub:  hub,
		gate: gate,
		cfg:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBuffer,
			WriteBufferSize: cfg.WriteBuffer,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log,
	}
}

func (c *ConnectionController) Serve(ctx *gin.Context) {
	const op = "api.http.connection.serve"
	source := ctx.ClientIP()
	log := c.log.With(slog.String("op", op), slog.String("source", source))

	if !c.gate.AllowConnection(ctx.Request.Context(), source) {
		ctx.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connections"})
		return
	}

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Debug("upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := newWSClient(conn, c.cfg.SendBuffer, c.cfg.WriteTimeout, c.cfg.IdleTimeout, log)
	go client.writePump()

	session := c.hub.Connect(uuid.New().String(), source, client)

	conn.SetReadLimit(c.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket closed unexpectedly", slog.String("error", err.Error()))
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))

		c.hub.HandleMessage(context.Background(), session, raw)
	}

	c.hub.Disconnect(context.Background(), session)
	client.Close()
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}
