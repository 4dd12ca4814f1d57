package http

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/auction_live/internal/domain"
	"github.com/immxrtalbeast/auction_live/lib/logger/sl"
)

// wsClient is the write side of one websocket. Send never blocks: a full
// buffer drops the event for this client only.
type wsClient struct {
	conn         *websocket.Conn
	send         chan domain.Event
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	pingPeriod   time.Duration
	log          *slog.Logger
}

func newWSClient(conn *websocket.Conn, buffer int, writeTimeout, idleTimeout time.Duration, log *slog.Logger) *wsClient {
	ping := idleTimeout / 2
	if ping <= 0 {
		ping = 30 * time.Second
	}
	return &wsClient{
		conn:         conn,
		send:         make(chan domain.Event, buffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		pingPeriod:   ping,
		log:          log,
	}
}

func (c *wsClient) Send(event domain.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- event:
		return true
	default:
		c.log.Warn("send buffer full, dropping event", slog.String("event", event.Name))
		return false
	}
}

func (c *wsClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// writePump owns every write to the socket.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case event := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteJSON(event); err != nil {
				c.log.Debug("websocket write failed", sl.Err(err))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeTimeout),
			)
			return
		}
	}
}

// flush writes whatever is already queued, e.g. an idle_timeout notice.
func (c *wsClient) flush() {
	for {
		select {
		case event := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		default:
			return
		}
	}
}
