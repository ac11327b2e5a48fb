package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ytdl/ytdl-api/internal/media"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Source yields a client's status events until ctx is done.
type Source interface {
	Subscribe(ctx context.Context, clientID string) <-chan media.StatusInfo
}

// Message is one frame sent to the browser.
type Message struct {
	Type      string           `json:"type"`
	Payload   media.StatusInfo `json:"payload"`
	Timestamp string           `json:"timestamp"`
}

const messageTypeStatus = "download:status"

// Hub tracks live connections and feeds each one from its client's mailbox.
type Hub struct {
	source   Source
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
	wg      sync.WaitGroup
}

// Client represents one WebSocket connection.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	clientID string
	cancel   context.CancelFunc
}

// NewHub creates a hub. allowedOrigins empty accepts any origin.
func NewHub(source Source, allowedOrigins []string, logger zerolog.Logger) *Hub {
	h := &Hub{
		source:  source,
		logger:  logger.With().Str("component", "websocket").Logger(),
		clients: make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if len(set) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Serve upgrades the request and streams clientID's events over it. It
// returns once the connection is handed to its pumps.
func (h *Hub) Serve(c echo.Context, clientID string) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:      h,
		conn:     conn,
		clientID: clientID,
		cancel:   cancel,
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug().Str("clientId", clientID).Msg("WebSocket client connected")

	h.wg.Add(2)
	go client.writePump(ctx, h.source.Subscribe(ctx, clientID))
	go client.readPump()

	return nil
}

// Close disconnects every client and waits for their pumps to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	for client := range h.clients {
		client.cancel()
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.logger.Debug().Str("clientId", c.clientID).Msg("WebSocket client disconnected")
	}
	h.mu.Unlock()
}

// readPump discards inbound frames, keeps the read deadline fresh and ends the
// subscription when the peer goes away.
func (c *Client) readPump() {
	defer func() {
		c.hub.wg.Done()
		c.cancel()
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug().Err(err).Str("clientId", c.clientID).Msg("WebSocket read error")
			}
			return
		}
	}
}

// writePump forwards status events to the connection, one frame each.
func (c *Client) writePump(ctx context.Context, events <-chan media.StatusInfo) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.hub.wg.Done()
		c.cancel()
		c.conn.Close()
	}()

	for {
		select {
		case info, ok := <-events:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(Message{
				Type:      messageTypeStatus,
				Payload:   info,
				Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			})
			if err != nil {
				c.hub.logger.Error().Err(err).Str("mediaId", info.MediaID).Msg("Failed to encode status")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}
