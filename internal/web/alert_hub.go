package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/listing_alert_bot/internal/domain"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	clientBuffer   = 16
	maxClientFrame = 512
)

type hubClient struct {
	conn *websocket.Conn
	send chan *domain.Alert
}

// AlertHub fans every new alert out to the connected websocket clients. A
// client that cannot keep up is disconnected.
type AlertHub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	closed  bool
}

func NewAlertHub(logger *zap.Logger) *AlertHub {
	return &AlertHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*hubClient]struct{}),
	}
}

// Broadcast never blocks the caller.
func (h *AlertHub) Broadcast(alert *domain.Alert) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- alert:
		default:
			h.logger.Warn("Dropping slow websocket client", zap.String("remote", c.conn.RemoteAddr().String()))
			h.removeLocked(c)
		}
	}
}

func (h *AlertHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *AlertHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *AlertHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	c := &hubClient{conn: conn, send: make(chan *domain.Alert, clientBuffer)}
	if !h.add(c) {
		conn.Close()
		return
	}
	h.logger.Info("Websocket client connected", zap.String("remote", conn.RemoteAddr().String()))

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *AlertHub) add(c *hubClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *AlertHub) remove(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *AlertHub) removeLocked(c *hubClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// readLoop discards client frames and returns when the connection drops.
func (h *AlertHub) readLoop(c *hubClient) {
	defer h.remove(c)

	c.conn.SetReadLimit(maxClientFrame)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *AlertHub) writeLoop(c *hubClient) {
	defer c.conn.Close()

	for alert := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(alert); err != nil {
			h.logger.Debug("Websocket write failed", zap.Error(err))
			h.remove(c)
			return
		}
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
