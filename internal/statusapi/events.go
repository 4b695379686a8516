package statusapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/serial2ip/internal/bridge"
	"github.com/muurk/serial2ip/internal/logging"
	"github.com/muurk/serial2ip/internal/wifi"
	"go.uber.org/zap"
)

const (
	// clientQueueSize is the number of frames buffered per event client.
	clientQueueSize = 16

	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Frame is one message on /api/events.
type Frame struct {
	Type   string         `json:"type"`
	Event  *wifi.Event    `json:"event,omitempty"`
	Stats  *bridge.Stats  `json:"stats,omitempty"`
	Bridge *bridge.Status `json:"bridge,omitempty"`
	Time   time.Time      `json:"time"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is served on the local network only.
	CheckOrigin: func(*http.Request) bool { return true },
}

type eventClient struct {
	conn *websocket.Conn
	send chan Frame
	once sync.Once
}

func (c *eventClient) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

type hub struct {
	log *zap.Logger

	mu      sync.Mutex
	clients map[*eventClient]struct{}
}

func newHub(log *zap.Logger) *hub {
	return &hub{log: log, clients: make(map[*eventClient]struct{})}
}

func (h *hub) add(c *eventClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(c *eventClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// broadcast queues f for every client; a full queue drops the frame.
func (h *hub) broadcast(f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- f:
		default:
			h.log.Debug("Dropped event frame", zap.String("remote_addr", c.conn.RemoteAddr().String()))
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*eventClient]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.close()
		_ = c.conn.Close()
	}
}

func (s *Server) publishWifi(ev wifi.Event) {
	s.hub.broadcast(Frame{Type: "wifi", Event: &ev, Time: s.now()})
}

func (s *Server) statsFrame() Frame {
	stats := s.bridge.GetStats()
	status := s.bridge.GetStatus()
	return Frame{Type: "stats", Stats: &stats, Bridge: &status, Time: s.now()}
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		s.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	remoteAddr := conn.RemoteAddr().String()
	logging.LogConnection(remoteAddr, "events_connected")

	c := &eventClient{conn: conn, send: make(chan Frame, clientQueueSize)}
	// The first frame is the current state so clients need not poll.
	c.send <- s.statsFrame()
	s.hub.add(c)

	go s.writePump(c)
	s.readPump(c)

	s.hub.remove(c)
	logging.LogConnection(remoteAddr, "events_closed")
}

// readPump discards client messages and returns when the peer goes away.
func (s *Server) readPump(c *eventClient) {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *eventClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(f); err != nil {
				s.log.Debug("Event write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
