package shell

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/eleven-am/aria-assistant/internal/visualizer"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 128
)

const (
	EventState      = "state"
	EventVisualizer = "visualizer"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Event struct {
	Type      string            `json:"type"`
	State     *Snapshot         `json:"state,omitempty"`
	Frame     *visualizer.Frame `json:"frame,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Hub fans widget events out to websocket clients.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger.With("component", "event_hub"),
		clients: make(map[*client]struct{}),
	}
}

// Serve upgrades the request and streams events until the client leaves.
// The initial snapshot is queued before any broadcast reaches the client.
func (h *Hub) Serve(c echo.Context, initial Snapshot) error {
	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return err
	}

	cl := &client{
		hub:  h,
		ws:   ws,
		send: make(chan Event, sendBuffer),
		done: make(chan struct{}),
	}
	cl.send <- Event{Type: EventState, State: &initial, Timestamp: time.Now()}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ws.Close()
	}
	h.clients[cl] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("event client connected", "remote", c.RealIP())

	go cl.writePump()
	cl.readPump()
	return nil
}

func (h *Hub) PublishState(snap Snapshot) {
	h.Broadcast(Event{Type: EventState, State: &snap, Timestamp: time.Now()})
}

// Render implements visualizer.Renderer.
func (h *Hub) Render(frame visualizer.Frame) {
	h.Broadcast(Event{Type: EventVisualizer, Frame: &frame, Timestamp: time.Now()})
}

func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.clients {
		cl.enqueue(ev)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.Unlock()

	for _, cl := range clients {
		cl.close()
	}
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	delete(h.clients, cl)
	h.mu.Unlock()
}

type client struct {
	hub  *Hub
	ws   *websocket.Conn
	send chan Event

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func (c *client) enqueue(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.send <- ev:
	default:
		if ev.Type == EventState {
			c.hub.logger.Warn("send buffer full, dropping state event")
		}
	}
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.hub.remove(c)
	_ = c.ws.Close()
}

func (c *client) readPump() {
	defer c.close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket read error", "error", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return

		case ev := <-c.send:
			data, err := json.Marshal(ev)
			if err != nil {
				c.hub.logger.Error("failed to marshal event", "error", err)
				continue
			}

			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.hub.logger.Error("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
