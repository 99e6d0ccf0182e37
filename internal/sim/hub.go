package sim

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fisaks/mbconsole/internal/logging"
	"github.com/fisaks/mbconsole/internal/mbc"
)

const writeWait = 5 * time.Second

// Hub fans service events out to every connected WebSocket client. All
// writes after the initial greeting happen on the Run goroutine.
type Hub struct {
	upgrader   websocket.Upgrader
	greeting   func() []mbc.Event
	events     chan mbc.Event
	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	doneOnce   sync.Once
}

// NewHub returns a hub that first sends greeting() to each new client.
func NewHub(greeting func() []mbc.Event) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		greeting:   greeting,
		events:     make(chan mbc.Event, 64),
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Publish queues ev for broadcast. Events are dropped when the queue is full.
func (h *Hub) Publish(ev mbc.Event) {
	select {
	case h.events <- ev:
	case <-h.done:
	default:
		logging.Warn("ws hub queue full, dropping event", "type", ev.Type)
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer h.doneOnce.Do(func() { close(h.done) })
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			logging.Debug("ws client connected", "remote", c.RemoteAddr().String(), "clients", len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
		case ev := <-h.events:
			for c := range h.clients {
				_ = c.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.WriteJSON(ev); err != nil {
					logging.Debug("ws write failed", "remote", c.RemoteAddr().String(), "error", err)
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *websocket.Conn) {
	delete(h.clients, c)
	_ = c.Close()
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied
		logging.Debug("ws upgrade failed", "error", err)
		return
	}
	if h.greeting != nil {
		for _, ev := range h.greeting() {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				_ = conn.Close()
				return
			}
		}
	}

	select {
	case h.register <- conn:
	case <-h.done:
		_ = conn.Close()
		return
	}

	// The console never sends; reading only detects the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				select {
				case h.unregister <- conn:
				case <-h.done:
				}
				return
			}
		}
	}()
}
