// Package telemetry carries structured crawl and compute progress events to
// the process log, connected websocket clients and a local archive.
package telemetry

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Kind classifies a telemetry event.
type Kind string

const (
	KindDispatched Kind = "dispatched"
	KindSucceeded  Kind = "succeeded"
	KindFailed     Kind = "failed"
	KindNoData     Kind = "no_data"
	KindDropped    Kind = "dropped"
	KindDrained    Kind = "drained"
	KindCooldown   Kind = "cooldown"
	KindCompute    Kind = "compute"
)

// Event is one structured progress or error report.
type Event struct {
	Time    time.Time `json:"time"`
	Venue   string    `json:"venue,omitempty"`
	Kind    Kind      `json:"kind"`
	Code    string    `json:"code,omitempty"`
	Period  string    `json:"period,omitempty"`
	Count   int       `json:"count,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Publisher is the sink interface the crawler and analytics callers emit to.
type Publisher interface {
	Publish(event Event)
}

const (
	maxClients    = 64
	pingInterval  = 30 * time.Second
	writeDeadline = 10 * time.Second
)

// Hub fans events out to websocket subscribers, mirrors them to the process
// log and appends them to the archive.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Event
	register   chan *client
	unregister chan *client
	shutdown   chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	archive    *Archive
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub and starts its dispatch loop. The archive may be nil
// when no archive path is configured.
func NewHub(archive *Archive) *Hub {
	h := &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		shutdown:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		archive: archive,
	}
	go h.run()
	return h
}

// Publish records one event. Never blocks the caller: a full broadcast
// buffer drops the websocket copy, the log and archive copies still happen.
func (h *Hub) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	log.Printf("[%s] %s venue=%s code=%s period=%s count=%d %s",
		event.Kind, event.Time.Format("15:04:05"),
		event.Venue, event.Code, event.Period, event.Count, event.Message)

	if h.archive != nil {
		if err := h.archive.Append(event); err != nil {
			log.Printf("telemetry archive append error: %v", err)
		}
	}

	select {
	case h.broadcast <- event:
	default:
	}
}

// Shutdown closes all client connections and stops the dispatch loop.
func (h *Hub) Shutdown() {
	close(h.shutdown)

	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
		c.conn.Close()
	}
	h.clients = make(map[*client]bool)
	h.mu.Unlock()

	if h.archive != nil {
		h.archive.Close()
	}
	log.Println("Telemetry hub shutdown complete")
}

func (h *Hub) run() {
	for {
		select {
		case <-h.shutdown:
			return

		case c := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= maxClients {
				h.mu.Unlock()
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Server at capacity"))
				c.conn.Close()
				continue
			}
			h.clients[c] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("Log stream client connected. Total clients: %d", count)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("Log stream client disconnected. Total clients: %d", count)

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("Error marshaling telemetry event: %v", err)
				continue
			}

			h.mu.Lock()
			var dead []*client
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					dead = append(dead, c)
				}
			}
			for _, c := range dead {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		}
	}
}

// HandleWebSocket upgrades the request and attaches the client to the hub.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	atCapacity := len(h.clients) >= maxClients
	h.mu.RUnlock()
	if atCapacity {
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 256),
	}
	h.register <- c

	go c.writePump()
	go c.readPump(h)
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames; the stream is one-directional.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Log stream read error: %v", err)
			}
			return
		}
	}
}
