package websocket

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// ServiceName identifies this service in every event.
const ServiceName = "idle-clicker"

// Event types.
const (
	TypeStatus    = "status"
	TypeCycle     = "cycle"
	TypeClicked   = "clicked"
	TypeFailSafe  = "failsafe"
	TypeKeepAlive = "keepalive"
	TypePing      = "ping"
	TypePong      = "pong"
)

// Event is the JSON message sent to clients.
type Event struct {
	Service       string    `json:"service"`
	Status        string    `json:"status"`
	PID           int       `json:"pid"`
	Timestamp     time.Time `json:"timestamp"`
	Message       string    `json:"message,omitempty"`
	Type          string    `json:"type,omitempty"`
	IdleSeconds   float64   `json:"idle_seconds,omitempty"`
	TargetRunning bool      `json:"target_running,omitempty"`
	Injections    int       `json:"injections,omitempty"`
}

const bufferSize = 2048

var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, bufferSize))
	},
}

// sendBuffer is how many pending messages a client may queue before it is
// treated as stalled and dropped.
const sendBuffer = 16

// client is one connection. Only its write loop touches the socket for
// writing; everything else queues on send.
type client struct {
	conn      *websocket.Conn
	send      chan string
	closed    chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:   conn,
		send:   make(chan string, sendBuffer),
		closed: make(chan struct{}),
	}
}

// enqueue never blocks. It reports false when the buffer is full.
func (c *client) enqueue(msg string) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// Hub tracks connected clients and the latest status.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	last    Event
	pid     int
	logger  *slog.Logger
}

func NewHub(pid int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		last:    Event{Service: ServiceName, Status: "stopped", PID: pid, Type: TypeStatus},
		pid:     pid,
		logger:  logger,
	}
}

// Publish stamps e, remembers it as the latest status and queues it for every
// client without waiting on any socket. Clients whose queue is full are
// dropped.
func (h *Hub) Publish(e Event) {
	e.Service = ServiceName
	e.PID = h.pid
	e.Timestamp = time.Now()

	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(e); err != nil {
		h.logger.Error("Failed to marshal event to JSON",
			slog.String("error", err.Error()),
			slog.String("type", e.Type))
		return
	}
	msg := buf.String()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = e

	var dropped int
	for c := range h.clients {
		if !c.enqueue(msg) {
			c.close()
			delete(h.clients, c)
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Debug("Dropped stalled WebSocket clients",
			slog.Int("dropped_count", dropped),
			slog.Int("remaining_clients", len(h.clients)))
	}
}

// Last returns the most recently published event.
func (h *Hub) Last() Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// add registers c and queues the latest status as its greeting.
func (h *Hub) add(c *client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}

	hello := h.last
	hello.Type = TypeStatus
	hello.Message = "Connected to service"
	if msg, err := json.Marshal(hello); err == nil {
		c.enqueue(string(msg))
	}
	return len(h.clients)
}

func (h *Hub) remove(c *client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	return len(h.clients)
}

// closeAll disconnects every client.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}
