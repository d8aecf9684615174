package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ytget/yt-audio/internal/model"
)

// Websocket tuning
const (
	ClientBufferSize    = 64
	BroadcastBufferSize = 256
	WriteTimeout        = 10 * time.Second
	PongTimeout         = 60 * time.Second
	PingInterval        = PongTimeout * 9 / 10
)

// SnapshotFunc returns every known job; it is sent to clients on connect.
type SnapshotFunc func() []model.Job

type client struct {
	conn *websocket.Conn
	send chan []byte

	// baseline holds the UpdatedAt of each job in the client's initial
	// snapshot; older queued updates are not forwarded. Only Run touches it.
	baseline map[string]time.Time
}

// update is one queued job_update
type update struct {
	job  model.Job
	data []byte
}

// Hub fans job updates out to connected websocket clients. Slow clients are
// dropped instead of stalling the broadcaster.
type Hub struct {
	snapshot SnapshotFunc
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]bool

	broadcast  chan update
	register   chan *client
	unregister chan *client
	done       chan struct{}
}

// NewHub creates a hub. Call Run before serving connections.
func NewHub(snapshot SnapshotFunc, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		snapshot: snapshot,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:    make(map[*client]bool),
		broadcast:  make(chan update, BroadcastBufferSize),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.sendInitial(c)
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", "clients", total)
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected", "clients", total)
		case u := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if c.stale(u.job) {
					continue
				}
				select {
				case c.send <- u.data:
				default:
					h.logger.Warn("dropping slow websocket client")
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// JobChanged queues a job_update for every client. It never blocks; when the
// broadcast buffer is full the update is dropped.
func (h *Hub) JobChanged(job model.Job) {
	data, err := encodeUpdate(job)
	if err != nil {
		h.logger.Error("failed to marshal job update", "job_id", job.ID, "error", err)
		return
	}

	select {
	case h.broadcast <- update{job: job, data: data}:
	default:
		h.logger.Warn("websocket broadcast buffer full, dropping update", "job_id", job.ID)
	}
}

// ServeHTTP upgrades the connection, sends the initial job list and streams
// updates until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade to websocket", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, ClientBufferSize)}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// sendInitial queues the initial_jobs snapshot for a registering client.
// It runs on the Run goroutine, so every update broadcast afterwards reaches
// the client after its snapshot.
func (h *Hub) sendInitial(c *client) {
	var jobs []model.Job
	if h.snapshot != nil {
		jobs = h.snapshot()
	}

	c.baseline = make(map[string]time.Time, len(jobs))
	for _, j := range jobs {
		c.baseline[j.ID] = j.UpdatedAt
	}

	initial, err := encodeInitial(jobs)
	if err != nil {
		h.logger.Error("failed to marshal initial jobs", "error", err)
		return
	}
	c.send <- initial
}

// stale reports whether job is not newer than the client's snapshot of it
func (c *client) stale(job model.Job) bool {
	seen, ok := c.baseline[job.ID]
	if !ok {
		return false
	}
	if job.UpdatedAt.After(seen) {
		delete(c.baseline, job.ID)
		return false
	}
	return true
}

// readPump discards client messages and unregisters on disconnect
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(PongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on c.conn
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
