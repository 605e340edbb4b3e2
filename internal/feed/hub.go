// Package feed broadcasts committed ledger events to WebSocket subscribers.
// The hub sits behind a buffered channel so the ledger's synchronous event
// publication never blocks on network I/O; slow clients are dropped rather
// than allowed to stall the stream for everyone else.
package feed

import (
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"nft-market-ledger/internal/domain"
	"nft-market-ledger/internal/ledger"
	"nft-market-ledger/internal/observability"
)

// Config configures hub buffering and connection keepalive behavior.
type Config struct {
	// EventBuffer is the size of the hub's inbound event channel.
	EventBuffer int
	// SendBuffer is the per-client outbound queue size. A client whose
	// queue fills up is disconnected.
	SendBuffer int
	// WriteTimeout is the deadline for writing one message to a client.
	WriteTimeout time.Duration
	// PingInterval is the interval between ping frames.
	PingInterval time.Duration
	// PongTimeout is how long to wait for a pong before the read fails.
	PongTimeout time.Duration
}

// DefaultConfig returns default hub configuration.
func DefaultConfig() Config {
	return Config{
		EventBuffer:  4096,
		SendBuffer:   256,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
	}
}

// Hub fans committed ledger events out to connected WebSocket clients.
type Hub struct {
	cfg      Config
	logger   *log.Logger
	upgrader websocket.Upgrader

	events     chan *domain.Event
	register   chan *client
	unregister chan *client

	done   chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

// client is one connected subscriber.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub. Call Start before registering it as an event sink.
func NewHub(cfg Config, logger *log.Logger) *Hub {
	return &Hub{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		events:     make(chan *domain.Event, cfg.EventBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Compile-time interface check.
var _ ledger.EventSink = (*Hub)(nil)

// Publish queues a committed event for broadcast. It is called under the
// ledger lock and never blocks: if the hub buffer is full the event is
// dropped from the feed (the journal, not the feed, is the durable record).
func (h *Hub) Publish(e *domain.Event) {
	if h.closed.Load() {
		return
	}
	select {
	case h.events <- e:
	default:
		h.logger.Printf("feed buffer full, dropping event seq=%d from broadcast", e.Seq)
	}
}

// Start launches the broadcast loop.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.run()
}

// Stop disconnects all clients and stops the broadcast loop.
func (h *Hub) Stop() {
	if h.closed.Swap(true) {
		return
	}
	close(h.done)
	h.wg.Wait()
}

// run owns the client set. All registration, unregistration, and broadcast
// goes through this loop, so the set needs no lock.
func (h *Hub) run() {
	defer h.wg.Done()

	clients := make(map[string]*client)

	defer func() {
		for _, c := range clients {
			close(c.send)
			c.conn.Close()
		}
	}()

	for {
		select {
		case <-h.done:
			return

		case c := <-h.register:
			clients[c.id] = c
			observability.FeedClientConnected()
			h.logger.Printf("feed client connected: %s (%d total)", c.id, len(clients))

		case c := <-h.unregister:
			if _, ok := clients[c.id]; ok {
				delete(clients, c.id)
				close(c.send)
				observability.FeedClientDisconnected()
				h.logger.Printf("feed client disconnected: %s (%d total)", c.id, len(clients))
			}

		case e := <-h.events:
			payload, err := encodeEvent(e)
			if err != nil {
				h.logger.Printf("encode event seq=%d: %v", e.Seq, err)
				continue
			}
			for id, c := range clients {
				select {
				case c.send <- payload:
					observability.RecordFeedBroadcast()
				default:
					// Client cannot keep up; cut it loose.
					delete(clients, id)
					close(c.send)
					observability.FeedClientDisconnected()
					observability.RecordFeedClientDropped()
					h.logger.Printf("feed client %s too slow, dropped", id)
				}
			}
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and subscribes
// it to the event stream.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.closed.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("feed upgrade: %v", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// writePump drains the client's send queue and keeps the connection alive
// with pings. It exits when the queue is closed by the run loop.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound messages (the feed is one-way) and detects a
// gone client via read errors and missed pongs.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
