// Package realtime streams committed registry changes to WebSocket clients.
//
// Clients connect to /ws and receive every event by default. Sending a
// Subscription message narrows the feed to some event types, some accounts
// or a minimum risk.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mbd888/riskproxy/internal/events"
	"github.com/mbd888/riskproxy/internal/metrics"
)

// normalCloseCodes are WebSocket close codes that indicate an expected disconnect.
var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

// Subscription filters for a client. Empty filters match everything.
type Subscription struct {
	AllEvents  bool     `json:"allEvents"`
	EventTypes []string `json:"eventTypes"`
	Accounts   []string `json:"accounts"` // caller or target
	MinRisk    int      `json:"minRisk"`  // address events only
}

// Client represents a WebSocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex
	sub  Subscription
}

// MaxClients is the maximum number of concurrent WebSocket connections.
const MaxClients = 10000

// Hub manages all WebSocket connections. It is an events.Sink.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *events.Event
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *slog.Logger
	done       chan struct{} // closed when Run exits; prevents upgrade race
	maxClients int
	upgrader   websocket.Upgrader
	origins    []string

	// Stats
	totalEvents  atomic.Int64
	totalClients atomic.Int64
	peakClients  atomic.Int64
	dropped      atomic.Int64
}

// Option configures a Hub.
type Option func(*Hub)

// WithAllowedOrigins accepts browser connections from the given origins in
// addition to the serving host.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Hub) { h.origins = append(h.origins, origins...) }
}

// WithMaxClients overrides MaxClients.
func WithMaxClients(n int) Option {
	return func(h *Hub) { h.maxClients = n }
}

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *events.Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		done:       make(chan struct{}),
		maxClients: MaxClients,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // Allow non-browser clients
	}
	host := r.Host
	if origin == "http://"+host || origin == "https://"+host {
		return true
	}
	return slices.Contains(h.origins, origin) || slices.Contains(h.origins, "*")
}

var _ events.Sink = (*Hub)(nil)

// Publish queues ev for delivery. It never blocks: a full queue drops the
// event.
func (h *Hub) Publish(_ context.Context, ev events.Event) error {
	h.Broadcast(&ev)
	return nil
}

// Close is a no-op; connections are closed when Run's context ends.
func (h *Hub) Close() error { return nil }

// Run owns the client set until ctx ends, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("realtime hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClients(c)
		case ev := <-h.broadcast:
			h.fanOut(ev)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.totalClients.Add(1)
	if int64(n) > h.peakClients.Load() {
		h.peakClients.Store(int64(n))
	}
	h.mu.Unlock()

	metrics.ActiveWebSocketClients.Set(float64(n))
	h.logger.Debug("websocket client connected", "clients", n)
}

// removeClients drops clients still registered and closes their send queues.
func (h *Hub) removeClients(cs ...*Client) {
	h.mu.Lock()
	for _, c := range cs {
		if h.clients[c] {
			delete(h.clients, c)
			close(c.send)
		}
	}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.ActiveWebSocketClients.Set(float64(n))
	h.logger.Debug("websocket clients removed", "removed", len(cs), "clients", n)
}

// fanOut encodes ev once and queues it for every matching client. Clients
// whose queue is full are disconnected.
func (h *Hub) fanOut(ev *events.Event) {
	h.totalEvents.Add(1)
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode event", "event_id", ev.ID, "error", err)
		return
	}

	var lagging []*Client
	h.mu.RLock()
	for c := range h.clients {
		if !shouldSend(c, ev) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			lagging = append(lagging, c)
		}
	}
	h.mu.RUnlock()

	if len(lagging) > 0 {
		h.logger.Warn("disconnecting lagging websocket clients", "count", len(lagging))
		h.removeClients(lagging...)
	}
}

func (h *Hub) closeAll() {
	h.logger.Info("realtime hub stopping, closing client connections")
	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	metrics.ActiveWebSocketClients.Set(0)
}

// shouldSend checks if event matches client's subscription
func shouldSend(client *Client, event *events.Event) bool {
	client.mu.RLock()
	sub := client.sub
	client.mu.RUnlock()

	if sub.AllEvents {
		return true
	}

	if len(sub.EventTypes) > 0 && !slices.Contains(sub.EventTypes, event.Type) {
		return false
	}

	if len(sub.Accounts) > 0 &&
		!slices.Contains(sub.Accounts, event.Caller.String()) &&
		!slices.Contains(sub.Accounts, event.Target.String()) {
		return false
	}

	if sub.MinRisk > 0 && (event.Type == events.AddressCreated || event.Type == events.AddressUpdated) {
		var data struct {
			Risk int `json:"risk"`
		}
		if err := json.Unmarshal(event.Data, &data); err == nil && data.Risk < sub.MinRisk {
			return false
		}
	}

	return true
}

// Broadcast sends an event to all matching clients
func (h *Hub) Broadcast(event *events.Event) {
	select {
	case h.broadcast <- event:
	default:
		h.dropped.Add(1)
		h.logger.Warn("broadcast channel full, dropping event", "event_id", event.ID)
	}
}

// Stats returns hub statistics
func (h *Hub) Stats() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]any{
		"connectedClients": len(h.clients),
		"totalEvents":      h.totalEvents.Load(),
		"totalClients":     h.totalClients.Load(),
		"peakClients":      h.peakClients.Load(),
		"droppedEvents":    h.dropped.Load(),
	}
}

// HandleWebSocket upgrades HTTP to WebSocket
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Reject upgrades after the hub has stopped to prevent orphaned connections.
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n >= h.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true}, // Default: all events
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump reads subscription updates from the client
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		var sub Subscription
		if err := json.Unmarshal(message, &sub); err == nil {
			c.mu.Lock()
			c.sub = sub
			c.mu.Unlock()
		}
	}
}

// writePump writes messages to WebSocket
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Warn("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}
