package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"conversation-analyzer/pkg/errors"
	"conversation-analyzer/pkg/metrics"
	"conversation-analyzer/pkg/reporting"
)

var errDropped = errors.New("report stream broadcast channel full")

// ReportStream streams conversation report envelopes to WebSocket clients
type ReportStream struct {
	logger       *logrus.Logger
	upgrader     websocket.Upgrader
	clients      map[*StreamClient]bool
	clientsMu    sync.RWMutex
	register     chan *StreamClient
	unregister   chan *StreamClient
	broadcast    chan *StreamMessage
	stop         chan struct{}
	stopOnce     sync.Once
	running      atomic.Bool
	pingInterval time.Duration
}

// StreamClient represents a connected WebSocket client
type StreamClient struct {
	conn           *websocket.Conn
	send           chan []byte
	stream         *ReportStream
	conversationID string // optional filter
	sessionID      string
	mu             sync.RWMutex
}

// StreamMessage represents a message sent to stream clients
type StreamMessage struct {
	Type           string              `json:"type"`
	ConversationID string              `json:"conversation_id,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
	Data           *reporting.Envelope `json:"data,omitempty"`
	Event          interface{}         `json:"event,omitempty"`
}

// NewReportStream creates a new report stream hub
func NewReportStream(logger *logrus.Logger) *ReportStream {
	return &ReportStream{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     isSameOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients:      make(map[*StreamClient]bool),
		register:     make(chan *StreamClient),
		unregister:   make(chan *StreamClient),
		broadcast:    make(chan *StreamMessage, 256),
		stop:         make(chan struct{}),
		pingInterval: 54 * time.Second,
	}
}

// Start begins the hub's event loop
func (h *ReportStream) Start() {
	if h.running.CompareAndSwap(false, true) {
		go h.run()
	}
}

// Stop closes every client connection and ends the event loop
func (h *ReportStream) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}

// IsRunning reports whether the event loop is active
func (h *ReportStream) IsRunning() bool {
	return h.running.Load()
}

func (h *ReportStream) run() {
	defer h.running.Store(false)

	for {
		select {
		case <-h.stop:
			h.clientsMu.RLock()
			all := make([]*StreamClient, 0, len(h.clients))
			for client := range h.clients {
				all = append(all, client)
			}
			h.clientsMu.RUnlock()
			h.cleanupClients(all)
			return

		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.clientsMu.Unlock()
			metrics.SetWebSocketClients(count)
			h.logger.WithFields(logrus.Fields{
				"session_id":      client.sessionID,
				"conversation_id": client.filter(),
			}).Debug("Report stream client registered")

		case client := <-h.unregister:
			h.cleanupClients([]*StreamClient{client})

		case message := <-h.broadcast:
			if stale := h.broadcastMessage(message); len(stale) > 0 {
				h.cleanupClients(stale)
			}
		}
	}
}

// broadcastMessage queues a message for every client whose filter matches
func (h *ReportStream) broadcastMessage(message *StreamMessage) []*StreamClient {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal report stream message")
		return nil
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	var stale []*StreamClient
	for client := range h.clients {
		if filter := client.filter(); filter != "" && filter != message.ConversationID {
			continue
		}
		select {
		case client.send <- data:
		default:
			stale = append(stale, client)
		}
	}
	return stale
}

// cleanupClients removes clients and closes their send channels
func (h *ReportStream) cleanupClients(clients []*StreamClient) {
	if len(clients) == 0 {
		return
	}

	h.clientsMu.Lock()
	for _, client := range clients {
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			close(client.send)
			h.logger.WithField("session_id", client.sessionID).Debug("Report stream client unregistered")
		}
	}
	count := len(h.clients)
	h.clientsMu.Unlock()
	metrics.SetWebSocketClients(count)
}

// ServeHTTP upgrades the request and registers the client. The optional
// conversation_id query parameter limits the stream to one conversation.
func (h *ReportStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.IsRunning() {
		http.Error(w, "Report stream not running", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}

	client := &StreamClient{
		conn:           conn,
		send:           make(chan []byte, 256),
		stream:         h,
		conversationID: r.URL.Query().Get("conversation_id"),
		sessionID:      uuid.New().String(),
	}

	welcome := &StreamMessage{
		Type:      "connected",
		Timestamp: time.Now().UTC(),
		Event: map[string]interface{}{
			"session_id":      client.sessionID,
			"conversation_id": client.conversationID,
		},
	}
	if data, err := json.Marshal(welcome); err == nil {
		client.send <- data
	}

	select {
	case h.register <- client:
	case <-h.stop:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// OnReport streams a dispatched envelope
func (h *ReportStream) OnReport(_ context.Context, envelope *reporting.Envelope) {
	if envelope == nil || !h.IsRunning() {
		return
	}

	message := &StreamMessage{
		Type:           "report",
		ConversationID: envelope.ConversationID,
		Timestamp:      envelope.GeneratedAt,
		Data:           envelope,
	}

	select {
	case h.broadcast <- message:
		metrics.RecordPublish("websocket", nil)
	default:
		metrics.RecordPublish("websocket", errDropped)
		h.logger.WithField("report_id", envelope.ID).Warn("Report stream broadcast channel full, dropping report")
	}
}

// GetConnectedClients returns the number of connected clients
func (h *ReportStream) GetConnectedClients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (c *StreamClient) filter() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conversationID
}

// queue sends data to a registered client without blocking. The send
// channel is only closed while the hub holds the write lock.
func (c *StreamClient) queue(data []byte) {
	c.stream.clientsMu.RLock()
	defer c.stream.clientsMu.RUnlock()
	if !c.stream.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *StreamClient) readPump() {
	defer func() {
		select {
		case c.stream.unregister <- c:
		case <-c.stream.stop:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.stream.logger.WithError(err).Debug("WebSocket read error")
			}
			return
		}
		c.handleMessage(message)
	}
}

// writePump sends one frame per queued message and keeps the connection alive
func (c *StreamClient) writePump() {
	ticker := time.NewTicker(c.stream.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes subscribe, unsubscribe and ping requests
func (c *StreamClient) handleMessage(message []byte) {
	var msg struct {
		Type           string `json:"type"`
		ConversationID string `json:"conversation_id"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		c.stream.logger.WithError(err).Debug("Failed to parse client message")
		return
	}

	switch msg.Type {
	case "subscribe":
		c.mu.Lock()
		c.conversationID = msg.ConversationID
		c.mu.Unlock()
		c.stream.logger.WithFields(logrus.Fields{
			"session_id":      c.sessionID,
			"conversation_id": msg.ConversationID,
		}).Debug("Client subscribed to conversation")

	case "unsubscribe":
		c.mu.Lock()
		c.conversationID = ""
		c.mu.Unlock()

	case "ping":
		pong := &StreamMessage{Type: "pong", Timestamp: time.Now().UTC()}
		if data, err := json.Marshal(pong); err == nil {
			c.queue(data)
		}

	default:
		c.stream.logger.WithField("type", msg.Type).Debug("Unknown message type from client")
	}
}

// isSameOrigin accepts requests without an Origin header and requests whose
// Origin host matches the request host
func isSameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}
