package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/StrathCole/pricespread/pkg/logging"
	"github.com/StrathCole/pricespread/pkg/metrics"
	"github.com/StrathCole/pricespread/pkg/server/aggregator"
	"github.com/StrathCole/pricespread/pkg/server/sources"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// WebSocketServer streams spread summaries to connected clients.
type WebSocketServer struct {
	logger   *logging.Logger
	upgrader websocket.Upgrader

	// Client management
	mu      sync.RWMutex
	clients map[*WebSocketClient]bool

	updates chan *aggregator.SpreadSummary

	ctx    context.Context
	cancel context.CancelFunc
}

// WebSocketClient represents a connected WebSocket client.
type WebSocketClient struct {
	conn            *websocket.Conn
	send            chan []byte
	server          *WebSocketServer
	subscribedAll   bool
	subscribedPairs map[string]bool
	excluded        map[string]bool // Opted out while subscribedAll
	mu              sync.RWMutex
}

// WebSocketMessage represents a client message.
type WebSocketMessage struct {
	Type    string   `json:"type"`    // "subscribe", "unsubscribe", "ping"
	Symbols []string `json:"symbols"` // Empty or ["*"] means all
}

// SpreadUpdateMessage is sent to clients.
type SpreadUpdateMessage struct {
	Type      string                    `json:"type"` // "spread_update"
	Timestamp string                    `json:"timestamp"`
	Spread    *aggregator.SpreadSummary `json:"spread"`
}

// NewWebSocketServer creates a stream server and starts its broadcast loop.
func NewWebSocketServer(logger *logging.Logger) *WebSocketServer {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &WebSocketServer{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		clients: make(map[*WebSocketClient]bool),
		updates: make(chan *aggregator.SpreadSummary, 100),
		ctx:     ctx,
		cancel:  cancel,
	}
	go s.broadcastUpdates()
	return s
}

// Stop ends the broadcast loop and disconnects every client.
func (s *WebSocketServer) Stop() {
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		delete(s.clients, client)
		close(client.send)
	}
	metrics.WebSocketClients.Set(0)
}

// SendUpdate queues a summary for broadcast.
func (s *WebSocketServer) SendUpdate(summary *aggregator.SpreadSummary) {
	if summary == nil {
		return
	}
	select {
	case s.updates <- summary:
	case <-s.ctx.Done():
	case <-time.After(100 * time.Millisecond):
		s.logger.Warn("Update channel full, dropping spread update", "symbol", summary.Symbol)
	}
}

// ClientCount returns the number of connected clients.
func (s *WebSocketServer) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ServeHTTP upgrades the connection and registers the client.
func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := &WebSocketClient{
		conn:            conn,
		send:            make(chan []byte, 256),
		server:          s,
		subscribedAll:   true,
		subscribedPairs: make(map[string]bool),
		excluded:        make(map[string]bool),
	}

	if !s.registerClient(client) {
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()

	s.logger.Info("New WebSocket client connected", "remote", conn.RemoteAddr().String())
}

func (s *WebSocketServer) registerClient(client *WebSocketClient) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.clients[client] = true
	metrics.WebSocketClients.Set(float64(len(s.clients)))
	return true
}

func (s *WebSocketServer) unregisterClient(client *WebSocketClient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		close(client.send)
		metrics.WebSocketClients.Set(float64(len(s.clients)))
	}
}

func (s *WebSocketServer) broadcastUpdates() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case summary := <-s.updates:
			s.broadcast(summary)
		}
	}
}

func (s *WebSocketServer) broadcast(summary *aggregator.SpreadSummary) {
	data, err := json.Marshal(SpreadUpdateMessage{
		Type:      "spread_update",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Spread:    summary,
	})
	if err != nil {
		s.logger.Error("Failed to marshal spread update", "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		if client.shouldReceive(summary.Symbol) {
			select {
			case client.send <- data:
			default:
				s.logger.Warn("Client send buffer full, skipping update")
			}
		}
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.server.logger.Debug("Failed to write message", "error", err)
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

func (c *WebSocketClient) readPump() {
	defer func() {
		c.server.unregisterClient(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Error("WebSocket error", "error", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

func (c *WebSocketClient) handleMessage(data []byte) {
	var msg WebSocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.server.logger.Warn("Invalid client message", "error", err)
		return
	}

	switch msg.Type {
	case "subscribe":
		c.subscribe(msg.Symbols)
	case "unsubscribe":
		c.unsubscribe(msg.Symbols)
	case "ping":
		c.reply(map[string]string{"type": "pong"})
	default:
		c.server.logger.Warn("Unknown message type", "type", msg.Type)
	}
}

func (c *WebSocketClient) subscribe(symbols []string) {
	c.mu.Lock()
	if len(symbols) == 0 || (len(symbols) == 1 && symbols[0] == "*") {
		c.subscribedAll = true
		c.subscribedPairs = make(map[string]bool)
		c.excluded = make(map[string]bool)
	} else {
		c.subscribedAll = false
		c.excluded = make(map[string]bool)
		for _, symbol := range symbols {
			c.subscribedPairs[sources.NormalizeSymbol(symbol)] = true
		}
	}
	c.mu.Unlock()

	c.reply(map[string]interface{}{"type": "subscribed", "symbols": symbols})
}

func (c *WebSocketClient) unsubscribe(symbols []string) {
	c.mu.Lock()
	if len(symbols) == 0 || (len(symbols) == 1 && symbols[0] == "*") {
		c.subscribedAll = false
		c.subscribedPairs = make(map[string]bool)
		c.excluded = make(map[string]bool)
	} else {
		for _, symbol := range symbols {
			symbol = sources.NormalizeSymbol(symbol)
			delete(c.subscribedPairs, symbol)
			if c.subscribedAll {
				c.excluded[symbol] = true
			}
		}
	}
	c.mu.Unlock()

	c.reply(map[string]interface{}{"type": "unsubscribed", "symbols": symbols})
}

func (c *WebSocketClient) shouldReceive(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.subscribedAll {
		return !c.excluded[symbol]
	}
	return c.subscribedPairs[symbol]
}

// reply queues a control message. send is closed under the server lock, so
// the client must still be registered while the message is queued.
func (c *WebSocketClient) reply(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}

	c.server.mu.RLock()
	defer c.server.mu.RUnlock()
	if !c.server.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
