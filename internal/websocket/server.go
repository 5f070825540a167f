// Package websocket broadcasts flight-update events to connected clients.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/skyfleet/flightsync/internal/flight"
	"github.com/skyfleet/flightsync/pkg/logger"
)

// Message types sent to clients
const (
	MessageTypeFlightsUpdated = "flights_updated"
	MessageTypeShadowsUpdated = "shadows_updated"
)

// Message represents a WebSocket message
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Client represents one connected WebSocket client
type Client struct {
	conn   *websocket.Conn
	send   chan *Message
	server *Server
	mu     sync.Mutex
	closed bool
}

// Server is the broadcast hub for flight-update events
type Server struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	stopCh     chan struct{}
	stopOnce   sync.Once
	upgrader   websocket.Upgrader
	logger     *logger.Logger
	mu         sync.RWMutex
}

// NewServer creates a new WebSocket server
func NewServer(log *logger.Logger) *Server {
	return &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 64),
		stopCh:     make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: log.Named("websocket"),
	}
}

// Run drives the hub until Stop is called. Intended to run on its own
// goroutine.
func (s *Server) Run() {
	s.logger.Info("Starting WebSocket server")

	for {
		select {
		case <-s.stopCh:
			s.closeAll()
			return

		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client registered", logger.Int("client_count", clientCount))

		case client := <-s.unregister:
			s.removeClient(client)

		case message := <-s.broadcast:
			s.mu.RLock()
			var stale []*Client
			for client := range s.clients {
				select {
				case client.send <- message:
				default:
					// Send buffer full, the client is too slow to keep.
					stale = append(stale, client)
				}
			}
			s.mu.RUnlock()

			for _, client := range stale {
				s.removeClient(client)
			}
		}
	}
}

// Stop shuts the hub down and disconnects every client
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Server) removeClient(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client]; !ok {
		return
	}
	delete(s.clients, client)

	client.mu.Lock()
	if !client.closed {
		client.closed = true
		close(client.send)
	}
	client.mu.Unlock()

	s.logger.Debug("Client unregistered", logger.Int("client_count", len(s.clients)))
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		client.mu.Lock()
		if !client.closed {
			client.closed = true
			close(client.send)
		}
		client.mu.Unlock()
		delete(s.clients, client)
	}
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// HandleConnection upgrades an HTTP request and attaches the client to
// the hub
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			logger.Error(err),
			logger.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan *Message, 256),
		server: s,
	}

	select {
	case s.register <- client:
	case <-s.stopCh:
		conn.Close()
		return
	}

	go client.readPump()
	go client.writePump()
}

// Broadcast queues a message for every connected client
func (s *Server) Broadcast(message *Message) {
	select {
	case s.broadcast <- message:
	case <-s.stopCh:
	}
}

// FlightsUpdated broadcasts the rows a reconciliation pass just wrote.
// Owned and shadow rows go out as separate event types so clients can
// treat reference traffic differently.
func (s *Server) FlightsUpdated(ctx context.Context, flights []*flight.Flight) {
	var owned, shadows []*flight.Flight
	for _, f := range flights {
		if f.UserID != nil {
			owned = append(owned, f)
		} else {
			shadows = append(shadows, f)
		}
	}

	if len(owned) > 0 {
		s.Broadcast(&Message{
			Type: MessageTypeFlightsUpdated,
			Data: map[string]any{"flights": owned},
		})
	}
	if len(shadows) > 0 {
		s.Broadcast(&Message{
			Type: MessageTypeShadowsUpdated,
			Data: map[string]any{"flights": shadows},
		})
	}
}

// readPump drains the connection until the client goes away
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.stopCh:
		}
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Error("WebSocket read error", logger.Error(err))
			}
			return
		}
		// Inbound messages carry no meaning for this feed.
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		data, err := json.Marshal(message)
		if err != nil {
			c.server.logger.Error("Failed to marshal message", logger.Error(err))
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}

	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
