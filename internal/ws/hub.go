// Package ws fans server events out to websocket subscribers.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sujalbistaa/feedsync/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is checked by the CORS layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub owns the set of connected subscribers. Send on Broadcast to reach
// all of them.
type Hub struct {
	Broadcast  chan []byte
	register   chan *subscriber
	unregister chan *subscriber
	clients    map[*subscriber]struct{}
	count      chan int
	done       chan struct{}
	logger     *zap.Logger
}

type subscriber struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub returns a hub. Call Run before serving connections.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		Broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		clients:    make(map[*subscriber]struct{}),
		count:      make(chan int),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves the hub until ctx is done, then closes every subscriber.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for s := range h.clients {
				delete(h.clients, s)
				close(s.send)
			}
			return
		case s := <-h.register:
			h.clients[s] = struct{}{}
		case s := <-h.unregister:
			if _, ok := h.clients[s]; ok {
				delete(h.clients, s)
				close(s.send)
			}
		case msg := <-h.Broadcast:
			for s := range h.clients {
				select {
				case s.send <- msg:
				default:
					// Slow subscriber; drop it rather than block the hub.
					delete(h.clients, s)
					close(s.send)
				}
			}
		case h.count <- len(h.clients):
		}
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	select {
	case n := <-h.count:
		return n
	case <-h.done:
		return 0
	}
}

// Publish encodes an event and queues it for every subscriber. It does not
// block when the queue is full.
func (h *Hub) Publish(eventType string, data any) {
	msg, err := json.Marshal(models.Event{Type: eventType, Data: data})
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("type", eventType), zap.Error(err))
		return
	}
	select {
	case h.Broadcast <- msg:
	default:
		h.logger.Warn("event dropped, broadcast queue full", zap.String("type", eventType))
	}
}

// ServeWs upgrades the request and registers the connection.
func ServeWs(h *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	s := &subscriber{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- s:
	case <-h.done:
		conn.Close()
		return
	}

	go s.writePump()
	go s.readPump()
}

// readPump only drains control frames; subscribers do not send events.
func (s *subscriber) readPump() {
	defer func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
		s.conn.Close()
	}()
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
