package ws

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

type Hub struct {
	Clients    map[*websocket.Conn]bool
	Register   chan *websocket.Conn
	Unregister chan *websocket.Conn
	Broadcast  chan []byte
	mutex      sync.Mutex

	sessionID string
	dying     <-chan struct{}
	log       *zap.Logger
}

// NewHub builds a hub that serves until dying is closed.
func NewHub(sessionID string, dying <-chan struct{}, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		Clients:    make(map[*websocket.Conn]bool),
		Register:   make(chan *websocket.Conn),
		Unregister: make(chan *websocket.Conn),
		Broadcast:  make(chan []byte, 64),
		sessionID:  sessionID,
		dying:      dying,
		log:        log.Named("ws"),
	}
}

// Publish wraps payload in a typed envelope and queues it for every client.
// Events keep their publish order; once the hub is dying they are dropped.
func (h *Hub) Publish(eventType string, payload interface{}) {
	msg, err := json.Marshal(map[string]interface{}{
		"type":       eventType,
		"session_id": h.sessionID,
		"data":       payload,
	})
	if err != nil {
		h.log.Warn("failed to encode event", zap.String("type", eventType), zap.Error(err))
		return
	}
	select {
	case h.Broadcast <- msg:
	case <-h.dying:
		h.log.Debug("hub stopped, dropping event", zap.String("type", eventType))
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.Clients)
}

// Run serves register, unregister and broadcast until the hub is dying.
func (h *Hub) Run() {
	for {
		select {
		case <-h.dying:
			h.mutex.Lock()
			for conn := range h.Clients {
				conn.Close()
				delete(h.Clients, conn)
			}
			h.mutex.Unlock()
			return

		case conn := <-h.Register:
			h.mutex.Lock()
			h.Clients[conn] = true
			h.mutex.Unlock()
			h.log.Info("new WS client connected")

		case conn := <-h.Unregister:
			h.mutex.Lock()
			if _, ok := h.Clients[conn]; ok {
				delete(h.Clients, conn)
				conn.Close()
			}
			h.mutex.Unlock()

		case message := <-h.Broadcast:
			h.mutex.Lock()
			for conn := range h.Clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close()
					delete(h.Clients, conn)
				}
			}
			h.mutex.Unlock()
		}
	}
}
