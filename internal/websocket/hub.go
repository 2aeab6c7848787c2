package websocket

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vikasavnish/stockmemo/internal/logger"
	"github.com/vikasavnish/stockmemo/internal/realtime"
	"github.com/vikasavnish/stockmemo/internal/utils"
)

// Hub forwards each user's change feed to that user's WebSocket clients
type Hub struct {
	feed realtime.Subscriber
	log  *zap.SugaredLogger

	// Registered clients per user
	mu          sync.Mutex
	connections map[string]map[*websocket.Conn]bool

	// Upgrader for HTTP connections to WebSocket
	upgrader websocket.Upgrader
}

// NewHub creates a new hub for managing WebSocket connections
func NewHub(feed realtime.Subscriber, log *zap.SugaredLogger) *Hub {
	upgrader := websocket.Upgrader{
		// Allow all origins for WebSocket connections
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return &Hub{
		feed:        feed,
		log:         logger.OrNop(log),
		connections: make(map[string]map[*websocket.Conn]bool),
		upgrader:    upgrader,
	}
}

func (h *Hub) register(userID string, ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.connections[userID] == nil {
		h.connections[userID] = make(map[*websocket.Conn]bool)
	}
	h.connections[userID][ws] = true
}

func (h *Hub) unregister(userID string, ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections[userID], ws)
	if len(h.connections[userID]) == 0 {
		delete(h.connections, userID)
	}
}

// ClientCount returns the number of open connections of a user
func (h *Hub) ClientCount(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections[userID])
}

// HandleWebSocket upgrades an authenticated HTTP connection and streams the
// user's changes to it as JSON until either side closes
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := h.feed.Subscribe(ctx, userID)
	if err != nil {
		cancel()
		h.log.Errorf("Error subscribing to changes for %s: %v", userID, err)
		http.Error(w, "Realtime unavailable", http.StatusServiceUnavailable)
		return
	}

	// Upgrade the HTTP connection to a WebSocket connection
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		sub.Close()
		h.log.Warnf("Error upgrading to WebSocket: %v", err)
		return
	}
	h.register(userID, ws)

	// Read messages from the client (to keep the connection alive)
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer func() {
			sub.Close()
			h.unregister(userID, ws)
			ws.Close()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-sub.Changes():
				if !ok {
					return
				}
				if err := ws.WriteJSON(change); err != nil {
					h.log.Warnf("Error sending change to client: %v", err)
					return
				}
			}
		}
	}()
}
