package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/common"
	"github.com/ternarybob/dragonfly/internal/interfaces"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope for all WebSocket messages
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// TaskUpdatePayload mirrors task state transitions to connected clients
type TaskUpdatePayload struct {
	TaskID  string `json:"taskId"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	VideoID string `json:"videoId,omitempty"`
}

// DownloadProgressPayload carries integer-percent download progress
type DownloadProgressPayload struct {
	TaskID   string `json:"taskId"`
	Progress int    `json:"progress"`
}

type WebSocketHandler struct {
	logger            arbor.ILogger
	clients           map[*websocket.Conn]string
	clientMutex       map[*websocket.Conn]*sync.Mutex
	mu                sync.RWMutex
	eventService      interfaces.EventService
	progressThrottler *rate.Limiter // Rate limiter for download-progress events
	serverInstanceID  string        // Unique ID generated on startup - clients use to detect server restart
}

func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]string),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		eventService:     eventService,
		serverInstanceID: uuid.New().String(),
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized with server instance ID")

	// Initialize throttlers from config (only if explicitly configured)
	// Nil throttler = no throttling (disabled)
	if config != nil && len(config.ThrottleIntervals) > 0 {
		if intervalStr, ok := config.ThrottleIntervals["download-progress"]; ok {
			if duration, err := time.ParseDuration(intervalStr); err == nil {
				h.progressThrottler = rate.NewLimiter(rate.Every(duration), 1)
				logger.Debug().
					Str("event_type", "download-progress").
					Str("interval", intervalStr).
					Msg("Throttler initialized for download-progress events")
			} else {
				logger.Warn().
					Err(err).
					Str("interval", intervalStr).
					Msg("Failed to parse download-progress throttle interval - throttler disabled")
			}
		}
	}

	if eventService != nil {
		h.subscribeToTaskEvents()
	}

	return h
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	connectionID := uuid.New().String()

	h.mu.Lock()
	h.clients[conn] = connectionID
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	h.sendWelcome(conn, connectionID)

	// Handle client disconnection
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	// Read messages from client (keep connection alive)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// sendWelcome sends the connection handshake to a single client
func (h *WebSocketHandler) sendWelcome(conn *websocket.Conn, connectionID string) {
	msg := WSMessage{
		Type: "welcome",
		Payload: map[string]string{
			"connectionId":     connectionID,
			"serverInstanceId": h.serverInstanceID,
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal welcome message")
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()

	if mutex != nil {
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send welcome message")
		}
	}
}

// Broadcast sends a message to every connected client
func (h *WebSocketHandler) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send message to client")
		}
	}
}

// SendToClient sends a message to a single client by connection ID
func (h *WebSocketHandler) SendToClient(connectionID string, msg WSMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return false
	}

	h.mu.RLock()
	var target *websocket.Conn
	var mutex *sync.Mutex
	for conn, id := range h.clients {
		if id == connectionID {
			target = conn
			mutex = h.clientMutex[conn]
			break
		}
	}
	h.mu.RUnlock()

	if target == nil || mutex == nil {
		return false
	}

	mutex.Lock()
	err = target.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()

	if err != nil {
		h.logger.Warn().Err(err).Str("connection_id", connectionID).Msg("Failed to send message to client")
		return false
	}
	return true
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// subscribeToTaskEvents bridges pipeline events to WebSocket broadcasts
func (h *WebSocketHandler) subscribeToTaskEvents() {
	h.eventService.Subscribe(interfaces.EventTaskUpdate, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			h.logger.Warn().Msg("Invalid task update event payload type")
			return nil
		}

		h.Broadcast(WSMessage{
			Type: "task-update",
			Payload: TaskUpdatePayload{
				TaskID:  getString(payload, "task_id"),
				Status:  getString(payload, "status"),
				Message: getString(payload, "message"),
				VideoID: getString(payload, "video_id"),
			},
		})
		return nil
	})

	h.eventService.Subscribe(interfaces.EventDownloadProgress, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			h.logger.Warn().Msg("Invalid download progress event payload type")
			return nil
		}

		progress := getInt(payload, "progress")

		// Throttle progress events to prevent WebSocket flooding.
		// Terminal 100% always goes out so clients see completion.
		if progress < 100 && h.progressThrottler != nil && !h.progressThrottler.Allow() {
			return nil
		}

		h.Broadcast(WSMessage{
			Type: "download-progress",
			Payload: DownloadProgressPayload{
				TaskID:   getString(payload, "task_id"),
				Progress: progress,
			},
		})
		return nil
	})
}

// Helper functions for safe type conversion from map[string]interface{}
func getString(m map[string]interface{}, key string) string {
	if val, ok := m[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	if val, ok := m[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
