package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-sync-service/internal/observability"
)

// Frame is the wire shape of every server-to-client event.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// InboundFrame is a client-to-server event before dispatch.
type InboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// session is one live connection of one user. Writes are serialized per
// session; gorilla conns do not allow concurrent writers.
type session struct {
	conn *websocket.Conn
	info ConnInfo
	mu   sync.Mutex
}

func (s *session) write(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub tracks live sessions keyed by user, one user holding many
// sessions across devices, and performs the network fan-out.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*session
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{sessions: make(map[string]map[string]*session)}
}

// Add registers a connection under the user.
func (h *Hub) Add(userID string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[userID]; !ok {
		h.sessions[userID] = make(map[string]*session)
	}
	h.sessions[userID][info.ConnID] = &session{conn: conn, info: info}
}

// Remove drops a connection; the user entry disappears with its last
// session.
func (h *Hub) Remove(userID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.sessions[userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.sessions, userID)
		}
	}
}

// SessionCount reports the number of live sessions for a user.
func (h *Hub) SessionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

// ConnectedUserIDs lists every user with at least one live session.
func (h *Hub) ConnectedUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.sessions))
	for userID := range h.sessions {
		ids = append(ids, userID)
	}
	return ids
}

// SendToConnection delivers an event to a single session. Error replies
// use this so that failures are never leaked to other participants.
func (h *Hub) SendToConnection(userID, connID, event string, payload any) {
	h.mu.RLock()
	sess := h.sessions[userID][connID]
	h.mu.RUnlock()
	if sess == nil {
		return
	}

	data, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		log.Printf("frame marshal error: %v", err)
		return
	}
	h.deliver(sess, data)
}

// Broadcast fans an event out to every live session of every listed
// user, optionally excluding one user (typing and read receipts go to
// others only).
func (h *Hub) Broadcast(userIDs []string, excludeUserID, event string, payload any) {
	data, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		log.Printf("frame marshal error: %v", err)
		return
	}

	h.mu.RLock()
	targets := make([]*session, 0, len(userIDs))
	for _, userID := range userIDs {
		if userID == excludeUserID {
			continue
		}
		for _, sess := range h.sessions[userID] {
			targets = append(targets, sess)
		}
	}
	h.mu.RUnlock()

	for _, sess := range targets {
		h.deliver(sess, data)
	}
}

// BroadcastAll sends an event to every connected session, used for
// user_status_change transitions.
func (h *Hub) BroadcastAll(event string, payload any) {
	h.Broadcast(h.ConnectedUserIDs(), "", event, payload)
}

func (h *Hub) deliver(sess *session, payload []byte) {
	if err := sess.write(payload); err != nil {
		log.Printf("websocket write error: %v", err)
		sess.conn.Close()
		h.Remove(sess.info.UserID, sess.info.ConnID)
		h.publishWSError(sess.info, err)
	}
}

func (h *Hub) publishWSError(info ConnInfo, err error) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.connections",
		observability.NewEventEnvelope("ws_events", "ws_error", payload), headers)
	observability.IncWSEvent("ws_error")
}
