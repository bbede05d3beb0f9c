package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-sync-service/internal/auth"
	"chat-sync-service/internal/models"
	"chat-sync-service/internal/observability"
	"chat-sync-service/internal/presence"
	"chat-sync-service/internal/protocol"
)

// MessageHandler applies the send_message state machine.
type MessageHandler interface {
	Handle(ctx context.Context, senderID string, env protocol.MessageEnvelope) error
}

// SignalHandler handles the ephemeral typing and read-receipt events.
type SignalHandler interface {
	Typing(ctx context.Context, userID, conversationID string, isTyping bool) error
	MarkRead(ctx context.Context, userID, conversationID string) error
}

// Gateway owns the per-connection lifecycle: authentication, presence
// accounting, the inbound read loop and dispatch to the handlers.
type Gateway struct {
	hub      *Hub
	verifier auth.Verifier
	presence presence.Store
	messages MessageHandler
	signals  SignalHandler
}

// NewGateway constructs a Gateway.
func NewGateway(hub *Hub, verifier auth.Verifier, store presence.Store, messages MessageHandler, signals SignalHandler) *Gateway {
	return &Gateway{hub: hub, verifier: verifier, presence: store, messages: messages, signals: signals}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type conversationRef struct {
	ConversationID string `json:"conversationId"`
}

// Handle upgrades the connection, registers the session and starts the
// read loop.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-sync-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	userID, err := g.validateToken(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	g.hub.Add(userID, conn, info)

	// Presence writes are best-effort; a store hiccup must not block the
	// connection.
	if err := g.presence.AddConnection(ctx, userID, info.ConnID); err != nil {
		log.Printf("presence add failed user=%s: %v", userID, err)
		observability.IncPresenceError()
	}
	g.hub.BroadcastAll(models.EventUserStatusChange, models.StatusEvent{UserID: userID, Status: presence.StatusOnline})

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	g.publishConnEvent(ctx, "ws_connect", info, "", 0)

	go g.readLoop(conn, info)
}

func (g *Gateway) readLoop(conn *websocket.Conn, info ConnInfo) {
	// The read loop outlives the HTTP handler, so it runs on its own
	// context; in-flight handlers finish even after a disconnect.
	ctx := context.Background()
	var closeReason string

	defer func() {
		g.hub.Remove(info.UserID, info.ConnID)
		g.finishDisconnect(ctx, info, closeReason)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				g.publishConnEvent(ctx, "ws_error", info, closeReason, time.Since(info.ConnectedAt).Milliseconds())
			}
			return
		}

		var frame InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			g.sendError(info, protocol.Validation(protocol.MsgInvalidPayload, string(data)))
			continue
		}
		// One task per inbound protocol message.
		go g.dispatch(ctx, info, frame)
	}
}

func (g *Gateway) dispatch(ctx context.Context, info ConnInfo, frame InboundFrame) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("handler panic event=%s user=%s: %v", frame.Event, info.UserID, r)
			observability.IncProtocolMessage(frame.Event, "panic")
			g.sendError(info, protocol.Persistence(protocol.MsgProcessingFailure, nil))
		}
	}()

	var err error
	switch frame.Event {
	case models.EventSendMessage:
		var env protocol.MessageEnvelope
		if uerr := json.Unmarshal(frame.Data, &env); uerr != nil {
			g.sendError(info, protocol.Validation(protocol.MsgInvalidPayload, string(frame.Data)))
			observability.IncProtocolMessage(frame.Event, "invalid")
			return
		}
		err = g.messages.Handle(ctx, info.UserID, env)
	case models.EventTypingStart, models.EventTypingStop:
		var ref conversationRef
		if uerr := json.Unmarshal(frame.Data, &ref); uerr != nil {
			g.sendError(info, protocol.Validation(protocol.MsgInvalidPayload, string(frame.Data)))
			observability.IncProtocolMessage(frame.Event, "invalid")
			return
		}
		err = g.signals.Typing(ctx, info.UserID, ref.ConversationID, frame.Event == models.EventTypingStart)
	case models.EventMarkAsRead:
		var ref conversationRef
		if uerr := json.Unmarshal(frame.Data, &ref); uerr != nil {
			g.sendError(info, protocol.Validation(protocol.MsgInvalidPayload, string(frame.Data)))
			observability.IncProtocolMessage(frame.Event, "invalid")
			return
		}
		err = g.signals.MarkRead(ctx, info.UserID, ref.ConversationID)
	default:
		g.sendError(info, protocol.Validation(protocol.MsgUnknownEvent, frame.Event))
		observability.IncProtocolMessage(frame.Event, "unknown")
		return
	}

	if err != nil {
		g.sendError(info, err)
		observability.IncProtocolMessage(frame.Event, "error")
		return
	}
	observability.IncProtocolMessage(frame.Event, "ok")
}

// sendError surfaces a failure to the originating connection only.
func (g *Gateway) sendError(info ConnInfo, err error) {
	var perr *protocol.Error
	if !errors.As(err, &perr) {
		log.Printf("protocol handler error user=%s: %v", info.UserID, err)
		perr = protocol.Persistence(protocol.MsgProcessingFailure, nil)
	}
	g.hub.SendToConnection(info.UserID, info.ConnID, models.EventError, models.ErrorEvent{Message: perr.Message, Data: perr.Data})
}

func (g *Gateway) finishDisconnect(ctx context.Context, info ConnInfo, closeReason string) {
	offline, err := g.presence.RemoveConnection(ctx, info.UserID, info.ConnID)
	if err != nil {
		log.Printf("presence remove failed user=%s: %v", info.UserID, err)
		observability.IncPresenceError()
	}
	// The atomic removal result, not a racy status re-check, decides
	// whether to announce the offline transition.
	if offline {
		g.hub.BroadcastAll(models.EventUserStatusChange, models.StatusEvent{UserID: info.UserID, Status: presence.StatusOffline})
	}

	observability.DecWSActive()
	observability.IncWSEvent("ws_disconnect")
	g.publishConnEvent(ctx, "ws_disconnect", info, closeReason, time.Since(info.ConnectedAt).Milliseconds())
}

func (g *Gateway) publishConnEvent(ctx context.Context, event string, info ConnInfo, reason string, durationMS int64) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": durationMS,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	_ = observability.PublishEvent(ctx, "ws_events.connections",
		observability.NewEventEnvelope("ws_events", event, payload),
		observability.BuildHeaders(info.RequestID, info.TraceID))
}

func (g *Gateway) validateToken(ctx context.Context, header string) (string, error) {
	parts := strings.Split(header, " ")
	if len(parts) == 2 {
		return g.verifier.Verify(ctx, parts[1])
	}
	return "", errors.New("invalid token")
}
