package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"chatrelay/internal/auth"
	"chatrelay/internal/models"
	"chatrelay/internal/observability"
	"chatrelay/internal/rabbitmq"
	"chatrelay/internal/repositories"
)

// commandTimeout bounds the storage work of a single inbound command. The
// context is detached from the connection so an accepted send still persists
// after the sender disconnects.
const commandTimeout = 10 * time.Second

const lifecycleRoutingKey = "ws_events.connections"

// Handler authenticates incoming websocket connections, registers presence,
// and runs the per-connection dispatch loop over the routing components.
type Handler struct {
	registry  *Registry
	verifier  auth.TokenVerifier
	router    *Router
	receipts  *ReceiptTracker
	reactions *ReactionManager
	deletions *DeletionPropagator
	typing    *TypingRelay
	users     repositories.UserRepository
	publisher rabbitmq.Publisher
	buffer    int
	logger    *zap.Logger
}

// NewHandler wires the connection handler.
func NewHandler(registry *Registry, verifier auth.TokenVerifier, router *Router, receipts *ReceiptTracker,
	reactions *ReactionManager, deletions *DeletionPropagator, typing *TypingRelay,
	users repositories.UserRepository, publisher rabbitmq.Publisher, buffer int, logger *zap.Logger) *Handler {
	return &Handler{
		registry:  registry,
		verifier:  verifier,
		router:    router,
		receipts:  receipts,
		reactions: reactions,
		deletions: deletions,
		typing:    typing,
		users:     users,
		publisher: publisher,
		buffer:    buffer,
		logger:    logger,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates the credential, upgrades the connection, and starts
// the client's pumps. An invalid credential is refused before any event is
// processed or presence is registered.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chatrelay/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := auth.TokenFromRequest(c.Request)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing credential"})
		return
	}

	userID, err := h.verifier.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := NewClient(userID, uuid.NewString(), conn, h.buffer, h.logger)
	h.registry.Register(client)

	requestID := observability.RequestIDFromRequest(c.Request)
	traceID := span.SpanContext().TraceID().String()
	deviceID := observability.DeviceIDFromRequest(c.Request)
	ip := observability.IPFromRequest(c.Request)

	observability.IncWSEvent("ws_connect")
	h.publishLifecycle(ctx, "ws_connect", client, deviceID, ip, requestID, traceID, "")

	go client.WritePump()
	go h.readLoop(client, deviceID, ip, requestID, traceID)
}

// readLoop reads and dispatches inbound frames serially, which is what keeps
// per-sender ordering: a command's persistence and fan-out finish before the
// next frame of the same connection is read.
func (h *Handler) readLoop(client *Client, deviceID, ip, requestID, traceID string) {
	var closeReason string
	defer func() {
		wentOffline := h.registry.Unregister(client)
		client.Close()

		if wentOffline {
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()
			if err := h.users.UpdateLastSeen(ctx, client.UserID); err != nil {
				h.logger.Error("update last seen", zap.Int("user_id", client.UserID), zap.Error(err))
			}
		}

		observability.IncWSEvent("ws_disconnect")
		h.publishLifecycle(context.Background(), "ws_disconnect", client, deviceID, ip, requestID, traceID, closeReason)
	}()

	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}
		h.dispatch(client, payload)
	}
}

// dispatch decodes one frame against the closed command union and routes it.
func (h *Handler) dispatch(client *Client, payload []byte) {
	var cmd models.ClientCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		client.Enqueue(errorEvent("malformed command"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	// Count only known command types; the type string is client-supplied.
	switch cmd.Type {
	case models.CmdTyping, models.CmdSend, models.CmdSeen, models.CmdDelete, models.CmdReact:
		observability.IncWSEvent(cmd.Type)
	}

	switch cmd.Type {
	case models.CmdTyping:
		var typing models.TypingCommand
		if err := decodeStrict(cmd.Payload, &typing); err != nil {
			client.Enqueue(errorEvent("malformed typing payload"))
			return
		}
		h.typing.HandleTyping(client, typing)
	case models.CmdSend:
		var send models.SendCommand
		if err := decodeStrict(cmd.Payload, &send); err != nil {
			client.Enqueue(errorEvent("malformed send payload"))
			return
		}
		h.router.HandleSend(ctx, client, send)
	case models.CmdSeen:
		var seen models.SeenCommand
		if err := decodeStrict(cmd.Payload, &seen); err != nil {
			client.Enqueue(errorEvent("malformed seen payload"))
			return
		}
		h.receipts.HandleSeen(ctx, client, seen)
	case models.CmdDelete:
		var del models.DeleteCommand
		if err := decodeStrict(cmd.Payload, &del); err != nil {
			client.Enqueue(errorEvent("malformed delete payload"))
			return
		}
		h.deletions.HandleDelete(ctx, client, del)
	case models.CmdReact:
		var react models.ReactCommand
		if err := decodeStrict(cmd.Payload, &react); err != nil {
			client.Enqueue(errorEvent("malformed react payload"))
			return
		}
		h.reactions.HandleReact(ctx, client, react)
	default:
		client.Enqueue(errorEvent("unsupported command type"))
	}
}

func (h *Handler) publishLifecycle(ctx context.Context, event string, client *Client, deviceID, ip, requestID, traceID, reason string) {
	if h.publisher == nil {
		return
	}
	envelope := observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       event,
				"conn_id":     client.ConnID,
				"duration_ms": time.Since(client.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   client.UserID,
				"device_id": deviceID,
				"ip":        ip,
			},
		},
	}
	if err := h.publisher.Publish(ctx, lifecycleRoutingKey, envelope, observability.BuildHeaders(requestID, traceID)); err != nil {
		h.logger.Debug("publish lifecycle event", zap.String("event", event), zap.Error(err))
	}
}
