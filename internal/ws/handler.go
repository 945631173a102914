package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messenger-service/internal/chat"
	"messenger-service/internal/directory"
	"messenger-service/internal/observability"
)

// Handler upgrades chat websocket connections and runs their sessions.
type Handler struct {
	router *chat.Router
	users  directory.UserDirectory
}

// NewHandler constructs a websocket Handler.
func NewHandler(router *chat.Router, users directory.UserDirectory) *Handler {
	return &Handler{router: router, users: users}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  2048,
	WriteBufferSize: 2048,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and starts the session pumps. Identity is
// established by the join event; the gateway has already validated it.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messenger-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	meta := observability.ConnMetaFromRequest(c.Request)
	session := newSession(conn, h.router, h.users)
	session.ip = meta.IP
	session.deviceID = meta.DeviceID
	session.requestID = meta.RequestID
	session.traceID = span.SpanContext().TraceID().String()

	observability.IncWSActive()
	publishLifecycleEvent(ctx, session, "ws_connect", "")

	go session.writeLoop()
	go func() {
		// The session outlives the handshake request; pumps run on the
		// background context.
		session.readLoop(context.Background())
		observability.DecWSActive()
		publishLifecycleEvent(context.Background(), session, "ws_disconnect", "")
	}()
}

func publishLifecycleEvent(ctx context.Context, session *Session, name, reason string) {
	headers := observability.BuildHeaders(session.requestID, session.traceID)
	_ = observability.PublishEvent(ctx, "ws_events.chats", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       name,
				"session_id":  session.id,
				"duration_ms": time.Since(session.connectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   session.UserID(),
				"device_id": session.deviceID,
				"ip":        session.ip,
			},
		},
	}, headers)
}
