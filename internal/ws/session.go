package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"messenger-service/internal/chat"
	"messenger-service/internal/directory"
	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/presence"
	"messenger-service/internal/protocol"
	"messenger-service/internal/store"
)

type sessionState int

const (
	stateUnauthenticated sessionState = iota
	stateIdle
	stateViewing
	stateClosed
)

const outboundBuffer = 64

// Session binds one websocket connection to a user identity and translates
// protocol events into router calls. Each physical connection is a fresh
// Session with its own id; a client reconnect is a new join, never a
// resumption.
type Session struct {
	id     string
	conn   *websocket.Conn
	router *chat.Router
	users  directory.UserDirectory

	mu      sync.Mutex
	state   sessionState
	userID  string
	viewing string

	out       chan protocol.ServerEvent
	done      chan struct{}
	closeOnce sync.Once

	// connection metadata for operational events
	ip          string
	deviceID    string
	requestID   string
	traceID     string
	connectedAt time.Time
}

func newSession(conn *websocket.Conn, router *chat.Router, users directory.UserDirectory) *Session {
	return &Session{
		id:          uuid.NewString(),
		conn:        conn,
		router:      router,
		users:       users,
		out:         make(chan protocol.ServerEvent, outboundBuffer),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}
}

func (s *Session) SessionID() string { return s.id }

func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Session) Viewing() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewing
}

var _ presence.Sink = (*Session)(nil)

// Deliver makes a bounded, non-blocking attempt to queue the event for the
// client. A closed or saturated session drops its copy; durable storage
// keeps the message recoverable.
func (s *Session) Deliver(event protocol.ServerEvent) {
	select {
	case <-s.done:
		observability.IncDeliveryDropped()
	case s.out <- event:
	default:
		observability.IncDeliveryDropped()
		zap.L().Warn("session outbound saturated, dropping event",
			zap.String("session_id", s.id),
			zap.String("event", event.Event),
		)
	}
}

// readLoop consumes client frames until the transport fails, then tears the
// session down exactly once.
func (s *Session) readLoop(ctx context.Context) {
	defer s.Close()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				zap.L().Debug("websocket read ended", zap.String("session_id", s.id), zap.Error(err))
			}
			return
		}
		s.dispatch(ctx, data)
	}
}

// writeLoop drains the outbound queue onto the websocket.
func (s *Session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case event := <-s.out:
			payload, err := event.Encode()
			if err != nil {
				zap.L().Error("encode event failed", zap.String("event", event.Event), zap.Error(err))
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				zap.L().Debug("websocket write failed", zap.String("session_id", s.id), zap.Error(err))
				s.Close()
				return
			}
		}
	}
}

// Close unregisters the session and closes the transport. Idempotent under
// abrupt disconnects and racing read/write failures.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		userID := s.userID
		s.state = stateClosed
		s.viewing = ""
		s.mu.Unlock()

		close(s.done)
		if userID != "" {
			s.router.Leave(userID, s.id)
		}
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

// dispatch decodes a frame and applies the event to the session state
// machine. Failures of any single operation reach only this session.
func (s *Session) dispatch(ctx context.Context, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		s.sendError(protocol.ChatErrorPayload{Code: protocol.CodeValidation, Message: "malformed request"})
		return
	}
	observability.IncWSEvent(env.Event)

	switch env.Event {
	case protocol.EventJoin:
		s.handleJoin(env.Payload)
	case protocol.EventLoadMessages:
		s.handleLoadMessages(ctx, env.Payload)
	case protocol.EventLeaveChat:
		s.handleLeaveChat()
	case protocol.EventSendNewMsg:
		s.handleSendNewMsg(ctx, env.Payload)
	case protocol.EventDeleteMsg:
		s.handleDeleteMsg(ctx, env.Payload)
	default:
		s.sendError(protocol.ChatErrorPayload{Code: protocol.CodeValidation, Message: "unknown event"})
	}
}

func (s *Session) handleJoin(raw json.RawMessage) {
	var payload protocol.JoinPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.UserID == "" {
		s.sendError(protocol.ChatErrorPayload{Code: protocol.CodeValidation, Message: "join requires a user id"})
		return
	}

	s.mu.Lock()
	if s.state != stateUnauthenticated {
		alreadyJoined := s.userID == payload.UserID
		s.mu.Unlock()
		if !alreadyJoined {
			s.sendError(protocol.ChatErrorPayload{Code: protocol.CodeValidation, Message: "session already joined"})
		}
		return
	}
	s.state = stateIdle
	s.userID = payload.UserID
	s.mu.Unlock()

	s.router.Join(s)

	// Close may have run between the state change and the registration; its
	// Leave saw nothing to remove, so the registration must not outlive it.
	select {
	case <-s.done:
		s.router.Leave(payload.UserID, s.id)
		return
	default:
	}

	zap.L().Info("session joined",
		zap.String("session_id", s.id),
		zap.String("user_id", payload.UserID),
	)
}

func (s *Session) handleLoadMessages(ctx context.Context, raw json.RawMessage) {
	userID, ok := s.requireJoined()
	if !ok {
		return
	}

	var payload protocol.LoadMessagesPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.MessagesWith == "" {
		s.sendError(protocol.ChatErrorPayload{Code: protocol.CodeValidation, Message: "loadMessages requires a counterpart id"})
		return
	}

	// Mark the conversation open before reading so deliveries racing with
	// the load are scoped correctly.
	s.mu.Lock()
	s.viewing = payload.MessagesWith
	s.state = stateViewing
	s.mu.Unlock()

	messages, err := s.router.Load(ctx, userID, payload.MessagesWith)
	if err != nil {
		if err == store.ErrNoHistory {
			s.Deliver(protocol.ServerEvent{Event: protocol.EventNoChatFound, Payload: struct{}{}})
			return
		}
		s.sendError(chat.ClassifyError(err))
		return
	}

	profile := s.lookupProfile(ctx, payload.MessagesWith)
	s.Deliver(protocol.ServerEvent{
		Event: protocol.EventMessagesLoaded,
		Payload: protocol.MessagesLoadedPayload{
			Chat: protocol.LoadedChat{MessagesWith: profile, Messages: messages},
		},
	})
}

// lookupProfile resolves counterpart display info, degrading to a bare id
// when the directory is unavailable. Profile data is cosmetic; the load
// itself must not fail on it.
func (s *Session) lookupProfile(ctx context.Context, userID string) models.Profile {
	profile, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		zap.L().Warn("profile lookup failed", zap.String("user_id", userID), zap.Error(err))
		return models.Profile{ID: userID}
	}
	return profile
}

func (s *Session) handleLeaveChat() {
	if _, ok := s.requireJoined(); !ok {
		return
	}
	s.mu.Lock()
	s.viewing = ""
	if s.state == stateViewing {
		s.state = stateIdle
	}
	s.mu.Unlock()
}

func (s *Session) handleSendNewMsg(ctx context.Context, raw json.RawMessage) {
	if _, ok := s.requireJoined(); !ok {
		return
	}

	var payload protocol.SendNewMsgPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.MsgSendToUser == "" {
		s.sendError(protocol.ChatErrorPayload{Code: protocol.CodeValidation, Message: "sendNewMsg requires a receiver id"})
		return
	}

	if _, err := s.router.Send(ctx, s, payload.MsgSendToUser, payload.Msg, payload.MediaRef, payload.MediaType); err != nil {
		s.sendError(chat.ClassifyError(err))
	}
}

func (s *Session) handleDeleteMsg(ctx context.Context, raw json.RawMessage) {
	userID, ok := s.requireJoined()
	if !ok {
		return
	}

	var payload protocol.DeleteMsgPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.MessageID == 0 {
		s.sendError(protocol.ChatErrorPayload{Code: protocol.CodeValidation, Message: "deleteMsg requires a message id"})
		return
	}

	if _, err := s.router.Delete(ctx, userID, payload.MessageID); err != nil {
		s.sendError(chat.ClassifyError(err))
	}
}

// requireJoined returns the bound user id, rejecting events that arrive
// before a join.
func (s *Session) requireJoined() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateUnauthenticated || s.state == stateClosed {
		s.sendError(protocol.ChatErrorPayload{Code: protocol.CodeValidation, Message: "join required"})
		return "", false
	}
	return s.userID, true
}

func (s *Session) sendError(payload protocol.ChatErrorPayload) {
	s.Deliver(protocol.ServerEvent{Event: protocol.EventChatError, Payload: payload})
}
