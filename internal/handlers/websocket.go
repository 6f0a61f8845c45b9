package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"wizspeak/server/internal/appMiddleware"
	"wizspeak/server/internal/models"
	"wizspeak/server/internal/pool"
)

// Narrow views of the services the websocket loop needs; tests
// substitute fakes.
type wsUserService interface {
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	UpdateOnlineStatus(ctx context.Context, id int, online bool) error
}

type wsConversationService interface {
	IsParticipant(ctx context.Context, conversationID, userID int) (bool, error)
	ParticipantIDs(ctx context.Context, conversationID int) ([]int, error)
}

// wsEvent is the client-to-server frame. Field names follow the wire
// protocol, which is camelCase.
type wsEvent struct {
	Type           string          `json:"type"`
	Token          string          `json:"token,omitempty"`
	ConversationID int             `json:"conversationId,omitempty"`
	IsTyping       bool            `json:"isTyping,omitempty"`
	To             int             `json:"to,omitempty"`
	CallType       string          `json:"callType,omitempty"`
	Offer          json.RawMessage `json:"offer,omitempty"`
	Answer         json.RawMessage `json:"answer,omitempty"`
	Candidate      json.RawMessage `json:"candidate,omitempty"`
}

// session is one websocket connection's state. A session starts
// unauthenticated; every event except auth is dropped until a valid token
// arrives.
type session struct {
	conn   pool.Conn
	userID int
	authed bool
}

type WebSocketHandler struct {
	upgrader      websocket.Upgrader
	clients       *pool.Registry
	users         wsUserService
	conversations wsConversationService
	secret        []byte
	log           *slog.Logger
}

func NewWebSocketHandler(clients *pool.Registry, users wsUserService, conversations wsConversationService, secret []byte, log *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:       clients,
		users:         users,
		conversations: conversations,
		secret:        secret,
		log:           log,
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	appMiddleware.WebsocketConnections.Inc()
	defer appMiddleware.WebsocketConnections.Dec()

	s := &session{conn: conn}
	defer h.teardown(r.Context(), s)

	for {
		var ev wsEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket closed unexpectedly", "user_id", s.userID, "error", err)
			}
			return
		}
		h.handleEvent(r.Context(), s, ev)
	}
}

// teardown unregisters the session and flips presence off. The registry
// ignores the call when the session was replaced by a newer connection.
func (h *WebSocketHandler) teardown(ctx context.Context, s *session) {
	s.conn.Close()
	if !s.authed {
		return
	}
	h.clients.Unregister(s.userID, s.conn)
	if _, stillOnline := h.clients.Lookup(s.userID); !stillOnline {
		if err := h.users.UpdateOnlineStatus(ctx, s.userID, false); err != nil {
			h.log.Warn("failed to mark user offline", "user_id", s.userID, "error", err)
		}
	}
}

// handleEvent advances the session state machine. Events on an
// unauthenticated session other than auth are dropped without a reply;
// a failed auth attempt does not close the connection, the client may
// retry with a fresh token.
func (h *WebSocketHandler) handleEvent(ctx context.Context, s *session, ev wsEvent) {
	if ev.Type == "auth" {
		h.handleAuth(ctx, s, ev)
		return
	}
	if !s.authed {
		return
	}

	switch ev.Type {
	case "typing":
		h.handleTyping(ctx, s, ev)
	case "call_offer", "call_answer", "ice_candidate", "call_ended", "call_rejected":
		h.relayCall(s, ev)
	default:
		h.log.Debug("unknown websocket event", "type", ev.Type, "user_id", s.userID)
	}
}

func (h *WebSocketHandler) handleAuth(ctx context.Context, s *session, ev wsEvent) {
	userID, err := appMiddleware.ParseToken(ev.Token, h.secret)
	if err != nil {
		_ = s.conn.WriteJSON(pool.Event{Type: "auth_error", Message: "invalid token"})
		return
	}

	user, err := h.users.GetUserByID(ctx, userID)
	if err != nil {
		_ = s.conn.WriteJSON(pool.Event{Type: "auth_error", Message: "unknown user"})
		return
	}

	s.userID = userID
	s.authed = true
	h.clients.Register(userID, s.conn)
	if err := h.users.UpdateOnlineStatus(ctx, userID, true); err != nil {
		h.log.Warn("failed to mark user online", "user_id", userID, "error", err)
	}

	_ = s.conn.WriteJSON(pool.Event{Type: "auth_success", Data: user})
	h.log.Info("websocket authenticated", "user_id", userID)
}

// handleTyping relays a typing indicator to the other participants. The
// sender must belong to the conversation; indicators are ephemeral and
// never persisted.
func (h *WebSocketHandler) handleTyping(ctx context.Context, s *session, ev wsEvent) {
	isParticipant, err := h.conversations.IsParticipant(ctx, ev.ConversationID, s.userID)
	if err != nil || !isParticipant {
		return
	}

	ids, err := h.conversations.ParticipantIDs(ctx, ev.ConversationID)
	if err != nil {
		return
	}
	targets := make([]int, 0, len(ids))
	for _, id := range ids {
		if id != s.userID {
			targets = append(targets, id)
		}
	}

	h.clients.SendTo(targets, pool.Event{
		Type: "typing",
		Data: map[string]interface{}{
			"userId":         s.userID,
			"conversationId": ev.ConversationID,
			"isTyping":       ev.IsTyping,
		},
	})
}

// relayCall forwards call signaling to the target user. The sender
// identity is injected server side so a client cannot spoof "from". An
// offline target is a silent drop; call setup failure surfaces through
// WebRTC timeouts on the caller.
func (h *WebSocketHandler) relayCall(s *session, ev wsEvent) {
	if ev.To == 0 || ev.To == s.userID {
		return
	}

	payload := map[string]interface{}{"from": s.userID, "to": ev.To}
	if ev.CallType != "" {
		payload["type"] = ev.CallType
	}
	if len(ev.Offer) > 0 {
		payload["offer"] = ev.Offer
	}
	if len(ev.Answer) > 0 {
		payload["answer"] = ev.Answer
	}
	if len(ev.Candidate) > 0 {
		payload["candidate"] = ev.Candidate
	}

	h.clients.SendTo([]int{ev.To}, pool.Event{Type: ev.Type, Payload: payload})
}
