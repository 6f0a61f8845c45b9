package handlers

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"wizspeak/server/internal/appMiddleware"
	"wizspeak/server/internal/models"
	"wizspeak/server/internal/pool"
)

var wsTestSecret = []byte("websocket-test-secret")

type fakeWsConn struct {
	events []pool.Event
	closed bool
}

func (c *fakeWsConn) WriteJSON(v interface{}) error {
	c.events = append(c.events, v.(pool.Event))
	return nil
}

func (c *fakeWsConn) Close() error {
	c.closed = true
	return nil
}

type fakeWsUsers struct {
	users  map[int]*models.User
	online map[int]bool
}

func (f *fakeWsUsers) GetUserByID(_ context.Context, id int) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeWsUsers) UpdateOnlineStatus(_ context.Context, id int, online bool) error {
	f.online[id] = online
	return nil
}

type fakeWsConversations struct {
	// participants per conversation id
	participants map[int][]int
}

func (f *fakeWsConversations) IsParticipant(_ context.Context, conversationID, userID int) (bool, error) {
	for _, id := range f.participants[conversationID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeWsConversations) ParticipantIDs(_ context.Context, conversationID int) ([]int, error) {
	return f.participants[conversationID], nil
}

func newTestWsHandler() (*WebSocketHandler, *fakeWsUsers, *fakeWsConversations) {
	users := &fakeWsUsers{
		users: map[int]*models.User{
			1: {ID: 1, Username: "alice"},
			2: {ID: 2, Username: "bob"},
			3: {ID: 3, Username: "carol"},
		},
		online: make(map[int]bool),
	}
	convs := &fakeWsConversations{
		participants: map[int][]int{10: {1, 2, 3}},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewWebSocketHandler(pool.NewRegistry(log), users, convs, wsTestSecret, log)
	return h, users, convs
}

func wsToken(t *testing.T, userID int) string {
	t.Helper()
	token, err := appMiddleware.IssueToken(userID, wsTestSecret, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func TestAuthSuccessRegistersSession(t *testing.T) {
	h, users, _ := newTestWsHandler()
	conn := &fakeWsConn{}
	s := &session{conn: conn}

	h.handleEvent(context.Background(), s, wsEvent{Type: "auth", Token: wsToken(t, 1)})

	if !s.authed || s.userID != 1 {
		t.Fatalf("session not authenticated: authed=%v userID=%d", s.authed, s.userID)
	}
	if len(conn.events) != 1 || conn.events[0].Type != "auth_success" {
		t.Fatalf("expected auth_success, got %+v", conn.events)
	}
	if !users.online[1] {
		t.Error("user not marked online")
	}
	if _, ok := h.clients.Lookup(1); !ok {
		t.Error("connection not registered")
	}
}

func TestAuthFailureAllowsRetry(t *testing.T) {
	h, _, _ := newTestWsHandler()
	conn := &fakeWsConn{}
	s := &session{conn: conn}

	h.handleEvent(context.Background(), s, wsEvent{Type: "auth", Token: "garbage"})

	if s.authed {
		t.Fatal("session authenticated with a bad token")
	}
	if len(conn.events) != 1 || conn.events[0].Type != "auth_error" {
		t.Fatalf("expected auth_error, got %+v", conn.events)
	}
	if conn.closed {
		t.Error("connection closed after failed auth, retry should be possible")
	}

	// Retry with a valid token on the same session.
	h.handleEvent(context.Background(), s, wsEvent{Type: "auth", Token: wsToken(t, 2)})
	if !s.authed || s.userID != 2 {
		t.Fatal("retry with a valid token did not authenticate")
	}
}

func TestAuthUnknownUserRejected(t *testing.T) {
	h, _, _ := newTestWsHandler()
	conn := &fakeWsConn{}
	s := &session{conn: conn}

	h.handleEvent(context.Background(), s, wsEvent{Type: "auth", Token: wsToken(t, 99)})

	if s.authed {
		t.Fatal("session authenticated for a nonexistent user")
	}
	if len(conn.events) != 1 || conn.events[0].Type != "auth_error" {
		t.Fatalf("expected auth_error, got %+v", conn.events)
	}
}

func TestUnauthenticatedEventsDropped(t *testing.T) {
	h, _, _ := newTestWsHandler()
	conn := &fakeWsConn{}
	s := &session{conn: conn}

	h.handleEvent(context.Background(), s, wsEvent{Type: "typing", ConversationID: 10, IsTyping: true})
	h.handleEvent(context.Background(), s, wsEvent{Type: "call_offer", To: 2})

	if len(conn.events) != 0 {
		t.Fatalf("unauthenticated events produced replies: %+v", conn.events)
	}
}

func TestTypingRelayedToOtherParticipants(t *testing.T) {
	h, _, _ := newTestWsHandler()

	alice := &fakeWsConn{}
	bob := &fakeWsConn{}
	sAlice := &session{conn: alice}
	sBob := &session{conn: bob}
	h.handleEvent(context.Background(), sAlice, wsEvent{Type: "auth", Token: wsToken(t, 1)})
	h.handleEvent(context.Background(), sBob, wsEvent{Type: "auth", Token: wsToken(t, 2)})

	h.handleEvent(context.Background(), sAlice, wsEvent{Type: "typing", ConversationID: 10, IsTyping: true})

	// Bob saw auth_success then typing; Alice only her auth_success.
	if len(bob.events) != 2 || bob.events[1].Type != "typing" {
		t.Fatalf("expected typing at bob, got %+v", bob.events)
	}
	data := bob.events[1].Data.(map[string]interface{})
	if data["userId"] != 1 || data["conversationId"] != 10 || data["isTyping"] != true {
		t.Errorf("unexpected typing data: %+v", data)
	}
	if len(alice.events) != 1 {
		t.Errorf("typing echoed back to the sender: %+v", alice.events)
	}
}

func TestTypingFromNonParticipantDropped(t *testing.T) {
	h, _, convs := newTestWsHandler()
	convs.participants[20] = []int{2, 3}

	alice := &fakeWsConn{}
	bob := &fakeWsConn{}
	sAlice := &session{conn: alice}
	sBob := &session{conn: bob}
	h.handleEvent(context.Background(), sAlice, wsEvent{Type: "auth", Token: wsToken(t, 1)})
	h.handleEvent(context.Background(), sBob, wsEvent{Type: "auth", Token: wsToken(t, 2)})

	h.handleEvent(context.Background(), sAlice, wsEvent{Type: "typing", ConversationID: 20, IsTyping: true})

	if len(bob.events) != 1 {
		t.Fatalf("typing from non-participant was relayed: %+v", bob.events)
	}
}

func TestCallOfferRelayedWithServerFrom(t *testing.T) {
	h, _, _ := newTestWsHandler()

	alice := &fakeWsConn{}
	bob := &fakeWsConn{}
	sAlice := &session{conn: alice}
	sBob := &session{conn: bob}
	h.handleEvent(context.Background(), sAlice, wsEvent{Type: "auth", Token: wsToken(t, 1)})
	h.handleEvent(context.Background(), sBob, wsEvent{Type: "auth", Token: wsToken(t, 2)})

	h.handleEvent(context.Background(), sAlice, wsEvent{
		Type:     "call_offer",
		To:       2,
		CallType: "video",
		Offer:    []byte(`{"sdp":"x"}`),
	})

	if len(bob.events) != 2 || bob.events[1].Type != "call_offer" {
		t.Fatalf("expected call_offer at bob, got %+v", bob.events)
	}
	payload := bob.events[1].Payload.(map[string]interface{})
	if payload["from"] != 1 {
		t.Errorf("from not injected by the server: %+v", payload)
	}
	if payload["to"] != 2 {
		t.Errorf("to missing from relayed payload: %+v", payload)
	}
	if payload["type"] != "video" {
		t.Errorf("call type not relayed: %+v", payload)
	}
}

func TestCallToOfflineTargetDroppedSilently(t *testing.T) {
	h, _, _ := newTestWsHandler()

	alice := &fakeWsConn{}
	sAlice := &session{conn: alice}
	h.handleEvent(context.Background(), sAlice, wsEvent{Type: "auth", Token: wsToken(t, 1)})

	h.handleEvent(context.Background(), sAlice, wsEvent{Type: "call_offer", To: 3, CallType: "audio"})

	// Only the auth_success; no error frame for the offline target.
	if len(alice.events) != 1 {
		t.Fatalf("caller received unexpected frames: %+v", alice.events)
	}
}

func TestTeardownMarksOffline(t *testing.T) {
	h, users, _ := newTestWsHandler()

	conn := &fakeWsConn{}
	s := &session{conn: conn}
	h.handleEvent(context.Background(), s, wsEvent{Type: "auth", Token: wsToken(t, 1)})

	h.teardown(context.Background(), s)

	if users.online[1] {
		t.Error("user still online after teardown")
	}
	if _, ok := h.clients.Lookup(1); ok {
		t.Error("connection still registered after teardown")
	}
	if !conn.closed {
		t.Error("connection not closed")
	}
}

func TestTeardownAfterReplacementKeepsSuccessor(t *testing.T) {
	h, users, _ := newTestWsHandler()

	old := &fakeWsConn{}
	sOld := &session{conn: old}
	h.handleEvent(context.Background(), sOld, wsEvent{Type: "auth", Token: wsToken(t, 1)})

	replacement := &fakeWsConn{}
	sNew := &session{conn: replacement}
	h.handleEvent(context.Background(), sNew, wsEvent{Type: "auth", Token: wsToken(t, 1)})

	h.teardown(context.Background(), sOld)

	if got, ok := h.clients.Lookup(1); !ok || got != replacement {
		t.Fatal("successor connection evicted by the old session's teardown")
	}
	if !users.online[1] {
		t.Error("user marked offline while the successor is still connected")
	}
}
