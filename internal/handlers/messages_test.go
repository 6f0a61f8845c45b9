package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"wizspeak/server/internal/appMiddleware"
	"wizspeak/server/internal/models"
	"wizspeak/server/internal/services"
)

type fakeMessageService struct {
	messages map[int]*models.Message
	// members maps conversation id to its participant user ids.
	members map[int][]int
	sent    []services.SendMessageInput
	deleted []int
	reads   []int
}

func (f *fakeMessageService) SendMessage(_ context.Context, senderID int, in services.SendMessageInput) (*models.Message, error) {
	f.sent = append(f.sent, in)
	return &models.Message{
		ID:             100,
		ConversationID: in.ConversationID,
		SenderID:       senderID,
		Content:        in.Content,
		Type:           in.Type,
		ReadBy:         []int{senderID},
	}, nil
}

func (f *fakeMessageService) GetMessage(_ context.Context, id int) (*models.Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return nil, models.ErrMessageNotFound
	}
	return m, nil
}

func (f *fakeMessageService) EditMessage(_ context.Context, id int, content string) error {
	m, ok := f.messages[id]
	if !ok {
		return models.ErrMessageNotFound
	}
	m.Content = content
	m.IsEdited = true
	return nil
}

func (f *fakeMessageService) DeleteMessage(_ context.Context, id int) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeMessageService) ListMessages(context.Context, int, int) ([]models.Message, error) {
	return nil, nil
}

func (f *fakeMessageService) MarkRead(_ context.Context, messageID, userID int) error {
	m, ok := f.messages[messageID]
	if !ok {
		return models.ErrMessageNotFound
	}
	for _, id := range f.members[m.ConversationID] {
		if id == userID {
			f.reads = append(f.reads, messageID)
			return nil
		}
	}
	return models.ErrNotParticipant
}

type fakeComplianceService struct {
	services.ComplianceService
	audits []services.AuditEntry
	access []services.AccessEntry
	ackErr error
	acks   []int
}

func (f *fakeComplianceService) RecordAudit(_ context.Context, e services.AuditEntry) error {
	f.audits = append(f.audits, e)
	return nil
}

func (f *fakeComplianceService) LogAccess(_ context.Context, e services.AccessEntry) error {
	f.access = append(f.access, e)
	return nil
}

func (f *fakeComplianceService) AcknowledgeMessage(_ context.Context, messageID, userID int, _, _ string) (*models.MessageAcknowledgment, error) {
	if f.ackErr != nil {
		return nil, f.ackErr
	}
	f.acks = append(f.acks, messageID)
	return &models.MessageAcknowledgment{ID: 1, MessageID: messageID, UserID: userID}, nil
}

func messageTestRouter(msgs *fakeMessageService, comp *fakeComplianceService, userID int) http.Handler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewMessageHandler(msgs, comp, log)

	r := chi.NewRouter()
	r.Use(fakeAuth(userID))
	r.Post("/api/messages", h.Send)
	r.Put("/api/messages/{id}", h.Edit)
	r.Delete("/api/messages/{id}", h.Delete)
	r.Post("/api/messages/{id}/read", h.MarkRead)
	r.Post("/api/messages/{id}/acknowledge", h.Acknowledge)
	return r
}

// fakeAuth injects a user id the way the auth middleware does after
// validating a token.
func fakeAuth(userID int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(appMiddleware.WithUserID(r.Context(), userID)))
		})
	}
}

func TestSendMessage(t *testing.T) {
	msgs := &fakeMessageService{messages: map[int]*models.Message{}}
	comp := &fakeComplianceService{}
	router := messageTestRouter(msgs, comp, 1)

	body := `{"conversationId": 10, "content": "hello"}`
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	raw := rec.Body.String()
	// The wire format is camelCase end to end.
	if !strings.Contains(raw, `"conversationId"`) || !strings.Contains(raw, `"senderId"`) {
		t.Errorf("response not camelCase: %s", raw)
	}
	if strings.Contains(raw, `"conversation_id"`) || strings.Contains(raw, `"sender_id"`) {
		t.Errorf("snake_case leaked into the response: %s", raw)
	}

	var got models.Message
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.SenderID != 1 || got.Content != "hello" || got.Type != models.MessageText {
		t.Errorf("unexpected message: %+v", got)
	}
	if len(comp.audits) != 1 || comp.audits[0].EventType != "message_sent" {
		t.Errorf("expected message_sent audit, got %+v", comp.audits)
	}
	if len(comp.access) != 1 || comp.access[0].Action != models.ActionCreate {
		t.Errorf("expected create access log, got %+v", comp.access)
	}
}

func TestSendMessageValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"missing content", `{"conversationId": 10}`},
		{"missing conversation", `{"content": "hi"}`},
		{"bad type", `{"conversationId": 10, "content": "hi", "type": "hologram"}`},
		{"malformed json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := &fakeMessageService{messages: map[int]*models.Message{}}
			router := messageTestRouter(msgs, &fakeComplianceService{}, 1)

			req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if len(msgs.sent) != 0 {
				t.Error("invalid request reached the service")
			}
		})
	}
}

func TestEditMessageSenderOnly(t *testing.T) {
	msgs := &fakeMessageService{messages: map[int]*models.Message{
		5: {ID: 5, SenderID: 2, Content: "original"},
	}}
	router := messageTestRouter(msgs, &fakeComplianceService{}, 1)

	req := httptest.NewRequest(http.MethodPut, "/api/messages/5", strings.NewReader(`{"content":"hijack"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if msgs.messages[5].Content != "original" {
		t.Error("message edited by a non-sender")
	}
}

func TestDeleteMessageSenderOnly(t *testing.T) {
	msgs := &fakeMessageService{messages: map[int]*models.Message{
		5: {ID: 5, SenderID: 2, Content: "keep me"},
	}}
	router := messageTestRouter(msgs, &fakeComplianceService{}, 1)

	req := httptest.NewRequest(http.MethodDelete, "/api/messages/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if len(msgs.deleted) != 0 {
		t.Error("message deleted by a non-sender")
	}
}

func TestDeleteMessageBySender(t *testing.T) {
	msgs := &fakeMessageService{messages: map[int]*models.Message{
		5: {ID: 5, SenderID: 1, Content: "mine"},
	}}
	comp := &fakeComplianceService{}
	router := messageTestRouter(msgs, comp, 1)

	req := httptest.NewRequest(http.MethodDelete, "/api/messages/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(msgs.deleted) != 1 || msgs.deleted[0] != 5 {
		t.Errorf("delete not forwarded to the service: %+v", msgs.deleted)
	}
	if len(comp.audits) != 1 || comp.audits[0].EventType != "message_deleted" {
		t.Errorf("expected message_deleted audit, got %+v", comp.audits)
	}
}

func TestMarkReadByParticipant(t *testing.T) {
	msgs := &fakeMessageService{
		messages: map[int]*models.Message{5: {ID: 5, ConversationID: 10, SenderID: 2}},
		members:  map[int][]int{10: {1, 2}},
	}
	router := messageTestRouter(msgs, &fakeComplianceService{}, 1)

	req := httptest.NewRequest(http.MethodPost, "/api/messages/5/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(msgs.reads) != 1 || msgs.reads[0] != 5 {
		t.Errorf("read not recorded: %+v", msgs.reads)
	}
}

func TestMarkReadByOutsider(t *testing.T) {
	msgs := &fakeMessageService{
		messages: map[int]*models.Message{5: {ID: 5, ConversationID: 10, SenderID: 2}},
		members:  map[int][]int{10: {2, 3}},
	}
	router := messageTestRouter(msgs, &fakeComplianceService{}, 1)

	req := httptest.NewRequest(http.MethodPost, "/api/messages/5/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if len(msgs.reads) != 0 {
		t.Error("non-participant marked a message read")
	}
}

func TestAcknowledgeMessage(t *testing.T) {
	msgs := &fakeMessageService{messages: map[int]*models.Message{}}
	comp := &fakeComplianceService{}
	router := messageTestRouter(msgs, comp, 1)

	req := httptest.NewRequest(http.MethodPost, "/api/messages/7/acknowledge", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got models.MessageAcknowledgment
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.MessageID != 7 || got.UserID != 1 {
		t.Errorf("unexpected acknowledgment: %+v", got)
	}
	if len(comp.acks) != 1 || comp.acks[0] != 7 {
		t.Errorf("acknowledgment not recorded: %+v", comp.acks)
	}
}

func TestAcknowledgeMissingMessage(t *testing.T) {
	msgs := &fakeMessageService{messages: map[int]*models.Message{}}
	comp := &fakeComplianceService{ackErr: models.ErrMessageNotFound}
	router := messageTestRouter(msgs, comp, 1)

	req := httptest.NewRequest(http.MethodPost, "/api/messages/404/acknowledge", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
