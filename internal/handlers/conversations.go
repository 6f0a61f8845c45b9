package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"wizspeak/server/internal/appMiddleware"
	"wizspeak/server/internal/httperr"
	"wizspeak/server/internal/models"
	"wizspeak/server/internal/services"
)

type ConversationHandler struct {
	conversations services.ConversationService
	messages      services.MessageService
	log           *slog.Logger
}

func NewConversationHandler(conversations services.ConversationService, messages services.MessageService, log *slog.Logger) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, messages: messages, log: log}
}

type createConversationRequest struct {
	Name           *string `json:"name,omitempty"`
	ParticipantIDs []int   `json:"participantIds"`
}

func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserID(r.Context())
	if !ok {
		httperr.Unauthorized(w, "authentication required")
		return
	}

	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.Validation(w, "invalid request body")
		return
	}
	if len(req.ParticipantIDs) == 0 {
		httperr.Validation(w, "at least one participant is required")
		return
	}

	conv, err := h.conversations.CreateConversation(r.Context(), userID, req.Name, req.ParticipantIDs)
	if err != nil {
		httperr.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserID(r.Context())
	if !ok {
		httperr.Unauthorized(w, "authentication required")
		return
	}

	convs, err := h.conversations.ListConversations(r.Context(), userID)
	if err != nil {
		h.log.Error("failed to list conversations", "user_id", userID, "error", err)
		httperr.Internal(w, "failed to list conversations")
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserID(r.Context())
	if !ok {
		httperr.Unauthorized(w, "authentication required")
		return
	}
	convID, ok := urlParamInt(w, r, "id")
	if !ok {
		return
	}

	isParticipant, err := h.conversations.IsParticipant(r.Context(), convID, userID)
	if err != nil {
		httperr.Internal(w, "failed to check membership")
		return
	}
	if !isParticipant {
		httperr.Forbidden(w, "not a participant of this conversation")
		return
	}

	conv, err := h.conversations.GetConversation(r.Context(), convID)
	if err != nil {
		httperr.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// ListMessages serves a conversation's history. Membership is checked
// before existence leaks: a non-participant gets 403 whether or not the
// conversation exists.
func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserID(r.Context())
	if !ok {
		httperr.Unauthorized(w, "authentication required")
		return
	}
	convID, ok := urlParamInt(w, r, "id")
	if !ok {
		return
	}

	isParticipant, err := h.conversations.IsParticipant(r.Context(), convID, userID)
	if err != nil {
		httperr.Internal(w, "failed to check membership")
		return
	}
	if !isParticipant {
		httperr.Forbidden(w, "not a participant of this conversation")
		return
	}

	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := parsePositiveInt(q); err == nil {
			limit = n
		}
	}

	msgs, err := h.messages.ListMessages(r.Context(), convID, limit)
	if err != nil {
		h.log.Error("failed to list messages", "conversation_id", convID, "error", err)
		httperr.Internal(w, "failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}
