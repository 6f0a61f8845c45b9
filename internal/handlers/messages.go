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

type MessageHandler struct {
	messages   services.MessageService
	compliance services.ComplianceService
	log        *slog.Logger
}

func NewMessageHandler(messages services.MessageService, compliance services.ComplianceService, log *slog.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, compliance: compliance, log: log}
}

type sendMessageRequest struct {
	ConversationID         int             `json:"conversationId"`
	Content                string          `json:"content"`
	Type                   string          `json:"type,omitempty"`
	Classification         *string         `json:"classification,omitempty"`
	Priority               string          `json:"priority,omitempty"`
	RequiresAcknowledgment bool            `json:"requiresAcknowledgment,omitempty"`
	Metadata               json.RawMessage `json:"metadata,omitempty"`
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserID(r.Context())
	if !ok {
		httperr.Unauthorized(w, "authentication required")
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.Validation(w, "invalid request body")
		return
	}
	if req.ConversationID == 0 || req.Content == "" {
		httperr.Validation(w, "conversationId and content are required")
		return
	}
	if req.Type == "" {
		req.Type = models.MessageText
	}
	if !models.ValidMessageType(req.Type) {
		httperr.Validation(w, "unknown message type")
		return
	}

	msg, err := h.messages.SendMessage(r.Context(), userID, services.SendMessageInput{
		ConversationID:         req.ConversationID,
		Content:                req.Content,
		Type:                   req.Type,
		Classification:         req.Classification,
		Priority:               req.Priority,
		RequiresAcknowledgment: req.RequiresAcknowledgment,
		Metadata:               req.Metadata,
	})
	if err != nil {
		httperr.FromError(w, err)
		return
	}

	h.logAccess(r, userID, models.ActionCreate, msg.ID)
	h.audit(r, userID, "message_sent", msg.ID)

	writeJSON(w, http.StatusCreated, msg)
}

type editMessageRequest struct {
	Content string `json:"content"`
}

// Edit lets the sender rewrite their own message.
func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserID(r.Context())
	if !ok {
		httperr.Unauthorized(w, "authentication required")
		return
	}
	msgID, ok := urlParamInt(w, r, "id")
	if !ok {
		return
	}

	var req editMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		httperr.Validation(w, "content is required")
		return
	}

	msg, err := h.messages.GetMessage(r.Context(), msgID)
	if err != nil {
		httperr.FromError(w, err)
		return
	}
	if msg.SenderID != userID {
		httperr.Forbidden(w, "only the sender can edit a message")
		return
	}

	if err := h.messages.EditMessage(r.Context(), msgID, req.Content); err != nil {
		httperr.FromError(w, err)
		return
	}

	h.audit(r, userID, "message_edited", msgID)

	updated, err := h.messages.GetMessage(r.Context(), msgID)
	if err != nil {
		httperr.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserID(r.Context())
	if !ok {
		httperr.Unauthorized(w, "authentication required")
		return
	}
	msgID, ok := urlParamInt(w, r, "id")
	if !ok {
		return
	}

	msg, err := h.messages.GetMessage(r.Context(), msgID)
	if err != nil {
		httperr.FromError(w, err)
		return
	}
	if msg.SenderID != userID {
		httperr.Forbidden(w, "only the sender can delete a message")
		return
	}

	if err := h.messages.DeleteMessage(r.Context(), msgID); err != nil {
		httperr.FromError(w, err)
		return
	}

	h.audit(r, userID, "message_deleted", msgID)

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// MarkRead adds the caller to the message's read set. Idempotent.
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserID(r.Context())
	if !ok {
		httperr.Unauthorized(w, "authentication required")
		return
	}
	msgID, ok := urlParamInt(w, r, "id")
	if !ok {
		return
	}

	if err := h.messages.MarkRead(r.Context(), msgID, userID); err != nil {
		httperr.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *MessageHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserID(r.Context())
	if !ok {
		httperr.Unauthorized(w, "authentication required")
		return
	}
	msgID, ok := urlParamInt(w, r, "id")
	if !ok {
		return
	}

	ack, err := h.compliance.AcknowledgeMessage(r.Context(), msgID, userID, clientIP(r), r.UserAgent())
	if err != nil {
		httperr.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (h *MessageHandler) ListAcknowledgments(w http.ResponseWriter, r *http.Request) {
	if _, ok := appMiddleware.UserID(r.Context()); !ok {
		httperr.Unauthorized(w, "authentication required")
		return
	}
	msgID, ok := urlParamInt(w, r, "id")
	if !ok {
		return
	}

	acks, err := h.compliance.ListAcknowledgments(r.Context(), msgID)
	if err != nil {
		httperr.Internal(w, "failed to list acknowledgments")
		return
	}
	if acks == nil {
		acks = []models.MessageAcknowledgment{}
	}
	writeJSON(w, http.StatusOK, acks)
}

func (h *MessageHandler) logAccess(r *http.Request, userID int, action string, messageID int) {
	err := h.compliance.LogAccess(r.Context(), services.AccessEntry{
		UserID:       userID,
		Action:       action,
		ResourceType: models.ResourceMessage,
		ResourceID:   messageID,
		IP:           clientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.log.Warn("access log write failed", "action", action, "message_id", messageID, "error", err)
	}
}

func (h *MessageHandler) audit(r *http.Request, userID int, eventType string, messageID int) {
	resourceType := models.ResourceMessage
	err := h.compliance.RecordAudit(r.Context(), services.AuditEntry{
		EventType:    eventType,
		UserID:       userID,
		ResourceType: &resourceType,
		ResourceID:   &messageID,
		IP:           clientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.log.Warn("audit write failed", "event_type", eventType, "message_id", messageID, "error", err)
	}
}
