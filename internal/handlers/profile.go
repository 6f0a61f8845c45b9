package handlers

import (
	"log/slog"
	"net/http"

	"wizspeak/server/internal/appMiddleware"
	"wizspeak/server/internal/httperr"
	"wizspeak/server/internal/services"
)

type ProfileHandler struct {
	users services.UserService
	log   *slog.Logger
}

func NewProfileHandler(users services.UserService, log *slog.Logger) *ProfileHandler {
	return &ProfileHandler{users: users, log: log}
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserID(r.Context())
	if !ok {
		httperr.Unauthorized(w, "authentication required")
		return
	}

	user, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil {
		httperr.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
