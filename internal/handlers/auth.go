package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"wizspeak/server/internal/appMiddleware"
	"wizspeak/server/internal/httperr"
	"wizspeak/server/internal/models"
	"wizspeak/server/internal/services"
	"wizspeak/server/internal/utils"
)

type AuthHandler struct {
	users      services.UserService
	compliance services.ComplianceService
	secret     []byte
	tokenTTL   time.Duration
	log        *slog.Logger
}

func NewAuthHandler(users services.UserService, compliance services.ComplianceService, secret []byte, tokenTTL time.Duration, log *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:      users,
		compliance: compliance,
		secret:     secret,
		tokenTTL:   tokenTTL,
		log:        log,
	}
}

type registerRequest struct {
	Username   string  `json:"username"`
	Password   string  `json:"password"`
	Email      *string `json:"email,omitempty"`
	PublicKey  *string `json:"publicKey,omitempty"`
	Role       string  `json:"role,omitempty"`
	Department *string `json:"department,omitempty"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.Validation(w, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		httperr.Validation(w, "username and password are required")
		return
	}
	if len(req.Password) < 8 {
		httperr.Validation(w, "password must be at least 8 characters")
		return
	}
	if req.PublicKey != nil {
		if err := utils.ValidatePublicKey(*req.PublicKey); err != nil {
			httperr.Validation(w, "invalid public key")
			return
		}
	}

	role := models.RoleUser
	if req.Role != "" {
		role = models.Role(req.Role)
		if !role.Valid() {
			httperr.Validation(w, "unknown role")
			return
		}
	}

	user := &models.User{
		Username:   req.Username,
		Email:      req.Email,
		PublicKey:  req.PublicKey,
		Role:       role,
		Department: req.Department,
	}
	id, err := h.users.CreateUser(r.Context(), user, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrUserExists) {
			httperr.Conflict(w, "username already taken")
			return
		}
		h.log.Error("registration failed", "username", req.Username, "error", err)
		httperr.Internal(w, "failed to create user")
		return
	}

	created, err := h.users.GetUserByID(r.Context(), id)
	if err != nil {
		httperr.Internal(w, "failed to load user")
		return
	}

	token, err := appMiddleware.IssueToken(id, h.secret, h.tokenTTL)
	if err != nil {
		httperr.Internal(w, "failed to issue token")
		return
	}

	h.audit(r, id, "user_registered", models.ResourceUser, id)

	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: created})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.Validation(w, "invalid request body")
		return
	}

	user, err := h.users.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		// Same answer for unknown user and bad password.
		httperr.Unauthorized(w, "invalid credentials")
		return
	}
	if err := utils.CheckPasswordHash(req.Password, user.PasswordHash); err != nil {
		httperr.Unauthorized(w, "invalid credentials")
		return
	}

	token, err := appMiddleware.IssueToken(user.ID, h.secret, h.tokenTTL)
	if err != nil {
		httperr.Internal(w, "failed to issue token")
		return
	}

	if err := h.users.UpdateOnlineStatus(r.Context(), user.ID, true); err != nil {
		h.log.Warn("failed to mark user online", "user_id", user.ID, "error", err)
	}
	user.IsOnline = true

	h.audit(r, user.ID, "user_login", models.ResourceUser, user.ID)

	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserID(r.Context())
	if !ok {
		httperr.Unauthorized(w, "authentication required")
		return
	}

	if err := h.users.UpdateOnlineStatus(r.Context(), userID, false); err != nil {
		h.log.Warn("failed to mark user offline", "user_id", userID, "error", err)
	}

	h.audit(r, userID, "user_logout", models.ResourceUser, userID)

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandler) audit(r *http.Request, userID int, eventType, resourceType string, resourceID int) {
	err := h.compliance.RecordAudit(r.Context(), services.AuditEntry{
		EventType:    eventType,
		UserID:       userID,
		ResourceType: &resourceType,
		ResourceID:   &resourceID,
		IP:           clientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.log.Warn("audit write failed", "event_type", eventType, "user_id", userID, "error", err)
	}
}
