package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"wizspeak/server/internal/appMiddleware"
	"wizspeak/server/internal/httperr"
	"wizspeak/server/internal/models"
	"wizspeak/server/internal/services"
)

type FileHandler struct {
	files         services.FileService
	compliance    services.ComplianceService
	maxUploadSize int64
	shareBaseURL  string
	log           *slog.Logger
}

func NewFileHandler(files services.FileService, compliance services.ComplianceService, maxUploadSize int64, shareBaseURL string, log *slog.Logger) *FileHandler {
	return &FileHandler{
		files:         files,
		compliance:    compliance,
		maxUploadSize: maxUploadSize,
		shareBaseURL:  shareBaseURL,
		log:           log,
	}
}

// Upload accepts multipart form data: the ciphertext under "file" plus the
// wrapped key and IV as form fields. The server stores what it is given
// and never sees plaintext.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserID(r.Context())
	if !ok {
		httperr.Unauthorized(w, "authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		httperr.Validation(w, "invalid multipart form or file too large")
		return
	}

	encryptedKey := r.FormValue("encryptedKey")
	iv := r.FormValue("iv")
	if encryptedKey == "" || iv == "" {
		httperr.Validation(w, "encryptedKey and iv are required")
		return
	}

	part, header, err := r.FormFile("file")
	if err != nil {
		httperr.Validation(w, "file field is required")
		return
	}
	defer part.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	file, err := h.files.Upload(r.Context(), services.UploadInput{
		OriginalName: header.Filename,
		MimeType:     mimeType,
		EncryptedKey: encryptedKey,
		IV:           iv,
		UploadedBy:   userID,
		Body:         part,
	})
	if err != nil {
		h.log.Error("upload failed", "user_id", userID, "error", err)
		httperr.Internal(w, "failed to store file")
		return
	}

	h.logFileAccess(r, file.ID, nil, &userID, models.ActionCreate, nil)
	h.logAccess(r, userID, models.ActionCreate, file.ID)

	writeJSON(w, http.StatusCreated, file)
}

func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserID(r.Context())
	if !ok {
		httperr.Unauthorized(w, "authentication required")
		return
	}

	files, err := h.files.ListUserFiles(r.Context(), userID)
	if err != nil {
		httperr.Internal(w, "failed to list files")
		return
	}
	if files == nil {
		files = []models.File{}
	}
	writeJSON(w, http.StatusOK, files)
}

// Download serves a file the caller owns. The key material travels in
// response headers so the body stays pure ciphertext.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserID(r.Context())
	if !ok {
		httperr.Unauthorized(w, "authentication required")
		return
	}
	fileID, ok := urlParamInt(w, r, "id")
	if !ok {
		return
	}

	file, err := h.files.GetFile(r.Context(), fileID)
	if err != nil {
		httperr.FromError(w, err)
		return
	}
	if file.UploadedBy != userID {
		httperr.Forbidden(w, "not the owner of this file")
		return
	}

	h.serveBlob(w, r, file, nil, &userID)
}

type createShareRequest struct {
	CanView      *bool      `json:"canView,omitempty"`
	CanDownload  *bool      `json:"canDownload,omitempty"`
	CanShare     bool       `json:"canShare,omitempty"`
	RequiresAuth *bool      `json:"requiresAuth,omitempty"`
	MaxViews     *int       `json:"maxViews,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	ShareMessage *string    `json:"shareMessage,omitempty"`
}

type shareResponse struct {
	*models.FileShare
	ShareURL string `json:"shareUrl"`
}

func (h *FileHandler) CreateShare(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserID(r.Context())
	if !ok {
		httperr.Unauthorized(w, "authentication required")
		return
	}
	fileID, ok := urlParamInt(w, r, "id")
	if !ok {
		return
	}

	var req createShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.Validation(w, "invalid request body")
		return
	}
	if req.MaxViews != nil && *req.MaxViews <= 0 {
		httperr.Validation(w, "maxViews must be positive")
		return
	}

	in := services.CreateShareInput{
		FileID:       fileID,
		CanView:      true,
		CanDownload:  true,
		CanShare:     req.CanShare,
		RequiresAuth: true,
		MaxViews:     req.MaxViews,
		ExpiresAt:    req.ExpiresAt,
		ShareMessage: req.ShareMessage,
	}
	if req.CanView != nil {
		in.CanView = *req.CanView
	}
	if req.CanDownload != nil {
		in.CanDownload = *req.CanDownload
	}
	if req.RequiresAuth != nil {
		in.RequiresAuth = *req.RequiresAuth
	}

	share, err := h.files.CreateShare(r.Context(), userID, in)
	if err != nil {
		httperr.FromError(w, err)
		return
	}

	h.logFileAccess(r, fileID, &share.ID, &userID, "share_created", nil)

	writeJSON(w, http.StatusCreated, shareResponse{
		FileShare: share,
		ShareURL:  fmt.Sprintf("%s/shares/%s", h.shareBaseURL, share.ShareToken),
	})
}

// ShareInfo resolves a share token to file metadata without consuming a
// view or exposing key material. The same usability gate as downloads
// applies; a revoked or expired share reveals nothing.
func (h *FileHandler) ShareInfo(w http.ResponseWriter, r *http.Request) {
	token := urlParamToken(w, r)
	if token == "" {
		return
	}

	var userID *int
	if id, ok := appMiddleware.UserID(r.Context()); ok {
		userID = &id
	}

	file, share, err := h.files.InspectShare(r.Context(), token, userID)
	if err != nil {
		httperr.FromError(w, err)
		return
	}

	h.logFileAccess(r, file.ID, &share.ID, userID, models.ActionView, nil)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"share": share,
		"file":  file,
	})
}

// ShareDownload serves a blob through a share link. Authorization,
// including the view cap, happens before a single byte is streamed.
func (h *FileHandler) ShareDownload(w http.ResponseWriter, r *http.Request) {
	token := urlParamToken(w, r)
	if token == "" {
		return
	}

	var userID *int
	if id, ok := appMiddleware.UserID(r.Context()); ok {
		userID = &id
	}

	file, share, err := h.files.AuthorizeShareAccess(r.Context(), token, userID, true)
	if err != nil {
		httperr.FromError(w, err)
		return
	}

	h.serveBlob(w, r, file, &share.ID, userID)
}

func (h *FileHandler) RevokeShare(w http.ResponseWriter, r *http.Request) {
	userID, ok := appMiddleware.UserID(r.Context())
	if !ok {
		httperr.Unauthorized(w, "authentication required")
		return
	}
	token := urlParamToken(w, r)
	if token == "" {
		return
	}

	if err := h.files.RevokeShare(r.Context(), token, userID); err != nil {
		httperr.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// serveBlob streams verified ciphertext with the wrapped key and IV in
// headers. Cors exposes those headers to browser clients.
func (h *FileHandler) serveBlob(w http.ResponseWriter, r *http.Request, file *models.File, shareID, userID *int) {
	blob, err := h.files.OpenBlob(file)
	if err != nil {
		httperr.FromError(w, err)
		return
	}
	defer blob.Close()

	h.logFileAccess(r, file.ID, shareID, userID, models.ActionDownload, nil)
	if userID != nil {
		h.logAccess(r, *userID, models.ActionDownload, file.ID)
	}

	w.Header().Set("Content-Type", file.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.OriginalName))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", file.Size))
	w.Header().Set("X-Encryption-Key", file.EncryptedKey)
	w.Header().Set("X-Encryption-IV", file.IV)

	if _, err := io.Copy(w, blob); err != nil {
		h.log.Warn("blob stream interrupted", "file_id", file.ID, "error", err)
	}
}

func (h *FileHandler) logFileAccess(r *http.Request, fileID int, shareID, userID *int, action string, metadata json.RawMessage) {
	err := h.files.LogAccess(r.Context(), services.AccessRecord{
		FileID:    fileID,
		ShareID:   shareID,
		UserID:    userID,
		Action:    action,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		Metadata:  metadata,
	})
	if err != nil {
		h.log.Warn("file access log write failed", "file_id", fileID, "action", action, "error", err)
	}
}

func (h *FileHandler) logAccess(r *http.Request, userID int, action string, fileID int) {
	err := h.compliance.LogAccess(r.Context(), services.AccessEntry{
		UserID:       userID,
		Action:       action,
		ResourceType: models.ResourceFile,
		ResourceID:   fileID,
		IP:           clientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.log.Warn("access log write failed", "file_id", fileID, "action", action, "error", err)
	}
}
