// Package httperr writes API errors in a single JSON shape:
// {"error": {"code": "...", "message": "..."}}. All handler error responses
// go through WriteError so clients can branch on the machine-readable code.
package httperr

import (
	"encoding/json"
	"errors"
	"net/http"

	"wizspeak/server/internal/models"
)

const (
	CodeValidationError         = "VALIDATION_ERROR"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeForbidden               = "FORBIDDEN"
	CodeNotFound                = "NOT_FOUND"
	CodeNotOnStorage            = "NOT_ON_STORAGE"
	CodeShareExpiredOrExhausted = "SHARE_EXPIRED_OR_EXHAUSTED"
	CodeIntegrityError          = "INTEGRITY_ERROR"
	CodeConflict                = "CONFLICT"
	CodeInternalError           = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{Code: code, Message: message},
	})
}

func Validation(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

func Internal(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// FromError maps domain sentinel errors onto the taxonomy. Expired and
// exhausted shares share a 403 status with plain permission denials but
// carry a distinct code so clients can word the refusal differently.
func FromError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrUserNotFound),
		errors.Is(err, models.ErrConversationNotFound),
		errors.Is(err, models.ErrMessageNotFound),
		errors.Is(err, models.ErrFileNotFound),
		errors.Is(err, models.ErrShareNotFound),
		errors.Is(err, models.ErrPolicyNotFound):
		WriteError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, models.ErrBlobMissing):
		WriteError(w, http.StatusNotFound, CodeNotOnStorage, err.Error())
	case errors.Is(err, models.ErrShareExpired), errors.Is(err, models.ErrShareExhausted):
		WriteError(w, http.StatusForbidden, CodeShareExpiredOrExhausted, err.Error())
	case errors.Is(err, models.ErrNotParticipant),
		errors.Is(err, models.ErrPermissionDenied),
		errors.Is(err, models.ErrShareRevoked):
		WriteError(w, http.StatusForbidden, CodeForbidden, err.Error())
	case errors.Is(err, models.ErrHashMismatch):
		WriteError(w, http.StatusInternalServerError, CodeIntegrityError, err.Error())
	case errors.Is(err, models.ErrUserExists):
		WriteError(w, http.StatusConflict, CodeConflict, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, CodeInternalError, "internal server error")
	}
}
