package httperr

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"wizspeak/server/internal/models"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"missing record", models.ErrFileNotFound, http.StatusNotFound, CodeNotFound},
		{"missing blob is distinct from missing record", models.ErrBlobMissing, http.StatusNotFound, CodeNotOnStorage},
		{"expired share", models.ErrShareExpired, http.StatusForbidden, CodeShareExpiredOrExhausted},
		{"exhausted share", models.ErrShareExhausted, http.StatusForbidden, CodeShareExpiredOrExhausted},
		{"revoked share is a plain denial", models.ErrShareRevoked, http.StatusForbidden, CodeForbidden},
		{"not a participant", models.ErrNotParticipant, http.StatusForbidden, CodeForbidden},
		{"hash mismatch", models.ErrHashMismatch, http.StatusInternalServerError, CodeIntegrityError},
		{"duplicate username", models.ErrUserExists, http.StatusConflict, CodeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			FromError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("response is not JSON: %v", err)
			}
			if body.Error.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Error.Code, tt.wantCode)
			}
		})
	}
}
