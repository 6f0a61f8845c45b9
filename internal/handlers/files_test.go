package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"wizspeak/server/internal/models"
	"wizspeak/server/internal/services"
)

type fakeFileService struct {
	services.FileService
	file       *models.File
	share      *models.FileShare
	inspectErr error
	logged     []services.AccessRecord
}

func (f *fakeFileService) InspectShare(_ context.Context, token string, _ *int) (*models.File, *models.FileShare, error) {
	if f.inspectErr != nil {
		return nil, nil, f.inspectErr
	}
	if f.share == nil || f.share.ShareToken != token {
		return nil, nil, models.ErrShareNotFound
	}
	return f.file, f.share, nil
}

func (f *fakeFileService) LogAccess(_ context.Context, rec services.AccessRecord) error {
	f.logged = append(f.logged, rec)
	return nil
}

func fileTestRouter(files *fakeFileService) http.Handler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewFileHandler(files, &fakeComplianceService{}, 1<<20, "https://example.test", log)

	r := chi.NewRouter()
	r.Get("/api/shares/{token}", h.ShareInfo)
	return r
}

func TestShareInfo(t *testing.T) {
	files := &fakeFileService{
		file:  &models.File{ID: 3, OriginalName: "report.pdf", MimeType: "application/pdf"},
		share: &models.FileShare{ID: 9, FileID: 3, ShareToken: "tok123", CanView: true},
	}
	router := fileTestRouter(files)

	req := httptest.NewRequest(http.MethodGet, "/api/shares/tok123", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"originalName":"report.pdf"`) {
		t.Errorf("file metadata missing from response: %s", body)
	}
	if len(files.logged) != 1 || files.logged[0].Action != models.ActionView {
		t.Errorf("expected a view access record, got %+v", files.logged)
	}
}

func TestShareInfoRevokedShareHidden(t *testing.T) {
	files := &fakeFileService{
		file:       &models.File{ID: 3, OriginalName: "report.pdf"},
		share:      &models.FileShare{ID: 9, FileID: 3, ShareToken: "tok123", IsActive: false},
		inspectErr: models.ErrShareRevoked,
	}
	router := fileTestRouter(files)

	req := httptest.NewRequest(http.MethodGet, "/api/shares/tok123", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "report.pdf") {
		t.Errorf("revoked share leaked file metadata: %s", rec.Body.String())
	}
	if len(files.logged) != 0 {
		t.Errorf("denied lookup should not record a view, got %+v", files.logged)
	}
}
