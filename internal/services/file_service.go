package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"wizspeak/server/internal/models"
	"wizspeak/server/internal/storage/filestore"
	"wizspeak/server/internal/utils"
)

type UploadInput struct {
	OriginalName string
	MimeType     string
	EncryptedKey string
	IV           string
	MessageID    *int
	UploadedBy   int
	Body         io.Reader
}

type CreateShareInput struct {
	FileID       int
	CanView      bool
	CanDownload  bool
	CanShare     bool
	RequiresAuth bool
	MaxViews     *int
	ExpiresAt    *time.Time
	ShareMessage *string
}

// AccessRecord describes one access to a file for the file_access_logs
// trail. ShareID is nil for direct owner access.
type AccessRecord struct {
	FileID    int
	ShareID   *int
	UserID    *int
	Action    string
	IP        string
	UserAgent string
	Metadata  json.RawMessage
}

type FileService interface {
	Upload(ctx context.Context, in UploadInput) (*models.File, error)
	GetFile(ctx context.Context, fileID int) (*models.File, error)
	ListUserFiles(ctx context.Context, userID int) ([]models.File, error)
	OpenBlob(file *models.File) (io.ReadCloser, error)
	CreateShare(ctx context.Context, userID int, in CreateShareInput) (*models.FileShare, error)
	GetShare(ctx context.Context, token string) (*models.FileShare, error)
	RevokeShare(ctx context.Context, token string, userID int) error
	InspectShare(ctx context.Context, token string, userID *int) (*models.File, *models.FileShare, error)
	AuthorizeShareAccess(ctx context.Context, token string, userID *int, wantDownload bool) (*models.File, *models.FileShare, error)
	LogAccess(ctx context.Context, rec AccessRecord) error
}

type fileService struct {
	db    *pgxpool.Pool
	store *filestore.FileStore
	clock clockwork.Clock
	log   *slog.Logger
}

func NewFileService(db *pgxpool.Pool, store *filestore.FileStore, clock clockwork.Clock, log *slog.Logger) FileService {
	return &fileService{db: db, store: store, clock: clock, log: log}
}

const fileColumns = "id, message_id, filename, original_name, mime_type, size, encrypted_key, file_hash, iv, category, uploaded_by, storage_path, created_at"

const shareColumns = "id, file_id, share_token, created_by, can_view, can_download, can_share, requires_auth, max_views, current_views, expires_at, is_active, share_message, created_at"

// Upload streams the ciphertext to the blob store first and records
// metadata second. If the metadata insert fails the orphaned blob is
// removed; the reverse order could leave metadata pointing at nothing.
func (fsvc *fileService) Upload(ctx context.Context, in UploadInput) (*models.File, error) {
	saved, err := fsvc.store.Save(in.Body, in.OriginalName)
	if err != nil {
		fsvc.log.Error("failed to store blob", "original_name", in.OriginalName, "error", err)
		return nil, err
	}

	query := psql.Insert("files").
		Columns("message_id", "filename", "original_name", "mime_type", "size",
			"encrypted_key", "file_hash", "iv", "category", "uploaded_by", "storage_path").
		Values(in.MessageID, saved.StorageName, in.OriginalName, in.MimeType, saved.Size,
			in.EncryptedKey, saved.Checksum, in.IV, utils.FileCategory(in.MimeType),
			in.UploadedBy, saved.StorageName).
		Suffix("RETURNING " + fileColumns)
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	file, err := scanFile(fsvc.db.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if rmErr := fsvc.store.Remove(saved.StorageName); rmErr != nil {
			fsvc.log.Error("failed to remove orphaned blob", "storage_name", saved.StorageName, "error", rmErr)
		}
		fsvc.log.Error("failed to persist file metadata", "original_name", in.OriginalName, "error", err)
		return nil, err
	}

	fsvc.log.Info("file uploaded", "file_id", file.ID, "size", file.Size, "category", file.Category, "uploaded_by", in.UploadedBy)
	return file, nil
}

func (fsvc *fileService) GetFile(ctx context.Context, fileID int) (*models.File, error) {
	query := psql.Select(fileColumns).From("files").Where(squirrel.Eq{"id": fileID})
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	file, err := scanFile(fsvc.db.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrFileNotFound
		}
		return nil, err
	}
	return file, nil
}

func (fsvc *fileService) ListUserFiles(ctx context.Context, userID int) ([]models.File, error) {
	query := psql.Select(fileColumns).From("files").
		Where(squirrel.Eq{"uploaded_by": userID}).
		OrderBy("created_at DESC")
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := fsvc.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []models.File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *file)
	}
	return files, rows.Err()
}

// OpenBlob verifies the stored ciphertext against the hash recorded at
// upload before handing it out. A tampered or corrupted blob is never
// served.
func (fsvc *fileService) OpenBlob(file *models.File) (io.ReadCloser, error) {
	if err := fsvc.store.Verify(file.StoragePath, file.FileHash); err != nil {
		fsvc.log.Error("blob verification failed", "file_id", file.ID, "error", err)
		return nil, err
	}
	return fsvc.store.Open(file.StoragePath)
}

// CreateShare mints an unguessable share token for a file. Only the
// uploader may share a file.
func (fsvc *fileService) CreateShare(ctx context.Context, userID int, in CreateShareInput) (*models.FileShare, error) {
	file, err := fsvc.GetFile(ctx, in.FileID)
	if err != nil {
		return nil, err
	}
	if file.UploadedBy != userID {
		return nil, models.ErrPermissionDenied
	}

	query := psql.Insert("file_shares").
		Columns("file_id", "share_token", "created_by", "can_view", "can_download",
			"can_share", "requires_auth", "max_views", "expires_at", "share_message").
		Values(in.FileID, uuid.NewString(), userID, in.CanView, in.CanDownload,
			in.CanShare, in.RequiresAuth, in.MaxViews, in.ExpiresAt, in.ShareMessage).
		Suffix("RETURNING " + shareColumns)
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	share, err := scanShare(fsvc.db.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		fsvc.log.Error("failed to create share", "file_id", in.FileID, "error", err)
		return nil, err
	}

	fsvc.log.Info("share created", "share_id", share.ID, "file_id", in.FileID, "created_by", userID)
	return share, nil
}

func (fsvc *fileService) GetShare(ctx context.Context, token string) (*models.FileShare, error) {
	query := psql.Select(shareColumns).From("file_shares").Where(squirrel.Eq{"share_token": token})
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	share, err := scanShare(fsvc.db.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrShareNotFound
		}
		return nil, err
	}
	return share, nil
}

// RevokeShare deactivates a share. Revocation is permanent and only the
// share creator may do it.
func (fsvc *fileService) RevokeShare(ctx context.Context, token string, userID int) error {
	share, err := fsvc.GetShare(ctx, token)
	if err != nil {
		return err
	}
	if share.CreatedBy != userID {
		return models.ErrPermissionDenied
	}

	query := psql.Update("file_shares").
		Set("is_active", false).
		Where(squirrel.Eq{"id": share.ID})
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}
	if _, err := fsvc.db.Exec(ctx, sqlStr, args...); err != nil {
		fsvc.log.Error("failed to revoke share", "share_id", share.ID, "error", err)
		return err
	}

	fsvc.log.Info("share revoked", "share_id", share.ID, "revoked_by", userID)
	return nil
}

// InspectShare resolves a share token to its file metadata. The full
// usability and permission gate applies, so a revoked, expired or
// auth-requiring share leaks nothing to callers it would refuse; only the
// view counter is left untouched.
func (fsvc *fileService) InspectShare(ctx context.Context, token string, userID *int) (*models.File, *models.FileShare, error) {
	return fsvc.shareAccess(ctx, token, userID, false, false)
}

// AuthorizeShareAccess runs the full gate for a share token: existence,
// revocation, expiry, per-user grants, then the view cap. The cap is
// consumed with a guarded UPDATE so concurrent accesses cannot take the
// counter past MaxViews; losing that race reads back as exhaustion.
func (fsvc *fileService) AuthorizeShareAccess(ctx context.Context, token string, userID *int, wantDownload bool) (*models.File, *models.FileShare, error) {
	return fsvc.shareAccess(ctx, token, userID, wantDownload, true)
}

func (fsvc *fileService) shareAccess(ctx context.Context, token string, userID *int, wantDownload, consume bool) (*models.File, *models.FileShare, error) {
	share, err := fsvc.GetShare(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	var grant *models.FileShareAccess
	if userID != nil {
		if grant, err = fsvc.shareGrant(ctx, share.ID, *userID); err != nil {
			return nil, nil, err
		}
	}
	if err := authorizeShare(share, grant, userID, wantDownload, fsvc.clock.Now()); err != nil {
		return nil, nil, err
	}

	if consume {
		if err := fsvc.consumeView(ctx, share); err != nil {
			return nil, nil, err
		}
	}

	file, err := fsvc.GetFile(ctx, share.FileID)
	if err != nil {
		return nil, nil, err
	}
	return file, share, nil
}

// authorizeShare is the pure part of the share gate: usability first, then
// authentication, then the effective view/download permission narrowed by
// any per-user grant.
func authorizeShare(share *models.FileShare, grant *models.FileShareAccess, userID *int, wantDownload bool, now time.Time) error {
	if err := share.Usable(now); err != nil {
		return err
	}
	if share.RequiresAuth && userID == nil {
		return models.ErrPermissionDenied
	}

	canView, canDownload := share.CanView, share.CanDownload
	if grant != nil {
		canView = canView && grant.CanView
		canDownload = canDownload && grant.CanDownload
	}
	if wantDownload && !canDownload {
		return models.ErrPermissionDenied
	}
	if !wantDownload && !canView {
		return models.ErrPermissionDenied
	}
	return nil
}

// consumeView increments current_views only while the share is active and
// under its cap. Zero rows affected means another access got there first.
func (fsvc *fileService) consumeView(ctx context.Context, share *models.FileShare) error {
	query := psql.Update("file_shares").
		Set("current_views", squirrel.Expr("current_views + 1")).
		Where(squirrel.And{
			squirrel.Eq{"id": share.ID},
			squirrel.Eq{"is_active": true},
			squirrel.Expr("(max_views IS NULL OR current_views < max_views)"),
		})
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}

	tag, err := fsvc.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrShareExhausted
	}
	share.CurrentViews++
	return nil
}

func (fsvc *fileService) shareGrant(ctx context.Context, shareID, userID int) (*models.FileShareAccess, error) {
	query := psql.Select("id, share_id, user_id, can_view, can_download, can_share, created_at").
		From("file_share_access").
		Where(squirrel.Eq{"share_id": shareID, "user_id": userID})
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var g models.FileShareAccess
	err = fsvc.db.QueryRow(ctx, sqlStr, args...).
		Scan(&g.ID, &g.ShareID, &g.UserID, &g.CanView, &g.CanDownload, &g.CanShare, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

// LogAccess appends to the per-file access trail. Failures here are
// reported but never block the access itself.
func (fsvc *fileService) LogAccess(ctx context.Context, rec AccessRecord) error {
	query := psql.Insert("file_access_logs").
		Columns("file_id", "share_id", "user_id", "action", "ip_address", "user_agent", "metadata").
		Values(rec.FileID, rec.ShareID, rec.UserID, rec.Action, rec.IP, rec.UserAgent, rec.Metadata)
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}
	if _, err := fsvc.db.Exec(ctx, sqlStr, args...); err != nil {
		fsvc.log.Error("failed to record file access", "file_id", rec.FileID, "action", rec.Action, "error", err)
		return err
	}
	return nil
}

func scanFile(row pgx.Row) (*models.File, error) {
	var f models.File
	err := row.Scan(
		&f.ID, &f.MessageID, &f.Filename, &f.OriginalName, &f.MimeType, &f.Size,
		&f.EncryptedKey, &f.FileHash, &f.IV, &f.Category, &f.UploadedBy,
		&f.StoragePath, &f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func scanShare(row pgx.Row) (*models.FileShare, error) {
	var s models.FileShare
	err := row.Scan(
		&s.ID, &s.FileID, &s.ShareToken, &s.CreatedBy, &s.CanView, &s.CanDownload,
		&s.CanShare, &s.RequiresAuth, &s.MaxViews, &s.CurrentViews, &s.ExpiresAt,
		&s.IsActive, &s.ShareMessage, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
