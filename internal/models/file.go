package models

import (
	"time"
)

const (
	CategoryImage    = "image"
	CategoryVideo    = "video"
	CategoryAudio    = "audio"
	CategoryDocument = "document"
	CategoryOther    = "other"
)

// File is ciphertext metadata. Filename is the opaque random name the blob
// is stored under; the client-supplied OriginalName never reaches the
// filesystem. Key material (EncryptedKey, IV) lives only here, never next
// to the blob, and is excluded from JSON so it cannot leak through list
// endpoints.
type File struct {
	ID           int       `json:"id" db:"id"`
	MessageID    *int      `json:"messageId,omitempty" db:"message_id"`
	Filename     string    `json:"-" db:"filename"`
	OriginalName string    `json:"originalName" db:"original_name"`
	MimeType     string    `json:"mimeType" db:"mime_type"`
	Size         int64     `json:"size" db:"size"`
	EncryptedKey string    `json:"-" db:"encrypted_key"`
	FileHash     string    `json:"fileHash" db:"file_hash"`
	IV           string    `json:"-" db:"iv"`
	Category     string    `json:"category" db:"category"`
	UploadedBy   int       `json:"uploadedBy" db:"uploaded_by"`
	StoragePath  string    `json:"-" db:"storage_path"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

type FileShare struct {
	ID           int        `json:"id" db:"id"`
	FileID       int        `json:"fileId" db:"file_id"`
	ShareToken   string     `json:"shareToken" db:"share_token"`
	CreatedBy    int        `json:"createdBy" db:"created_by"`
	CanView      bool       `json:"canView" db:"can_view"`
	CanDownload  bool       `json:"canDownload" db:"can_download"`
	CanShare     bool       `json:"canShare" db:"can_share"`
	RequiresAuth bool       `json:"requiresAuth" db:"requires_auth"`
	MaxViews     *int       `json:"maxViews,omitempty" db:"max_views"`
	CurrentViews int        `json:"currentViews" db:"current_views"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
	IsActive     bool       `json:"isActive" db:"is_active"`
	ShareMessage *string    `json:"shareMessage,omitempty" db:"share_message"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
}

// Usable decides whether the share grants access at the given instant.
// The view cap is checked before the increment, so the Nth access under a
// cap of N still completes and the (N+1)th fails. Revocation wins over
// everything else.
func (s *FileShare) Usable(now time.Time) error {
	if !s.IsActive {
		return ErrShareRevoked
	}
	if s.ExpiresAt != nil && !now.Before(*s.ExpiresAt) {
		return ErrShareExpired
	}
	if s.MaxViews != nil && s.CurrentViews >= *s.MaxViews {
		return ErrShareExhausted
	}
	return nil
}

// FileShareAccess is an optional per-user grant narrowing what a specific
// authenticated user may do with a share.
type FileShareAccess struct {
	ID          int       `json:"id" db:"id"`
	ShareID     int       `json:"shareId" db:"share_id"`
	UserID      int       `json:"userId" db:"user_id"`
	CanView     bool      `json:"canView" db:"can_view"`
	CanDownload bool      `json:"canDownload" db:"can_download"`
	CanShare    bool      `json:"canShare" db:"can_share"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}
