package models

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("username already exists")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrFileNotFound         = errors.New("file not found")
	ErrShareNotFound        = errors.New("share not found")
	ErrPolicyNotFound       = errors.New("retention policy not found")
	ErrNotParticipant       = errors.New("user is not a participant")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrShareRevoked         = errors.New("share has been revoked")
	ErrShareExpired         = errors.New("share has expired")
	ErrShareExhausted       = errors.New("share view limit reached")
	ErrBlobMissing          = errors.New("file not found on storage")
	ErrHashMismatch         = errors.New("content hash mismatch")
)
