package utils

import (
	"strings"

	"wizspeak/server/internal/models"
)

// FileCategory maps a MIME type onto the coarse category stored with file
// metadata. Used when the uploader does not supply a category explicitly.
func FileCategory(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return models.CategoryImage
	case strings.HasPrefix(mimeType, "video/"):
		return models.CategoryVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return models.CategoryAudio
	case strings.Contains(mimeType, "pdf"),
		strings.Contains(mimeType, "document"),
		strings.Contains(mimeType, "text"):
		return models.CategoryDocument
	default:
		return models.CategoryOther
	}
}
