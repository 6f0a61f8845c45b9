package utils

import (
	"testing"

	"wizspeak/server/internal/models"
)

func TestContentHash(t *testing.T) {
	// Known SHA-256 vector.
	got := ContentHash([]byte("hi"))
	want := "8f434346648f6b96df89dda901c5176b10a6d83961dd3c1ac88b59b2dc327aa4"
	if got != want {
		t.Errorf("ContentHash(\"hi\") = %s, want %s", got, want)
	}

	if ContentHash([]byte("hi")) != ContentHash([]byte("hi")) {
		t.Error("hash must be deterministic")
	}
	if ContentHash([]byte("hi")) == ContentHash([]byte("hi!")) {
		t.Error("different content must hash differently")
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("password stored in the clear")
	}
	if err := CheckPasswordHash("s3cret", hash); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := CheckPasswordHash("wrong", hash); err == nil {
		t.Error("wrong password accepted")
	}
}

func TestFileCategory(t *testing.T) {
	tests := []struct {
		mimeType string
		want     string
	}{
		{"image/png", models.CategoryImage},
		{"video/mp4", models.CategoryVideo},
		{"audio/ogg", models.CategoryAudio},
		{"application/pdf", models.CategoryDocument},
		{"text/plain", models.CategoryDocument},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", models.CategoryDocument},
		{"application/octet-stream", models.CategoryOther},
	}

	for _, tt := range tests {
		if got := FileCategory(tt.mimeType); got != tt.want {
			t.Errorf("FileCategory(%q) = %q, want %q", tt.mimeType, got, tt.want)
		}
	}
}
