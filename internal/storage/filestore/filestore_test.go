package filestore

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wizspeak/server/internal/models"
)

func TestSaveAndOpenRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ciphertext := []byte("encrypted-bytes-the-server-cannot-read")
	res, err := store.Save(bytes.NewReader(ciphertext), "report.pdf")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if res.Size != int64(len(ciphertext)) {
		t.Errorf("Size = %d, want %d", res.Size, len(ciphertext))
	}
	if strings.Contains(res.StorageName, "report") {
		t.Errorf("storage name %q leaks the original name", res.StorageName)
	}
	if !strings.HasSuffix(res.StorageName, ".pdf") {
		t.Errorf("storage name %q lost the extension", res.StorageName)
	}

	f, err := store.Open(res.StorageName)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, ciphertext) {
		t.Error("stored bytes differ from input")
	}

	// Checksum recomputed from the blob matches the one recorded at save.
	if err := store.Verify(res.StorageName, res.Checksum); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestSaveRejectsHostileExtension(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := store.Save(bytes.NewReader([]byte("x")), "../../etc/passwd")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if strings.ContainsAny(res.StorageName, "/\\") {
		t.Errorf("storage name %q contains path separators", res.StorageName)
	}
}

func TestOpenMissingBlob(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = store.Open("no-such-blob.bin")
	if !errors.Is(err, models.ErrBlobMissing) {
		t.Errorf("Open missing blob = %v, want ErrBlobMissing", err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := store.Save(bytes.NewReader([]byte("original")), "doc.txt")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, res.StorageName), []byte("tampered"), 0o600); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	if err := store.Verify(res.StorageName, res.Checksum); !errors.Is(err, models.ErrHashMismatch) {
		t.Errorf("Verify = %v, want ErrHashMismatch", err)
	}
}

func TestSaveLeavesNoTempFileOnSuccess(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := store.Save(bytes.NewReader([]byte("data")), "a.bin"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}
