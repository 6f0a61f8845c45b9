// Package filestore persists ciphertext blobs on local disk. Blobs are
// stored under opaque random names so the client-supplied filename can
// never collide or traverse paths, and every write is hashed with SHA-256
// on the way in. Encryption key material never enters this package.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"wizspeak/server/internal/models"
)

type FileStore struct {
	dataDir string
}

// SaveResult describes a blob written to disk.
type SaveResult struct {
	// StorageName is the opaque on-disk name, unrelated to the original.
	StorageName string
	Size        int64
	// Checksum is the hex SHA-256 of the stored ciphertext.
	Checksum string
}

func New(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dataDir, err)
	}
	return &FileStore{dataDir: dataDir}, nil
}

// Save streams ciphertext to disk: temp file, SHA-256 while writing, fsync,
// atomic rename. The temp file is removed on any failure.
func (fs *FileStore) Save(reader io.Reader, originalName string) (*SaveResult, error) {
	name := storageName(originalName)
	fullPath := filepath.Join(fs.dataDir, name)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	hasher := sha256.New()
	tee := io.TeeReader(reader, hasher)

	size, err := io.Copy(f, tee)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("write blob: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("fsync blob: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("rename blob: %w", err)
	}

	return &SaveResult{
		StorageName: name,
		Size:        size,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open returns the blob for reading. A missing blob while metadata exists
// is a distinct failure from a missing metadata row; callers map it to
// "not on storage".
func (fs *FileStore) Open(storageNm string) (*os.File, error) {
	f, err := os.Open(filepath.Join(fs.dataDir, filepath.Base(storageNm)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", storageNm, models.ErrBlobMissing)
		}
		return nil, fmt.Errorf("open blob %s: %w", storageNm, err)
	}
	return f, nil
}

// Verify recomputes the SHA-256 of the stored blob and compares it against
// the checksum recorded at upload. Mismatch means tampering or corruption
// and the blob must not be served.
func (fs *FileStore) Verify(storageNm, wantChecksum string) error {
	f, err := fs.Open(storageNm)
	if err != nil {
		return err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return fmt.Errorf("read blob %s: %w", storageNm, err)
	}
	if hex.EncodeToString(hasher.Sum(nil)) != wantChecksum {
		return fmt.Errorf("%s: %w", storageNm, models.ErrHashMismatch)
	}
	return nil
}

func (fs *FileStore) Remove(storageNm string) error {
	if err := os.Remove(filepath.Join(fs.dataDir, filepath.Base(storageNm))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob %s: %w", storageNm, err)
	}
	return nil
}

// storageName builds a fresh opaque name: a UUID plus the original
// extension when it looks safe. Everything else about the original name is
// discarded.
func storageName(originalName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	if len(ext) > 10 || !safeExt(ext) {
		ext = ""
	}
	return uuid.NewString() + ext
}

func safeExt(ext string) bool {
	if ext == "" {
		return true
	}
	if ext[0] != '.' {
		return false
	}
	for _, r := range ext[1:] {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return len(ext) > 1
}
