package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// BlobArchive is a content-addressed store of displaced bodies. Before a
// sync overwrites or deletes a deployed object, its body is rescued here
// under its content hash; rollback reads restored bodies back out. Blobs
// are immutable once written and shared across snapshots, so the archive
// grows only by the bytes each deploy actually displaces.
type BlobArchive struct {
	dir string
}

// NewBlobArchive opens (creating if needed) an archive directory.
func NewBlobArchive(dir string) (*BlobArchive, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &BlobArchive{dir: dir}, nil
}

// blobPath shards blobs by hash prefix to keep directories small.
func (a *BlobArchive) blobPath(hash string) string {
	if len(hash) < 2 {
		return filepath.Join(a.dir, hash)
	}
	return filepath.Join(a.dir, hash[:2], hash)
}

// Has reports whether a blob is archived.
func (a *BlobArchive) Has(hash string) bool {
	_, err := os.Stat(a.blobPath(hash))
	return err == nil
}

// Save archives a body under its expected hash. The stream is hashed
// while writing and a mismatch discards the blob: a corrupt rescue must
// never masquerade as the real bytes. Saving an already archived hash
// reads nothing and returns nil.
func (a *BlobArchive) Save(hash string, body io.Reader) error {
	if hash == "" {
		return fmt.Errorf("blob hash is required")
	}
	target := a.blobPath(hash)
	if a.Has(hash) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+hash+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create blob temp file: %w", err)
	}

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write blob %s: %w", hash, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close blob %s: %w", hash, err)
	}

	if got := hex.EncodeToString(h.Sum(nil)); got != hash {
		os.Remove(tmp.Name())
		return fmt.Errorf("blob hash mismatch: expected %s, got %s", hash, got)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to store blob %s: %w", hash, err)
	}
	return nil
}

// Open yields an archived body by the item's content hash, implementing
// ContentSource for rollbacks.
func (a *BlobArchive) Open(_ context.Context, item ContentItem) (io.ReadCloser, error) {
	f, err := os.Open(a.blobPath(item.ContentHash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no archived body for %s (hash %s)", item.Path, item.ContentHash)
		}
		return nil, fmt.Errorf("failed to open blob %s: %w", item.ContentHash, err)
	}
	return f, nil
}
