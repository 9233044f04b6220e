package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/opensundae/opensundae/pkg/content"
	"github.com/opensundae/opensundae/pkg/telemetry"
)

// Storage implements content.StorageBackend over a plain directory. It
// stands in for the origin bucket in development runs: the deployed
// tree is just files on disk, so the result of a sync can be inspected
// with ls and served with any static file server.
//
// Classification is advisory here the same way it is over SFTP; a dev
// server maps extensions itself. Uploads go through a dot-prefixed temp
// file and a rename, so listings never see partial writes.
type Storage struct {
	root   string
	logger *telemetry.Logger
}

// NewStorage creates a storage backend rooted at dir. The directory is
// created on first Put; a missing root lists as empty.
func NewStorage(root string, logger *telemetry.Logger) *Storage {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &Storage{
		root:   filepath.Clean(root),
		logger: logger.NewComponentLogger("local-storage"),
	}
}

// List returns the deployed listing, hashed and classified. A root that
// does not exist yet means nothing has been deployed.
func (s *Storage) List(ctx context.Context) ([]content.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(s.root); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat storage root %s: %w", s.root, err)
	}

	return content.ScanDir(s.root)
}

// Get opens the deployed body at a path.
func (s *Storage) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target, err := s.localPath(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", p, err)
	}
	return f, nil
}

// Put writes an item's body under its path, creating parent directories
// as needed and replacing any existing file atomically.
func (s *Storage) Put(ctx context.Context, item content.ContentItem, body io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target, err := s.localPath(item.Path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", item.Path, err)
	}
	tmp := f.Name()

	written, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err == nil && item.SizeBytes > 0 && written != item.SizeBytes {
		err = fmt.Errorf("wrote %d bytes, want %d", written, item.SizeBytes)
	}
	if err == nil {
		err = os.Chmod(tmp, 0o644)
	}
	if err == nil {
		err = os.Rename(tmp, target)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", item.Path, err)
	}

	s.logger.Debug().
		Str("path", item.Path).
		Int64("bytes", written).
		Str("content_type", item.Classification.ContentType).
		Msg("Wrote file")
	return nil
}

// Delete removes the file at a path and prunes directories it leaves
// empty. A missing path is not an error.
func (s *Storage) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target, err := s.localPath(p)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete %s: %w", p, err)
	}

	s.pruneEmptyDirs(filepath.Dir(target))

	s.logger.Debug().Str("path", p).Msg("Deleted file")
	return nil
}

// localPath maps a slash-separated content path onto the root, rejecting
// anything that would escape it.
func (s *Storage) localPath(p string) (string, error) {
	native := filepath.FromSlash(p)
	if !filepath.IsLocal(native) {
		return "", fmt.Errorf("invalid content path %q", p)
	}
	return filepath.Join(s.root, native), nil
}

// pruneEmptyDirs removes now-empty directories from dir up to the root.
// os.Remove fails on non-empty directories, which is where pruning stops.
func (s *Storage) pruneEmptyDirs(dir string) {
	prefix := s.root + string(filepath.Separator)
	for strings.HasPrefix(dir, prefix) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
