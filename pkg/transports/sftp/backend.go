package sftp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/pkg/sftp"

	"github.com/opensundae/opensundae/pkg/content"
	"github.com/opensundae/opensundae/pkg/telemetry"
)

// conn yields the live SFTP session backing the backend. Tests
// substitute an in-process pipe server for the SSH-backed client.
type conn interface {
	getSFTP(ctx context.Context) (*sftp.Client, error)
	Close() error
}

// treeHasher is the optional fast path for List: one remote command
// hashes the whole tree. The SSH-backed client implements it; sessions
// without shell access fall back to hashing over SFTP.
type treeHasher interface {
	hashTree(ctx context.Context, root string) (map[string]string, error)
}

// Backend pushes content to an origin host over SFTP. It implements
// content.StorageBackend; paths are slash-relative to the configured
// remote root.
type Backend struct {
	conn   conn
	root   string
	logger *telemetry.Logger
}

// NewBackend builds a backend for the configured origin host. The
// connection is made on first use; call Connect to fail fast instead.
func NewBackend(config *Config, logger *telemetry.Logger) (*Backend, error) {
	c, err := newClient(config, logger)
	if err != nil {
		return nil, err
	}
	return &Backend{
		conn:   c,
		root:   path.Clean(config.RemoteRoot),
		logger: c.logger,
	}, nil
}

// Connect dials eagerly so an unreachable target fails the run before
// any mutation.
func (b *Backend) Connect(ctx context.Context) error {
	_, err := b.conn.getSFTP(ctx)
	return err
}

// Close releases the connection.
func (b *Backend) Close() error {
	return b.conn.Close()
}

// List walks the deployed tree and returns its listing sorted by path.
// Hashes are content hashes: a single remote checksum command covers
// the whole tree when the deploy user has shell access, and files it
// does not cover are streamed through sha256 over SFTP. Dot-prefixed
// names are skipped, matching the local content scan.
func (b *Backend) List(ctx context.Context) ([]content.ContentItem, error) {
	started := time.Now()

	sftpClient, err := b.conn.getSFTP(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := sftpClient.Stat(b.root); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// First deploy: nothing published yet.
			return nil, nil
		}
		return nil, &TransportError{Op: "list", Path: b.root, Err: err, IsTemporary: true}
	}

	var hashes map[string]string
	if hasher, ok := b.conn.(treeHasher); ok {
		hashes, err = hasher.hashTree(ctx, b.root)
		if err != nil {
			b.logger.Debug().Err(err).Msg("Remote checksum command unavailable, hashing over sftp")
			hashes = nil
		}
	}

	var items []content.ContentItem
	streamed := 0
	walker := sftpClient.Walk(b.root)
	for walker.Step() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := walker.Err(); err != nil {
			return nil, &TransportError{Op: "list", Path: walker.Path(), Err: err, IsTemporary: true}
		}

		info := walker.Stat()
		if strings.HasPrefix(path.Base(walker.Path()), ".") && walker.Path() != b.root {
			if info.IsDir() {
				walker.SkipDir()
			}
			continue
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			continue
		}

		rel, ok := b.relPath(walker.Path())
		if !ok {
			continue
		}

		digest, ok := hashes[rel]
		if !ok {
			digest, err = b.hashFile(ctx, sftpClient, walker.Path())
			if err != nil {
				return nil, err
			}
			streamed++
		}

		items = append(items, content.ContentItem{
			Path:           rel,
			ContentHash:    digest,
			SizeBytes:      info.Size(),
			Classification: content.Classify(rel),
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })

	b.logger.Debug().
		Int("files", len(items)).
		Int("streamed", streamed).
		Dur("duration", time.Since(started)).
		Msg("Listed deployed tree")

	return items, nil
}

// Get opens the deployed body at a path.
func (b *Backend) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	sftpClient, err := b.conn.getSFTP(ctx)
	if err != nil {
		return nil, err
	}

	f, err := sftpClient.Open(b.remotePath(p))
	if err != nil {
		return nil, &TransportError{Op: "get", Path: p, Err: err, IsTemporary: !errors.Is(err, os.ErrNotExist)}
	}
	return f, nil
}

// Put uploads a body to a dot-prefixed temporary name in the target
// directory and renames it into place, so the web server never serves a
// half-written file.
func (b *Backend) Put(ctx context.Context, item content.ContentItem, body io.Reader) error {
	sftpClient, err := b.conn.getSFTP(ctx)
	if err != nil {
		return err
	}

	target := b.remotePath(item.Path)
	dir := path.Dir(target)
	if err := sftpClient.MkdirAll(dir); err != nil {
		return &TransportError{
			Op:   "put",
			Path: item.Path,
			Err:  fmt.Errorf("failed to create remote directory %s: %w", dir, err),
		}
	}

	tmp := path.Join(dir, ".partial-"+path.Base(target))
	f, err := sftpClient.Create(tmp)
	if err != nil {
		return &TransportError{
			Op:          "put",
			Path:        item.Path,
			Err:         fmt.Errorf("failed to create temp file: %w", err),
			IsTemporary: true,
		}
	}

	written, err := copyWithContext(ctx, f, body)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		_ = sftpClient.Remove(tmp)
		return &TransportError{Op: "put", Path: item.Path, Err: err, IsTemporary: true}
	}
	if item.SizeBytes > 0 && written != item.SizeBytes {
		_ = sftpClient.Remove(tmp)
		return &TransportError{
			Op:   "put",
			Path: item.Path,
			Err:  fmt.Errorf("wrote %d bytes, want %d", written, item.SizeBytes),
		}
	}

	if err := sftpClient.Chmod(tmp, 0o644); err != nil {
		b.logger.Warn().Err(err).Str("path", item.Path).Msg("Failed to set file mode")
	}

	if err := b.rename(sftpClient, tmp, target); err != nil {
		_ = sftpClient.Remove(tmp)
		return &TransportError{Op: "put", Path: item.Path, Err: err, IsTemporary: true}
	}

	b.logger.Debug().
		Str("path", item.Path).
		Int64("bytes", written).
		Str("content_type", item.Classification.ContentType).
		Msg("Uploaded file")

	return nil
}

// Delete removes the object at a path. Missing paths are not errors, so
// retried deletes stay idempotent. Directories left empty are pruned up
// to the remote root.
func (b *Backend) Delete(ctx context.Context, p string) error {
	sftpClient, err := b.conn.getSFTP(ctx)
	if err != nil {
		return err
	}

	target := b.remotePath(p)
	if err := sftpClient.Remove(target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return &TransportError{Op: "delete", Path: p, Err: err, IsTemporary: true}
	}

	b.pruneEmptyDirs(sftpClient, path.Dir(target))

	b.logger.Debug().Str("path", p).Msg("Deleted file")
	return nil
}

// remotePath maps a slash-relative content path under the remote root.
func (b *Backend) remotePath(p string) string {
	return path.Join(b.root, p)
}

// relPath converts an absolute walked path back to the slash-relative
// form used across the content packages.
func (b *Backend) relPath(p string) (string, bool) {
	prefix := b.root
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if !strings.HasPrefix(p, prefix) {
		return "", false
	}
	return strings.TrimPrefix(p, prefix), true
}

// hashFile streams a remote file through sha256.
func (b *Backend) hashFile(ctx context.Context, sftpClient *sftp.Client, remotePath string) (string, error) {
	f, err := sftpClient.Open(remotePath)
	if err != nil {
		return "", &TransportError{Op: "list", Path: remotePath, Err: err, IsTemporary: true}
	}
	defer f.Close()

	h := sha256.New()
	if _, err := copyWithContext(ctx, h, f); err != nil {
		return "", &TransportError{Op: "list", Path: remotePath, Err: err, IsTemporary: true}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// rename moves tmp over target, preferring the atomic posix-rename
// extension and falling back to delete-then-rename where the server
// lacks it.
func (b *Backend) rename(sftpClient *sftp.Client, tmp, target string) error {
	if err := sftpClient.PosixRename(tmp, target); err == nil {
		return nil
	}
	if err := sftpClient.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to replace %s: %w", target, err)
	}
	if err := sftpClient.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to rename into place: %w", err)
	}
	return nil
}

// pruneEmptyDirs removes now-empty directories between a deleted file
// and the remote root. RemoveDirectory fails on non-empty directories,
// which is where pruning stops.
func (b *Backend) pruneEmptyDirs(sftpClient *sftp.Client, dir string) {
	prefix := b.root
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	for strings.HasPrefix(dir, prefix) {
		if err := sftpClient.RemoveDirectory(dir); err != nil {
			return
		}
		dir = path.Dir(dir)
	}
}

// copyWithContext copies src to dst, checking for cancellation between
// 32KB chunks so a dead transfer does not hold the pipeline.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return written, nil
			}
			return written, rerr
		}
	}
}
