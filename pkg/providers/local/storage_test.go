package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensundae/opensundae/pkg/content"
)

func newTestStorage(t *testing.T) (*Storage, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "site")
	return NewStorage(root, nil), root
}

func sha256hex(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

func putFile(t *testing.T, s *Storage, p, body string) {
	t.Helper()
	item := content.ContentItem{
		Path:           p,
		ContentHash:    sha256hex(body),
		SizeBytes:      int64(len(body)),
		Classification: content.Classify(p),
	}
	if err := s.Put(context.Background(), item, strings.NewReader(body)); err != nil {
		t.Fatalf("Put %s failed: %v", p, err)
	}
}

// assertNoPartials fails the test when a temp file survived an upload.
func assertNoPartials(t *testing.T, root string) {
	t.Helper()
	filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".partial-") {
			t.Errorf("Expected no leftover temp file, found %s", p)
		}
		return nil
	})
}

func TestStorageListMissingRoot(t *testing.T) {
	s, _ := newTestStorage(t)

	items, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if items != nil {
		t.Errorf("Expected empty listing for missing root, got %v", items)
	}
}

func TestStoragePutGetRoundTrip(t *testing.T) {
	s, root := newTestStorage(t)

	putFile(t, s, "css/app.css", "body{margin:0}")

	rc, err := s.Get(context.Background(), "css/app.css")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	body, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(body) != "body{margin:0}" {
		t.Errorf("Expected round-tripped body, got %q", body)
	}

	onDisk, err := os.ReadFile(filepath.Join(root, "css", "app.css"))
	if err != nil {
		t.Fatalf("Expected file on disk: %v", err)
	}
	if string(onDisk) != "body{margin:0}" {
		t.Errorf("Expected body on disk, got %q", onDisk)
	}
	assertNoPartials(t, root)
}

func TestStoragePutReplacesExisting(t *testing.T) {
	s, root := newTestStorage(t)

	putFile(t, s, "index.html", "<h1>v1</h1>")
	putFile(t, s, "index.html", "<h1>v2</h1>")

	body, err := os.ReadFile(filepath.Join(root, "index.html"))
	if err != nil {
		t.Fatalf("Expected file on disk: %v", err)
	}
	if string(body) != "<h1>v2</h1>" {
		t.Errorf("Expected second upload to win, got %q", body)
	}
}

func TestStoragePutSizeMismatch(t *testing.T) {
	s, root := newTestStorage(t)

	item := content.ContentItem{Path: "index.html", SizeBytes: 10}
	err := s.Put(context.Background(), item, strings.NewReader("abc"))
	if err == nil {
		t.Fatal("Expected error for truncated body")
	}
	if !strings.Contains(err.Error(), "wrote 3 bytes") {
		t.Errorf("Expected byte counts in error, got %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "index.html")); !os.IsNotExist(err) {
		t.Error("Expected no file for failed upload")
	}
	assertNoPartials(t, root)
}

func TestStorageRejectsEscapingPaths(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	for _, p := range []string{"../escape", "", ".", "/etc/passwd", "a/../../b"} {
		item := content.ContentItem{Path: p, SizeBytes: 1}
		if err := s.Put(ctx, item, strings.NewReader("x")); err == nil {
			t.Errorf("Expected Put to reject %q", p)
		}
		if _, err := s.Get(ctx, p); err == nil {
			t.Errorf("Expected Get to reject %q", p)
		}
		if err := s.Delete(ctx, p); err == nil {
			t.Errorf("Expected Delete to reject %q", p)
		}
	}
}

func TestStorageGetMissing(t *testing.T) {
	s, _ := newTestStorage(t)

	_, err := s.Get(context.Background(), "nope.html")
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist in chain, got %v", err)
	}
}

func TestStorageListHashesAndClassifies(t *testing.T) {
	s, root := newTestStorage(t)

	putFile(t, s, "index.html", "<h1>hi</h1>")
	putFile(t, s, "css/app.css", "body{margin:0}")

	// Tooling artifacts alongside the content must not be listed.
	if err := os.MkdirAll(filepath.Join(root, ".cache"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, ".cache", "seed"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, ".partial-stale"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	items, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d: %v", len(items), items)
	}
	if items[0].Path != "css/app.css" || items[1].Path != "index.html" {
		t.Errorf("Expected sorted paths, got %s, %s", items[0].Path, items[1].Path)
	}
	if items[0].ContentHash != sha256hex("body{margin:0}") {
		t.Errorf("Expected content hash for css, got %s", items[0].ContentHash)
	}
	if items[0].Classification.Class != content.ClassAsset {
		t.Errorf("Expected css classified as asset, got %s", items[0].Classification.Class)
	}
	if items[1].Classification.ContentType != "text/html; charset=utf-8" {
		t.Errorf("Expected html content type, got %s", items[1].Classification.ContentType)
	}
	if items[1].SizeBytes != int64(len("<h1>hi</h1>")) {
		t.Errorf("Expected size %d, got %d", len("<h1>hi</h1>"), items[1].SizeBytes)
	}
}

func TestStorageDeleteMissingIsNoop(t *testing.T) {
	s, _ := newTestStorage(t)

	if err := s.Delete(context.Background(), "never/was.html"); err != nil {
		t.Errorf("Expected deleting a missing path to succeed, got %v", err)
	}
}

func TestStorageDeletePrunesEmptyDirs(t *testing.T) {
	s, root := newTestStorage(t)
	ctx := context.Background()

	putFile(t, s, "blog/2026/post.html", "<p>post</p>")
	putFile(t, s, "blog/index.html", "<p>index</p>")

	if err := s.Delete(ctx, "blog/2026/post.html"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "blog", "2026")); !os.IsNotExist(err) {
		t.Error("Expected empty blog/2026 to be pruned")
	}
	if _, err := os.Stat(filepath.Join(root, "blog")); err != nil {
		t.Errorf("Expected blog to survive while index.html remains: %v", err)
	}

	if err := s.Delete(ctx, "blog/index.html"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "blog")); !os.IsNotExist(err) {
		t.Error("Expected empty blog to be pruned")
	}
	if _, err := os.Stat(root); err != nil {
		t.Errorf("Expected the root itself to survive: %v", err)
	}
}

func TestStorageCancelledContext(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	item := content.ContentItem{Path: "index.html", SizeBytes: 1}
	if err := s.Put(ctx, item, strings.NewReader("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled from Put, got %v", err)
	}
	if _, err := s.List(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled from List, got %v", err)
	}
}
