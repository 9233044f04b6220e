package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScanDir walks a local content tree and returns its listing: every
// regular file hashed and classified, sorted by slash-separated relative
// path. Dot-prefixed files and directories are skipped; they are tooling
// artifacts, never published content.
func ScanDir(root string) ([]ContentItem, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat content root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("content root %s is not a directory", root)
	}

	var items []ContentItem
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && p != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		item, err := scanFile(p, filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	return items, nil
}

// scanFile hashes one file and builds its listing entry.
func scanFile(fsPath, relPath string) (ContentItem, error) {
	f, err := os.Open(fsPath)
	if err != nil {
		return ContentItem{}, fmt.Errorf("failed to open %s: %w", relPath, err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return ContentItem{}, fmt.Errorf("failed to hash %s: %w", relPath, err)
	}

	return ContentItem{
		Path:           relPath,
		ContentHash:    hex.EncodeToString(h.Sum(nil)),
		SizeBytes:      n,
		Classification: Classify(relPath),
	}, nil
}

// DirSource serves item bodies from a local content tree. It is the
// ContentSource for forward syncs.
type DirSource struct {
	root string
}

// NewDirSource creates a source over a content root.
func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

// Open opens the file backing an item.
func (s *DirSource) Open(_ context.Context, item ContentItem) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(item.Path)))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", item.Path, err)
	}
	return f, nil
}
