package content

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"
)

// Class is the cache policy bucket a content path falls into.
type Class string

const (
	// ClassMarkup covers pages and data documents that change on every
	// deploy and must revalidate quickly.
	ClassMarkup Class = "markup"

	// ClassAsset covers fingerprinted static assets that are safe to cache
	// long-term.
	ClassAsset Class = "asset"

	// ClassMedia covers images and other media with a medium cache life.
	ClassMedia Class = "media"

	// ClassOther covers everything without a recognized extension.
	ClassOther Class = "other"
)

// Classification is the serving policy derived from a content path: the
// Content-Type to set on upload and the cache lifetime.
type Classification struct {
	// Class is the policy bucket.
	Class Class `json:"class"`

	// ContentType is the MIME type served for the path.
	ContentType string `json:"content_type"`

	// CacheTTLSeconds is the max-age advertised to caches.
	CacheTTLSeconds int `json:"cache_ttl_seconds"`
}

// CacheControl renders the Cache-Control header value for the policy.
func (c Classification) CacheControl() string {
	return fmt.Sprintf("public, max-age=%d", c.CacheTTLSeconds)
}

// ContentItem is one file of a content tree, local or deployed.
type ContentItem struct {
	// Path is the slash-separated path relative to the tree root.
	Path string `json:"path"`

	// ContentHash is the hex sha256 of the file body.
	ContentHash string `json:"content_hash"`

	// SizeBytes is the body length.
	SizeBytes int64 `json:"size_bytes"`

	// Classification is the serving policy for the path.
	Classification Classification `json:"classification"`
}

// Snapshot is an immutable listing of the deployed content tree at one
// point in time. Snapshots are append-only: taken before every sync,
// never modified, and consulted only for rollback.
type Snapshot struct {
	// ID is the snapshot's unique identifier.
	ID string `json:"id"`

	// Environment is the environment the listing was taken from.
	Environment string `json:"environment"`

	// Note is an optional operator annotation.
	Note string `json:"note,omitempty"`

	// CreatedAt is when the listing was taken.
	CreatedAt time.Time `json:"created_at"`

	// Items is the full listing, sorted by path.
	Items []ContentItem `json:"items"`
}

// SyncPlan is the diff between a desired content tree and the deployed
// one. Create and Update carry desired items; Delete carries deployed
// items with no desired counterpart. Displaced carries the deployed
// versions of updated paths, so their bytes can be rescued for rollback
// before they are overwritten.
type SyncPlan struct {
	// Create lists items to upload that do not exist deployed.
	Create []ContentItem `json:"create"`

	// Update lists items whose deployed hash differs.
	Update []ContentItem `json:"update"`

	// Delete lists deployed items that are no longer desired.
	Delete []ContentItem `json:"delete"`

	// Displaced lists the deployed versions of the Update paths.
	Displaced []ContentItem `json:"displaced,omitempty"`
}

// IsEmpty returns true when the plan changes nothing.
func (p *SyncPlan) IsEmpty() bool {
	return len(p.Create) == 0 && len(p.Update) == 0 && len(p.Delete) == 0
}

// Summary renders the plan in the conventional counting form.
func (p *SyncPlan) Summary() string {
	return fmt.Sprintf("%d to upload, %d to update, %d to delete",
		len(p.Create), len(p.Update), len(p.Delete))
}

// TouchedPaths returns the web paths the plan changes, sorted, each with
// a leading slash. This is the invalidation set for the CDN.
func (p *SyncPlan) TouchedPaths() []string {
	paths := make([]string, 0, len(p.Create)+len(p.Update)+len(p.Delete))
	for _, item := range p.Create {
		paths = append(paths, "/"+item.Path)
	}
	for _, item := range p.Update {
		paths = append(paths, "/"+item.Path)
	}
	for _, item := range p.Delete {
		paths = append(paths, "/"+item.Path)
	}
	sort.Strings(paths)
	return paths
}

// SyncResult is the outcome of a sync or rollback pass.
type SyncResult struct {
	// Created, Updated and Deleted count the applied changes.
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`

	// BytesUploaded is the total body size written to the backend.
	BytesUploaded int64 `json:"bytes_uploaded"`

	// Paths is the touched web path set, for cache invalidation.
	Paths []string `json:"paths"`

	// Duration is the total wall time.
	Duration time.Duration `json:"duration"`
}

// StorageBackend is the driver for one content storage target. List,
// Get, Put and Delete operate on slash-separated paths relative to the
// target's root.
type StorageBackend interface {
	// List returns the deployed listing, sorted by path. Hashes must be
	// content hashes, not storage metadata, so diffs are exact.
	List(ctx context.Context) ([]ContentItem, error)

	// Get opens the deployed body at a path for reading.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Put writes an item's body, setting Content-Type and Cache-Control
	// from the item's classification.
	Put(ctx context.Context, item ContentItem, body io.Reader) error

	// Delete removes the object at a path. Deleting a missing path is
	// not an error.
	Delete(ctx context.Context, path string) error
}

// ContentSource yields the body for an item about to be uploaded. The
// local content tree is a source for forward syncs; the blob archive is
// the source for rollbacks.
type ContentSource interface {
	Open(ctx context.Context, item ContentItem) (io.ReadCloser, error)
}

// SnapshotStore persists snapshots per environment. Implemented by the
// stores package through an adapter.
type SnapshotStore interface {
	// CreateSnapshot appends a snapshot. IDs are unique; an existing
	// snapshot is never overwritten.
	CreateSnapshot(ctx context.Context, snap Snapshot) error

	// GetSnapshot returns a snapshot by ID, items included.
	GetSnapshot(ctx context.Context, id string) (*Snapshot, error)

	// LatestSnapshot returns the most recent snapshot for an
	// environment, or nil when none exists.
	LatestSnapshot(ctx context.Context, environment string) (*Snapshot, error)
}

// StorageError is a classified failure of a storage backend operation.
type StorageError struct {
	// Op is the backend operation: "list", "get", "put" or "delete".
	Op string

	// Path is the object path involved, if any.
	Path string

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s failed: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}
