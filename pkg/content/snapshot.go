package content

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// TakeSnapshot records the deployed listing as a new immutable snapshot
// and returns it. The listing is copied and sorted; the caller's slice is
// not retained.
func TakeSnapshot(ctx context.Context, store SnapshotStore, environment, note string, deployed []ContentItem) (*Snapshot, error) {
	if environment == "" {
		return nil, fmt.Errorf("environment is required")
	}

	items := make([]ContentItem, len(deployed))
	copy(items, deployed)
	sortByPath(items)

	snap := Snapshot{
		ID:          uuid.New().String(),
		Environment: environment,
		Note:        note,
		CreatedAt:   time.Now().UTC(),
		Items:       items,
	}
	if err := store.CreateSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to record snapshot: %w", err)
	}
	return &snap, nil
}

// SnapshotForRollback loads the rollback target: the named snapshot, or
// the latest one for the environment when id is empty.
func SnapshotForRollback(ctx context.Context, store SnapshotStore, environment, id string) (*Snapshot, error) {
	if id != "" {
		snap, err := store.GetSnapshot(ctx, id)
		if err != nil {
			return nil, err
		}
		if snap.Environment != environment {
			return nil, fmt.Errorf("snapshot %s belongs to environment %s, not %s", id, snap.Environment, environment)
		}
		return snap, nil
	}

	snap, err := store.LatestSnapshot(ctx, environment)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("no snapshot recorded for environment %s", environment)
	}
	return snap, nil
}

// HashSet returns the snapshot's path-to-hash index.
func (s *Snapshot) HashSet() map[string]string {
	hashes := make(map[string]string, len(s.Items))
	for _, item := range s.Items {
		hashes[item.Path] = item.ContentHash
	}
	return hashes
}

// TotalBytes sums the item sizes.
func (s *Snapshot) TotalBytes() int64 {
	var total int64
	for _, item := range s.Items {
		total += item.SizeBytes
	}
	return total
}

// Paths returns the snapshot's paths, sorted.
func (s *Snapshot) Paths() []string {
	paths := make([]string, 0, len(s.Items))
	for _, item := range s.Items {
		paths = append(paths, item.Path)
	}
	sort.Strings(paths)
	return paths
}
