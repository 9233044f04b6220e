package content

import (
	"context"
	"fmt"
	"time"

	"github.com/opensundae/opensundae/pkg/telemetry"
)

// Syncer applies sync plans to a storage backend. One syncer serves one
// backend; forward syncs and rollbacks go through the same apply path so
// they share ordering and failure behavior.
type Syncer struct {
	backend StorageBackend
	archive *BlobArchive
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
}

// NewSyncer creates a syncer. A nil archive disables displaced-body
// rescue, which also disables rollback for the content this syncer
// deploys. Nil logger and metrics are replaced with no-ops.
func NewSyncer(backend StorageBackend, archive *BlobArchive, logger *telemetry.Logger, metrics *telemetry.Metrics) *Syncer {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &Syncer{backend: backend, archive: archive, logger: logger, metrics: metrics}
}

// Sync applies a plan: creates and updates first, deletes last, so the
// site is never left without its content during the pass. Before any
// mutation, the deployed bodies the plan will overwrite or delete are
// rescued into the archive; a rescue failure aborts the sync with nothing
// changed, because proceeding would leave the deploy without a rollback
// path.
func (s *Syncer) Sync(ctx context.Context, plan *SyncPlan, source ContentSource) (*SyncResult, error) {
	result := &SyncResult{Paths: plan.TouchedPaths()}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	if plan.IsEmpty() {
		return result, nil
	}

	if err := s.rescueDisplaced(ctx, plan); err != nil {
		return result, err
	}

	for _, item := range plan.Create {
		if err := s.put(ctx, item, source); err != nil {
			return result, err
		}
		result.Created++
		result.BytesUploaded += item.SizeBytes
		s.record("create")
	}
	for _, item := range plan.Update {
		if err := s.put(ctx, item, source); err != nil {
			return result, err
		}
		result.Updated++
		result.BytesUploaded += item.SizeBytes
		s.record("update")
	}
	for _, item := range plan.Delete {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.backend.Delete(ctx, item.Path); err != nil {
			return result, &StorageError{Op: "delete", Path: item.Path, Err: err}
		}
		result.Deleted++
		s.record("delete")
	}

	if s.metrics != nil {
		s.metrics.RecordBytesUploaded(result.BytesUploaded)
	}
	s.logger.Info().
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("deleted", result.Deleted).
		Int64("bytes", result.BytesUploaded).
		Msg("Content sync applied")
	return result, nil
}

// Rollback converges the deployed tree back to a snapshot. It is a diff
// and a sync, nothing more: the snapshot listing is the desired state,
// the current listing is the deployed state, and restored bodies come
// from the archive. No new snapshot is taken; the rollback target stays
// the authoritative record of the restored state.
func (s *Syncer) Rollback(ctx context.Context, snap *Snapshot) (*SyncResult, error) {
	if snap == nil {
		return nil, fmt.Errorf("rollback requires a snapshot")
	}
	if s.archive == nil {
		return nil, fmt.Errorf("rollback requires a blob archive")
	}

	deployed, err := s.backend.List(ctx)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}

	plan := Diff(snap.Items, deployed)

	// Every body the rollback must write has to be in the archive before
	// anything is mutated.
	var missing []string
	for _, item := range append(append([]ContentItem{}, plan.Create...), plan.Update...) {
		if !s.archive.Has(item.ContentHash) {
			missing = append(missing, item.Path)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("rollback to snapshot %s is not possible: %d path(s) have no archived body, first is %s",
			snap.ID, len(missing), missing[0])
	}

	s.logger.Info().
		Str("snapshot_id", snap.ID).
		Str("environment", snap.Environment).
		Str("changes", plan.Summary()).
		Msg("Rolling back content")
	return s.Sync(ctx, plan, s.archive)
}

// rescueDisplaced archives the deployed bodies the plan displaces.
func (s *Syncer) rescueDisplaced(ctx context.Context, plan *SyncPlan) error {
	if s.archive == nil {
		return nil
	}
	for _, item := range append(append([]ContentItem{}, plan.Displaced...), plan.Delete...) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.archive.Has(item.ContentHash) {
			continue
		}
		body, err := s.backend.Get(ctx, item.Path)
		if err != nil {
			return &StorageError{Op: "get", Path: item.Path, Err: err}
		}
		saveErr := s.archive.Save(item.ContentHash, body)
		body.Close()
		if saveErr != nil {
			return fmt.Errorf("failed to rescue %s: %w", item.Path, saveErr)
		}
	}
	return nil
}

// put uploads one item from the source.
func (s *Syncer) put(ctx context.Context, item ContentItem, source ContentSource) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := source.Open(ctx, item)
	if err != nil {
		return fmt.Errorf("failed to open body for %s: %w", item.Path, err)
	}
	putErr := s.backend.Put(ctx, item, body)
	body.Close()
	if putErr != nil {
		return &StorageError{Op: "put", Path: item.Path, Err: putErr}
	}
	return nil
}

func (s *Syncer) record(action string) {
	if s.metrics != nil {
		s.metrics.RecordFileSynced(action)
	}
}
