package pipeline

import (
	"context"

	"github.com/opensundae/opensundae/pkg/content"
	"github.com/opensundae/opensundae/pkg/recon"
	"github.com/opensundae/opensundae/pkg/stores"
)

// bindingStore adapts the relational state store to the reconciler's
// binding interface. The store enforces the one-physical-object-per-
// address invariant; the adapter only converts shapes.
type bindingStore struct {
	store stores.Store
}

// NewBindingStore exposes the state store's bindings table to the
// reconciler.
func NewBindingStore(store stores.Store) recon.BindingStore {
	return &bindingStore{store: store}
}

func (b *bindingStore) GetBinding(ctx context.Context, environment, address string) (*recon.ResourceBinding, error) {
	rec, err := b.store.GetBinding(ctx, environment, address)
	if err != nil || rec == nil {
		return nil, err
	}
	rb := toResourceBinding(rec)
	return &rb, nil
}

func (b *bindingStore) ListBindings(ctx context.Context, environment string) ([]recon.ResourceBinding, error) {
	recs, err := b.store.ListBindings(ctx, environment)
	if err != nil {
		return nil, err
	}
	out := make([]recon.ResourceBinding, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toResourceBinding(rec))
	}
	return out, nil
}

func (b *bindingStore) PutBinding(ctx context.Context, environment string, binding recon.ResourceBinding) error {
	return b.store.PutBinding(ctx, &stores.Binding{
		Environment:  environment,
		Address:      binding.Address,
		PhysicalID:   binding.PhysicalID,
		ObservedHash: binding.ObservedHash,
		UpdatedAt:    binding.UpdatedAt,
	})
}

func (b *bindingStore) DeleteBinding(ctx context.Context, environment, address string) error {
	return b.store.DeleteBinding(ctx, environment, address)
}

func toResourceBinding(rec *stores.Binding) recon.ResourceBinding {
	return recon.ResourceBinding{
		Address:      rec.Address,
		PhysicalID:   rec.PhysicalID,
		ObservedHash: rec.ObservedHash,
		UpdatedAt:    rec.UpdatedAt,
	}
}

// snapshotStore adapts the relational state store to the content
// package's snapshot interface.
type snapshotStore struct {
	store stores.Store
}

// NewSnapshotStore exposes the state store's snapshot tables to the
// content syncer.
func NewSnapshotStore(store stores.Store) content.SnapshotStore {
	return &snapshotStore{store: store}
}

func (s *snapshotStore) CreateSnapshot(ctx context.Context, snap content.Snapshot) error {
	header := &stores.Snapshot{
		ID:          snap.ID,
		Environment: snap.Environment,
		ItemCount:   len(snap.Items),
		TotalBytes:  snap.TotalBytes(),
		Note:        snap.Note,
		CreatedAt:   snap.CreatedAt,
	}
	items := make([]stores.SnapshotItem, 0, len(snap.Items))
	for _, it := range snap.Items {
		items = append(items, stores.SnapshotItem{
			SnapshotID:      snap.ID,
			Path:            it.Path,
			ContentHash:     it.ContentHash,
			SizeBytes:       it.SizeBytes,
			ContentType:     it.Classification.ContentType,
			CacheTTLSeconds: it.Classification.CacheTTLSeconds,
		})
	}
	return s.store.CreateSnapshot(ctx, header, items)
}

func (s *snapshotStore) GetSnapshot(ctx context.Context, id string) (*content.Snapshot, error) {
	header, items, err := s.store.GetSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromStoredSnapshot(header, items), nil
}

func (s *snapshotStore) LatestSnapshot(ctx context.Context, environment string) (*content.Snapshot, error) {
	header, items, err := s.store.GetLatestSnapshot(ctx, environment)
	if err != nil || header == nil {
		return nil, err
	}
	return fromStoredSnapshot(header, items), nil
}

// fromStoredSnapshot rebuilds content items from snapshot rows. The
// stored content type and TTL stay authoritative; only the policy
// class is re-derived from the path.
func fromStoredSnapshot(header *stores.Snapshot, items []stores.SnapshotItem) *content.Snapshot {
	snap := &content.Snapshot{
		ID:          header.ID,
		Environment: header.Environment,
		Note:        header.Note,
		CreatedAt:   header.CreatedAt,
		Items:       make([]content.ContentItem, 0, len(items)),
	}
	for _, it := range items {
		cls := content.Classify(it.Path)
		cls.ContentType = it.ContentType
		cls.CacheTTLSeconds = it.CacheTTLSeconds
		snap.Items = append(snap.Items, content.ContentItem{
			Path:           it.Path,
			ContentHash:    it.ContentHash,
			SizeBytes:      it.SizeBytes,
			Classification: cls,
		})
	}
	return snap
}
