package recon

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/opensundae/opensundae/pkg/telemetry"
)

// Resolver reconciles recorded bindings with live backend state before
// planning. It repairs bindings whose physical object has vanished, adopts
// pre-existing objects that match a declared identity, and refuses to
// proceed when an identity matches more than one object.
type Resolver struct {
	backend ProvisioningBackend
	store   BindingStore
	logger  *telemetry.Logger
}

// NewResolver creates a resolver over the given backend and binding store.
func NewResolver(backend ProvisioningBackend, store BindingStore, logger *telemetry.Logger) *Resolver {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &Resolver{backend: backend, store: store, logger: logger}
}

// Resolve computes a binding for every declared resource.
//
// For each resource, in order:
//
//   - a recorded binding whose physical object still exists is kept;
//   - a recorded binding whose physical object is gone is dropped and the
//     resource re-resolved from scratch;
//   - with no usable recorded binding, the backend is queried by identity:
//     zero matches leaves the resource unbound (a create candidate), exactly
//     one match is adopted and persisted, and several matches produce an
//     AmbiguityError for the operator to settle.
//
// Adoptions and repairs are persisted immediately, so resolving is a write
// operation on the binding store even though it never mutates the backend.
// Ambiguities are collected, not short-circuited: the caller sees every
// ambiguous address in one pass.
func (r *Resolver) Resolve(ctx context.Context, environment string, declared []DeclaredResource) (*Resolution, []AmbiguityError, error) {
	existing, err := r.store.ListBindings(ctx, environment)
	if err != nil {
		return nil, nil, fmt.Errorf("listing bindings for %s: %w", environment, err)
	}

	// Physical objects may be claimed by at most one address. Seed the
	// claim table from recorded state so adoption can detect conflicts
	// before persisting anything.
	claimedBy := make(map[string]string, len(existing))
	for _, b := range existing {
		if prev, ok := claimedBy[b.PhysicalID]; ok {
			addrs := []string{prev, b.Address}
			sort.Strings(addrs)
			return nil, nil, &DuplicateBindingError{PhysicalID: b.PhysicalID, Addresses: addrs}
		}
		claimedBy[b.PhysicalID] = b.Address
	}

	res := &Resolution{Bindings: make(map[string]ResourceBinding, len(declared))}
	var ambiguities []AmbiguityError

	for _, resource := range declared {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		recorded, err := r.store.GetBinding(ctx, environment, resource.Address)
		if err != nil {
			return nil, nil, fmt.Errorf("loading binding for %s: %w", resource.Address, err)
		}

		if recorded != nil {
			_, found, err := r.backend.Lookup(ctx, resource.Kind, recorded.PhysicalID)
			if err != nil {
				return nil, nil, fmt.Errorf("verifying binding %s -> %s: %w", resource.Address, recorded.PhysicalID, err)
			}
			if found {
				res.Bindings[resource.Address] = *recorded
				continue
			}

			// The recorded object is gone. Drop the binding and fall
			// through to identity discovery.
			r.logger.Warn().
				Str("address", resource.Address).
				Str("physical_id", recorded.PhysicalID).
				Msg("Recorded physical object no longer exists, dropping binding")
			if err := r.store.DeleteBinding(ctx, environment, resource.Address); err != nil {
				return nil, nil, fmt.Errorf("dropping stale binding for %s: %w", resource.Address, err)
			}
			delete(claimedBy, recorded.PhysicalID)
			res.Repaired = append(res.Repaired, resource.Address)
		}

		matches, err := r.backend.Describe(ctx, Predicate{Kind: resource.Kind, Identity: resource.Identity})
		if err != nil {
			return nil, nil, fmt.Errorf("describing %s %q: %w", resource.Kind, resource.Identity, err)
		}

		switch len(matches) {
		case 0:
			res.Unbound = append(res.Unbound, resource.Address)

		case 1:
			match := matches[0]
			if holder, taken := claimedBy[match.ID]; taken && holder != resource.Address {
				addrs := []string{holder, resource.Address}
				sort.Strings(addrs)
				return nil, nil, &DuplicateBindingError{PhysicalID: match.ID, Addresses: addrs}
			}
			binding := ResourceBinding{
				Address:    resource.Address,
				PhysicalID: match.ID,
				UpdatedAt:  time.Now().UTC(),
			}
			if err := r.store.PutBinding(ctx, environment, binding); err != nil {
				return nil, nil, fmt.Errorf("persisting adopted binding for %s: %w", resource.Address, err)
			}
			claimedBy[match.ID] = resource.Address
			res.Bindings[resource.Address] = binding
			res.Adopted = append(res.Adopted, resource.Address)
			r.logger.Info().
				Str("address", resource.Address).
				Str("physical_id", match.ID).
				Msg("Adopted pre-existing physical object")

		default:
			ids := make([]string, 0, len(matches))
			for _, m := range matches {
				ids = append(ids, m.ID)
			}
			sort.Strings(ids)
			ambiguities = append(ambiguities, AmbiguityError{
				Address:     resource.Address,
				PhysicalIDs: ids,
			})
		}
	}

	return res, ambiguities, nil
}
