package recon

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/opensundae/opensundae/pkg/telemetry"
)

// ImportBinding records a pre-existing physical object under a logical
// address without touching the object. The backend is consulted to verify
// the object exists; the binding's observed hash is left empty so the next
// plan converges the object with an Update.
//
// Importing over an existing binding, or importing a physical object that
// another address already binds, is rejected. State moves use MoveBinding.
func ImportBinding(ctx context.Context, backend ProvisioningBackend, store BindingStore, logger *telemetry.Logger, environment, address, physicalID string) (*ResourceBinding, error) {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	if address == "" || physicalID == "" {
		return nil, NewPermanentError("import requires an address and a physical ID", nil).WithCode(ErrCodeValidation)
	}

	existing, err := store.GetBinding(ctx, environment, address)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewPermanentError(
			fmt.Sprintf("address %s is already bound to %s; remove or move it first", address, existing.PhysicalID), nil,
		).WithAddress(address).WithCode(ErrCodeAlreadyBound)
	}

	all, err := store.ListBindings(ctx, environment)
	if err != nil {
		return nil, err
	}
	for _, b := range all {
		if b.PhysicalID == physicalID {
			addrs := []string{b.Address, address}
			sort.Strings(addrs)
			return nil, &DuplicateBindingError{PhysicalID: physicalID, Addresses: addrs}
		}
	}

	kind := KindOf(address)
	_, found, err := backend.Lookup(ctx, kind, physicalID)
	if err != nil {
		return nil, fmt.Errorf("looking up %s %s: %w", kind, physicalID, err)
	}
	if !found {
		return nil, NewPermanentError(
			fmt.Sprintf("no %s with ID %s exists on the backend", kind, physicalID), nil,
		).WithAddress(address).WithCode(ErrCodeNotFound)
	}

	binding := ResourceBinding{
		Address:    address,
		PhysicalID: physicalID,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := store.PutBinding(ctx, environment, binding); err != nil {
		return nil, err
	}
	logger.Info().
		Str("environment", environment).
		Str("address", address).
		Str("physical_id", physicalID).
		Msg("Imported physical object")
	return &binding, nil
}

// MoveBinding renames a logical address in recorded state without touching
// the physical object. Used to migrate from positional addressing schemes
// (for example "dns_zone.0") to stable singleton addresses without a
// destroy and recreate cycle.
func MoveBinding(ctx context.Context, store BindingStore, logger *telemetry.Logger, environment, from, to string) (*ResourceBinding, error) {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	if from == "" || to == "" {
		return nil, NewPermanentError("move requires a source and destination address", nil).WithCode(ErrCodeValidation)
	}
	if from == to {
		return nil, NewPermanentError("source and destination address are identical", nil).WithAddress(from).WithCode(ErrCodeValidation)
	}

	src, err := store.GetBinding(ctx, environment, from)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, NewPermanentError(
			fmt.Sprintf("no binding recorded for %s", from), nil,
		).WithAddress(from).WithCode(ErrCodeNotFound)
	}

	dst, err := store.GetBinding(ctx, environment, to)
	if err != nil {
		return nil, err
	}
	if dst != nil {
		return nil, NewPermanentError(
			fmt.Sprintf("destination address %s is already bound to %s", to, dst.PhysicalID), nil,
		).WithAddress(to).WithCode(ErrCodeAlreadyBound)
	}

	moved := ResourceBinding{
		Address:      to,
		PhysicalID:   src.PhysicalID,
		ObservedHash: src.ObservedHash,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := store.PutBinding(ctx, environment, moved); err != nil {
		return nil, err
	}
	if err := store.DeleteBinding(ctx, environment, from); err != nil {
		return nil, err
	}
	logger.Info().
		Str("environment", environment).
		Str("from", from).
		Str("to", to).
		Str("physical_id", src.PhysicalID).
		Msg("Moved binding")
	return &moved, nil
}
