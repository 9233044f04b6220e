package recon

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestImportBinding(t *testing.T) {
	backend := newMockBackend()
	store := newMockBindingStore()
	ctx := context.Background()

	zone := backend.addObject("dns_zone", "example.org")

	binding, err := ImportBinding(ctx, backend, store, nil, "staging", "dns_zone.main", zone.ID)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if binding.PhysicalID != zone.ID {
		t.Errorf("Expected binding to %s, got %s", zone.ID, binding.PhysicalID)
	}
	if binding.ObservedHash != "" {
		t.Error("Expected imported binding to have an empty observed hash")
	}

	persisted, err := store.GetBinding(ctx, "staging", "dns_zone.main")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if persisted == nil || persisted.PhysicalID != zone.ID {
		t.Error("Expected import to be persisted")
	}
}

func TestImportBinding_AddressAlreadyBound(t *testing.T) {
	backend := newMockBackend()
	store := newMockBindingStore()
	ctx := context.Background()

	zone := backend.addObject("dns_zone", "example.org")
	other := backend.addObject("dns_zone", "example.net")
	err := store.PutBinding(ctx, "staging", ResourceBinding{
		Address:    "dns_zone.main",
		PhysicalID: other.ID,
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	_, err = ImportBinding(ctx, backend, store, nil, "staging", "dns_zone.main", zone.ID)
	if err == nil {
		t.Fatal("Expected error for already bound address, got nil")
	}

	var reconErr *Error
	if !errors.As(err, &reconErr) {
		t.Fatalf("Expected classified error, got: %v", err)
	}
	if reconErr.Code != ErrCodeAlreadyBound {
		t.Errorf("Expected already-bound code, got %s", reconErr.Code)
	}
}

func TestImportBinding_PhysicalAlreadyClaimed(t *testing.T) {
	backend := newMockBackend()
	store := newMockBindingStore()
	ctx := context.Background()

	zone := backend.addObject("dns_zone", "example.org")
	err := store.PutBinding(ctx, "staging", ResourceBinding{
		Address:    "dns_zone.legacy",
		PhysicalID: zone.ID,
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	_, err = ImportBinding(ctx, backend, store, nil, "staging", "dns_zone.main", zone.ID)
	if err == nil {
		t.Fatal("Expected error for claimed physical object, got nil")
	}

	var dup *DuplicateBindingError
	if !errors.As(err, &dup) {
		t.Fatalf("Expected DuplicateBindingError, got: %v", err)
	}
	if len(dup.Addresses) != 2 || dup.Addresses[0] != "dns_zone.legacy" || dup.Addresses[1] != "dns_zone.main" {
		t.Errorf("Expected sorted conflicting addresses, got %v", dup.Addresses)
	}
}

func TestImportBinding_ObjectMissing(t *testing.T) {
	backend := newMockBackend()
	store := newMockBindingStore()

	_, err := ImportBinding(context.Background(), backend, store, nil, "staging", "dns_zone.main", "dns_zone-9999")
	if err == nil {
		t.Fatal("Expected error for missing physical object, got nil")
	}

	var reconErr *Error
	if !errors.As(err, &reconErr) {
		t.Fatalf("Expected classified error, got: %v", err)
	}
	if reconErr.Code != ErrCodeNotFound {
		t.Errorf("Expected not-found code, got %s", reconErr.Code)
	}
}

func TestImportBinding_MissingArguments(t *testing.T) {
	backend := newMockBackend()
	store := newMockBindingStore()

	if _, err := ImportBinding(context.Background(), backend, store, nil, "staging", "", "dns_zone-0001"); err == nil {
		t.Error("Expected error for empty address")
	}
	if _, err := ImportBinding(context.Background(), backend, store, nil, "staging", "dns_zone.main", ""); err == nil {
		t.Error("Expected error for empty physical ID")
	}
}

func TestMoveBinding(t *testing.T) {
	store := newMockBindingStore()
	ctx := context.Background()

	err := store.PutBinding(ctx, "staging", ResourceBinding{
		Address:      "dns_zone.0",
		PhysicalID:   "dns_zone-0001",
		ObservedHash: "abc123",
		UpdatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	moved, err := MoveBinding(ctx, store, nil, "staging", "dns_zone.0", "dns_zone.main")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if moved.Address != "dns_zone.main" || moved.PhysicalID != "dns_zone-0001" {
		t.Errorf("Expected move to preserve the physical ID, got %+v", moved)
	}
	if moved.ObservedHash != "abc123" {
		t.Error("Expected move to preserve the observed hash")
	}

	src, err := store.GetBinding(ctx, "staging", "dns_zone.0")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if src != nil {
		t.Error("Expected source binding to be removed")
	}
	dst, err := store.GetBinding(ctx, "staging", "dns_zone.main")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if dst == nil {
		t.Fatal("Expected destination binding to exist")
	}
}

func TestMoveBinding_SourceMissing(t *testing.T) {
	store := newMockBindingStore()

	_, err := MoveBinding(context.Background(), store, nil, "staging", "dns_zone.0", "dns_zone.main")
	if err == nil {
		t.Fatal("Expected error for missing source binding, got nil")
	}

	var reconErr *Error
	if !errors.As(err, &reconErr) {
		t.Fatalf("Expected classified error, got: %v", err)
	}
	if reconErr.Code != ErrCodeNotFound {
		t.Errorf("Expected not-found code, got %s", reconErr.Code)
	}
}

func TestMoveBinding_DestinationOccupied(t *testing.T) {
	store := newMockBindingStore()
	ctx := context.Background()

	for addr, id := range map[string]string{
		"dns_zone.0":    "dns_zone-0001",
		"dns_zone.main": "dns_zone-0002",
	} {
		err := store.PutBinding(ctx, "staging", ResourceBinding{
			Address:    addr,
			PhysicalID: id,
			UpdatedAt:  time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
	}

	_, err := MoveBinding(ctx, store, nil, "staging", "dns_zone.0", "dns_zone.main")
	if err == nil {
		t.Fatal("Expected error for occupied destination, got nil")
	}

	var reconErr *Error
	if !errors.As(err, &reconErr) {
		t.Fatalf("Expected classified error, got: %v", err)
	}
	if reconErr.Code != ErrCodeAlreadyBound {
		t.Errorf("Expected already-bound code, got %s", reconErr.Code)
	}
}

func TestMoveBinding_SameAddress(t *testing.T) {
	store := newMockBindingStore()

	_, err := MoveBinding(context.Background(), store, nil, "staging", "dns_zone.main", "dns_zone.main")
	if err == nil {
		t.Fatal("Expected error for identical addresses, got nil")
	}
}
