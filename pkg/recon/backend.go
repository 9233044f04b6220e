package recon

import "context"

// ProvisioningBackend is the driver for one infrastructure provider. The
// reconciler is backend-agnostic: it only ever observes and mutates
// physical objects through this interface.
//
// Implementations classify their failures with the Error type so the
// reconciler can retry transient and throttled errors and fail fast on
// permanent ones.
type ProvisioningBackend interface {
	// Describe returns every physical object matching the predicate.
	// An empty slice means no match; more than one element means the
	// identity is ambiguous on the backend.
	Describe(ctx context.Context, pred Predicate) ([]PhysicalObject, error)

	// Create provisions a new physical object from the resource descriptor
	// and returns it.
	Create(ctx context.Context, res DeclaredResource) (PhysicalObject, error)

	// Update converges the bound physical object toward the resource
	// descriptor and returns the refreshed object.
	Update(ctx context.Context, binding ResourceBinding, res DeclaredResource) (PhysicalObject, error)

	// Destroy removes the bound physical object. Destroying an object that
	// is already gone is not an error.
	Destroy(ctx context.Context, binding ResourceBinding) error

	// Lookup fetches a single physical object by backend ID, for import
	// verification and stale-binding detection. Returns found=false when
	// the object does not exist.
	Lookup(ctx context.Context, kind, physicalID string) (obj PhysicalObject, found bool, err error)
}

// BindingStore persists address-to-physical bindings per environment.
// Implemented by the stores package.
type BindingStore interface {
	// GetBinding returns the binding for an address, or nil when none is
	// recorded.
	GetBinding(ctx context.Context, environment, address string) (*ResourceBinding, error)

	// ListBindings returns all bindings for an environment, sorted by
	// address.
	ListBindings(ctx context.Context, environment string) ([]ResourceBinding, error)

	// PutBinding inserts or replaces the binding for its address.
	PutBinding(ctx context.Context, environment string, binding ResourceBinding) error

	// DeleteBinding removes the binding for an address. Deleting a missing
	// binding is not an error.
	DeleteBinding(ctx context.Context, environment, address string) error
}
