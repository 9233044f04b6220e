package recon

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Op represents the kind of change a plan step performs.
type Op string

const (
	// OpCreate provisions a new physical object for an unbound resource.
	OpCreate Op = "create"

	// OpUpdate converges a bound physical object toward its descriptor.
	OpUpdate Op = "update"

	// OpDestroy removes a physical object whose address is no longer declared.
	OpDestroy Op = "destroy"

	// OpNoop records that a bound resource already matches its descriptor.
	OpNoop Op = "noop"
)

// Validate checks if the op is valid.
func (o Op) Validate() error {
	switch o {
	case OpCreate, OpUpdate, OpDestroy, OpNoop:
		return nil
	default:
		return fmt.Errorf("invalid op: %s", o)
	}
}

// IsMutating returns true when the op changes backend state.
func (o Op) IsMutating() bool {
	return o == OpCreate || o == OpUpdate || o == OpDestroy
}

// DeclaredResource is one desired infrastructure resource, produced by
// rendering the site catalog for a concrete environment.
type DeclaredResource struct {
	// Address is the stable logical address, e.g. "dns_zone.main".
	Address string `json:"address"`

	// Kind is the resource kind understood by the provisioning backend,
	// e.g. "dns_zone", "storage", "cdn". It is always the address prefix.
	Kind string `json:"kind"`

	// Identity is the backend-visible identifying attribute used to match
	// pre-existing physical objects: the apex domain for a DNS zone, the
	// bucket name for storage, the alias for a CDN distribution.
	Identity string `json:"identity"`

	// Descriptor is the full desired configuration as canonical JSON.
	Descriptor json.RawMessage `json:"descriptor"`

	// Protected marks resources that must never be destroyed by a plan.
	Protected bool `json:"protected,omitempty"`

	// DependsOn lists addresses that must be reconciled before this one.
	DependsOn []string `json:"depends_on,omitempty"`
}

// PhysicalObject is a live object reported by the provisioning backend.
type PhysicalObject struct {
	// ID is the backend-assigned identifier, e.g. a zone ID or bucket ARN.
	ID string `json:"id"`

	// Kind is the resource kind of the object.
	Kind string `json:"kind"`

	// Identity is the identifying attribute the object was matched on.
	Identity string `json:"identity"`

	// Attributes is the backend's current view of the object, as JSON.
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

// Predicate selects physical objects by kind and identity. It is the query
// shape for ProvisioningBackend.Describe.
type Predicate struct {
	// Kind restricts the query to one resource kind.
	Kind string `json:"kind"`

	// Identity is the identifying attribute to match, e.g. "example.org".
	Identity string `json:"identity"`
}

// ResourceBinding records that a logical address is realized by a concrete
// physical object. Bindings are persisted per environment and survive
// process restarts.
type ResourceBinding struct {
	// Address is the logical address, unique within an environment.
	Address string `json:"address"`

	// PhysicalID is the bound physical object's backend identifier.
	// A physical object is bound by at most one address.
	PhysicalID string `json:"physical_id"`

	// ObservedHash is the descriptor hash recorded at the last successful
	// create or update. Empty for imported objects not yet converged.
	ObservedHash string `json:"observed_hash,omitempty"`

	// UpdatedAt is when the binding was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// Step is one entry of a plan: an operation on a single address.
type Step struct {
	// Address is the logical address the step operates on.
	Address string `json:"address"`

	// Op is the change kind.
	Op Op `json:"op"`

	// Kind is the resource kind, carried for display and dispatch.
	Kind string `json:"kind"`

	// Protected carries the resource's protection flag into the plan so
	// validation needs no second look at the catalog.
	Protected bool `json:"protected,omitempty"`

	// Reason is a short human-readable explanation for the op choice.
	Reason string `json:"reason,omitempty"`

	// DescriptorHash is the desired descriptor hash. Empty for destroys.
	DescriptorHash string `json:"descriptor_hash,omitempty"`
}

// Plan is an ordered set of steps that converges an environment's
// infrastructure to its declared catalog. Steps appear in dependency
// order; destroys come last.
type Plan struct {
	// Environment is the environment the plan was computed for.
	Environment string `json:"environment"`

	// Steps is the ordered step list, NoOp steps included.
	Steps []Step `json:"steps"`

	// CreatedAt is when the plan was computed.
	CreatedAt time.Time `json:"created_at"`
}

// Summary aggregates a plan's step counts by op.
func (p *Plan) Summary() PlanSummary {
	var s PlanSummary
	for _, st := range p.Steps {
		switch st.Op {
		case OpCreate:
			s.Create++
		case OpUpdate:
			s.Update++
		case OpDestroy:
			s.Destroy++
		case OpNoop:
			s.Noop++
		}
	}
	s.Total = len(p.Steps)
	return s
}

// IsNoop returns true when the plan contains no mutating steps.
func (p *Plan) IsNoop() bool {
	for _, st := range p.Steps {
		if st.Op.IsMutating() {
			return false
		}
	}
	return true
}

// PlanSummary holds per-op counts for a plan.
type PlanSummary struct {
	// Create is the number of create steps.
	Create int `json:"create"`

	// Update is the number of update steps.
	Update int `json:"update"`

	// Destroy is the number of destroy steps.
	Destroy int `json:"destroy"`

	// Noop is the number of no-op steps.
	Noop int `json:"noop"`

	// Total is the total number of steps.
	Total int `json:"total"`
}

// String renders the summary in the conventional "N to create" form.
func (s PlanSummary) String() string {
	return fmt.Sprintf("%d to create, %d to update, %d to destroy, %d unchanged",
		s.Create, s.Update, s.Destroy, s.Noop)
}

// StepResult records the outcome of one applied step.
type StepResult struct {
	// Address is the step's logical address.
	Address string `json:"address"`

	// Op is the operation that was performed.
	Op Op `json:"op"`

	// PhysicalID is the resulting physical ID, empty after a destroy.
	PhysicalID string `json:"physical_id,omitempty"`

	// Duration is how long the step took, retries included.
	Duration time.Duration `json:"duration"`

	// Attempts is how many backend calls the step needed.
	Attempts int `json:"attempts"`
}

// ApplyResult is the outcome of executing a plan.
type ApplyResult struct {
	// Environment is the environment the plan was applied to.
	Environment string `json:"environment"`

	// Applied lists the steps that completed, in execution order.
	Applied []StepResult `json:"applied"`

	// Skipped is the number of no-op steps that were not dispatched.
	Skipped int `json:"skipped"`

	// Duration is the total apply wall time.
	Duration time.Duration `json:"duration"`
}

// Resolution is the outcome of resolving declared resources against
// recorded bindings and live backend state.
type Resolution struct {
	// Bindings maps each resolved address to its binding. Adopted
	// pre-existing objects appear here alongside recorded bindings.
	Bindings map[string]ResourceBinding `json:"bindings"`

	// Unbound lists declared addresses with no matching physical object;
	// these become create steps.
	Unbound []string `json:"unbound,omitempty"`

	// Repaired lists addresses whose recorded binding pointed at a
	// vanished physical object and was dropped.
	Repaired []string `json:"repaired,omitempty"`

	// Adopted lists addresses bound to a pre-existing physical object
	// during this resolution.
	Adopted []string `json:"adopted,omitempty"`
}

// DescriptorHash computes the canonical content hash of a descriptor.
// The JSON is decoded and re-encoded so key order and whitespace in the
// input never change the hash.
func DescriptorHash(descriptor json.RawMessage) (string, error) {
	if len(descriptor) == 0 {
		return "", nil
	}
	var v interface{}
	if err := json.Unmarshal(descriptor, &v); err != nil {
		return "", fmt.Errorf("descriptor is not valid JSON: %w", err)
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("re-encoding descriptor: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
