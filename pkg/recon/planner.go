package recon

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/opensundae/opensundae/pkg/telemetry"
)

// Planner computes dependency-ordered plans from declared resources and
// resolved bindings.
type Planner struct {
	logger *telemetry.Logger
}

// NewPlanner creates a new planner.
func NewPlanner(logger *telemetry.Logger) *Planner {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &Planner{logger: logger}
}

// PlanRequest carries everything plan computation needs.
type PlanRequest struct {
	// Environment is the environment being planned.
	Environment string

	// Declared is the rendered resource catalog for the environment.
	Declared []DeclaredResource

	// Resolution is the output of Resolver.Resolve for the same catalog.
	Resolution *Resolution

	// Recorded is the full binding listing for the environment, so the
	// planner can find bindings whose address is no longer declared.
	Recorded []ResourceBinding

	// ProtectedIndex marks addresses that may never be destroyed, covering
	// addresses absent from Declared (for example a resource disabled by a
	// feature flag whose binding still exists).
	ProtectedIndex map[string]bool
}

// BuildPlan computes the plan for a request and validates it.
//
// Per declared resource: no binding means Create, a binding with a stale
// descriptor hash means Update, a matching hash means NoOp. Recorded
// bindings whose address is no longer declared become Destroy steps after
// all creates and updates. The returned plan has already passed
// ValidatePlan; a plan that would destroy a protected resource is never
// returned.
func (p *Planner) BuildPlan(req PlanRequest) (*Plan, error) {
	if req.Resolution == nil {
		return nil, NewPermanentError("plan requires a resolution", nil).WithCode(ErrCodeValidation)
	}

	ordered, err := orderResources(req.Declared)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Environment: req.Environment,
		Steps:       make([]Step, 0, len(ordered)),
		CreatedAt:   time.Now().UTC(),
	}

	declaredSet := make(map[string]bool, len(ordered))
	for _, res := range ordered {
		declaredSet[res.Address] = true

		desiredHash, err := DescriptorHash(res.Descriptor)
		if err != nil {
			return nil, NewPermanentError(
				fmt.Sprintf("invalid descriptor for %s", res.Address), err,
			).WithAddress(res.Address).WithCode(ErrCodeValidation)
		}

		step := Step{
			Address:        res.Address,
			Kind:           res.Kind,
			Protected:      res.Protected,
			DescriptorHash: desiredHash,
		}

		binding, bound := req.Resolution.Bindings[res.Address]
		switch {
		case !bound:
			step.Op = OpCreate
			step.Reason = "no physical object bound"
		case binding.ObservedHash == "":
			step.Op = OpUpdate
			step.Reason = "adopted object not yet converged"
		case binding.ObservedHash != desiredHash:
			step.Op = OpUpdate
			step.Reason = "descriptor changed"
		default:
			step.Op = OpNoop
			step.Reason = "descriptor unchanged"
		}
		plan.Steps = append(plan.Steps, step)
	}

	// Bindings that lost their declaration become destroys, ordered by
	// address for determinism. Their dependency edges are gone with the
	// declaration, so no finer ordering is available.
	strays := make([]Step, 0)
	for _, b := range req.Recorded {
		if declaredSet[b.Address] {
			continue
		}
		strays = append(strays, Step{
			Address:   b.Address,
			Op:        OpDestroy,
			Kind:      KindOf(b.Address),
			Protected: req.ProtectedIndex[b.Address],
			Reason:    "address no longer declared",
		})
	}
	sort.Slice(strays, func(i, j int) bool { return strays[i].Address < strays[j].Address })
	plan.Steps = append(plan.Steps, strays...)

	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}

	summary := plan.Summary()
	p.logger.Info().
		Str("environment", req.Environment).
		Int("create", summary.Create).
		Int("update", summary.Update).
		Int("destroy", summary.Destroy).
		Int("noop", summary.Noop).
		Msg("Plan computed")
	return plan, nil
}

// BuildDestroyPlan computes a teardown plan for an environment: every
// currently bound declared resource is destroyed in reverse dependency
// order. Protected resources are never torn down; they appear as NoOp
// steps so the operator can see what was deliberately kept.
func (p *Planner) BuildDestroyPlan(req PlanRequest) (*Plan, error) {
	if req.Resolution == nil {
		return nil, NewPermanentError("destroy plan requires a resolution", nil).WithCode(ErrCodeValidation)
	}

	ordered, err := orderResources(req.Declared)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Environment: req.Environment,
		Steps:       make([]Step, 0, len(ordered)),
		CreatedAt:   time.Now().UTC(),
	}

	declaredSet := make(map[string]bool, len(ordered))
	for i := len(ordered) - 1; i >= 0; i-- {
		res := ordered[i]
		declaredSet[res.Address] = true

		if _, bound := req.Resolution.Bindings[res.Address]; !bound {
			plan.Steps = append(plan.Steps, Step{
				Address: res.Address,
				Op:      OpNoop,
				Kind:    res.Kind,
				Reason:  "no physical object bound",
			})
			continue
		}
		if res.Protected {
			plan.Steps = append(plan.Steps, Step{
				Address:   res.Address,
				Op:        OpNoop,
				Kind:      res.Kind,
				Protected: true,
				Reason:    "protected, kept",
			})
			continue
		}
		plan.Steps = append(plan.Steps, Step{
			Address: res.Address,
			Op:      OpDestroy,
			Kind:    res.Kind,
			Reason:  "environment teardown",
		})
	}

	// Stray bindings are torn down too, unless protected.
	strays := make([]Step, 0)
	for _, b := range req.Recorded {
		if declaredSet[b.Address] {
			continue
		}
		if req.ProtectedIndex[b.Address] {
			strays = append(strays, Step{
				Address:   b.Address,
				Op:        OpNoop,
				Kind:      KindOf(b.Address),
				Protected: true,
				Reason:    "protected, kept",
			})
			continue
		}
		strays = append(strays, Step{
			Address: b.Address,
			Op:      OpDestroy,
			Kind:    KindOf(b.Address),
			Reason:  "environment teardown",
		})
	}
	sort.Slice(strays, func(i, j int) bool { return strays[i].Address < strays[j].Address })
	plan.Steps = append(plan.Steps, strays...)

	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// ValidatePlan enforces plan invariants before any backend call. A plan
// with a Destroy step on a protected resource is rejected with
// ProtectedResourceViolation naming every such address.
func ValidatePlan(plan *Plan) error {
	if plan == nil {
		return NewPermanentError("nil plan", nil).WithCode(ErrCodeValidation)
	}

	var violations []string
	seen := make(map[string]bool, len(plan.Steps))
	for _, step := range plan.Steps {
		if err := step.Op.Validate(); err != nil {
			return NewPermanentError(err.Error(), nil).WithAddress(step.Address).WithCode(ErrCodeValidation)
		}
		if seen[step.Address] {
			return NewPermanentError(
				fmt.Sprintf("plan contains address %s twice", step.Address), nil,
			).WithAddress(step.Address).WithCode(ErrCodeValidation)
		}
		seen[step.Address] = true

		if step.Op == OpDestroy && step.Protected {
			violations = append(violations, step.Address)
		}
	}
	if len(violations) > 0 {
		sort.Strings(violations)
		return &ProtectedResourceViolation{Addresses: violations}
	}
	return nil
}

// KindOf derives the resource kind from a logical address. Addresses have
// the form "<kind>.<name>"; for example KindOf("dns_zone.main") returns
// "dns_zone".
func KindOf(address string) string {
	if i := strings.Index(address, "."); i > 0 {
		return address[:i]
	}
	return address
}
