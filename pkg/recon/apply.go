package recon

import (
	"context"
	"fmt"
	"time"

	"github.com/opensundae/opensundae/pkg/telemetry"
)

// ApplyOptions tunes retry behavior for backend operations.
type ApplyOptions struct {
	// MaxAttempts is the maximum number of tries per step, first included.
	MaxAttempts int

	// BaseDelay is the initial backoff delay; it doubles per retry.
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration
}

// DefaultApplyOptions returns the standard retry policy: three attempts
// with a 2s base delay.
func DefaultApplyOptions() ApplyOptions {
	return ApplyOptions{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Applier executes validated plans against a provisioning backend,
// persisting each step's binding as soon as the step completes.
type Applier struct {
	backend ProvisioningBackend
	store   BindingStore
	logger  *telemetry.Logger
	opts    ApplyOptions
}

// NewApplier creates an applier. Zero-valued options fall back to
// DefaultApplyOptions.
func NewApplier(backend ProvisioningBackend, store BindingStore, logger *telemetry.Logger, opts ApplyOptions) *Applier {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	def := DefaultApplyOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = def.BaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = def.MaxDelay
	}
	return &Applier{backend: backend, store: store, logger: logger, opts: opts}
}

// Apply executes the plan's mutating steps in order. NoOp steps are
// skipped without a backend call. Transient and throttled failures are
// retried with exponential backoff; permanent failures and exhausted
// retries stop the apply immediately.
//
// A stopped apply returns PartialApplyError alongside the results of the
// steps that did complete. Completed steps keep their persisted bindings:
// recovery is a fresh plan, which will cover only the remaining work.
func (a *Applier) Apply(ctx context.Context, plan *Plan, declared []DeclaredResource) (*ApplyResult, error) {
	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}

	byAddress := make(map[string]DeclaredResource, len(declared))
	for _, res := range declared {
		byAddress[res.Address] = res
	}

	mutating := 0
	for _, step := range plan.Steps {
		if step.Op.IsMutating() {
			mutating++
		}
	}

	result := &ApplyResult{Environment: plan.Environment}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	for _, step := range plan.Steps {
		if !step.Op.IsMutating() {
			result.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, &PartialApplyError{
				Applied:   len(result.Applied),
				Remaining: mutating - len(result.Applied),
				Address:   step.Address,
				Err:       err,
			}
		}

		stepStart := time.Now()
		attempts, err := a.applyStep(ctx, plan.Environment, step, byAddress)
		if err != nil {
			a.logger.Error().
				Err(err).
				Str("address", step.Address).
				Str("op", string(step.Op)).
				Int("attempts", attempts).
				Msg("Apply step failed")
			return result, &PartialApplyError{
				Applied:   len(result.Applied),
				Remaining: mutating - len(result.Applied),
				Address:   step.Address,
				Err:       err,
			}
		}

		sr := StepResult{
			Address:  step.Address,
			Op:       step.Op,
			Duration: time.Since(stepStart),
			Attempts: attempts,
		}
		if step.Op != OpDestroy {
			if b, err := a.store.GetBinding(ctx, plan.Environment, step.Address); err == nil && b != nil {
				sr.PhysicalID = b.PhysicalID
			}
		}
		result.Applied = append(result.Applied, sr)
		a.logger.Info().
			Str("address", step.Address).
			Str("op", string(step.Op)).
			Dur("duration", sr.Duration).
			Msg("Apply step complete")
	}

	return result, nil
}

// applyStep dispatches one mutating step with retries and persists the
// resulting binding change.
func (a *Applier) applyStep(ctx context.Context, environment string, step Step, byAddress map[string]DeclaredResource) (int, error) {
	switch step.Op {
	case OpCreate:
		res, ok := byAddress[step.Address]
		if !ok {
			return 0, NewPermanentError(
				fmt.Sprintf("plan step %s has no declared resource", step.Address), nil,
			).WithAddress(step.Address).WithCode(ErrCodeValidation)
		}
		return a.retry(ctx, step, func() error {
			obj, err := a.backend.Create(ctx, res)
			if err != nil {
				return err
			}
			return a.store.PutBinding(ctx, environment, ResourceBinding{
				Address:      step.Address,
				PhysicalID:   obj.ID,
				ObservedHash: step.DescriptorHash,
				UpdatedAt:    time.Now().UTC(),
			})
		})

	case OpUpdate:
		res, ok := byAddress[step.Address]
		if !ok {
			return 0, NewPermanentError(
				fmt.Sprintf("plan step %s has no declared resource", step.Address), nil,
			).WithAddress(step.Address).WithCode(ErrCodeValidation)
		}
		binding, err := a.store.GetBinding(ctx, environment, step.Address)
		if err != nil {
			return 0, err
		}
		if binding == nil {
			return 0, NewPermanentError(
				fmt.Sprintf("update step %s has no binding", step.Address), nil,
			).WithAddress(step.Address).WithCode(ErrCodeNotFound)
		}
		return a.retry(ctx, step, func() error {
			obj, err := a.backend.Update(ctx, *binding, res)
			if err != nil {
				return err
			}
			return a.store.PutBinding(ctx, environment, ResourceBinding{
				Address:      step.Address,
				PhysicalID:   obj.ID,
				ObservedHash: step.DescriptorHash,
				UpdatedAt:    time.Now().UTC(),
			})
		})

	case OpDestroy:
		binding, err := a.store.GetBinding(ctx, environment, step.Address)
		if err != nil {
			return 0, err
		}
		if binding == nil {
			// Already gone; nothing to destroy.
			return 1, nil
		}
		return a.retry(ctx, step, func() error {
			if err := a.backend.Destroy(ctx, *binding); err != nil {
				return err
			}
			return a.store.DeleteBinding(ctx, environment, step.Address)
		})

	default:
		return 0, NewPermanentError(
			fmt.Sprintf("unexpected op %s in apply", step.Op), nil,
		).WithAddress(step.Address).WithCode(ErrCodeValidation)
	}
}

// retry runs fn up to MaxAttempts times, backing off exponentially between
// tries. Only transient and throttled errors are retried; throttled errors
// wait twice as long.
func (a *Applier) retry(ctx context.Context, step Step, fn func() error) (int, error) {
	delay := a.opts.BaseDelay
	var err error
	for attempt := 1; attempt <= a.opts.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return attempt, nil
		}
		if !IsRetryable(err) {
			return attempt, err
		}
		if attempt == a.opts.MaxAttempts {
			return attempt, err
		}

		wait := delay
		if IsThrottled(err) {
			wait *= 2
		}
		if wait > a.opts.MaxDelay {
			wait = a.opts.MaxDelay
		}
		a.logger.Warn().
			Err(err).
			Str("address", step.Address).
			Str("op", string(step.Op)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying apply step")

		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}
	return a.opts.MaxAttempts, err
}
