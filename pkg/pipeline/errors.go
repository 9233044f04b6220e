package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensundae/opensundae/pkg/policy"
	"github.com/opensundae/opensundae/pkg/recon"
)

// ErrConfirmationDeclined is returned when the operator answers no at
// the plan confirmation gate. The run is recorded as cancelled.
var ErrConfirmationDeclined = errors.New("deployment not confirmed")

// ErrPlanStale is returned when deployment inputs changed while the
// plan was awaiting confirmation. The confirmed plan no longer
// describes what would happen, so the run is cancelled and the
// operator must plan again.
var ErrPlanStale = errors.New("plan is stale: deployment inputs changed while awaiting confirmation, re-run plan")

// RunInProgressError means another run already holds the environment
// lease. The caller should wait for it to finish or expire.
type RunInProgressError struct {
	Environment string
	Holder      string
	ExpiresAt   time.Time
}

func (e *RunInProgressError) Error() string {
	if e.Holder == "" {
		return fmt.Sprintf("a run is already in progress for environment %s", e.Environment)
	}
	return fmt.Sprintf("a run is already in progress for environment %s (holder %s, lease expires %s)",
		e.Environment, e.Holder, e.ExpiresAt.UTC().Format(time.RFC3339))
}

// PolicyDeniedError means policy evaluation rejected the plan. The
// violations explain which rules fired.
type PolicyDeniedError struct {
	Violations []policy.Violation
}

func (e *PolicyDeniedError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Policy, v.Message))
	}
	return "plan denied by policy: " + strings.Join(parts, "; ")
}

// isCancellation reports whether err represents a deliberate stop
// rather than a failure. Cancelled runs are recorded as cancelled, not
// failed, and never trigger a rollback.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrConfirmationDeclined) ||
		errors.Is(err, ErrPlanStale)
}

// errorClass buckets an error for metrics.
func errorClass(err error) string {
	switch {
	case recon.IsThrottled(err):
		return "throttled"
	case recon.IsTransient(err):
		return "transient"
	default:
		return "permanent"
	}
}

// errorCode extracts the machine-readable code, if any.
func errorCode(err error) string {
	var re *recon.Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
