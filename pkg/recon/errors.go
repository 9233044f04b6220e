// Package recon implements the infrastructure reconciler: it resolves
// declared resources against live backend state, computes dependency-ordered
// plans, and applies them with classified retry semantics.
package recon

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass classifies a backend error for retry and escalation logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on
	// retry. Examples: network timeouts, temporary service unavailability.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates rate limiting or quota exhaustion.
	// Retried with a longer backoff than plain transient failures.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassPermanent indicates a non-recoverable error. Examples:
	// authentication failure, missing prerequisite, invalid descriptor.
	ErrorClassPermanent ErrorClass = "permanent"
)

// Error is a classified reconciler error with resource context.
type Error struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Address is the logical resource address involved, if applicable.
	Address string `json:"address,omitempty"`

	// Op is the operation being performed when the error occurred.
	Op string `json:"op,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Class, e.Message)
	if e.Address != "" {
		fmt.Fprintf(&b, " (address=%s", e.Address)
		if e.Op != "" {
			fmt.Fprintf(&b, ", op=%s", e.Op)
		}
		b.WriteString(")")
	} else if e.Op != "" {
		fmt.Fprintf(&b, " (op=%s)", e.Op)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is: two reconciler errors match
// when their class and code agree.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithAddress adds the logical resource address to an error.
func (e *Error) WithAddress(address string) *Error {
	e.Address = address
	return e
}

// WithOp adds operation context to an error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *Error {
	return &Error{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewThrottledError creates a new throttled error.
func NewThrottledError(message string, err error) *Error {
	return &Error{Class: ErrorClassThrottled, Message: message, Err: err}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *Error {
	return &Error{Class: ErrorClassPermanent, Message: message, Err: err}
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsThrottled returns true if the error is classified as throttled.
func IsThrottled(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassThrottled
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsRetryable returns true if the error may succeed on retry.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsThrottled(err)
}

// AmbiguityError reports that more than one physical object matched a single
// declared resource's identity predicate. The reconciler never picks one
// arbitrarily; the operator must disambiguate (import the intended object,
// delete the stray).
type AmbiguityError struct {
	// Address is the logical address that failed to resolve.
	Address string

	// PhysicalIDs are all matching physical object IDs, sorted.
	PhysicalIDs []string
}

// Error implements the error interface.
func (e *AmbiguityError) Error() string {
	return fmt.Sprintf(
		"ambiguous resolution: %d physical objects match address %s (%s); resolve manually with `state import`",
		len(e.PhysicalIDs), e.Address, strings.Join(e.PhysicalIDs, ", "),
	)
}

// IsAmbiguity returns true if the error is an AmbiguityError.
func IsAmbiguity(err error) bool {
	var e *AmbiguityError
	return errors.As(err, &e)
}

// ProtectedResourceViolation reports a plan that would destroy one or more
// protected resources. Such a plan must never reach Apply.
type ProtectedResourceViolation struct {
	// Addresses are the protected addresses the plan would destroy.
	Addresses []string
}

// Error implements the error interface.
func (e *ProtectedResourceViolation) Error() string {
	return fmt.Sprintf(
		"plan would destroy protected resource(s) %s; protection must be lifted in the catalog before a destroy can be planned",
		strings.Join(e.Addresses, ", "),
	)
}

// IsProtectedViolation returns true if the error is a ProtectedResourceViolation.
func IsProtectedViolation(err error) bool {
	var e *ProtectedResourceViolation
	return errors.As(err, &e)
}

// PartialApplyError reports an apply that failed after some but not all
// steps were executed. Bindings for applied steps are already persisted;
// recovery is a fresh plan+apply pass, never an automatic rollback.
type PartialApplyError struct {
	// Applied is the number of steps that completed before the failure.
	Applied int

	// Remaining is the number of steps that were not attempted (the failed
	// step included).
	Remaining int

	// Address is the step on which the apply failed.
	Address string

	// Err is the failure that stopped the apply.
	Err error
}

// Error implements the error interface.
func (e *PartialApplyError) Error() string {
	return fmt.Sprintf(
		"partial apply: %d step(s) applied, %d remaining; failed at %s: %v; re-run plan and apply to reconcile",
		e.Applied, e.Remaining, e.Address, e.Err,
	)
}

// Unwrap returns the step failure.
func (e *PartialApplyError) Unwrap() error {
	return e.Err
}

// IsPartialApply returns true if the error is a PartialApplyError.
func IsPartialApply(err error) bool {
	var e *PartialApplyError
	return errors.As(err, &e)
}

// DuplicateBindingError reports two logical addresses bound to the same
// physical object, which violates the one-address-per-physical invariant.
type DuplicateBindingError struct {
	// PhysicalID is the physical object bound more than once.
	PhysicalID string

	// Addresses are the conflicting logical addresses, sorted.
	Addresses []string
}

// Error implements the error interface.
func (e *DuplicateBindingError) Error() string {
	return fmt.Sprintf(
		"binding conflict: physical object %s is bound by multiple addresses (%s); one address per physical object",
		e.PhysicalID, strings.Join(e.Addresses, ", "),
	)
}

// Common error codes.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeAlreadyBound    = "ALREADY_BOUND"
	ErrCodeAuth            = "AUTH_FAILED"
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeBackendFailed   = "BACKEND_FAILED"
	ErrCodeCycle           = "DEPENDENCY_CYCLE"
	ErrCodeBindingConflict = "BINDING_CONFLICT"
)
