package policy

import (
	"time"

	"github.com/opensundae/opensundae/pkg/environ"
	"github.com/opensundae/opensundae/pkg/recon"
)

// Severity is the weight of a policy violation.
type Severity string

const (
	// SeverityInfo is informational only.
	SeverityInfo Severity = "info"

	// SeverityWarning flags something to review; the run proceeds.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the run.
	SeverityError Severity = "error"

	// SeverityCritical blocks the run; reserved for violations that
	// would lose infrastructure or data.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity stops the run.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Operation names for Context.Operation.
const (
	OperationDeploy   = "deploy"
	OperationDestroy  = "destroy"
	OperationRollback = "rollback"
)

// Policy is one named Rego rule set evaluated against deployment plans.
type Policy struct {
	// Name uniquely identifies the policy.
	Name string `json:"name"`

	// Description is the human-readable summary.
	Description string `json:"description"`

	// Rego is the policy source. Rules add objects to a `deny` set;
	// each object may carry message, severity, and address keys.
	Rego string `json:"rego"`

	// Severity is the default for violations that do not set their own.
	Severity Severity `json:"severity"`

	// Enabled gates evaluation.
	Enabled bool `json:"enabled"`

	// Tags group related policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from, empty for builtins.
	Source string `json:"source,omitempty"`

	// CreatedAt is when the policy was first seen.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation is one policy denial.
type Violation struct {
	// Policy is the violated policy's name.
	Policy string `json:"policy"`

	// Address is the resource address involved, when the rule names one.
	Address string `json:"address,omitempty"`

	// Message is the human-readable denial.
	Message string `json:"message"`

	// Severity is the violation's weight.
	Severity Severity `json:"severity"`

	// DetectedAt is when the violation was found.
	DetectedAt time.Time `json:"detected_at"`
}

// Result aggregates one evaluation pass over every enabled policy.
type Result struct {
	// Allowed is false when any blocking violation was found.
	Allowed bool `json:"allowed"`

	// Violations are the blocking denials.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings are non-blocking denials plus any policies that failed
	// to evaluate.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies names the policies that ran, sorted.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the pass started.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the pass took.
	Duration time.Duration `json:"duration"`
}

// Input is the document policies evaluate. Field names here define the
// rego input schema, so renames are breaking changes for custom
// policies.
type Input struct {
	// Plan is the deployment plan under review.
	Plan *recon.Plan `json:"plan,omitempty"`

	// Environment is the target environment's configuration.
	Environment *environ.EnvironmentConfig `json:"environment,omitempty"`

	// Context describes the run itself.
	Context *Context `json:"context"`
}

// Context describes the run a plan belongs to.
type Context struct {
	// Environment is the target environment name.
	Environment string `json:"environment,omitempty"`

	// Operation is what the run does: deploy, destroy, or rollback.
	Operation string `json:"operation,omitempty"`

	// User is the operator, when known.
	User string `json:"user,omitempty"`

	// NonInteractive is true for CI runs with no confirmation gate.
	NonInteractive bool `json:"non_interactive"`

	// Timestamp is when the evaluation runs.
	Timestamp time.Time `json:"timestamp"`
}
