package policy

import (
	"time"
)

// BuiltinPolicies returns the policy set loaded into every engine.
func BuiltinPolicies() []Policy {
	return []Policy{
		protectedDestroyPolicy(),
		requiredTagsPolicy(),
		productionDestroyPolicy(),
	}
}

// protectedDestroyPolicy rejects plans that would destroy a protected
// resource. The planner refuses to emit such steps itself; this catches
// plans that arrive by any other route.
func protectedDestroyPolicy() Policy {
	return Policy{
		Name:        "protected-destroy",
		Description: "Rejects plans containing destroy steps for protected resources",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"safety", "protection"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package sundae.policies.protected

import rego.v1

# A destroy step on a protected resource never ships, regardless of how
# the plan was produced.
deny contains violation if {
	input.plan
	some step in input.plan.steps
	step.op == "destroy"
	step.protected
	violation := {
		"message": sprintf("plan destroys protected resource %s", [step.address]),
		"severity": "critical",
		"address": step.address,
	}
}`,
	}
}

// requiredTagsPolicy flags environments missing governance tags.
func requiredTagsPolicy() Policy {
	return Policy{
		Name:        "required-tags",
		Description: "Flags environments missing required governance tags (team)",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"governance", "tags"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package sundae.policies.tags

import rego.v1

required_tags := ["team"]

deny contains violation if {
	input.environment
	some tag in required_tags
	not input.environment.tags[tag]
	violation := {
		"message": sprintf("environment %s is missing required tag: %s", [input.environment.name, tag]),
		"severity": "warning",
	}
}

deny contains violation if {
	input.environment
	some tag in required_tags
	input.environment.tags[tag] == ""
	violation := {
		"message": sprintf("environment %s has empty required tag: %s", [input.environment.name, tag]),
		"severity": "warning",
	}
}`,
	}
}

// productionDestroyPolicy keeps destroys in production behind an
// explicit destroy run, and flags unusually large destroy batches
// everywhere.
func productionDestroyPolicy() Policy {
	return Policy{
		Name:        "production-destroy",
		Description: "Blocks destroy steps in production outside an explicit destroy run",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"safety", "production"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package sundae.policies.production

import rego.v1

# Production infrastructure only goes away through an explicit destroy
# run, never as a side effect of a deploy converging on its catalog.
deny contains violation if {
	input.plan
	input.context.environment == "production"
	input.context.operation != "destroy"
	some step in input.plan.steps
	step.op == "destroy"
	violation := {
		"message": sprintf("deploy would destroy %s in production; run an explicit destroy instead", [step.address]),
		"severity": "error",
		"address": step.address,
	}
}

deny contains violation if {
	input.plan
	destroy_count := count([s |
		some s in input.plan.steps
		s.op == "destroy"
	])
	destroy_count > 3
	violation := {
		"message": sprintf("plan destroys %d resources at once; review before approving", [destroy_count]),
		"severity": "warning",
	}
}`,
	}
}
