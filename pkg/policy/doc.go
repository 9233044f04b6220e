// Package policy enforces governance rules over deployment plans using
// Open Policy Agent's Rego language.
//
// The engine evaluates every enabled policy against a single input
// document built from the plan, the target environment's configuration,
// and run context (environment name, operation, interactivity). Rules
// contribute objects to a `deny` set; each object may carry message,
// severity, and address keys. Violations with error or critical
// severity block the run, info and warning severities are surfaced but
// do not block, and a policy that fails to evaluate degrades to a
// warning.
//
// Three builtin policies are always loaded:
//
//   - protected-destroy: rejects plans containing destroy steps for
//     protected resources (the planner refuses these too; this catches
//     plans arriving by any other route)
//   - required-tags: flags environments missing governance tags
//   - production-destroy: blocks destroy steps in production outside an
//     explicit destroy run, and flags large destroy batches
//
// Custom policies are .rego or .json files loaded from the configured
// policy paths:
//
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := engine.LoadPolicies(ctx, []string{"/etc/sundae/policies"}); err != nil {
//	    return err
//	}
//
//	result, err := engine.EvaluatePlan(ctx, &policy.Input{
//	    Plan:        plan,
//	    Environment: cfg,
//	    Context:     &policy.Context{Environment: "production", Operation: policy.OperationDeploy},
//	})
//
// A custom policy denying DNS record updates outside business hours:
//
//	package custom.policies.dns_freeze
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.plan
//	    some step in input.plan.steps
//	    step.kind == "dns"
//	    step.op == "update"
//	    violation := {
//	        "message": sprintf("dns change to %s requires a change window", [step.address]),
//	        "severity": "error",
//	        "address": step.address,
//	    }
//	}
//
// Policies are compiled once into prepared queries and reused across
// evaluations. The loader can watch policy paths and reload on change.
package policy
