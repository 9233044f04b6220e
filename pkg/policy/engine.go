package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"github.com/opensundae/opensundae/pkg/telemetry"
)

// Engine compiles Rego policies once and evaluates them against
// deployment plans. The builtin set is always loaded; custom policies
// join it via LoadPolicies and override builtins by name.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   *telemetry.Logger
}

type compiledPolicy struct {
	policy   *Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates an engine with the builtin policy set loaded.
func NewEngine(logger *telemetry.Logger) (*Engine, error) {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}

	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.NewComponentLogger("policy"),
	}

	for _, p := range BuiltinPolicies() {
		if err := e.compileAndStore(context.Background(), &p); err != nil {
			return nil, fmt.Errorf("compiling builtin policy %s: %w", p.Name, err)
		}
	}

	return e, nil
}

// EvaluatePlan runs every enabled policy against the input. Violations
// with a blocking severity clear Allowed; info and warning severities
// are collected as warnings. A policy that fails to evaluate becomes a
// warning rather than sinking the run.
func (e *Engine) EvaluatePlan(ctx context.Context, input *Input) (*Result, error) {
	if input == nil {
		return nil, fmt.Errorf("policy input is required")
	}
	if input.Context == nil {
		input.Context = &Context{}
	}
	if input.Context.Timestamp.IsZero() {
		input.Context.Timestamp = time.Now().UTC()
	}

	start := time.Now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{
		Allowed:     true,
		EvaluatedAt: start.UTC(),
	}

	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, name)

		violations, err := e.evaluate(ctx, cp, input)
		if err != nil {
			e.logger.Error().Err(err).Str("policy", name).Msg("Policy evaluation failed")
			result.Warnings = append(result.Warnings, Violation{
				Policy:     name,
				Message:    fmt.Sprintf("evaluation failed: %v", err),
				Severity:   SeverityWarning,
				DetectedAt: time.Now().UTC(),
			})
			continue
		}

		for _, v := range violations {
			if v.Severity.Blocking() {
				result.Allowed = false
				result.Violations = append(result.Violations, v)
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
	}

	result.Duration = time.Since(start)

	e.logger.Debug().
		Str("environment", input.Context.Environment).
		Str("operation", input.Context.Operation).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Bool("allowed", result.Allowed).
		Dur("duration", result.Duration).
		Msg("Plan policy evaluation completed")

	return result, nil
}

// LoadPolicies compiles and registers every policy found under the given
// files or directories.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("loading policies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range policies {
		if err := e.compileAndStore(ctx, &policies[i]); err != nil {
			return err
		}
	}

	e.logger.Info().Int("count", len(policies)).Msg("Policies loaded")
	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns every registered policy sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		policies = append(policies, *e.policies[name].policy)
	}
	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name. Disabled policies stay
// registered but are skipped during evaluation.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")
	return nil
}

// sortedNames returns policy names in evaluation order. Caller holds
// e.mu.
func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// evaluate runs one prepared policy query and extracts its deny set.
func (e *Engine) evaluate(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, res := range results {
		for _, expr := range res.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, toViolation(cp.policy, d))
			}
		}
	}
	return violations, nil
}

// toViolation converts one deny result. A bare string becomes the
// message; an object may carry message, severity, and address keys,
// falling back to the policy's default severity.
func toViolation(p *Policy, raw interface{}) Violation {
	v := Violation{
		Policy:     p.Name,
		Severity:   p.Severity,
		DetectedAt: time.Now().UTC(),
	}

	switch val := raw.(type) {
	case string:
		v.Message = val
	case map[string]interface{}:
		if msg, ok := val["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := val["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
		if addr, ok := val["address"].(string); ok {
			v.Address = addr
		}
	default:
		v.Message = fmt.Sprintf("%v", raw)
	}

	return v
}

// compileAndStore parses and prepares one policy's deny query for
// repeated evaluation. Caller holds e.mu when the engine is shared.
func (e *Engine) compileAndStore(ctx context.Context, p *Policy) error {
	if _, err := ast.ParseModule(p.Name, p.Rego); err != nil {
		return fmt.Errorf("parsing policy %s: %w", p.Name, err)
	}

	query, err := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(fmt.Sprintf("data.%s.deny", packageName(p.Rego))),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("preparing policy %s: %w", p.Name, err)
	}

	e.policies[p.Name] = &compiledPolicy{
		policy:   p,
		query:    query,
		compiled: time.Now(),
	}

	e.logger.Debug().Str("policy", p.Name).Msg("Policy compiled")
	return nil
}

// packageName extracts the rego package path from policy source.
func packageName(source string) string {
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			if fields := strings.Fields(trimmed); len(fields) >= 2 {
				return fields[1]
			}
		}
	}
	return "sundae.policies"
}
