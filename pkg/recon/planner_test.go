package recon

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func mustHash(t *testing.T, descriptor json.RawMessage) string {
	t.Helper()
	hash, err := DescriptorHash(descriptor)
	if err != nil {
		t.Fatalf("failed to hash descriptor: %v", err)
	}
	return hash
}

func stepIndex(plan *Plan) map[string]int {
	index := make(map[string]int, len(plan.Steps))
	for i, step := range plan.Steps {
		index[step.Address] = i
	}
	return index
}

func TestPlanner_BuildPlan_NilResolution(t *testing.T) {
	planner := NewPlanner(nil)

	_, err := planner.BuildPlan(PlanRequest{Environment: "staging", Declared: testDeclared()})
	if err == nil {
		t.Fatal("Expected error for nil resolution, got nil")
	}
	if !IsPermanent(err) {
		t.Error("Expected permanent error for nil resolution")
	}
}

func TestPlanner_BuildPlan_AllCreates(t *testing.T) {
	planner := NewPlanner(nil)
	declared := testDeclared()

	plan, err := planner.BuildPlan(PlanRequest{
		Environment: "staging",
		Declared:    declared,
		Resolution:  &Resolution{Bindings: map[string]ResourceBinding{}},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(plan.Steps) != 4 {
		t.Fatalf("Expected 4 steps, got %d", len(plan.Steps))
	}
	for _, step := range plan.Steps {
		if step.Op != OpCreate {
			t.Errorf("%s: expected create, got %s", step.Address, step.Op)
		}
		if step.DescriptorHash == "" {
			t.Errorf("%s: expected a descriptor hash", step.Address)
		}
	}

	// Dependency order: zone before certificate, both inputs before cdn
	index := stepIndex(plan)
	if index["dns_zone.main"] > index["certificate.site"] {
		t.Error("Expected zone before certificate")
	}
	if index["certificate.site"] > index["cdn.site"] {
		t.Error("Expected certificate before cdn")
	}
	if index["storage.site"] > index["cdn.site"] {
		t.Error("Expected storage before cdn")
	}

	summary := plan.Summary()
	if summary.Create != 4 || summary.Total != 4 {
		t.Errorf("Expected 4 creates in summary, got %+v", summary)
	}
	if plan.IsNoop() {
		t.Error("Expected a mutating plan")
	}
}

func TestPlanner_BuildPlan_NoopWhenConverged(t *testing.T) {
	planner := NewPlanner(nil)
	declared := testDeclared()

	bindings := make(map[string]ResourceBinding, len(declared))
	recorded := make([]ResourceBinding, 0, len(declared))
	for _, res := range declared {
		b := ResourceBinding{
			Address:      res.Address,
			PhysicalID:   res.Kind + "-0001",
			ObservedHash: mustHash(t, res.Descriptor),
			UpdatedAt:    time.Now().UTC(),
		}
		bindings[res.Address] = b
		recorded = append(recorded, b)
	}

	plan, err := planner.BuildPlan(PlanRequest{
		Environment: "staging",
		Declared:    declared,
		Resolution:  &Resolution{Bindings: bindings},
		Recorded:    recorded,
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !plan.IsNoop() {
		t.Error("Expected a no-op plan for converged state")
	}
	summary := plan.Summary()
	if summary.Noop != 4 || summary.Create != 0 || summary.Update != 0 || summary.Destroy != 0 {
		t.Errorf("Expected 4 noops, got %+v", summary)
	}
}

func TestPlanner_BuildPlan_UpdateOnDrift(t *testing.T) {
	planner := NewPlanner(nil)
	declared := testDeclared()

	bindings := map[string]ResourceBinding{
		// Stale hash: descriptor changed since the last apply
		"dns_zone.main": {
			Address:      "dns_zone.main",
			PhysicalID:   "dns_zone-0001",
			ObservedHash: "stale",
		},
		// Empty hash: adopted but never converged
		"storage.site": {
			Address:    "storage.site",
			PhysicalID: "storage-0001",
		},
	}

	plan, err := planner.BuildPlan(PlanRequest{
		Environment: "staging",
		Declared:    declared,
		Resolution:  &Resolution{Bindings: bindings},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	ops := make(map[string]Op, len(plan.Steps))
	for _, step := range plan.Steps {
		ops[step.Address] = step.Op
	}
	if ops["dns_zone.main"] != OpUpdate {
		t.Errorf("Expected update for drifted resource, got %s", ops["dns_zone.main"])
	}
	if ops["storage.site"] != OpUpdate {
		t.Errorf("Expected update for adopted resource, got %s", ops["storage.site"])
	}
	if ops["certificate.site"] != OpCreate {
		t.Errorf("Expected create for unbound resource, got %s", ops["certificate.site"])
	}
}

func TestPlanner_BuildPlan_StrayBindingBecomesDestroy(t *testing.T) {
	planner := NewPlanner(nil)
	declared := testDeclared()

	stray := ResourceBinding{
		Address:    "monitor.health",
		PhysicalID: "monitor-0001",
	}

	plan, err := planner.BuildPlan(PlanRequest{
		Environment:    "staging",
		Declared:       declared,
		Resolution:     &Resolution{Bindings: map[string]ResourceBinding{}},
		Recorded:       []ResourceBinding{stray},
		ProtectedIndex: map[string]bool{"monitor.health": false},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(plan.Steps) != 5 {
		t.Fatalf("Expected 5 steps, got %d", len(plan.Steps))
	}
	last := plan.Steps[len(plan.Steps)-1]
	if last.Address != "monitor.health" || last.Op != OpDestroy {
		t.Errorf("Expected trailing destroy for stray binding, got %s %s", last.Op, last.Address)
	}
	if last.Kind != "monitor" {
		t.Errorf("Expected kind derived from address, got %s", last.Kind)
	}
}

func TestPlanner_BuildPlan_ProtectedStrayRejected(t *testing.T) {
	planner := NewPlanner(nil)

	// The zone is no longer declared (say the catalog was emptied) but its
	// binding remains and the structural index still protects it.
	stray := ResourceBinding{
		Address:    "dns_zone.main",
		PhysicalID: "dns_zone-0001",
	}

	_, err := planner.BuildPlan(PlanRequest{
		Environment:    "staging",
		Declared:       nil,
		Resolution:     &Resolution{Bindings: map[string]ResourceBinding{}},
		Recorded:       []ResourceBinding{stray},
		ProtectedIndex: map[string]bool{"dns_zone.main": true},
	})
	if err == nil {
		t.Fatal("Expected plan to be rejected, got nil")
	}

	var violation *ProtectedResourceViolation
	if !errors.As(err, &violation) {
		t.Fatalf("Expected ProtectedResourceViolation, got: %v", err)
	}
	if len(violation.Addresses) != 1 || violation.Addresses[0] != "dns_zone.main" {
		t.Errorf("Expected violation on dns_zone.main, got %v", violation.Addresses)
	}
	if !IsProtectedViolation(err) {
		t.Error("Expected IsProtectedViolation to match")
	}
}

func TestPlanner_BuildPlan_UndeclaredDependency(t *testing.T) {
	planner := NewPlanner(nil)

	declared := []DeclaredResource{
		{
			Address:    "cdn.site",
			Kind:       "cdn",
			Identity:   "example.org",
			Descriptor: json.RawMessage(`{}`),
			DependsOn:  []string{"certificate.site"},
		},
	}

	_, err := planner.BuildPlan(PlanRequest{
		Environment: "staging",
		Declared:    declared,
		Resolution:  &Resolution{Bindings: map[string]ResourceBinding{}},
	})
	if err == nil {
		t.Fatal("Expected error for undeclared dependency, got nil")
	}
	if !IsPermanent(err) {
		t.Error("Expected permanent error for undeclared dependency")
	}
}

func TestPlanner_BuildPlan_DependencyCycle(t *testing.T) {
	planner := NewPlanner(nil)

	declared := []DeclaredResource{
		{Address: "cdn.site", Kind: "cdn", Descriptor: json.RawMessage(`{}`), DependsOn: []string{"storage.site"}},
		{Address: "storage.site", Kind: "storage", Descriptor: json.RawMessage(`{}`), DependsOn: []string{"cdn.site"}},
	}

	_, err := planner.BuildPlan(PlanRequest{
		Environment: "staging",
		Declared:    declared,
		Resolution:  &Resolution{Bindings: map[string]ResourceBinding{}},
	})
	if err == nil {
		t.Fatal("Expected error for dependency cycle, got nil")
	}

	var reconErr *Error
	if !errors.As(err, &reconErr) {
		t.Fatalf("Expected classified error, got: %v", err)
	}
	if reconErr.Code != ErrCodeCycle {
		t.Errorf("Expected cycle code, got %s", reconErr.Code)
	}
}

func TestPlanner_BuildPlan_DuplicateAddress(t *testing.T) {
	planner := NewPlanner(nil)

	declared := []DeclaredResource{
		{Address: "storage.site", Kind: "storage", Descriptor: json.RawMessage(`{}`)},
		{Address: "storage.site", Kind: "storage", Descriptor: json.RawMessage(`{}`)},
	}

	_, err := planner.BuildPlan(PlanRequest{
		Environment: "staging",
		Declared:    declared,
		Resolution:  &Resolution{Bindings: map[string]ResourceBinding{}},
	})
	if err == nil {
		t.Fatal("Expected error for duplicate address, got nil")
	}
}

func TestPlanner_BuildDestroyPlan(t *testing.T) {
	planner := NewPlanner(nil)
	declared := testDeclared()

	bindings := make(map[string]ResourceBinding, len(declared))
	recorded := make([]ResourceBinding, 0, len(declared))
	for _, res := range declared {
		b := ResourceBinding{
			Address:      res.Address,
			PhysicalID:   res.Kind + "-0001",
			ObservedHash: mustHash(t, res.Descriptor),
		}
		bindings[res.Address] = b
		recorded = append(recorded, b)
	}

	plan, err := planner.BuildDestroyPlan(PlanRequest{
		Environment: "staging",
		Declared:    declared,
		Resolution:  &Resolution{Bindings: bindings},
		Recorded:    recorded,
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	ops := make(map[string]Op, len(plan.Steps))
	for _, step := range plan.Steps {
		ops[step.Address] = step.Op
	}

	// Protected resources are kept, the rest is torn down
	if ops["dns_zone.main"] != OpNoop || ops["certificate.site"] != OpNoop {
		t.Error("Expected protected resources to be kept")
	}
	if ops["cdn.site"] != OpDestroy || ops["storage.site"] != OpDestroy {
		t.Error("Expected unprotected resources to be destroyed")
	}

	// Reverse dependency order: cdn goes before its inputs
	index := stepIndex(plan)
	if index["cdn.site"] > index["storage.site"] {
		t.Error("Expected cdn before storage in teardown")
	}
	if index["cdn.site"] > index["certificate.site"] {
		t.Error("Expected cdn before certificate in teardown")
	}
}

func TestPlanner_BuildDestroyPlan_UnboundIsNoop(t *testing.T) {
	planner := NewPlanner(nil)

	plan, err := planner.BuildDestroyPlan(PlanRequest{
		Environment: "staging",
		Declared:    testDeclared(),
		Resolution:  &Resolution{Bindings: map[string]ResourceBinding{}},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !plan.IsNoop() {
		t.Error("Expected teardown of nothing to be a no-op plan")
	}
}

func TestPlanner_BuildDestroyPlan_ProtectedStrayKept(t *testing.T) {
	planner := NewPlanner(nil)

	stray := ResourceBinding{Address: "certificate.legacy", PhysicalID: "certificate-0009"}

	plan, err := planner.BuildDestroyPlan(PlanRequest{
		Environment:    "staging",
		Declared:       nil,
		Resolution:     &Resolution{Bindings: map[string]ResourceBinding{}},
		Recorded:       []ResourceBinding{stray},
		ProtectedIndex: map[string]bool{"certificate.legacy": true},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(plan.Steps) != 1 {
		t.Fatalf("Expected 1 step, got %d", len(plan.Steps))
	}
	if plan.Steps[0].Op != OpNoop || !plan.Steps[0].Protected {
		t.Errorf("Expected protected stray to be kept, got %+v", plan.Steps[0])
	}
}

func TestValidatePlan_DuplicateStep(t *testing.T) {
	plan := &Plan{
		Environment: "staging",
		Steps: []Step{
			{Address: "storage.site", Op: OpCreate, Kind: "storage"},
			{Address: "storage.site", Op: OpUpdate, Kind: "storage"},
		},
	}

	if err := ValidatePlan(plan); err == nil {
		t.Fatal("Expected error for duplicate step address, got nil")
	}
}

func TestValidatePlan_InvalidOp(t *testing.T) {
	plan := &Plan{
		Environment: "staging",
		Steps:       []Step{{Address: "storage.site", Op: Op("replace"), Kind: "storage"}},
	}

	if err := ValidatePlan(plan); err == nil {
		t.Fatal("Expected error for invalid op, got nil")
	}
}

func TestPlanSummary_String(t *testing.T) {
	plan := &Plan{
		Steps: []Step{
			{Address: "a.one", Op: OpCreate},
			{Address: "b.one", Op: OpUpdate},
			{Address: "c.one", Op: OpNoop},
		},
	}

	got := plan.Summary().String()
	want := "1 to create, 1 to update, 0 to destroy, 1 unchanged"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		address string
		want    string
	}{
		{"dns_zone.main", "dns_zone"},
		{"cdn.site", "cdn"},
		{"monitor.health", "monitor"},
		{"bare", "bare"},
	}

	for _, tt := range tests {
		if got := KindOf(tt.address); got != tt.want {
			t.Errorf("KindOf(%q): expected %q, got %q", tt.address, tt.want, got)
		}
	}
}

func TestDescriptorHash_CanonicalForm(t *testing.T) {
	a := json.RawMessage(`{"bucket": "site", "region": "eu-central-1"}`)
	b := json.RawMessage(`{
		"region": "eu-central-1",
		"bucket": "site"
	}`)

	hashA, err := DescriptorHash(a)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	hashB, err := DescriptorHash(b)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if hashA != hashB {
		t.Error("Expected key order and whitespace to not affect the hash")
	}

	hashC, err := DescriptorHash(json.RawMessage(`{"bucket": "other"}`))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if hashA == hashC {
		t.Error("Expected different descriptors to hash differently")
	}
}

func TestDescriptorHash_InvalidJSON(t *testing.T) {
	if _, err := DescriptorHash(json.RawMessage(`{broken`)); err == nil {
		t.Fatal("Expected error for invalid JSON, got nil")
	}
}
