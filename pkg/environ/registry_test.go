package environ

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

const testRegistry = `
environments:
  staging:
    domain: staging.example.com
    storageBucketName: staging-example-site
    region: eu-central-1
    flags:
      createDeployUser: true
      enableHealthCheck: false
    tags:
      team: web
  production:
    domain: example.com
    storageBucketName: example-site
    region: eu-central-1
    flags:
      createDeployUser: true
      enableHealthCheck: true
    tags:
      team: web
      tier: prod
`

// fakeSelectionStore records selections in memory.
type fakeSelectionStore struct {
	name   string
	setErr error
}

func (f *fakeSelectionStore) SetCurrentEnvironment(_ context.Context, name string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.name = name
	return nil
}

func (f *fakeSelectionStore) GetCurrentEnvironment(_ context.Context) (string, error) {
	return f.name, nil
}

// TestLoadRegistry tests loading a registry file from disk.
func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "environments.yaml")
	if err := os.WriteFile(path, []byte(testRegistry), 0o644); err != nil {
		t.Fatalf("failed to write registry file: %v", err)
	}

	registry, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}

	if registry.Path() != path {
		t.Errorf("expected path %s, got %s", path, registry.Path())
	}

	names := registry.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 environments, got %d", len(names))
	}
	if names[0] != "production" || names[1] != "staging" {
		t.Errorf("expected sorted names [production staging], got %v", names)
	}
}

// TestLoadMissingFile tests loading a nonexistent registry.
func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/environments.yaml")
	if err == nil {
		t.Fatal("expected error for missing registry file")
	}
}

// TestRegistryList tests that List returns stable, sorted output.
func TestRegistryList(t *testing.T) {
	registry, err := parse("inline", []byte(testRegistry))
	if err != nil {
		t.Fatalf("failed to parse registry: %v", err)
	}

	configs := registry.List()
	if len(configs) != 2 {
		t.Fatalf("expected 2 configs, got %d", len(configs))
	}
	if configs[0].Name != "production" || configs[1].Name != "staging" {
		t.Errorf("expected configs sorted by name, got %s, %s", configs[0].Name, configs[1].Name)
	}

	// The name key is injected into each config
	if configs[1].Domain != "staging.example.com" {
		t.Errorf("expected staging domain, got %s", configs[1].Domain)
	}
	if !configs[1].Flags.CreateDeployUser {
		t.Error("expected createDeployUser flag to be set")
	}
	if configs[1].Flags.EnableHealthCheck {
		t.Error("expected enableHealthCheck flag to be unset for staging")
	}
}

// TestRegistryGet tests lookup of known and unknown environments.
func TestRegistryGet(t *testing.T) {
	registry, err := parse("inline", []byte(testRegistry))
	if err != nil {
		t.Fatalf("failed to parse registry: %v", err)
	}

	cfg, err := registry.Get("staging")
	if err != nil {
		t.Fatalf("failed to get staging: %v", err)
	}
	if cfg.StorageBucketName != "staging-example-site" {
		t.Errorf("expected staging bucket, got %s", cfg.StorageBucketName)
	}

	_, err = registry.Get("qa")
	if err == nil {
		t.Fatal("expected error for unknown environment")
	}
	if !IsUnknownEnvironment(err) {
		t.Errorf("expected UnknownEnvironmentError, got %T", err)
	}

	ue, ok := err.(*UnknownEnvironmentError)
	if !ok {
		t.Fatalf("expected *UnknownEnvironmentError, got %T", err)
	}
	if ue.Name != "qa" {
		t.Errorf("expected name qa, got %s", ue.Name)
	}
	if len(ue.Known) != 2 {
		t.Errorf("expected 2 known environments, got %v", ue.Known)
	}
}

// TestRegistrySelect tests selection persistence.
func TestRegistrySelect(t *testing.T) {
	registry, err := parse("inline", []byte(testRegistry))
	if err != nil {
		t.Fatalf("failed to parse registry: %v", err)
	}

	ctx := context.Background()
	store := &fakeSelectionStore{}

	cfg, err := registry.Select(ctx, store, "production")
	if err != nil {
		t.Fatalf("failed to select production: %v", err)
	}
	if cfg.Name != "production" {
		t.Errorf("expected production config, got %s", cfg.Name)
	}
	if store.name != "production" {
		t.Errorf("expected selection persisted, got %q", store.name)
	}

	// Selecting an unknown environment does not touch the store
	if _, err := registry.Select(ctx, store, "qa"); err == nil {
		t.Fatal("expected error selecting unknown environment")
	}
	if store.name != "production" {
		t.Errorf("expected selection unchanged, got %q", store.name)
	}
}

// TestRegistryCurrent tests resolving the active environment.
func TestRegistryCurrent(t *testing.T) {
	registry, err := parse("inline", []byte(testRegistry))
	if err != nil {
		t.Fatalf("failed to parse registry: %v", err)
	}

	ctx := context.Background()
	store := &fakeSelectionStore{}

	// Nothing selected yet
	if _, err := registry.Current(ctx, store); err == nil {
		t.Fatal("expected error when no environment is selected")
	}

	if _, err := registry.Select(ctx, store, "staging"); err != nil {
		t.Fatalf("failed to select staging: %v", err)
	}

	cfg, err := registry.Current(ctx, store)
	if err != nil {
		t.Fatalf("failed to resolve current environment: %v", err)
	}
	if cfg.Name != "staging" {
		t.Errorf("expected staging, got %s", cfg.Name)
	}

	// A selection pointing at a removed environment surfaces as unknown
	store.name = "removed"
	if _, err := registry.Current(ctx, store); !IsUnknownEnvironment(err) {
		t.Errorf("expected UnknownEnvironmentError for stale selection, got %v", err)
	}
}

// TestParseNameConflict tests that inline names must match registry keys.
func TestParseNameConflict(t *testing.T) {
	content := `
environments:
  staging:
    name: prod
    domain: staging.example.com
    storageBucketName: staging-example-site
    region: eu-central-1
`

	_, err := parse("inline", []byte(content))
	if err == nil {
		t.Fatal("expected error for conflicting inline name")
	}
}

// TestParseEmptyRegistry tests that an empty registry is rejected.
func TestParseEmptyRegistry(t *testing.T) {
	_, err := parse("inline", []byte("environments: {}\n"))
	if err == nil {
		t.Fatal("expected error for empty registry")
	}
}

// TestParseCollectsAllViolations tests multi-error collection across fields.
func TestParseCollectsAllViolations(t *testing.T) {
	content := `
environments:
  staging:
    domain: "not a domain"
    storageBucketName: "X"
    region: ""
`

	_, err := parse("inline", []byte(content))
	if err == nil {
		t.Fatal("expected validation errors")
	}

	violations, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(violations) < 3 {
		t.Fatalf("expected at least 3 violations (domain, bucket, region), got %d: %v", len(violations), violations)
	}

	fields := map[string]bool{}
	for _, v := range violations {
		fields[v.Field] = true
		if v.Environment != "staging" {
			t.Errorf("expected violation scoped to staging, got %q", v.Environment)
		}
	}
	for _, want := range []string{"domain", "storageBucketName", "region"} {
		if !fields[want] {
			t.Errorf("expected a violation for %s, got fields %v", want, fields)
		}
	}
}

// TestValidateTable tests single-config validation rules.
func TestValidateTable(t *testing.T) {
	registry, err := parse("inline", []byte(testRegistry))
	if err != nil {
		t.Fatalf("failed to parse registry: %v", err)
	}

	valid := EnvironmentConfig{
		Name:              "staging",
		Domain:            "staging.example.com",
		StorageBucketName: "staging-example-site",
		Region:            "eu-central-1",
	}

	tests := []struct {
		name    string
		mutate  func(cfg *EnvironmentConfig)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(cfg *EnvironmentConfig) {},
			wantErr: false,
		},
		{
			name:    "bucket with dots is valid",
			mutate:  func(cfg *EnvironmentConfig) { cfg.StorageBucketName = "bucket.with.dots" },
			wantErr: false,
		},
		{
			name:    "uppercase environment name",
			mutate:  func(cfg *EnvironmentConfig) { cfg.Name = "Staging" },
			wantErr: true,
		},
		{
			name:    "name starting with digit",
			mutate:  func(cfg *EnvironmentConfig) { cfg.Name = "2nd-env" },
			wantErr: true,
		},
		{
			name:    "domain without dot",
			mutate:  func(cfg *EnvironmentConfig) { cfg.Domain = "localhost" },
			wantErr: true,
		},
		{
			name:    "bucket too short",
			mutate:  func(cfg *EnvironmentConfig) { cfg.StorageBucketName = "ab" },
			wantErr: true,
		},
		{
			name:    "bucket with adjacent dots",
			mutate:  func(cfg *EnvironmentConfig) { cfg.StorageBucketName = "my..bucket" },
			wantErr: true,
		},
		{
			name:    "bucket formatted as IP",
			mutate:  func(cfg *EnvironmentConfig) { cfg.StorageBucketName = "192.168.1.1" },
			wantErr: true,
		},
		{
			name:    "bucket with uppercase",
			mutate:  func(cfg *EnvironmentConfig) { cfg.StorageBucketName = "My-Bucket" },
			wantErr: true,
		},
		{
			name:    "missing region",
			mutate:  func(cfg *EnvironmentConfig) { cfg.Region = "" },
			wantErr: true,
		},
		{
			name:    "blank tag key",
			mutate:  func(cfg *EnvironmentConfig) { cfg.Tags = map[string]string{" ": "x"} },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			violations := registry.Validate(cfg)
			if tt.wantErr && !violations.HasErrors() {
				t.Errorf("expected violations, got none")
			}
			if !tt.wantErr && violations.HasErrors() {
				t.Errorf("expected no violations, got %v", violations)
			}
		})
	}
}

// TestRenderDeterministic tests byte-identical rendering.
func TestRenderDeterministic(t *testing.T) {
	cfg := EnvironmentConfig{
		Name:              "staging",
		Domain:            "staging.example.com",
		StorageBucketName: "staging-example-site",
		Region:            "eu-central-1",
		Flags:             Flags{CreateDeployUser: true},
		Tags:              map[string]string{"tier": "stage", "team": "web"},
	}

	first, err := Render(cfg)
	if err != nil {
		t.Fatalf("failed to render: %v", err)
	}
	second, err := Render(cfg)
	if err != nil {
		t.Fatalf("failed to render again: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Error("expected byte-identical renders for equal configs")
	}
	if first[len(first)-1] != '\n' {
		t.Error("expected trailing newline")
	}
}

// TestWriteRendered tests atomic materialization to disk.
func TestWriteRendered(t *testing.T) {
	cfg := EnvironmentConfig{
		Name:              "staging",
		Domain:            "staging.example.com",
		StorageBucketName: "staging-example-site",
		Region:            "eu-central-1",
	}

	dir := t.TempDir()
	path, err := WriteRendered(dir, cfg)
	if err != nil {
		t.Fatalf("failed to write rendered config: %v", err)
	}

	if filepath.Base(path) != "staging.json" {
		t.Errorf("expected staging.json, got %s", filepath.Base(path))
	}

	written, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read rendered file: %v", err)
	}

	rendered, err := Render(cfg)
	if err != nil {
		t.Fatalf("failed to render: %v", err)
	}

	if !bytes.Equal(written, rendered) {
		t.Error("expected written file to match Render output")
	}

	// No temp files left behind
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the rendered file, got %d entries", len(entries))
	}
}
