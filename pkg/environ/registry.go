package environ

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// registryFile is the on-disk shape of environments.yaml.
type registryFile struct {
	Environments map[string]EnvironmentConfig `yaml:"environments"`
}

// Registry holds the loaded environment configurations, keyed by name.
type Registry struct {
	path     string
	configs  map[string]EnvironmentConfig
	validate *validator.Validate
}

// Load reads and validates an environment registry file. All validation
// violations across all environments are collected and returned together.
func Load(path string) (*Registry, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry %s: %w", path, err)
	}

	return parse(path, content)
}

// parse decodes registry content and validates every environment in it.
func parse(path string, content []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse registry %s: %w", path, err)
	}

	if len(file.Environments) == 0 {
		return nil, fmt.Errorf("registry %s declares no environments", path)
	}

	r := &Registry{
		path:     path,
		configs:  make(map[string]EnvironmentConfig, len(file.Environments)),
		validate: newValidator(),
	}

	var violations ValidationErrors
	for key, cfg := range file.Environments {
		// The map key is the environment name; an inline name must agree.
		if cfg.Name == "" {
			cfg.Name = key
		} else if cfg.Name != key {
			violations = append(violations, ValidationError{
				Environment: key,
				Field:       "name",
				Message:     fmt.Sprintf("inline name %q conflicts with registry key %q", cfg.Name, key),
				Severity:    "error",
			})
			continue
		}

		violations = append(violations, validateConfig(r.validate, cfg)...)
		r.configs[cfg.Name] = cfg
	}

	if violations.HasErrors() {
		return nil, violations
	}

	return r, nil
}

// Path returns the file the registry was loaded from.
func (r *Registry) Path() string {
	return r.path
}

// Names returns all environment names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all environment configurations in stable name order. It has
// no side effects.
func (r *Registry) List() []EnvironmentConfig {
	configs := make([]EnvironmentConfig, 0, len(r.configs))
	for _, name := range r.Names() {
		configs = append(configs, r.configs[name])
	}
	return configs
}

// Get returns the configuration for a named environment.
func (r *Registry) Get(name string) (EnvironmentConfig, error) {
	cfg, ok := r.configs[name]
	if !ok {
		return EnvironmentConfig{}, &UnknownEnvironmentError{Name: name, Known: r.Names()}
	}
	return cfg, nil
}

// Select validates that the named environment exists and persists it as
// the active selection. The resolved config is always returned to the
// caller; nothing downstream relies on ambient lookup.
func (r *Registry) Select(ctx context.Context, store SelectionStore, name string) (EnvironmentConfig, error) {
	cfg, err := r.Get(name)
	if err != nil {
		return EnvironmentConfig{}, err
	}

	if err := store.SetCurrentEnvironment(ctx, name); err != nil {
		return EnvironmentConfig{}, fmt.Errorf("failed to persist environment selection: %w", err)
	}

	return cfg, nil
}

// Current resolves the active environment from the store. When no selection
// has been made yet the returned error says so explicitly.
func (r *Registry) Current(ctx context.Context, store SelectionStore) (EnvironmentConfig, error) {
	name, err := store.GetCurrentEnvironment(ctx)
	if err != nil {
		return EnvironmentConfig{}, fmt.Errorf("failed to read environment selection: %w", err)
	}

	if name == "" {
		return EnvironmentConfig{}, fmt.Errorf("no environment selected (run: sundae envs select <name>)")
	}

	return r.Get(name)
}
