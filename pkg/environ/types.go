package environ

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Flags toggles optional per-environment resources.
type Flags struct {
	// CreateDeployUser provisions a scoped deploy identity for CI pushes.
	CreateDeployUser bool `json:"create_deploy_user" yaml:"createDeployUser"`

	// EnableHealthCheck provisions an uptime monitor against the site domain.
	EnableHealthCheck bool `json:"enable_health_check" yaml:"enableHealthCheck"`
}

// EnvironmentConfig describes one deployable environment. Configs are
// immutable once loaded; a pipeline run works against exactly one of them.
type EnvironmentConfig struct {
	// Name is the registry key for this environment (e.g., "staging").
	Name string `json:"name" yaml:"name" validate:"required,envname"`

	// Domain is the apex site domain (e.g., "example.com"). The www alias
	// is derived from it.
	Domain string `json:"domain" yaml:"domain" validate:"required,fqdn"`

	// StorageBucketName is the origin bucket for site content.
	StorageBucketName string `json:"storage_bucket_name" yaml:"storageBucketName" validate:"required,bucketname"`

	// Region is the provider region the environment lives in.
	Region string `json:"region" yaml:"region" validate:"required"`

	// Flags toggles optional resources for this environment.
	Flags Flags `json:"flags" yaml:"flags"`

	// Tags are propagated to every provisioned resource.
	Tags map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// SelectionStore persists the active environment choice. Implemented by
// stores.SQLiteStore.
type SelectionStore interface {
	SetCurrentEnvironment(ctx context.Context, name string) error
	GetCurrentEnvironment(ctx context.Context) (string, error)
}

// ValidationError represents a single configuration violation.
type ValidationError struct {
	// Environment is the environment the violation belongs to.
	Environment string `json:"environment,omitempty"`

	// Field is the offending field path (e.g., "storageBucketName").
	Field string `json:"field,omitempty"`

	// Message is the human-readable violation.
	Message string `json:"message"`

	// Severity is the violation severity (error, warning).
	Severity string `json:"severity"`
}

// ValidationErrors aggregates all violations found in one pass so operators
// see the full picture instead of the first failure.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}

	parts := make([]string, 0, len(ve))
	for _, e := range ve {
		target := e.Field
		if e.Environment != "" {
			target = e.Environment + "." + e.Field
		}
		if target != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", target, e.Message))
		} else {
			parts = append(parts, e.Message)
		}
	}

	return fmt.Sprintf("%d validation error(s): %s", len(ve), strings.Join(parts, "; "))
}

// HasErrors reports whether any violation has severity error.
func (ve ValidationErrors) HasErrors() bool {
	for _, e := range ve {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

// UnknownEnvironmentError is returned when a requested environment is not in
// the registry.
type UnknownEnvironmentError struct {
	// Name is the requested environment name.
	Name string

	// Known lists the names the registry does contain.
	Known []string
}

// Error implements the error interface.
func (e *UnknownEnvironmentError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("unknown environment %q (registry is empty)", e.Name)
	}
	return fmt.Sprintf("unknown environment %q (known: %s)", e.Name, strings.Join(e.Known, ", "))
}

// IsUnknownEnvironment checks if an error is an UnknownEnvironmentError.
func IsUnknownEnvironment(err error) bool {
	var ue *UnknownEnvironmentError
	return errors.As(err, &ue)
}
