package environ

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	envNamePattern    = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
	bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]+[a-z0-9]$`)
)

// newValidator builds a validator with the environ-specific rules
// registered.
func newValidator() *validator.Validate {
	v := validator.New()

	// Environment names are lowercase DNS-safe labels.
	_ = v.RegisterValidation("envname", func(fl validator.FieldLevel) bool {
		return envNamePattern.MatchString(fl.Field().String())
	})

	// Bucket names follow S3-style rules: 3-63 chars, lowercase letters,
	// digits, hyphens and dots, no adjacent dots, not an IP address.
	_ = v.RegisterValidation("bucketname", func(fl validator.FieldLevel) bool {
		return isValidBucketName(fl.Field().String())
	})

	return v
}

// isValidBucketName checks a bucket name against S3-style naming rules.
func isValidBucketName(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if !bucketNamePattern.MatchString(name) {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	if net.ParseIP(name) != nil {
		return false
	}
	return true
}

// Validate checks one environment config and returns ALL violations at
// once rather than failing on the first.
func (r *Registry) Validate(cfg EnvironmentConfig) ValidationErrors {
	return validateConfig(r.validate, cfg)
}

// validateConfig runs struct validation and converts field errors into the
// environ error shape.
func validateConfig(v *validator.Validate, cfg EnvironmentConfig) ValidationErrors {
	var out ValidationErrors

	err := v.Struct(cfg)
	if err != nil {
		var fieldErrors validator.ValidationErrors
		if !errors.As(err, &fieldErrors) {
			out = append(out, ValidationError{
				Environment: cfg.Name,
				Message:     err.Error(),
				Severity:    "error",
			})
			return out
		}

		for _, fe := range fieldErrors {
			out = append(out, ValidationError{
				Environment: cfg.Name,
				Field:       fieldName(fe),
				Message:     messageFor(fe),
				Severity:    "error",
			})
		}
	}

	// Tag keys must be non-empty.
	for key := range cfg.Tags {
		if strings.TrimSpace(key) == "" {
			out = append(out, ValidationError{
				Environment: cfg.Name,
				Field:       "tags",
				Message:     "tag keys must be non-empty",
				Severity:    "error",
			})
		}
	}

	return out
}

// fieldName maps a struct field error to its registry file spelling.
func fieldName(fe validator.FieldError) string {
	switch fe.Field() {
	case "Name":
		return "name"
	case "Domain":
		return "domain"
	case "StorageBucketName":
		return "storageBucketName"
	case "Region":
		return "region"
	default:
		return fe.Field()
	}
}

// messageFor renders a human-readable message for a field error.
func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "envname":
		return fmt.Sprintf("%q must be a lowercase DNS-safe label (letters, digits, hyphens)", fe.Value())
	case "fqdn":
		return fmt.Sprintf("%q must be a fully qualified domain name", fe.Value())
	case "bucketname":
		return fmt.Sprintf("%q must follow bucket naming rules (3-63 chars, lowercase, no adjacent dots, not an IP)", fe.Value())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
