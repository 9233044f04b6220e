package site

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for descriptor validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	ctx := cuecontext.New()
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	sr.registerBuiltInSchemas()

	return sr
}

// registerBuiltInSchemas registers the schema for every catalog kind.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	_ = sr.RegisterSchema("dns_zone", builtinZoneSchema)
	_ = sr.RegisterSchema("certificate", builtinCertSchema)
	_ = sr.RegisterSchema("storage", builtinStorageSchema)
	_ = sr.RegisterSchema("cdn", builtinCDNSchema)
	_ = sr.RegisterSchema("dns", builtinRecordSchema)
	_ = sr.RegisterSchema("iam", builtinDeployUserSchema)
	_ = sr.RegisterSchema("monitor", builtinMonitorSchema)
}

// RegisterSchema registers a CUE schema for a resource kind.
func (sr *SchemaRegistry) RegisterSchema(kind, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", kind, err)
	}

	sr.schemas[kind] = val
	return nil
}

// GetSchema retrieves a schema by kind.
func (sr *SchemaRegistry) GetSchema(kind string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[kind]
	return val, ok
}

// ListSchemas returns all registered schema kinds.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	kinds := make([]string, 0, len(sr.schemas))
	for kind := range sr.schemas {
		kinds = append(kinds, kind)
	}
	return kinds
}

// ValidateDescriptor validates a descriptor document against the schema
// registered for its kind.
func (sr *SchemaRegistry) ValidateDescriptor(_ context.Context, kind string, descriptor json.RawMessage) error {
	schema, ok := sr.GetSchema(kind)
	if !ok {
		return fmt.Errorf("no schema registered for kind %s", kind)
	}

	// JSON is a subset of CUE, so the descriptor compiles directly and
	// integer fields stay integers.
	dataVal := sr.ctx.CompileBytes(descriptor)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("descriptor is not valid JSON: %w", err)
	}

	// Unify with schema (validates)
	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// Built-in schema definitions

const builtinZoneSchema = `
// Hosted DNS zone descriptor
domain: string & =~"^[a-z0-9.-]+\\.[a-z]{2,}$"
tags?: {[string]: string}
`

const builtinCertSchema = `
// TLS certificate descriptor
domain: string & =~"^[a-z0-9.-]+\\.[a-z]{2,}$"
alternate_names?: [...string]
validation_method: "dns" | "email"
tags?: {[string]: string}
`

const builtinStorageSchema = `
// Origin bucket descriptor
bucket: string & =~"^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$"
region: string & !=""
index_document: string & !=""
error_document: string & !=""
tags?: {[string]: string}
`

const builtinCDNSchema = `
// CDN distribution descriptor
origin_bucket: string & !=""
aliases: [...string] & [_, ...]
certificate_ref: string & !=""
default_ttl_seconds: int & >=0
compress: bool
tags?: {[string]: string}
`

const builtinRecordSchema = `
// DNS record descriptor
name: string & !=""
type: "ALIAS" | "CNAME" | "A" | "AAAA"
target: string & !=""
`

const builtinDeployUserSchema = `
// Deploy identity descriptor
user_name: string & =~"^[a-z][a-z0-9-]*$"
bucket_scope: string & !=""
tags?: {[string]: string}
`

const builtinMonitorSchema = `
// Uptime monitor descriptor
url: string & =~"^https://"
interval_seconds: int & >=10
tags?: {[string]: string}
`
