// Package environ loads and validates the environment registry for
// OpenSundae deployments.
//
// # Overview
//
// The environ package owns the environments.yaml registry: a keyed mapping
// of environment name to configuration (site domain, storage bucket, region,
// feature flags, tags). Exactly one environment is "active" per pipeline
// invocation; the selection is persisted through a SelectionStore so it
// survives between CLI calls without any hidden global state. The domain is
// the apex site domain; the www alias is derived from it.
//
// # Registry format
//
//	environments:
//	  staging:
//	    domain: staging.example.com
//	    storageBucketName: staging-example-site
//	    region: eu-central-1
//	    flags:
//	      createDeployUser: true
//	      enableHealthCheck: false
//	    tags:
//	      team: web
//	  production:
//	    domain: example.com
//	    storageBucketName: example-site
//	    region: eu-central-1
//	    flags:
//	      createDeployUser: true
//	      enableHealthCheck: true
//
// The map key is the environment name. An inline name field is allowed but
// must agree with the key.
//
// # Validation
//
// Load validates every environment and reports ALL violations in one pass
// (domain syntax, bucket naming rules, required fields) so operators see
// the full picture rather than one error per attempt.
//
// # Rendering
//
// Render produces the deterministic materialized form consumed by the
// provisioning backend: equal configs always render byte-identical output,
// which makes rendered files diffable in CI.
package environ
