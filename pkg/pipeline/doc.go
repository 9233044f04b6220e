// Package pipeline sequences a deployment end to end: validate the
// declared catalog, reconcile cloud resources, sync content, purge the
// CDN, and verify the published site, recording every run and stage in
// the state store as it goes.
//
// A run holds an environment lease for its whole lifetime, so two
// deploys against the same environment cannot interleave. Stages fail
// in stage-specific ways: infrastructure stages are fatal, a content
// sync failure triggers an automatic rollback to the pre-sync
// snapshot, and cache or reachability trouble after the site already
// converged is demoted to a warning on an otherwise successful run.
// Cancellation is honored at stage boundaries only, so a half-finished
// apply is never abandoned mid-step.
package pipeline
