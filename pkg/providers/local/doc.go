// Package local provides simulation backends for development runs: a
// provisioner that keeps physical objects in a JSON file instead of a
// cloud account, a storage backend over a plain directory, and a CDN
// whose invalidations settle after a configurable number of polls.
//
// The three backends satisfy the same interfaces the real drivers do
// (recon.ProvisioningBackend, content.StorageBackend, cdn.CDNBackend),
// so every pipeline stage runs unmodified against them. A full deploy
// can be exercised on a laptop with no credentials, and the end-to-end
// tests run against the same code paths an operator uses.
//
// The provisioner persists its object table across processes when given
// a state path, so repeated runs converge to no-op plans the way they
// would against a real provider. Concurrent access is not arbitrated
// here; the run lock in the state store already serializes runs.
package local
