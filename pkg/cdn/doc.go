// Package cdn drives cache invalidation after a content sync and
// verifies the published site is reachable.
//
// Invalidation is asynchronous on every real CDN: a purge request
// returns a job that propagates on its own schedule. PollUntilComplete
// waits for it with a hard deadline, and treats an elapsed deadline as
// a warning rather than a failure, since an unfinished purge still
// lands eventually. Reachability probes work the same way: propagation
// delay after a fresh deploy is routine, so an exhausted probe budget
// is surfaced as a warning in the result, never an error.
package cdn
