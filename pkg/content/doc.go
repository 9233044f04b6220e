// Package content implements the content sync engine: scanning a local
// tree into a hashed listing, classifying paths into cache policy
// buckets, diffing against the deployed listing, and applying the diff
// through a storage backend.
//
// A sync never runs blind. The deployed listing is snapshotted first
// (append-only, via SnapshotStore), and every body the sync would
// overwrite or delete is rescued into a content-addressed BlobArchive
// before the first mutation. Rollback is then the same machinery run in
// reverse: diff the snapshot against the current deployed listing and
// sync, sourcing restored bodies from the archive. No separate rollback
// code path exists, so both directions share ordering (writes before
// deletes) and failure semantics.
package content
