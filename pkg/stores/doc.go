// Package stores provides persistence layer implementations for OpenSundae.
// It includes SQLite-based storage with WAL mode, connection pooling,
// and comprehensive CRUD operations for resource bindings, content
// snapshots, deploy runs, environment leases, and the event log.
package stores
