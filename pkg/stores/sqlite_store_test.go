package stores

import (
	"context"
	"os"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Check that tables exist by querying them
	tables := []string{"selection", "bindings", "snapshots", "snapshot_items", "runs", "run_stages", "env_locks", "events"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

// TestCurrentEnvironment tests environment selection persistence
func TestCurrentEnvironment(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// No selection yet
	name, err := store.GetCurrentEnvironment(ctx)
	if err != nil {
		t.Fatalf("failed to get current environment: %v", err)
	}
	if name != "" {
		t.Errorf("expected empty selection, got %q", name)
	}

	// Select an environment
	if err := store.SetCurrentEnvironment(ctx, "staging"); err != nil {
		t.Fatalf("failed to set current environment: %v", err)
	}

	name, err = store.GetCurrentEnvironment(ctx)
	if err != nil {
		t.Fatalf("failed to get current environment: %v", err)
	}
	if name != "staging" {
		t.Errorf("expected staging, got %q", name)
	}

	// Switching replaces the selection
	if err := store.SetCurrentEnvironment(ctx, "production"); err != nil {
		t.Fatalf("failed to switch environment: %v", err)
	}

	name, err = store.GetCurrentEnvironment(ctx)
	if err != nil {
		t.Fatalf("failed to get switched environment: %v", err)
	}
	if name != "production" {
		t.Errorf("expected production, got %q", name)
	}
}

// TestBindingCRUD tests binding CRUD operations
func TestBindingCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	// Missing binding returns nil, not an error
	missing, err := store.GetBinding(ctx, "staging", "dns_zone.main")
	if err != nil {
		t.Fatalf("failed to get missing binding: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing binding, got %+v", missing)
	}

	// Create
	binding := &Binding{
		Environment: "staging",
		Address:     "dns_zone.main",
		PhysicalID:  "zone-8f3a91",
		UpdatedAt:   now,
	}

	if err := store.PutBinding(ctx, binding); err != nil {
		t.Fatalf("failed to put binding: %v", err)
	}

	// Read
	retrieved, err := store.GetBinding(ctx, "staging", "dns_zone.main")
	if err != nil {
		t.Fatalf("failed to get binding: %v", err)
	}
	if retrieved == nil {
		t.Fatal("expected binding, got nil")
	}
	if retrieved.PhysicalID != binding.PhysicalID {
		t.Errorf("expected PhysicalID %s, got %s", binding.PhysicalID, retrieved.PhysicalID)
	}
	if retrieved.ObservedHash != "" {
		t.Errorf("expected empty ObservedHash, got %s", retrieved.ObservedHash)
	}

	// Upsert updates in place
	binding.ObservedHash = "abc123"
	if err := store.PutBinding(ctx, binding); err != nil {
		t.Fatalf("failed to upsert binding: %v", err)
	}

	updated, err := store.GetBinding(ctx, "staging", "dns_zone.main")
	if err != nil {
		t.Fatalf("failed to get updated binding: %v", err)
	}
	if updated.ObservedHash != "abc123" {
		t.Errorf("expected ObservedHash abc123, got %s", updated.ObservedHash)
	}

	// Binding the same physical object under a second address fails
	conflicting := &Binding{
		Environment: "staging",
		Address:     "dns_zone.backup",
		PhysicalID:  "zone-8f3a91",
		UpdatedAt:   now,
	}
	if err := store.PutBinding(ctx, conflicting); err == nil {
		t.Error("expected error when binding an already-claimed physical ID")
	}

	// The same physical ID in a different environment is fine
	other := &Binding{
		Environment: "production",
		Address:     "dns_zone.main",
		PhysicalID:  "zone-8f3a91",
		UpdatedAt:   now,
	}
	if err := store.PutBinding(ctx, other); err != nil {
		t.Fatalf("failed to put binding in other environment: %v", err)
	}

	// List is scoped to the environment and sorted by address
	second := &Binding{
		Environment: "staging",
		Address:     "cdn.site",
		PhysicalID:  "dist-114a",
		UpdatedAt:   now,
	}
	if err := store.PutBinding(ctx, second); err != nil {
		t.Fatalf("failed to put second binding: %v", err)
	}

	bindings, err := store.ListBindings(ctx, "staging")
	if err != nil {
		t.Fatalf("failed to list bindings: %v", err)
	}
	if len(bindings) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(bindings))
	}
	if bindings[0].Address != "cdn.site" || bindings[1].Address != "dns_zone.main" {
		t.Errorf("expected bindings sorted by address, got %s, %s", bindings[0].Address, bindings[1].Address)
	}

	// Delete
	if err := store.DeleteBinding(ctx, "staging", "dns_zone.main"); err != nil {
		t.Fatalf("failed to delete binding: %v", err)
	}

	deleted, err := store.GetBinding(ctx, "staging", "dns_zone.main")
	if err != nil {
		t.Fatalf("failed to check deleted binding: %v", err)
	}
	if deleted != nil {
		t.Error("expected binding to be deleted")
	}

	// Deleting a missing binding is not an error
	if err := store.DeleteBinding(ctx, "staging", "dns_zone.main"); err != nil {
		t.Errorf("expected deleting missing binding to succeed, got %v", err)
	}
}

// TestSnapshotOperations tests snapshot persistence
func TestSnapshotOperations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	// No snapshots yet
	latest, _, err := store.GetLatestSnapshot(ctx, "staging")
	if err != nil {
		t.Fatalf("failed to get latest snapshot: %v", err)
	}
	if latest != nil {
		t.Errorf("expected nil for empty environment, got %+v", latest)
	}

	// Create a snapshot with items
	first := &Snapshot{
		ID:          "snap-001",
		Environment: "staging",
		ItemCount:   2,
		TotalBytes:  5120,
		Note:        "initial deploy",
		CreatedAt:   now,
	}
	items := []SnapshotItem{
		{Path: "index.html", ContentHash: "aaa", SizeBytes: 1024, ContentType: "text/html", CacheTTLSeconds: 300},
		{Path: "css/site.css", ContentHash: "bbb", SizeBytes: 4096, ContentType: "text/css", CacheTTLSeconds: 31536000},
	}

	if err := store.CreateSnapshot(ctx, first, items); err != nil {
		t.Fatalf("failed to create snapshot: %v", err)
	}

	// Read back by ID
	snap, manifest, err := store.GetSnapshot(ctx, "snap-001")
	if err != nil {
		t.Fatalf("failed to get snapshot: %v", err)
	}
	if snap.ItemCount != 2 {
		t.Errorf("expected ItemCount 2, got %d", snap.ItemCount)
	}
	if len(manifest) != 2 {
		t.Fatalf("expected 2 items, got %d", len(manifest))
	}
	if manifest[0].Path != "css/site.css" {
		t.Errorf("expected items sorted by path, got %s first", manifest[0].Path)
	}

	// Missing snapshot is an error
	if _, _, err := store.GetSnapshot(ctx, "snap-missing"); err == nil {
		t.Error("expected error for missing snapshot")
	}

	// A newer snapshot becomes the latest
	second := &Snapshot{
		ID:          "snap-002",
		Environment: "staging",
		ItemCount:   1,
		TotalBytes:  1024,
		CreatedAt:   now.Add(1 * time.Second),
	}
	if err := store.CreateSnapshot(ctx, second, []SnapshotItem{
		{Path: "index.html", ContentHash: "ccc", SizeBytes: 1024, ContentType: "text/html", CacheTTLSeconds: 300},
	}); err != nil {
		t.Fatalf("failed to create second snapshot: %v", err)
	}

	latest, latestItems, err := store.GetLatestSnapshot(ctx, "staging")
	if err != nil {
		t.Fatalf("failed to get latest snapshot: %v", err)
	}
	if latest.ID != "snap-002" {
		t.Errorf("expected latest snap-002, got %s", latest.ID)
	}
	if len(latestItems) != 1 {
		t.Errorf("expected 1 item in latest, got %d", len(latestItems))
	}

	// List is newest first
	snapshots, err := store.ListSnapshots(ctx, "staging", 10, 0)
	if err != nil {
		t.Fatalf("failed to list snapshots: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snapshots))
	}
	if snapshots[0].ID != "snap-002" {
		t.Errorf("expected snap-002 first, got %s", snapshots[0].ID)
	}

	// Prune keeps the newest
	pruned, err := store.PruneSnapshots(ctx, "staging", 1)
	if err != nil {
		t.Fatalf("failed to prune snapshots: %v", err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned snapshot, got %d", pruned)
	}

	remaining, err := store.ListSnapshots(ctx, "staging", 10, 0)
	if err != nil {
		t.Fatalf("failed to list remaining snapshots: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != "snap-002" {
		t.Errorf("expected only snap-002 to remain, got %d snapshots", len(remaining))
	}

	// Items of the pruned snapshot cascade away
	var count int
	err = store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshot_items WHERE snapshot_id = ?", "snap-001").Scan(&count)
	if err != nil {
		t.Fatalf("failed to count orphaned items: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 items after prune, got %d", count)
	}
}

// TestRunCRUD tests Run CRUD operations
func TestRunCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	// No runs yet
	latest, err := store.GetLatestRun(ctx, "staging")
	if err != nil {
		t.Fatalf("failed to get latest run: %v", err)
	}
	if latest != nil {
		t.Errorf("expected nil for empty environment, got %+v", latest)
	}

	// Create
	run := &Run{
		ID:          "run-001",
		Environment: "staging",
		Status:      RunStatusPending,
		StartedAt:   now,
		Metadata:    `{"trigger":"cli"}`,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	// Read
	retrieved, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}

	if retrieved.ID != run.ID {
		t.Errorf("expected ID %s, got %s", run.ID, retrieved.ID)
	}
	if retrieved.Environment != run.Environment {
		t.Errorf("expected Environment %s, got %s", run.Environment, retrieved.Environment)
	}
	if retrieved.Status != run.Status {
		t.Errorf("expected Status %s, got %s", run.Status, retrieved.Status)
	}

	// Stage update
	if err := store.UpdateRunStage(ctx, run.ID, "sync"); err != nil {
		t.Fatalf("failed to update run stage: %v", err)
	}

	staged, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get staged run: %v", err)
	}
	if staged.Stage != "sync" {
		t.Errorf("expected Stage sync, got %s", staged.Stage)
	}

	// Terminal status sets completion
	errMsg := "storage unreachable"
	if err := store.UpdateRunStatus(ctx, run.ID, RunStatusFailed, &errMsg); err != nil {
		t.Fatalf("failed to update run status: %v", err)
	}

	updated, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get updated run: %v", err)
	}

	if updated.Status != RunStatusFailed {
		t.Errorf("expected Status %s, got %s", RunStatusFailed, updated.Status)
	}
	if updated.Error == nil || *updated.Error != errMsg {
		t.Errorf("expected Error %s, got %v", errMsg, updated.Error)
	}
	if updated.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}

	// A non-terminal status leaves completion unset
	run2 := &Run{
		ID:          "run-002",
		Environment: "staging",
		Status:      RunStatusPending,
		StartedAt:   now.Add(1 * time.Second),
		Metadata:    `{}`,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.CreateRun(ctx, run2); err != nil {
		t.Fatalf("failed to create second run: %v", err)
	}
	if err := store.UpdateRunStatus(ctx, run2.ID, RunStatusRunning, nil); err != nil {
		t.Fatalf("failed to mark run running: %v", err)
	}

	running, err := store.GetRun(ctx, run2.ID)
	if err != nil {
		t.Fatalf("failed to get running run: %v", err)
	}
	if running.CompletedAt != nil {
		t.Error("expected CompletedAt to be unset for running run")
	}

	// Latest picks the newest start
	latest, err = store.GetLatestRun(ctx, "staging")
	if err != nil {
		t.Fatalf("failed to get latest run: %v", err)
	}
	if latest.ID != "run-002" {
		t.Errorf("expected latest run-002, got %s", latest.ID)
	}

	// List scoping
	runs, err := store.ListRuns(ctx, "staging", 10, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}

	empty, err := store.ListRuns(ctx, "production", 10, 0)
	if err != nil {
		t.Fatalf("failed to list production runs: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected 0 production runs, got %d", len(empty))
	}

	all, err := store.ListRuns(ctx, "", 10, 0)
	if err != nil {
		t.Fatalf("failed to list all runs: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 runs across environments, got %d", len(all))
	}

	// Missing run is an error
	if _, err := store.GetRun(ctx, "run-missing"); err == nil {
		t.Error("expected error when getting missing run")
	}
	if err := store.UpdateRunStatus(ctx, "run-missing", RunStatusFailed, nil); err == nil {
		t.Error("expected error when updating missing run")
	}
}

// TestRunStages tests per-stage tracking
func TestRunStages(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	run := &Run{
		ID:          "run-010",
		Environment: "staging",
		Status:      RunStatusRunning,
		StartedAt:   now,
		Metadata:    `{}`,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	// Record a stage entering
	started := now
	record := &StageRecord{
		RunID:     run.ID,
		Stage:     "plan",
		Status:    StageStatusRunning,
		StartedAt: &started,
	}
	if err := store.UpsertRunStage(ctx, record); err != nil {
		t.Fatalf("failed to upsert stage: %v", err)
	}

	// Complete the stage; the original start time is preserved
	completed := now.Add(3 * time.Second)
	laterStart := now.Add(5 * time.Second)
	record.Status = StageStatusSucceeded
	record.Attempts = 3
	record.StartedAt = &laterStart
	record.CompletedAt = &completed
	if err := store.UpsertRunStage(ctx, record); err != nil {
		t.Fatalf("failed to upsert completed stage: %v", err)
	}

	second := &StageRecord{
		RunID:     run.ID,
		Stage:     "apply",
		Status:    StageStatusRunning,
		StartedAt: &completed,
	}
	if err := store.UpsertRunStage(ctx, second); err != nil {
		t.Fatalf("failed to upsert second stage: %v", err)
	}

	records, err := store.ListRunStages(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to list stages: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 stage records, got %d", len(records))
	}
	if records[0].Stage != "plan" || records[1].Stage != "apply" {
		t.Errorf("expected insertion order plan, apply; got %s, %s", records[0].Stage, records[1].Stage)
	}
	if records[0].Status != StageStatusSucceeded {
		t.Errorf("expected plan stage succeeded, got %s", records[0].Status)
	}
	if records[0].Attempts != 3 {
		t.Errorf("expected 3 attempts recorded, got %d", records[0].Attempts)
	}
	if records[0].StartedAt == nil || !records[0].StartedAt.Equal(started) {
		t.Errorf("expected original start time preserved, got %v", records[0].StartedAt)
	}
	if records[0].CompletedAt == nil {
		t.Error("expected completed time to be recorded")
	}
	if records[1].Attempts != 1 {
		t.Errorf("expected attempts to default to 1, got %d", records[1].Attempts)
	}
}

// TestLockOperations tests the single-flight environment lease
func TestLockOperations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// No lock yet
	lock, err := store.GetLock(ctx, "production")
	if err != nil {
		t.Fatalf("failed to get lock: %v", err)
	}
	if lock != nil {
		t.Errorf("expected no lock, got %+v", lock)
	}

	// First holder acquires
	acquired, err := store.AcquireLock(ctx, "production", "runner-a", 60*time.Second)
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	if acquired == nil {
		t.Fatal("expected lock to be acquired")
	}
	if acquired.Holder != "runner-a" {
		t.Errorf("expected holder runner-a, got %s", acquired.Holder)
	}

	// A second holder is refused while the lease is live
	refused, err := store.AcquireLock(ctx, "production", "runner-b", 60*time.Second)
	if err != nil {
		t.Fatalf("acquire by second holder failed: %v", err)
	}
	if refused != nil {
		t.Errorf("expected second holder to be refused, got %+v", refused)
	}

	// The current holder can see who owns the lease
	current, err := store.GetLock(ctx, "production")
	if err != nil {
		t.Fatalf("failed to get current lock: %v", err)
	}
	if current == nil || current.Holder != "runner-a" {
		t.Errorf("expected lock held by runner-a, got %+v", current)
	}

	// The same holder re-acquires, extending the lease
	extended, err := store.AcquireLock(ctx, "production", "runner-a", 60*time.Second)
	if err != nil {
		t.Fatalf("failed to re-acquire lock: %v", err)
	}
	if extended == nil {
		t.Fatal("expected same holder to re-acquire")
	}

	// Renewing works for the holder
	if err := store.RenewLock(ctx, "production", "runner-a", 120*time.Second); err != nil {
		t.Fatalf("failed to renew lock: %v", err)
	}

	// Renewing fails for a non-holder
	if err := store.RenewLock(ctx, "production", "runner-b", 60*time.Second); err == nil {
		t.Error("expected renew by non-holder to fail")
	}

	// Release
	if err := store.ReleaseLock(ctx, "production", "runner-a"); err != nil {
		t.Fatalf("failed to release lock: %v", err)
	}

	released, err := store.GetLock(ctx, "production")
	if err != nil {
		t.Fatalf("failed to get released lock: %v", err)
	}
	if released != nil {
		t.Errorf("expected lock to be gone, got %+v", released)
	}

	// Releasing again is not an error
	if err := store.ReleaseLock(ctx, "production", "runner-a"); err != nil {
		t.Errorf("expected releasing missing lock to succeed, got %v", err)
	}
}

// TestLockExpiry tests that an expired lease can be stolen
func TestLockExpiry(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Acquire a lease that is already expired
	expired, err := store.AcquireLock(ctx, "staging", "runner-a", -2*time.Second)
	if err != nil {
		t.Fatalf("failed to acquire expired lock: %v", err)
	}
	if expired == nil {
		t.Fatal("expected initial acquire to succeed")
	}

	// Another holder steals the expired lease
	stolen, err := store.AcquireLock(ctx, "staging", "runner-b", 60*time.Second)
	if err != nil {
		t.Fatalf("failed to steal expired lock: %v", err)
	}
	if stolen == nil {
		t.Fatal("expected expired lease to be stolen")
	}
	if stolen.Holder != "runner-b" {
		t.Errorf("expected holder runner-b, got %s", stolen.Holder)
	}

	// The original holder can no longer renew
	if err := store.RenewLock(ctx, "staging", "runner-a", 60*time.Second); err == nil {
		t.Error("expected renew by previous holder to fail")
	}
}

// TestEventOperations tests Event operations
func TestEventOperations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	runID := "run-020"
	environment := "staging"

	// Append events
	events := []*Event{
		{
			RunID:       &runID,
			Environment: &environment,
			Level:       EventLevelInfo,
			Message:     "Starting deploy",
			Timestamp:   now,
		},
		{
			RunID:       &runID,
			Environment: &environment,
			Level:       EventLevelWarning,
			Message:     "Invalidation still pending",
			Timestamp:   now.Add(1 * time.Second),
		},
		{
			RunID:       &runID,
			Environment: &environment,
			Level:       EventLevelError,
			Message:     "Sync failed",
			Timestamp:   now.Add(2 * time.Second),
		},
	}

	for _, event := range events {
		if err := store.AppendEvent(ctx, event); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
		if event.ID == 0 {
			t.Error("expected event ID to be set after insert")
		}
	}

	// Get all events for run, newest first
	retrieved, err := store.ListEvents(ctx, &runID, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}

	if len(retrieved) != 3 {
		t.Fatalf("expected 3 events, got %d", len(retrieved))
	}
	if retrieved[0].Message != "Sync failed" {
		t.Errorf("expected newest event first, got %s", retrieved[0].Message)
	}

	// Filter by level
	errorLevel := EventLevelError
	filtered, err := store.ListEvents(ctx, nil, nil, &errorLevel, 10, 0)
	if err != nil {
		t.Fatalf("failed to list filtered events: %v", err)
	}

	if len(filtered) != 1 {
		t.Errorf("expected 1 error event, got %d", len(filtered))
	}
	if filtered[0].Level != EventLevelError {
		t.Errorf("expected level %s, got %s", EventLevelError, filtered[0].Level)
	}

	// Filter by environment
	byEnv, err := store.ListEvents(ctx, nil, &environment, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to list events by environment: %v", err)
	}
	if len(byEnv) != 3 {
		t.Errorf("expected 3 staging events, got %d", len(byEnv))
	}

	// Pagination
	page, err := store.ListEvents(ctx, &runID, nil, nil, 2, 1)
	if err != nil {
		t.Fatalf("failed to paginate events: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("expected 2 events on page, got %d", len(page))
	}
}

// TestTransactions tests transaction support
func TestTransactions(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	// Begin transaction
	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}

	query := `
		INSERT INTO runs (id, environment, status, stage, started_at, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query, "run-tx-001", "staging", "pending", "", now, "{}", now, now)
	if err != nil {
		store.RollbackTx(tx)
		t.Fatalf("failed to insert run in transaction: %v", err)
	}

	// Rollback
	if err := store.RollbackTx(tx); err != nil {
		t.Fatalf("failed to rollback transaction: %v", err)
	}

	// Verify run was not created
	_, err = store.GetRun(ctx, "run-tx-001")
	if err == nil {
		t.Error("expected error when getting rolled back run")
	}

	// Begin new transaction and commit
	tx, err = store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("failed to begin second transaction: %v", err)
	}

	_, err = tx.ExecContext(ctx, query, "run-tx-001", "staging", "pending", "", now, "{}", now, now)
	if err != nil {
		store.RollbackTx(tx)
		t.Fatalf("failed to insert run in second transaction: %v", err)
	}

	if err := store.CommitTx(tx); err != nil {
		t.Fatalf("failed to commit transaction: %v", err)
	}

	// Verify run was created
	retrieved, err := store.GetRun(ctx, "run-tx-001")
	if err != nil {
		t.Fatalf("failed to get committed run: %v", err)
	}

	if retrieved.ID != "run-tx-001" {
		t.Errorf("expected ID run-tx-001, got %s", retrieved.ID)
	}
}

// TestMain sets up and tears down test environment
func TestMain(m *testing.M) {
	// Run tests
	code := m.Run()

	// Exit
	os.Exit(code)
}
