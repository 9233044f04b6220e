package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// sqliteTimeLayout is the format used for lease timestamps so expiry can be
// compared inside SQL with datetime().
const sqliteTimeLayout = "2006-01-02 15:04:05"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection and set PRAGMAs
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// SetCurrentEnvironment persists the selected environment
func (s *SQLiteStore) SetCurrentEnvironment(ctx context.Context, name string) error {
	query := `
		INSERT INTO selection (id, environment, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			environment = excluded.environment,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query, name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set current environment: %w", err)
	}

	return nil
}

// GetCurrentEnvironment returns the selected environment, or an empty
// string when none has been selected yet
func (s *SQLiteStore) GetCurrentEnvironment(ctx context.Context) (string, error) {
	query := `SELECT environment FROM selection WHERE id = 1`

	var name string
	err := s.db.QueryRowContext(ctx, query).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get current environment: %w", err)
	}

	return name, nil
}

// GetBinding retrieves a binding by environment and address. Returns
// (nil, nil) when no binding is recorded.
func (s *SQLiteStore) GetBinding(ctx context.Context, environment, address string) (*Binding, error) {
	query := `
		SELECT environment, address, physical_id, observed_hash, updated_at
		FROM bindings
		WHERE environment = ? AND address = ?
	`

	binding := &Binding{}
	err := s.db.QueryRowContext(ctx, query, environment, address).Scan(
		&binding.Environment,
		&binding.Address,
		&binding.PhysicalID,
		&binding.ObservedHash,
		&binding.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get binding: %w", err)
	}

	return binding, nil
}

// ListBindings lists all bindings for an environment, sorted by address
func (s *SQLiteStore) ListBindings(ctx context.Context, environment string) ([]*Binding, error) {
	query := `
		SELECT environment, address, physical_id, observed_hash, updated_at
		FROM bindings
		WHERE environment = ?
		ORDER BY address ASC
	`

	rows, err := s.db.QueryContext(ctx, query, environment)
	if err != nil {
		return nil, fmt.Errorf("failed to list bindings: %w", err)
	}
	defer rows.Close()

	bindings := []*Binding{}
	for rows.Next() {
		binding := &Binding{}
		err := rows.Scan(
			&binding.Environment,
			&binding.Address,
			&binding.PhysicalID,
			&binding.ObservedHash,
			&binding.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan binding: %w", err)
		}
		bindings = append(bindings, binding)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bindings: %w", err)
	}

	return bindings, nil
}

// PutBinding inserts or replaces the binding for its address. The schema
// enforces one address per physical object within an environment, so
// binding an already-claimed physical ID under a second address fails.
func (s *SQLiteStore) PutBinding(ctx context.Context, binding *Binding) error {
	query := `
		INSERT INTO bindings (environment, address, physical_id, observed_hash, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(environment, address) DO UPDATE SET
			physical_id = excluded.physical_id,
			observed_hash = excluded.observed_hash,
			updated_at = excluded.updated_at
	`

	updatedAt := binding.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		binding.Environment,
		binding.Address,
		binding.PhysicalID,
		binding.ObservedHash,
		updatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to put binding %s: %w", binding.Address, err)
	}

	return nil
}

// DeleteBinding removes the binding for an address. Deleting a missing
// binding is not an error.
func (s *SQLiteStore) DeleteBinding(ctx context.Context, environment, address string) error {
	query := `DELETE FROM bindings WHERE environment = ? AND address = ?`

	if _, err := s.db.ExecContext(ctx, query, environment, address); err != nil {
		return fmt.Errorf("failed to delete binding: %w", err)
	}

	return nil
}

// CreateSnapshot inserts a snapshot header and its items in one transaction
func (s *SQLiteStore) CreateSnapshot(ctx context.Context, snapshot *Snapshot, items []SnapshotItem) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	headerQuery := `
		INSERT INTO snapshots (id, environment, item_count, total_bytes, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	createdAt := snapshot.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, headerQuery,
		snapshot.ID,
		snapshot.Environment,
		snapshot.ItemCount,
		snapshot.TotalBytes,
		snapshot.Note,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	itemQuery := `
		INSERT INTO snapshot_items (snapshot_id, path, content_hash, size_bytes, content_type, cache_ttl_seconds)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	for _, item := range items {
		_, err = tx.ExecContext(ctx, itemQuery,
			snapshot.ID,
			item.Path,
			item.ContentHash,
			item.SizeBytes,
			item.ContentType,
			item.CacheTTLSeconds,
		)
		if err != nil {
			return fmt.Errorf("failed to create snapshot item %s: %w", item.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	return nil
}

// GetSnapshot retrieves a snapshot and its items by ID
func (s *SQLiteStore) GetSnapshot(ctx context.Context, id string) (*Snapshot, []SnapshotItem, error) {
	query := `
		SELECT id, environment, item_count, total_bytes, note, created_at
		FROM snapshots
		WHERE id = ?
	`

	snapshot := &Snapshot{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&snapshot.ID,
		&snapshot.Environment,
		&snapshot.ItemCount,
		&snapshot.TotalBytes,
		&snapshot.Note,
		&snapshot.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("snapshot not found: %s", id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	items, err := s.getSnapshotItems(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return snapshot, items, nil
}

// GetLatestSnapshot retrieves the most recent snapshot for an environment.
// Returns (nil, nil, nil) when the environment has no snapshots.
func (s *SQLiteStore) GetLatestSnapshot(ctx context.Context, environment string) (*Snapshot, []SnapshotItem, error) {
	query := `
		SELECT id, environment, item_count, total_bytes, note, created_at
		FROM snapshots
		WHERE environment = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	snapshot := &Snapshot{}
	err := s.db.QueryRowContext(ctx, query, environment).Scan(
		&snapshot.ID,
		&snapshot.Environment,
		&snapshot.ItemCount,
		&snapshot.TotalBytes,
		&snapshot.Note,
		&snapshot.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	items, err := s.getSnapshotItems(ctx, snapshot.ID)
	if err != nil {
		return nil, nil, err
	}

	return snapshot, items, nil
}

// getSnapshotItems loads all items of one snapshot, sorted by path
func (s *SQLiteStore) getSnapshotItems(ctx context.Context, snapshotID string) ([]SnapshotItem, error) {
	query := `
		SELECT snapshot_id, path, content_hash, size_bytes, content_type, cache_ttl_seconds
		FROM snapshot_items
		WHERE snapshot_id = ?
		ORDER BY path ASC
	`

	rows, err := s.db.QueryContext(ctx, query, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot items: %w", err)
	}
	defer rows.Close()

	items := []SnapshotItem{}
	for rows.Next() {
		item := SnapshotItem{}
		err := rows.Scan(
			&item.SnapshotID,
			&item.Path,
			&item.ContentHash,
			&item.SizeBytes,
			&item.ContentType,
			&item.CacheTTLSeconds,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot items: %w", err)
	}

	return items, nil
}

// ListSnapshots lists snapshot headers for an environment, newest first
func (s *SQLiteStore) ListSnapshots(ctx context.Context, environment string, limit, offset int) ([]*Snapshot, error) {
	query := `
		SELECT id, environment, item_count, total_bytes, note, created_at
		FROM snapshots
		WHERE environment = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, environment, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []*Snapshot{}
	for rows.Next() {
		snapshot := &Snapshot{}
		err := rows.Scan(
			&snapshot.ID,
			&snapshot.Environment,
			&snapshot.ItemCount,
			&snapshot.TotalBytes,
			&snapshot.Note,
			&snapshot.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

// PruneSnapshots deletes all but the newest keep snapshots for an
// environment and returns how many were removed
func (s *SQLiteStore) PruneSnapshots(ctx context.Context, environment string, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("keep must be at least 1, got %d", keep)
	}

	query := `
		DELETE FROM snapshots
		WHERE environment = ?
		  AND id NOT IN (
			SELECT id FROM snapshots
			WHERE environment = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		  )
	`

	result, err := s.db.ExecContext(ctx, query, environment, environment, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// CreateRun creates a new run record
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, environment, status, stage, started_at, completed_at, error, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Environment,
		run.Status,
		run.Stage,
		run.StartedAt,
		run.CompletedAt,
		run.Error,
		run.Metadata,
		run.CreatedAt,
		run.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, environment, status, stage, started_at, completed_at, error, metadata, created_at, updated_at
		FROM runs
		WHERE id = ?
	`

	run := &Run{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.Environment,
		&run.Status,
		&run.Stage,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Error,
		&run.Metadata,
		&run.CreatedAt,
		&run.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// GetLatestRun retrieves the most recent run for an environment. Returns
// (nil, nil) when the environment has no runs.
func (s *SQLiteStore) GetLatestRun(ctx context.Context, environment string) (*Run, error) {
	query := `
		SELECT id, environment, status, stage, started_at, completed_at, error, metadata, created_at, updated_at
		FROM runs
		WHERE environment = ?
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`

	run := &Run{}
	err := s.db.QueryRowContext(ctx, query, environment).Scan(
		&run.ID,
		&run.Environment,
		&run.Status,
		&run.Stage,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Error,
		&run.Metadata,
		&run.CreatedAt,
		&run.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	return run, nil
}

// UpdateRunStatus updates the status of a run
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id string, status RunStatus, errMsg *string) error {
	query := `
		UPDATE runs
		SET status = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	now := time.Now().UTC()
	var completedAt *time.Time
	if status.IsTerminal() {
		completedAt = &now
	}

	result, err := s.db.ExecContext(ctx, query, status, errMsg, completedAt, now, id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// UpdateRunStage records the stage a run has entered
func (s *SQLiteStore) UpdateRunStage(ctx context.Context, id string, stage string) error {
	query := `UPDATE runs SET stage = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, stage, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update run stage: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// ListRuns lists runs for an environment with pagination, newest first.
// An empty environment lists runs across all environments.
func (s *SQLiteStore) ListRuns(ctx context.Context, environment string, limit, offset int) ([]*Run, error) {
	query := `
		SELECT id, environment, status, stage, started_at, completed_at, error, metadata, created_at, updated_at
		FROM runs
		WHERE (? = '' OR environment = ?)
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, environment, environment, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run := &Run{}
		err := rows.Scan(
			&run.ID,
			&run.Environment,
			&run.Status,
			&run.Stage,
			&run.StartedAt,
			&run.CompletedAt,
			&run.Error,
			&run.Metadata,
			&run.CreatedAt,
			&run.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// UpsertRunStage inserts or updates one stage record of a run. The first
// recorded started_at is kept across updates.
func (s *SQLiteStore) UpsertRunStage(ctx context.Context, record *StageRecord) error {
	attempts := record.Attempts
	if attempts < 1 {
		attempts = 1
	}

	query := `
		INSERT INTO run_stages (run_id, stage, status, attempts, started_at, completed_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, stage) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			started_at = COALESCE(run_stages.started_at, excluded.started_at),
			completed_at = excluded.completed_at,
			error = excluded.error
	`

	_, err := s.db.ExecContext(ctx, query,
		record.RunID,
		record.Stage,
		record.Status,
		attempts,
		record.StartedAt,
		record.CompletedAt,
		record.Error,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert run stage: %w", err)
	}

	return nil
}

// ListRunStages lists all stage records for a run in insertion order
func (s *SQLiteStore) ListRunStages(ctx context.Context, runID string) ([]*StageRecord, error) {
	query := `
		SELECT run_id, stage, status, attempts, started_at, completed_at, error
		FROM run_stages
		WHERE run_id = ?
		ORDER BY rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run stages: %w", err)
	}
	defer rows.Close()

	records := []*StageRecord{}
	for rows.Next() {
		record := &StageRecord{}
		err := rows.Scan(
			&record.RunID,
			&record.Stage,
			&record.Status,
			&record.Attempts,
			&record.StartedAt,
			&record.CompletedAt,
			&record.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run stage: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run stages: %w", err)
	}

	return records, nil
}

// AcquireLock attempts to take the single-flight lease for an environment.
// A lock held by the same holder is re-acquired (extending the lease); an
// expired lock is stolen. Returns (nil, nil) when another holder has a
// live lease.
func (s *SQLiteStore) AcquireLock(ctx context.Context, environment, holder string, ttl time.Duration) (*Lock, error) {
	now := time.Now().UTC()
	expires := now.Add(ttl)

	query := `
		INSERT INTO env_locks (environment, holder, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(environment) DO UPDATE SET
			holder = excluded.holder,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at
		WHERE datetime(env_locks.expires_at) <= datetime(excluded.acquired_at)
		   OR env_locks.holder = excluded.holder
	`

	result, err := s.db.ExecContext(ctx, query,
		environment,
		holder,
		now.Format(sqliteTimeLayout),
		expires.Format(sqliteTimeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		// Another holder has a live lease.
		return nil, nil
	}

	return &Lock{
		Environment: environment,
		Holder:      holder,
		AcquiredAt:  now,
		ExpiresAt:   expires,
	}, nil
}

// RenewLock extends the lease for a lock the holder already owns
func (s *SQLiteStore) RenewLock(ctx context.Context, environment, holder string, ttl time.Duration) error {
	query := `
		UPDATE env_locks
		SET expires_at = ?
		WHERE environment = ? AND holder = ?
	`

	expires := time.Now().UTC().Add(ttl)
	result, err := s.db.ExecContext(ctx, query, expires.Format(sqliteTimeLayout), environment, holder)
	if err != nil {
		return fmt.Errorf("failed to renew lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("lock for %s is not held by %s", environment, holder)
	}

	return nil
}

// ReleaseLock releases the lease if the holder still owns it. Releasing a
// lock that expired and was stolen is not an error.
func (s *SQLiteStore) ReleaseLock(ctx context.Context, environment, holder string) error {
	query := `DELETE FROM env_locks WHERE environment = ? AND holder = ?`

	if _, err := s.db.ExecContext(ctx, query, environment, holder); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	return nil
}

// GetLock returns the current lock row for an environment, expired or not.
// Returns (nil, nil) when no lock row exists.
func (s *SQLiteStore) GetLock(ctx context.Context, environment string) (*Lock, error) {
	query := `
		SELECT environment, holder, acquired_at, expires_at
		FROM env_locks
		WHERE environment = ?
	`

	lock := &Lock{}
	err := s.db.QueryRowContext(ctx, query, environment).Scan(
		&lock.Environment,
		&lock.Holder,
		&lock.AcquiredAt,
		&lock.ExpiresAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lock: %w", err)
	}

	return lock, nil
}

// AppendEvent appends a new event to the log
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO events (run_id, environment, level, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, query,
		event.RunID,
		event.Environment,
		event.Level,
		event.Message,
		event.Details,
		timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	// Get the auto-generated ID
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}

	event.ID = id
	return nil
}

// ListEvents retrieves events with optional filters and pagination
func (s *SQLiteStore) ListEvents(ctx context.Context, runID *string, environment *string, level *EventLevel, limit, offset int) ([]*Event, error) {
	query := `
		SELECT id, run_id, environment, level, message, details, timestamp
		FROM events
		WHERE (? IS NULL OR run_id = ?)
		  AND (? IS NULL OR environment = ?)
		  AND (? IS NULL OR level = ?)
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, runID, runID, environment, environment, level, level, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		event := &Event{}
		err := rows.Scan(
			&event.ID,
			&event.RunID,
			&event.Environment,
			&event.Level,
			&event.Message,
			&event.Details,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
