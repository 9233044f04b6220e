package stores

import (
	"context"
	"database/sql"
	"time"
)

// RunStatus represents the status of a deploy run
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusRunning    RunStatus = "running"
	RunStatusSucceeded  RunStatus = "succeeded"
	RunStatusFailed     RunStatus = "failed"
	RunStatusRolledBack RunStatus = "rolled_back"
	RunStatusCancelled  RunStatus = "cancelled"
)

// IsTerminal returns true when the status is a final state.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusRolledBack, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// StageStatus represents the status of one pipeline stage within a run
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusSucceeded StageStatus = "succeeded"
	StageStatusWarned    StageStatus = "warned"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
)

// EventLevel represents the severity level of an event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Binding records the mapping from a logical resource address to a
// physical backend object, scoped to one environment
type Binding struct {
	Environment  string    `json:"environment"`
	Address      string    `json:"address"`
	PhysicalID   string    `json:"physical_id"`
	ObservedHash string    `json:"observed_hash"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Snapshot is the header row of an immutable deployed-content listing
type Snapshot struct {
	ID          string    `json:"id"`
	Environment string    `json:"environment"`
	ItemCount   int       `json:"item_count"`
	TotalBytes  int64     `json:"total_bytes"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SnapshotItem is one file entry of a snapshot
type SnapshotItem struct {
	SnapshotID      string `json:"snapshot_id"`
	Path            string `json:"path"`
	ContentHash     string `json:"content_hash"`
	SizeBytes       int64  `json:"size_bytes"`
	ContentType     string `json:"content_type"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds"`
}

// Run represents one deploy pipeline invocation
type Run struct {
	ID          string     `json:"id"`
	Environment string     `json:"environment"`
	Status      RunStatus  `json:"status"`
	Stage       string     `json:"stage"` // last stage entered
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	Metadata    string     `json:"metadata"` // JSON blob
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// StageRecord tracks one pipeline stage of a run
type StageRecord struct {
	RunID       string      `json:"run_id"`
	Stage       string      `json:"stage"`
	Status      StageStatus `json:"status"`
	Attempts    int         `json:"attempts"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Error       *string     `json:"error,omitempty"`
}

// Lock is a lease-based single-flight lock for one environment
type Lock struct {
	Environment string    `json:"environment"`
	Holder      string    `json:"holder"`
	AcquiredAt  time.Time `json:"acquired_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Event represents an append-only log event
type Event struct {
	ID          int64      `json:"id"`
	RunID       *string    `json:"run_id,omitempty"`
	Environment *string    `json:"environment,omitempty"`
	Level       EventLevel `json:"level"`
	Message     string     `json:"message"`
	Details     *string    `json:"details,omitempty"` // JSON blob
	Timestamp   time.Time  `json:"timestamp"`
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Environment selection
	SetCurrentEnvironment(ctx context.Context, name string) error
	GetCurrentEnvironment(ctx context.Context) (string, error)

	// Binding operations
	GetBinding(ctx context.Context, environment, address string) (*Binding, error)
	ListBindings(ctx context.Context, environment string) ([]*Binding, error)
	PutBinding(ctx context.Context, binding *Binding) error
	DeleteBinding(ctx context.Context, environment, address string) error

	// Snapshot operations
	CreateSnapshot(ctx context.Context, snapshot *Snapshot, items []SnapshotItem) error
	GetSnapshot(ctx context.Context, id string) (*Snapshot, []SnapshotItem, error)
	GetLatestSnapshot(ctx context.Context, environment string) (*Snapshot, []SnapshotItem, error)
	ListSnapshots(ctx context.Context, environment string, limit, offset int) ([]*Snapshot, error)
	PruneSnapshots(ctx context.Context, environment string, keep int) (int64, error)

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	GetLatestRun(ctx context.Context, environment string) (*Run, error)
	UpdateRunStatus(ctx context.Context, id string, status RunStatus, errMsg *string) error
	UpdateRunStage(ctx context.Context, id string, stage string) error
	ListRuns(ctx context.Context, environment string, limit, offset int) ([]*Run, error)

	// Stage operations
	UpsertRunStage(ctx context.Context, record *StageRecord) error
	ListRunStages(ctx context.Context, runID string) ([]*StageRecord, error)

	// Lock operations
	AcquireLock(ctx context.Context, environment, holder string, ttl time.Duration) (*Lock, error)
	RenewLock(ctx context.Context, environment, holder string, ttl time.Duration) error
	ReleaseLock(ctx context.Context, environment, holder string) error
	GetLock(ctx context.Context, environment string) (*Lock, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	ListEvents(ctx context.Context, runID *string, environment *string, level *EventLevel, limit, offset int) ([]*Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
