package stores

import (
	"context"
	"database/sql"
	"time"
)

// Run is the persisted record of one plan execution.
type Run struct {
	ID          string     `json:"id"`
	PlanID      string     `json:"plan_id"`
	Primary     string     `json:"primary"`
	Status      string     `json:"status"`
	Total       int        `json:"total"`
	Succeeded   int        `json:"succeeded"`
	Failed      int        `json:"failed"`
	Skipped     int        `json:"skipped"`
	TimedOut    int        `json:"timed_out"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  int64      `json:"duration_ms"`
	Metadata    string     `json:"metadata"` // JSON blob
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// UnitResult is the persisted terminal outcome of one unit within a run.
type UnitResult struct {
	ID           int64      `json:"id"`
	RunID        string     `json:"run_id"`
	UnitID       string     `json:"unit_id"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	Input        *string    `json:"input,omitempty"`  // JSON blob
	Output       *string    `json:"output,omitempty"` // JSON blob
	ErrorClass   *string    `json:"error_class,omitempty"`
	ErrorCode    *string    `json:"error_code,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	DurationMS   int64      `json:"duration_ms"`
}

// Transition is one persisted status transition from a run's trace.
type Transition struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	UnitID     string    `json:"unit_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Attempt    int       `json:"attempt"`
	Timestamp  time.Time `json:"timestamp"`
}

// LatestOutput is the last known successful output of a unit across runs.
type LatestOutput struct {
	UnitID     string    `json:"unit_id"`
	RunID      string    `json:"run_id"`
	Output     string    `json:"output"` // JSON blob
	Hash       string    `json:"hash"`   // SHA256 of output for change detection
	ProducedAt time.Time `json:"produced_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store defines the interface for the persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRunStatus(ctx context.Context, id string, status string, errMsg *string) error
	ListRuns(ctx context.Context, status *string, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// UnitResult operations
	CreateUnitResult(ctx context.Context, result *UnitResult) error
	GetUnitResult(ctx context.Context, runID, unitID string) (*UnitResult, error)
	ListUnitResultsByRun(ctx context.Context, runID string) ([]*UnitResult, error)

	// Transition operations
	AppendTransition(ctx context.Context, transition *Transition) error
	ListTransitions(ctx context.Context, runID string, unitID *string, limit, offset int) ([]*Transition, error)

	// LatestOutput operations
	UpsertLatestOutput(ctx context.Context, output *LatestOutput) error
	GetLatestOutput(ctx context.Context, unitID string) (*LatestOutput, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
