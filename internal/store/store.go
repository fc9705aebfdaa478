package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/config"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Mode   model.RunMode   `json:"mode,omitempty"`
	Since  time.Time       `json:"since,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// StoredEvent is an AnalysisEvent together with the user it belongs to.
type StoredEvent struct {
	ID     int64               `json:"id"`
	UserID string              `json:"user_id"`
	Event  model.AnalysisEvent `json:"event"`
}

// EventStore is the append-only structured sink for analysis events.
type EventStore interface {
	AppendEvent(ctx context.Context, userID, runID string, ev model.AnalysisEvent) error
	ListEvents(ctx context.Context, runID string) ([]StoredEvent, error)
}

// RunStore keeps one bookkeeping row per analysis run.
type RunStore interface {
	CreateRun(ctx context.Context, run model.Run) error
	FinishRun(ctx context.Context, id string, summary model.RunSummary) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
}

// Store defines the persistence interface for analysis runs and events.
type Store interface {
	EventStore
	RunStore

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Pool is the subset of pgxpool.Pool the Postgres store needs. pgxmock
// pools satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Open builds the store selected by cfg.Driver and applies migrations.
// Driver "none" returns (nil, nil).
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		st, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
