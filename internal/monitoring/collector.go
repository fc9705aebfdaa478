package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/model"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/store"
)

// collectLimit caps how many runs a single snapshot reads.
const collectLimit = 10000

// MetricsSnapshot holds a point-in-time view of analysis health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	FailureRate  float64 `json:"failure_rate"`

	// Per-engine breakdown.
	SequentialTotal  int `json:"sequential_total"`
	ParallelTotal    int `json:"parallel_total"`
	ParallelComplete int `json:"parallel_complete"`

	// Parallel runs that finished with at least one degraded check.
	DegradedRuns   int     `json:"degraded_runs"`
	DegradedChecks int     `json:"degraded_checks"`
	DegradedRate   float64 `json:"degraded_rate"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the part of store.RunStore the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from the run store.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		Since: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit: collectLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	for _, r := range runs {
		switch r.Mode {
		case model.RunModeSequential:
			snap.SequentialTotal++
		case model.RunModeParallel:
			snap.ParallelTotal++
		}

		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
			if r.Mode == model.RunModeParallel {
				snap.ParallelComplete++
				if r.Degraded > 0 {
					snap.DegradedRuns++
					snap.DegradedChecks += r.Degraded
				}
			}
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailureRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.ParallelComplete > 0 {
		snap.DegradedRate = float64(snap.DegradedRuns) / float64(snap.ParallelComplete)
	}
	return snap, nil
}
