package analysis

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/llm"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/model"
	"github.com/Virtual-Global-Trading-AG/lexpilot/internal/store"
)

func newSQLiteService(t *testing.T, inv *scripted) (*Service, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "analysis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return newTestService(t, inv, st, st), st
}

func TestSequential_PersistsEventsAndRun(t *testing.T) {
	svc, st := newSQLiteService(t, newScripted())
	ctx := context.Background()

	res, err := svc.RunSequentialAnalysis(ctx, testInput().WithUser("u-42"))
	require.NoError(t, err)

	stored, err := st.ListEvents(ctx, res.RunID)
	require.NoError(t, err)
	require.NotEmpty(t, stored)

	first, last := stored[0].Event, stored[len(stored)-1].Event
	assert.Equal(t, model.EventStarted, first.Kind)
	assert.Equal(t, model.EventCompleted, last.Kind)
	require.NotNil(t, last.Progress)
	assert.Equal(t, 100, *last.Progress)
	for _, se := range stored {
		assert.Equal(t, "u-42", se.UserID)
	}

	run, err := st.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, model.RunModeSequential, run.Mode)
	assert.Equal(t, "u-42", run.UserID)
}

func TestSequential_PersistsFailure(t *testing.T) {
	inv := newScripted().on("application", func(context.Context, llm.Prompt) (string, error) {
		return "", errors.New("provider exploded")
	})
	svc, st := newSQLiteService(t, inv)
	ctx := context.Background()

	_, err := svc.RunSequentialAnalysis(ctx, testInput())
	require.Error(t, err)

	run, err := st.GetRun(ctx, "run-fixed")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "provider exploded")

	stored, err := st.ListEvents(ctx, "run-fixed")
	require.NoError(t, err)
	last := stored[len(stored)-1].Event
	assert.Equal(t, model.EventFailed, last.Kind)
	assert.Equal(t, "application", last.Payload["failed_stage"])
}

func TestParallel_PersistsDegradedCount(t *testing.T) {
	inv := newScripted().
		reply("data_protection", checkReply("compliant", 0.9, "low")).
		reply("contractual_risk", checkReply("non_compliant", 0.5, "medium")).
		reply("regulatory_disclosure", checkReply("compliant", 0.8, "low"))
	// consumer_protection has no reply and degrades.
	svc, st := newSQLiteService(t, inv)
	ctx := context.Background()

	checks, err := svc.Checks()
	require.NoError(t, err)
	report, err := svc.RunParallelChecks(ctx, testInput(), checks)
	require.NoError(t, err)

	run, err := st.GetRun(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, model.RunModeParallel, run.Mode)
	assert.Equal(t, 1, run.Degraded)
}
