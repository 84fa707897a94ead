package runtracker

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/achesucatas/pkg/model"
)

func newMockTracker(t *testing.T) (*Tracker, sqlmock.Sqlmock, func()) {
	t.Helper()
	mockDB, sqlMock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(mockDB, "sqlmock")
	return New(sqlxDB), sqlMock, func() { _ = mockDB.Close() }
}

func TestStartInsertsRunningRow(t *testing.T) {
	tr, mock, closeDB := newMockTracker(t)
	defer closeDB()

	mock.ExpectExec(`INSERT INTO run_executions`).
		WithArgs("RUN-1", sqlmock.AnyArg(), model.RunRunning, model.ModeIncremental, "v16").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := tr.Start(context.Background(), "RUN-1", model.ModeIncremental, "v16")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Count/AddCost are the orchestrator's cross-worker mutable state and must
// be safe to call concurrently from many goroutines.
func TestCountIsSafeForConcurrentUse(t *testing.T) {
	tr, mock, closeDB := newMockTracker(t)
	defer closeDB()
	mock.ExpectExec(`INSERT INTO run_executions`).WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, tr.Start(context.Background(), "RUN-2", model.ModeFull, "v16"))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Count("processados", 1)
			tr.Count("validos", 1)
		}()
	}
	wg.Wait()

	q := tr.Quality()
	assert.Equal(t, 100, q.TotalProcessados)
	assert.Equal(t, 100, q.TotalValidos)
}

func TestAddCostAccumulates(t *testing.T) {
	tr, mock, closeDB := newMockTracker(t)
	defer closeDB()
	mock.ExpectExec(`INSERT INTO run_executions`).WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, tr.Start(context.Background(), "RUN-3", model.ModeFull, "v16"))

	tr.AddCost(0.02, 0.015, 1)
	tr.AddCost(0.03, 0.020, 1)

	q := tr.Quality()
	assert.InDelta(t, 0.05, q.CostTotal, 0.0001)
	assert.InDelta(t, 0.035, q.CostOpenAI, 0.0001)
	assert.Equal(t, 2, q.NumPDFs)
}

// RecordEvent buffers until flushThreshold (50) events accumulate, then
// flushes them in a single transaction rather than one round-trip each.
func TestRecordEventFlushesAtThreshold(t *testing.T) {
	tr, mock, closeDB := newMockTracker(t)
	defer closeDB()
	mock.ExpectExec(`INSERT INTO run_executions`).WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, tr.Start(context.Background(), "RUN-4", model.ModeFull, "v16"))

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO pipeline_events`)
	for i := 0; i < flushThreshold; i++ {
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	for i := 0; i < flushThreshold; i++ {
		err := tr.RecordEvent(context.Background(), model.PipelineEvent{Etapa: "discover", Evento: "page_fetched"})
		require.NoError(t, err)
	}

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEventBelowThresholdDoesNotFlush(t *testing.T) {
	tr, mock, closeDB := newMockTracker(t)
	defer closeDB()
	mock.ExpectExec(`INSERT INTO run_executions`).WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, tr.Start(context.Background(), "RUN-5", model.ModeFull, "v16"))

	err := tr.RecordEvent(context.Background(), model.PipelineEvent{Etapa: "discover", Evento: "page_fetched"})
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeFlushesAndUpdatesRunRow(t *testing.T) {
	tr, mock, closeDB := newMockTracker(t)
	defer closeDB()
	mock.ExpectExec(`INSERT INTO run_executions`).WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, tr.Start(context.Background(), "RUN-6", model.ModeFull, "v16"))
	tr.Count("processados", 10)
	tr.Count("validos", 7)
	tr.Count("quarentena", 3)

	require.NoError(t, tr.RecordEvent(context.Background(), model.PipelineEvent{Etapa: "validate", Evento: "record_validated"}))

	mock.ExpectBegin()
	mock.ExpectPrepare(`INSERT INTO pipeline_events`).
		ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`UPDATE run_executions SET`).
		WithArgs("RUN-6", sqlmock.AnyArg(), model.RunSuccess, "", 0.0, 0.0).
		WillReturnResult(sqlmock.NewResult(1, 1))

	report, err := tr.Finalize(context.Background(), model.RunSuccess, "")
	require.NoError(t, err)
	assert.Equal(t, 10, report.TotalProcessados)
	assert.InDelta(t, 70.0, report.TaxaValidosPct, 0.01)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeSurfacesUpdateError(t *testing.T) {
	tr, mock, closeDB := newMockTracker(t)
	defer closeDB()
	mock.ExpectExec(`INSERT INTO run_executions`).WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, tr.Start(context.Background(), "RUN-7", model.ModeFull, "v16"))

	mock.ExpectExec(`UPDATE run_executions SET`).WillReturnError(sql.ErrConnDone)

	_, err := tr.Finalize(context.Background(), model.RunFailed, "boom")
	assert.Error(t, err)
}
