package database

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/page-verifier/pkg/models"
)

func newMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewWithConn(conn), mock
}

var runCols = []string{"id", "status", "document_path", "output_path", "driver",
	"temporal_workflow_id", "temporal_run_id", "error_message", "started_at", "completed_at"}

func TestCreateRun(t *testing.T) {
	db, mock := newMock(t)

	run := &models.VerificationRun{
		ID:           "run-1",
		Status:       models.StatusPending,
		DocumentPath: "index.html",
		OutputPath:   "/tmp/screenshots/run-1.png",
		Driver:       "rod",
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO verification_runs")).
		WithArgs("run-1", models.StatusPending, "index.html", "/tmp/screenshots/run-1.png", "rod", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, db.CreateRun(context.Background(), run))
	assert.NotNil(t, run.StartedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRun(t *testing.T) {
	started := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		db, mock := newMock(t)
		rows := sqlmock.NewRows(runCols).
			AddRow("run-1", "success", "index.html", "out.png", "rod", "wf", "tr", "", started, started)
		mock.ExpectQuery(regexp.QuoteMeta("FROM verification_runs WHERE id = ?")).
			WithArgs("run-1").
			WillReturnRows(rows)

		run, err := db.GetRun(context.Background(), "run-1")
		require.NoError(t, err)
		require.NotNil(t, run)
		assert.Equal(t, models.StatusSuccess, run.Status)
		assert.Equal(t, "wf", run.TemporalWorkflowID)
		require.NotNil(t, run.CompletedAt)
		assert.True(t, run.CompletedAt.Equal(started))
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM verification_runs WHERE id = ?")).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows(runCols))

		run, err := db.GetRun(context.Background(), "nope")
		assert.NoError(t, err)
		assert.Nil(t, run)
	})
}

func TestListRunsDefaultLimit(t *testing.T) {
	db, mock := newMock(t)
	rows := sqlmock.NewRows(runCols).
		AddRow("b", "running", "index.html", "b.png", "rod", "", "", "", time.Now(), nil).
		AddRow("a", "failed", "index.html", "a.png", "playwright", "", "", "boom", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY started_at DESC LIMIT ?")).
		WithArgs(50).
		WillReturnRows(rows)

	runs, err := db.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Nil(t, runs[0].CompletedAt)
	assert.Equal(t, "boom", runs[1].ErrorMessage)
}

func TestCreateStepResults(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()
	results := []models.StepResult{
		{Sequence: 1, Type: models.StepNavigate, Target: "file:///index.html", Status: models.StatusSuccess, ExecutedAt: &now, Duration: 40},
		{Sequence: 2, Type: models.StepClick, Target: "Read more about the Vigil", Status: models.StatusFailed,
			ErrorKind: "ElementNotFoundError", Error: "not found", ExecutedAt: &now, Duration: 3},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO step_results"))
	prep.ExpectExec().
		WithArgs("run-1", 1, models.StepNavigate, "file:///index.html", models.StatusSuccess, "", "", &now, int64(40)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("run-1", 2, models.StepClick, "Read more about the Vigil", models.StatusFailed,
			"ElementNotFoundError", "not found", &now, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, db.CreateStepResults(context.Background(), "run-1", results))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRunStatus(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE verification_runs")).
		WithArgs(models.StatusFailed, "ElementNotFoundError", models.StatusFailed, "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, db.UpdateRunStatus(context.Background(), "run-1", models.StatusFailed, "ElementNotFoundError"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS verification_runs")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS step_results")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, db.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithParseTime(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
	}{
		{"without params", "verifier:secret@tcp(localhost:3306)/verifier"},
		{"parseTime disabled", "verifier:secret@tcp(localhost:3306)/verifier?parseTime=false"},
		{"already enabled", "verifier:secret@tcp(localhost:3306)/verifier?parseTime=true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := withParseTime(tt.dsn)
			require.NoError(t, err)

			cfg, err := mysql.ParseDSN(got)
			require.NoError(t, err)
			assert.True(t, cfg.ParseTime)
			assert.Equal(t, "verifier", cfg.DBName)
			assert.Equal(t, "localhost:3306", cfg.Addr)
		})
	}

	_, err := withParseTime("not a dsn")
	assert.Error(t, err)
}

func TestGetStepResultsLongError(t *testing.T) {
	db, mock := newMock(t)

	long := strings.Repeat("waiting for locator('text=\"Read more\"')\n", 200)
	rows := sqlmock.NewRows([]string{"run_id", "sequence", "step_type", "target", "status",
		"error_kind", "error_message", "executed_at", "duration_ms"}).
		AddRow("run-1", 2, "click", "Read more", "failed", "TimeoutError", long, time.Now(), 30000)
	mock.ExpectQuery(regexp.QuoteMeta("FROM step_results")).
		WithArgs("run-1").
		WillReturnRows(rows)

	results, err := db.GetStepResults(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, long, results[0].Error)
	assert.Greater(t, len(results[0].Error), 2048)
}

func TestSchemaUsesTextForErrors(t *testing.T) {
	assert.NotContains(t, schema, "VARCHAR(2048)")
	assert.Contains(t, schema, "error_message        TEXT")
	assert.Contains(t, schema, "error_message TEXT")
}
