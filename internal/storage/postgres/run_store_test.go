package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/workflow-translator/internal/store"
)

var columns = []string{
	"id", "input", "source_lang", "target_lang", "status", "started_at", "finished_at",
	"start_lines", "history_lines", "chunks_written", "chunks_skipped", "bytes_written", "error_message",
}

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *RunStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s, err := NewRunStoreWithPool(mock, "")
	require.NoError(t, err)
	return mock, s
}

func TestStartRunInsertsRow(t *testing.T) {
	t.Parallel()

	mock, s := newMock(t)
	now := time.Unix(1700000000, 0).UTC()
	run := store.Run{
		ID:         uuid.New(),
		Input:      "novel.txt",
		SourceLang: "English",
		TargetLang: "Spanish",
		StartedAt:  now,
		StartLines: 40,
	}

	mock.ExpectExec("INSERT INTO translation_runs").
		WithArgs(run.ID, run.Input, run.SourceLang, run.TargetLang, store.RunRunning, now, int64(40), int64(40)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.StartRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStartRunRequiresID(t *testing.T) {
	t.Parallel()

	_, s := newMock(t)
	require.Error(t, s.StartRun(context.Background(), store.Run{}))
}

func TestRecordProgressAppliesDelta(t *testing.T) {
	t.Parallel()

	mock, s := newMock(t)
	id := uuid.New()
	at := time.Unix(1700000100, 0).UTC()
	delta := store.ProgressDelta{ChunksWritten: 2, ChunksSkipped: 1, BytesWritten: 99, HistoryLines: 30, At: at}

	mock.ExpectExec("UPDATE translation_runs").
		WithArgs(int64(2), int64(1), int64(99), int64(30), at, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.RecordProgress(context.Background(), id, delta))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordProgressSkipsEmptyDelta(t *testing.T) {
	t.Parallel()

	mock, s := newMock(t)
	require.NoError(t, s.RecordProgress(context.Background(), uuid.New(), store.ProgressDelta{At: time.Now()}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordProgressUnknownRun(t *testing.T) {
	t.Parallel()

	mock, s := newMock(t)
	mock.ExpectExec("UPDATE translation_runs").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.RecordProgress(context.Background(), uuid.New(), store.ProgressDelta{ChunksWritten: 1})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCompleteRun(t *testing.T) {
	t.Parallel()

	mock, s := newMock(t)
	id := uuid.New()
	at := time.Unix(1700000200, 0).UTC()
	msg := "sequence gap"

	mock.ExpectExec("UPDATE translation_runs").
		WithArgs(at, store.RunError, &msg, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.CompleteRun(context.Background(), id, at, store.RunError, &msg))
	require.NoError(t, mock.ExpectationsWereMet())

	err := s.CompleteRun(context.Background(), id, at, store.RunRunning, nil)
	require.Error(t, err)
}

func TestCompleteRunPropagatesExecError(t *testing.T) {
	t.Parallel()

	mock, s := newMock(t)
	boom := errors.New("connection reset")
	mock.ExpectExec("UPDATE translation_runs").WillReturnError(boom)

	err := s.CompleteRun(context.Background(), uuid.New(), time.Now(), store.RunSuccess, nil)
	require.ErrorIs(t, err, boom)
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	mock, s := newMock(t)
	id := uuid.New()
	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(time.Minute)

	rows := pgxmock.NewRows(columns).AddRow(
		id, "novel.txt", "English", "Spanish", store.RunSuccess, started, &finished,
		int64(0), int64(50), int64(5), int64(0), int64(1200), (*string)(nil),
	)
	mock.ExpectQuery("SELECT (.+) FROM translation_runs").WithArgs(id).WillReturnRows(rows)

	run, err := s.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, store.RunSuccess, run.Status)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, finished, *run.FinishedAt)
	assert.Equal(t, int64(50), run.HistoryLines)
	assert.Nil(t, run.ErrorMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	mock, s := newMock(t)
	mock.ExpectQuery("SELECT (.+) FROM translation_runs").WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	mock, s := newMock(t)
	started := time.Unix(1700000000, 0).UTC()
	a, b := uuid.New(), uuid.New()
	rows := pgxmock.NewRows(columns).
		AddRow(a, "b.txt", "en", "fr", store.RunRunning, started.Add(time.Hour), (*time.Time)(nil),
			int64(0), int64(10), int64(1), int64(0), int64(10), (*string)(nil)).
		AddRow(b, "a.txt", "en", "de", store.RunRunning, started, (*time.Time)(nil),
			int64(0), int64(20), int64(2), int64(0), int64(20), (*string)(nil))

	status := store.RunRunning
	mock.ExpectQuery("SELECT (.+) FROM translation_runs").
		WithArgs(pgxmock.AnyArg(), 10, 0).
		WillReturnRows(rows)

	runs, err := s.ListRuns(context.Background(), &status, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, a, runs[0].ID)
	assert.Equal(t, b, runs[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRunStoreWithPoolValidates(t *testing.T) {
	t.Parallel()

	_, err := NewRunStoreWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewRunStoreWithPool(mock, "runs; DROP TABLE x")
	require.Error(t, err)

	s, err := NewRunStoreWithPool(mock, "custom_runs")
	require.NoError(t, err)
	assert.Equal(t, "custom_runs", s.table)
}

func TestNewRunStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewRunStore(context.Background(), RunStoreConfig{})
	require.Error(t, err)
}
