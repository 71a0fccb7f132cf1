package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/workflow-translator/internal/store"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore()
	id := uuid.New()
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.StartRun(ctx, store.Run{ID: id, Input: "book.txt", StartedAt: started, StartLines: 20}))

	require.NoError(t, s.RecordProgress(ctx, id, store.ProgressDelta{ChunksWritten: 2, BytesWritten: 40, HistoryLines: 40}))
	require.NoError(t, s.RecordProgress(ctx, id, store.ProgressDelta{ChunksSkipped: 1, HistoryLines: 30}))
	require.NoError(t, s.RecordProgress(ctx, id, store.ProgressDelta{}))

	msg := "sequence gap"
	finished := started.Add(time.Minute)
	require.NoError(t, s.CompleteRun(ctx, id, finished, store.RunError, &msg))

	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.RunError, run.Status)
	assert.Equal(t, int64(2), run.ChunksWritten)
	assert.Equal(t, int64(1), run.ChunksSkipped)
	assert.Equal(t, int64(40), run.BytesWritten)
	assert.Equal(t, int64(40), run.HistoryLines)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, finished, *run.FinishedAt)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, msg, *run.ErrorMessage)
}

func TestRunStoreUnknownRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore()
	id := uuid.New()

	_, err := s.GetRun(ctx, id)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.RecordProgress(ctx, id, store.ProgressDelta{ChunksWritten: 1}), store.ErrNotFound)
	require.ErrorIs(t, s.CompleteRun(ctx, id, time.Now(), store.RunSuccess, nil), store.ErrNotFound)
	require.Error(t, s.CompleteRun(ctx, id, time.Now(), store.RunRunning, nil))
	require.Error(t, s.StartRun(ctx, store.Run{}))
}

func TestRunStoreListRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewRunStore()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, s.StartRun(ctx, store.Run{ID: ids[i], StartedAt: base.Add(time.Duration(i) * time.Hour)}))
	}
	require.NoError(t, s.CompleteRun(ctx, ids[0], base, store.RunSuccess, nil))

	all, err := s.ListRuns(ctx, nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uuid.UUID{ids[2], ids[1], ids[0]}, []uuid.UUID{all[0].ID, all[1].ID, all[2].ID})

	page, err := s.ListRuns(ctx, nil, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)

	success := store.RunSuccess
	done, err := s.ListRuns(ctx, &success, 10, 0)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, ids[0], done[0].ID)

	none, err := s.ListRuns(ctx, nil, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}
