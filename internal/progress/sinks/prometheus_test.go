package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/workflow-translator/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms follow the event stream.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart},
		{RunID: runID, TS: now, Stage: progress.StageRequestDone, Sequence: 1, Result: progress.ResultSuccess, Dur: time.Second},
		{RunID: runID, TS: now, Stage: progress.StageRequestDone, Sequence: 2, Result: progress.ResultFailure},
		{RunID: runID, TS: now, Stage: progress.StageChunkWritten, Sequence: 1, Bytes: 64, HistoryLines: 20},
		{RunID: runID, TS: now, Stage: progress.StageChunkSkipped, Sequence: 2},
		{RunID: runID, TS: now, Stage: progress.StageWorkerStopped, Worker: 0},
		{RunID: runID, TS: now, Stage: progress.StageRunDone, Dur: 30 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsStarted), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")), 1e-9)
	require.InDelta(t, 0.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.requests.WithLabelValues(progress.ResultSuccess)), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.requests.WithLabelValues(progress.ResultFailure)), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.chunks.WithLabelValues("written")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.chunks.WithLabelValues("skipped")), 1e-9)
	require.InDelta(t, 64.0, testutil.ToFloat64(sink.bytesWritten), 1e-9)
	require.InDelta(t, 20.0, testutil.ToFloat64(sink.historyLines), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.workersStopped), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.requestDuration, "translator_chunk_request_duration_seconds"))
	require.Equal(t, 1, testutil.CollectAndCount(sink.runRuntime, "translator_run_runtime_seconds"))
}

// TestPrometheusSinkDuplicateRegistration reports collector conflicts.
func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.ErrorContains(t, err, "register progress collector")
}
