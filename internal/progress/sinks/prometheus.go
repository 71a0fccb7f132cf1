package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/workflow-translator/internal/progress"
)

// PrometheusSink exports run and chunk progress via Prometheus.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runRuntime    *prometheus.HistogramVec

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	chunks          *prometheus.CounterVec
	bytesWritten    prometheus.Counter
	historyLines    prometheus.Gauge
	workersStopped  prometheus.Counter
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "translator_runs_started_total",
			Help: "Total runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_runs_completed_total",
			Help: "Total runs completed partitioned by result.",
		}, []string{"result"}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "translator_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{10, 60, 300, 900, 1800, 3600, 7200, 14400},
		}, []string{"result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_chunk_requests_total",
			Help: "Chunk requests finished by workers partitioned by result.",
		}, []string{"result"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "translator_chunk_request_duration_seconds",
			Help:    "Chunk request duration partitioned by result.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"result"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "translator_chunks_total",
			Help: "Chunks delivered in order partitioned by disposition.",
		}, []string{"disposition"}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "translator_translation_bytes_total",
			Help: "Bytes appended to translation files.",
		}),
		historyLines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "translator_history_lines",
			Help: "Cursor position of the most recent write.",
		}),
		workersStopped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "translator_workers_stopped_total",
			Help: "Workers that reached end of input.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runRuntime,
		s.requests,
		s.requestDuration,
		s.chunks,
		s.bytesWritten,
		s.historyLines,
		s.workersStopped,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
	case progress.StageRunDone:
		s.completeRun(evt, "success")
	case progress.StageRunError:
		s.completeRun(evt, "error")
	case progress.StageRequestDone:
		s.requests.WithLabelValues(evt.Result).Inc()
		if evt.Dur > 0 {
			s.requestDuration.WithLabelValues(evt.Result).Observe(evt.Dur.Seconds())
		}
	case progress.StageChunkWritten:
		s.chunks.WithLabelValues("written").Inc()
		if evt.Bytes > 0 {
			s.bytesWritten.Add(float64(evt.Bytes))
		}
		s.historyLines.Set(float64(evt.HistoryLines))
	case progress.StageChunkSkipped:
		s.chunks.WithLabelValues("skipped").Inc()
	case progress.StageWorkerStopped:
		s.workersStopped.Inc()
	}
}

func (s *PrometheusSink) completeRun(evt progress.Event, label string) {
	s.runsCompleted.WithLabelValues(label).Inc()
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
