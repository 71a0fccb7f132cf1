// Package api hosts the optional status server for a running translation.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/run for the live sequencer snapshot of this process.
//   - GET /v1/runs and /v1/runs/{run_id} for run history when a run
//     repository is configured.
package api
