// Package sinks implements progress consumers: Prometheus counters, a
// repository-backed run store and a structured log stream.
package sinks
