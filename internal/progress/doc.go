// Package progress carries run milestones from workers and the sequencer to
// pluggable sinks. Emitters never block: a Hub buffers events, batches them on
// a background goroutine and hands each batch to every sink.
package progress
