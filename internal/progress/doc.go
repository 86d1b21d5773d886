// Package progress carries pipeline lifecycle events from stage runners to
// pluggable sinks. Emit never blocks the pipeline; events are batched on a
// background goroutine and fanned out to sinks such as structured logs,
// Prometheus collectors, or live websocket clients.
package progress
