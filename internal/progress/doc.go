// Package progress provides the run event model, a non-blocking hub that
// batches events to pluggable sinks, and the Reporter the orchestrator and
// source adapters use to emit log, progress, error, and completion events.
package progress
