// Package daemon owns the long-running process: it acquires the single
// instance lock, runs startup preflight, starts the pipeline manager and the
// library watcher, serves the HTTP API, and exposes the facade the IPC layer
// calls into.
//
// The daemon never owns policy. Queue semantics live in internal/queue,
// dispatch rules in internal/pipeline; this package only wires them to the
// outside world and keeps the lifecycle honest (Start is rejected while
// another instance holds the lock, Stop releases everything it started).
package daemon
