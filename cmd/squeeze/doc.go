// Package main hosts the Squeeze CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC
// calls against the daemon: lifecycle control, queue maintenance, failure
// ledger inspection, log tailing, event streaming, and configuration
// scaffolding. Queue commands fall back to direct store access when the
// daemon is offline, so inspection keeps working between daemon runs.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
