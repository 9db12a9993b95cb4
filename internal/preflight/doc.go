// Package preflight provides readiness checks for the filesystem paths and
// external binaries the daemon depends on.
//
// The daemon runs RunAll and CheckSystemDeps once at startup, logs every
// failure, and keeps the results so status queries can report them. A failed
// check never blocks startup; a daemon with a missing binary still serves the
// queue and surfaces the problem instead of refusing to run.
package preflight
