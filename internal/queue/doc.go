// Package queue persists pipeline items in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema migrations, stats queries,
// quality-search results, the failure ledger, and the conditional status
// transitions that stages use to claim work. Items capture probe metadata and
// progress so stages can coordinate without additional shared state.
//
// Status changes never go through Update; they flow exclusively through
// UpdateStatus, SetFailed, and Requeue so that every edge the pipeline takes
// is either a validated forward step, a jump to failed, or the operator-gated
// requeue. Treat this package as the single source of truth for queue
// semantics; when you add statuses or columns, add a migration under
// migrations/ and extend the transition table in models.go.
package queue
