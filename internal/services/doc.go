// Package services defines shared utilities consumed by the pipeline stage
// handlers and external tool clients.
//
// Key responsibilities:
//   - Context helpers that stamp queue item IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper used to classify failures
//     into ledger categories.
//   - CommandError, which carries external command lines and captured output
//     through error chains so every recorded failure is reproducible offline.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
