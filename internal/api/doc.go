// Package api defines wire-format types and converters shared by the IPC and
// HTTP surfaces. It translates internal queue and pipeline models into
// transport-friendly DTOs so external consumers never couple to internal
// types.
//
// DTOs use camelCase JSON tags. Internal enums (queue.Status, failure
// categories, stage statuses) are exposed as lowercase strings. Timestamps
// use RFC3339 with milliseconds.
package api
