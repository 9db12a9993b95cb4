// Package notifications delivers pipeline outcomes via ntfy.
//
// The default implementation publishes to the topic configured in config.toml
// and gracefully degrades to a no-op when no topic is set. Enumerated event
// types cover the pipeline milestones so callers emit consistent messages
// without duplicating HTTP glue. Per-event config toggles, a dedup window,
// and a token-bucket rate limit keep a misbehaving queue from flooding the
// operator's phone.
package notifications
