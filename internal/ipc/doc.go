// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships
// the matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs; queue
// payloads reuse the wire types from internal/api so IPC and HTTP consumers
// see identical JSON. The server embeds the daemon facade, and the client
// keeps one connection per CLI invocation with a short dial timeout so
// commands fail fast when the daemon is offline.
package ipc
