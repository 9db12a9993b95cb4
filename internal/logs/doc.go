// Package logs reads slices of the daemon log file with bounded memory.
//
// The daemon serves `squeeze logs` over IPC by calling Tail with the
// offset the client saw last. Negative offsets request the trailing Limit
// lines, which is how a fresh tail starts; follow mode then resumes from
// the returned offset so the client never rereads or skips lines even
// across log rotation.
package logs
