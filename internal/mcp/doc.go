// Package mcp implements the stdio tool server spoken by AI assistants. The
// protocol is line-delimited JSON-RPC 2.0: initialize, tools/list, and
// tools/call. Tool failures are reported inside the tool result so the
// connection survives them; only protocol-level faults become JSON-RPC
// errors.
package mcp
