// Package pty owns pseudo-terminal sessions for the terminal bridge.
//
// A Session pairs one PTY master descriptor with one child process that is
// running the slave side as its controlling terminal. The master descriptor
// is switched to non-blocking mode so reads can be driven by readiness
// polling instead of a busy loop, and output is decoded with an incremental
// UTF-8 decoder so multi-byte characters split across reads survive intact.
//
// Lifecycle:
//   - Spawn starts the child (login shell, optionally running one command)
//   - Resize updates the window size and signals the child with SIGWINCH
//   - Close is idempotent: it releases the descriptor, kills the child if
//     still alive, and reaps it so no zombie is left behind
package pty
