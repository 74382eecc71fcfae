package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/comfy-pilot/bridge/internal/logging"
	"github.com/creack/pty"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var (
	// ErrNotRunning indicates the session has no live child process.
	ErrNotRunning = errors.New("session not running")
	// ErrAlreadyStarted indicates Spawn was called twice.
	ErrAlreadyStarted = errors.New("session already started")
)

// Session owns one PTY master descriptor and the child process attached to
// the slave side. The descriptor and the child are either both live or both
// released; Close is idempotent and always reaps the child.
type Session struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	ptmx    *os.File
	fd      int
	rows    uint16
	cols    uint16
	started bool
	running bool
	closed  bool
	decoder Decoder
	readBuf []byte
	log     *logging.Logger
}

// NewSession creates an unstarted session with the default read buffer.
func NewSession(log *logging.Logger) *Session {
	return NewSessionSize(log, 0)
}

// NewSessionSize creates an unstarted session whose read buffer holds
// bufSize bytes per chunk. A non-positive size falls back to 4096.
func NewSessionSize(log *logging.Logger, bufSize int) *Session {
	if log == nil {
		log = logging.NewNop()
	}
	if bufSize <= 0 {
		bufSize = 4096
	}
	return &Session{
		fd:      -1,
		readBuf: make([]byte, bufSize),
		log:     log,
	}
}

// Spawn forks a child attached to a new pseudo-terminal with the given
// geometry. An empty command starts the user's shell as a login shell; a
// non-empty command runs it through an interactive login shell so profile
// and PATH setup still apply.
func (s *Session) Spawn(command string, rows, cols uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrNotRunning
	}
	if s.started {
		return ErrAlreadyStarted
	}

	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/bash"
	}
	if rows == 0 {
		rows = 24
	}
	if cols == 0 {
		cols = 80
	}

	cmd := exec.Command(shell)
	if command != "" {
		// -l loads the profile, -i keeps the shell interactive, -c runs the
		// command line.
		cmd.Args = []string{shell, "-l", "-i", "-c", command}
	} else {
		// Leading dash marks a login shell.
		cmd.Args = []string{"-" + filepath.Base(shell)}
	}
	cmd.Env = append(os.Environ(),
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
	)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return fmt.Errorf("spawn pty: %w", err)
	}

	fd := int(ptmx.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		ptmx.Close()
		cmd.Process.Kill()
		cmd.Wait()
		return fmt.Errorf("set nonblocking: %w", err)
	}

	s.cmd = cmd
	s.ptmx = ptmx
	s.fd = fd
	s.rows = rows
	s.cols = cols
	s.started = true
	s.running = true

	s.log.Info("pty session spawned",
		zap.Int("pid", cmd.Process.Pid),
		zap.String("shell", shell),
		zap.Uint16("rows", rows),
		zap.Uint16("cols", cols),
	)
	return nil
}

// Resize updates the PTY window size and signals the child so full-screen
// programs redraw. A session that was never started is a no-op.
func (s *Session) Resize(rows, cols uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.closed {
		return nil
	}

	if err := pty.Setsize(s.ptmx, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	s.rows = rows
	s.cols = cols

	if s.cmd != nil && s.cmd.Process != nil {
		// Best effort: the child may already be gone.
		_ = s.cmd.Process.Signal(unix.SIGWINCH)
	}
	return nil
}

// Size returns the last applied geometry.
func (s *Session) Size() (rows, cols uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows, s.cols
}

// Write sends raw bytes to the PTY master. A gone descriptor is logged and
// swallowed rather than treated as fatal. Each write revalidates the
// descriptor under the lock, so a concurrent Close cannot redirect bytes to
// a reused descriptor number.
func (s *Session) Write(p []byte) {
	for len(p) > 0 {
		s.mu.Lock()
		if !s.running || s.fd < 0 {
			s.mu.Unlock()
			s.log.Debug("write to closed pty dropped", zap.Int("bytes", len(p)))
			return
		}
		fd := s.fd
		n, err := unix.Write(fd, p)
		s.mu.Unlock()

		if n > 0 {
			p = p[n:]
			continue
		}
		if err == unix.EAGAIN {
			// Master buffer full; wait for writability. A stale fd here is
			// harmless, the next iteration rechecks under the lock.
			pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
			unix.Poll(pfd, 100)
			continue
		}
		if err == unix.EINTR {
			continue
		}
		s.log.Warn("pty write failed", zap.Error(err))
		return
	}
}

// ReadNonblocking attempts an immediate read. The boolean reports whether
// any decoded text was produced; a false with a nil error means no data was
// available. A real read error marks the session not running.
//
// The descriptor is non-blocking, so the read happens under the lock. A
// concurrent Close can then never land between the fd check and the read,
// which would otherwise let the kernel reuse the fd number for an unrelated
// descriptor and leak another stream's bytes into this session.
func (s *Session) ReadNonblocking() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.fd < 0 {
		return "", false, ErrNotRunning
	}

	n, err := unix.Read(s.fd, s.readBuf)
	switch {
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR:
		return "", false, nil
	case err != nil || n == 0:
		// EIO is the usual signal that the child exited and the slave side
		// closed. Either way the session is done.
		s.running = false
		if err == nil {
			err = errors.New("pty closed")
		}
		return "", false, err
	}

	text := s.decoder.Decode(s.readBuf[:n])
	if text == "" {
		// Entire chunk was a partial sequence; it stays buffered.
		return "", false, nil
	}
	return text, true, nil
}

// WaitReadable blocks until the descriptor has data, the timeout elapses, or
// the session stops. It reports whether a read is worth attempting. A Close
// during the poll at worst produces a spurious ready; ReadNonblocking
// revalidates the descriptor under the lock.
func (s *Session) WaitReadable(timeout time.Duration) (bool, error) {
	s.mu.Lock()
	fd := s.fd
	running := s.running
	s.mu.Unlock()

	if !running || fd < 0 {
		return false, ErrNotRunning
	}

	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, int(timeout.Milliseconds()))
	if err == unix.EINTR {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("poll pty: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	// POLLHUP still warrants a read: remaining output must be drained before
	// the read error surfaces.
	return pfd[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0, nil
}

// Running reports whether the child process is believed alive.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Close releases the descriptor, force-kills the child if still alive, and
// reaps it. Safe to call multiple times and from any state.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.running = false
	ptmx := s.ptmx
	cmd := s.cmd
	s.ptmx = nil
	s.fd = -1
	s.mu.Unlock()

	if ptmx != nil {
		if err := ptmx.Close(); err != nil {
			s.log.Debug("pty close", zap.Error(err))
		}
	}
	if cmd != nil && cmd.Process != nil {
		// Kill then reap; errors mean the child is already gone.
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		s.log.Info("pty session closed", zap.Int("pid", cmd.Process.Pid))
	}
}
