// Package assist locates the AI assistant CLI on the host and decides how to
// launch it. PATH inside a spawned shell often differs from the plugin
// host's PATH, so well-known install locations are probed as a fallback.
package assist

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/comfy-pilot/bridge/internal/logging"
	"go.uber.org/zap"
)

// Detector resolves the assistant executable and its launch arguments.
// Fields are exported so tests can pin the environment.
type Detector struct {
	// Home is the user's home directory.
	Home string
	// Cwd is the working directory sessions run in.
	Cwd string
	// LookPath resolves a name on PATH.
	LookPath func(string) (string, error)

	log *logging.Logger
}

// New builds a detector from the process environment.
func New(log *logging.Logger) *Detector {
	if log == nil {
		log = logging.NewNop()
	}
	home, _ := os.UserHomeDir()
	cwd, _ := os.Getwd()
	return &Detector{
		Home:     home,
		Cwd:      cwd,
		LookPath: exec.LookPath,
		log:      log,
	}
}

// FindExecutable resolves name via PATH, then via common install locations
// that login shells add but the host process may not have: user-local bins,
// homebrew, npm globals, nvm trees, conda.
func (d *Detector) FindExecutable(name string) (string, bool) {
	if path, err := d.LookPath(name); err == nil {
		return path, true
	}

	candidates := []string{
		filepath.Join(d.Home, ".local", "bin", name),
		filepath.Join("/usr/local/bin", name),
		filepath.Join("/opt/homebrew/bin", name),
		filepath.Join(d.Home, ".npm-global", "bin", name),
		filepath.Join(d.Home, "miniconda3", "bin", name),
		filepath.Join(d.Home, "anaconda3", "bin", name),
	}

	if matches, err := filepath.Glob(filepath.Join(d.Home, ".nvm", "versions", "node", "*", "bin", name)); err == nil {
		candidates = append(candidates, matches...)
	}

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return path, true
		}
	}
	return "", false
}

// HasConversation reports whether a prior assistant conversation exists for
// Cwd. The assistant keeps per-project transcripts under
// ~/.claude/projects/<cwd with path separators replaced by dashes>/*.jsonl.
func (d *Detector) HasConversation() bool {
	if d.Home == "" || d.Cwd == "" {
		return false
	}
	projectDir := filepath.Join(d.Home, ".claude", "projects", strings.ReplaceAll(d.Cwd, string(os.PathSeparator), "-"))
	matches, err := filepath.Glob(filepath.Join(projectDir, "*.jsonl"))
	if err != nil {
		return false
	}
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.Size() > 0 {
			return true
		}
	}
	return false
}

// Command returns the shell command line that launches the assistant,
// resuming the previous conversation when one exists. If the executable
// cannot be located the bare name is returned and the shell reports the
// failure to the user.
func (d *Detector) Command() string {
	exe, ok := d.FindExecutable("claude")
	if !ok {
		d.log.Warn("assistant executable not found, deferring to shell", zap.String("name", "claude"))
		exe = "claude"
	}
	if d.HasConversation() {
		d.log.Info("resuming prior assistant conversation", zap.String("cwd", d.Cwd))
		return exe + " -c"
	}
	return exe
}
