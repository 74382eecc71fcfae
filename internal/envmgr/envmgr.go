// Package envmgr integrates with the flox environment manager used to
// provision skill toolchains. It reads the environment's TOML manifest and
// builds the activation command lines that run tools inside the environment.
package envmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/comfy-pilot/bridge/internal/logging"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

// Manifest mirrors the .flox/env/manifest.toml layout.
type Manifest struct {
	Version int                `toml:"version"`
	Install map[string]Package `toml:"install"`
	Vars    map[string]string  `toml:"vars"`
	Hook    Hook               `toml:"hook"`
}

// Package is one [install] entry.
type Package struct {
	PkgPath string `toml:"pkg-path"`
	Version string `toml:"version"`
}

// Hook holds environment lifecycle scripts.
type Hook struct {
	OnActivate string `toml:"on-activate"`
}

// InstalledPackage is one entry of `flox list --json` output.
type InstalledPackage struct {
	Name    string `json:"name"`
	PkgPath string `json:"pkg-path"`
	Version string `json:"version"`
}

// Status summarizes the environment for the status endpoint.
type Status struct {
	Installed    bool   `json:"flox_installed"`
	EnvInstalled bool   `json:"env_installed"`
	ActiveEnv    string `json:"active_env"`
	EnvPath      string `json:"env_path"`
}

// LoadManifest parses a manifest.toml.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// Manager wraps the flox CLI for one environment directory. LookPath, Runner,
// and Getenv are injectable for tests.
type Manager struct {
	// EnvPath is the environment root, containing the .flox directory.
	EnvPath string
	// Remote is the upstream environment to pull when none is installed.
	Remote string

	LookPath func(string) (string, error)
	Runner   func(ctx context.Context, name string, args ...string) ([]byte, error)
	Getenv   func(string) string

	log *logging.Logger
}

// New builds a manager rooted at envPath, defaulting to ~/.topos.
func New(envPath string, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	if envPath == "" {
		home, _ := os.UserHomeDir()
		envPath = filepath.Join(home, ".topos")
	}
	return &Manager{
		EnvPath:  envPath,
		Remote:   "bmorphism/effective-topos",
		LookPath: exec.LookPath,
		Runner: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
		Getenv: os.Getenv,
		log:    log,
	}
}

// Available reports whether the flox CLI is on PATH.
func (m *Manager) Available() bool {
	_, err := m.LookPath("flox")
	return err == nil
}

// EnvInstalled reports whether the environment exists at EnvPath.
func (m *Manager) EnvInstalled() bool {
	info, err := os.Stat(filepath.Join(m.EnvPath, ".flox"))
	return err == nil && info.IsDir()
}

// ActiveEnv returns the name of the currently active environment, empty when
// none is active.
func (m *Manager) ActiveEnv() string {
	if v := m.Getenv("FLOX_ENV_DESCRIPTION"); v != "" {
		return v
	}
	return m.Getenv("FLOX_ENV")
}

// ActivateCommand returns the shell command that activates the environment,
// pulling it from the remote first when it is not installed yet.
func (m *Manager) ActivateCommand() string {
	if m.EnvInstalled() {
		return fmt.Sprintf("flox activate -d %s", m.EnvPath)
	}
	return fmt.Sprintf("flox pull %s && flox activate -d %s", m.Remote, m.EnvPath)
}

// RunArgs builds the argv that executes cmd inside the environment.
func (m *Manager) RunArgs(cmd ...string) []string {
	args := []string{"flox", "activate", "-d", m.EnvPath, "--"}
	return append(args, cmd...)
}

// ListPackages lists the environment's installed packages. A missing or
// broken environment yields an empty list, not an error.
func (m *Manager) ListPackages(ctx context.Context) []InstalledPackage {
	out, err := m.Runner(ctx, "flox", "list", "-d", m.EnvPath, "--json")
	if err != nil {
		m.log.Debug("flox list failed", zap.Error(err))
		return nil
	}
	var pkgs []InstalledPackage
	if err := json.Unmarshal(out, &pkgs); err != nil {
		return nil
	}
	return pkgs
}

// Install adds packages to the environment through the CLI.
func (m *Manager) Install(ctx context.Context, pkgs ...string) error {
	if len(pkgs) == 0 {
		return nil
	}
	args := append([]string{"install", "-d", m.EnvPath}, pkgs...)
	if _, err := m.Runner(ctx, "flox", args...); err != nil {
		return fmt.Errorf("flox install: %w", err)
	}
	return nil
}

// Manifest loads the environment's manifest.toml.
func (m *Manager) Manifest() (*Manifest, error) {
	return LoadManifest(filepath.Join(m.EnvPath, ".flox", "env", "manifest.toml"))
}

// Status reports the environment state.
func (m *Manager) Status() Status {
	return Status{
		Installed:    m.Available(),
		EnvInstalled: m.EnvInstalled(),
		ActiveEnv:    m.ActiveEnv(),
		EnvPath:      m.EnvPath,
	}
}
