package assist

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfy-pilot/bridge/internal/logging"
)

func notOnPath(string) (string, error) { return "", errors.New("not found") }

func newDetector(t *testing.T) *Detector {
	t.Helper()
	return &Detector{
		Home:     t.TempDir(),
		Cwd:      "/work/project",
		LookPath: notOnPath,
		log:      logging.NewNop(),
	}
}

func writeExecutable(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
}

func TestFindExecutablePrefersPath(t *testing.T) {
	d := newDetector(t)
	d.LookPath = func(name string) (string, error) {
		return "/usr/bin/" + name, nil
	}

	path, ok := d.FindExecutable("claude")
	require.True(t, ok)
	assert.Equal(t, "/usr/bin/claude", path)
}

func TestFindExecutableFallsBackToLocalBin(t *testing.T) {
	d := newDetector(t)
	want := filepath.Join(d.Home, ".local", "bin", "claude")
	writeExecutable(t, want)

	path, ok := d.FindExecutable("claude")
	require.True(t, ok)
	assert.Equal(t, want, path)
}

func TestFindExecutableSearchesNvmTrees(t *testing.T) {
	d := newDetector(t)
	want := filepath.Join(d.Home, ".nvm", "versions", "node", "v22.1.0", "bin", "claude")
	writeExecutable(t, want)

	path, ok := d.FindExecutable("claude")
	require.True(t, ok)
	assert.Equal(t, want, path)
}

func TestFindExecutableSkipsNonExecutable(t *testing.T) {
	d := newDetector(t)
	path := filepath.Join(d.Home, ".local", "bin", "claude")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	_, ok := d.FindExecutable("claude")
	assert.False(t, ok)
}

func TestHasConversation(t *testing.T) {
	d := newDetector(t)
	assert.False(t, d.HasConversation())

	projectDir := filepath.Join(d.Home, ".claude", "projects",
		strings.ReplaceAll(d.Cwd, string(os.PathSeparator), "-"))
	require.NoError(t, os.MkdirAll(projectDir, 0o755))

	// Empty transcript files do not count.
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "a.jsonl"), nil, 0o644))
	assert.False(t, d.HasConversation())

	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "b.jsonl"), []byte(`{"role":"user"}`), 0o644))
	assert.True(t, d.HasConversation())
}

func TestCommandResumesWhenConversationExists(t *testing.T) {
	d := newDetector(t)
	exe := filepath.Join(d.Home, ".local", "bin", "claude")
	writeExecutable(t, exe)

	assert.Equal(t, exe, d.Command())

	projectDir := filepath.Join(d.Home, ".claude", "projects",
		strings.ReplaceAll(d.Cwd, string(os.PathSeparator), "-"))
	require.NoError(t, os.MkdirAll(projectDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "s.jsonl"), []byte("{}"), 0o644))

	assert.Equal(t, exe+" -c", d.Command())
}

func TestCommandFallsBackToBareName(t *testing.T) {
	d := newDetector(t)
	assert.Equal(t, "claude", d.Command())
}
