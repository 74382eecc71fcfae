package envmgr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfy-pilot/bridge/internal/logging"
)

const sampleManifest = `
version = 1

[install]
ffmpeg.pkg-path = "ffmpeg"
node.pkg-path = "nodejs_22"
node.version = "22.1.0"

[vars]
COMFY_HOST = "127.0.0.1:8188"

[hook]
on-activate = "echo ready"
`

func newManager(t *testing.T) *Manager {
	t.Helper()
	m := New(t.TempDir(), logging.NewNop())
	m.LookPath = func(string) (string, error) { return "", errors.New("not found") }
	m.Getenv = func(string) string { return "" }
	return m
}

func installEnv(t *testing.T, m *Manager) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(m.EnvPath, ".flox", "env"), 0o755))
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleManifest), 0o644))

	m, err := LoadManifest(path)
	require.NoError(t, err)

	assert.Equal(t, 1, m.Version)
	assert.Equal(t, "ffmpeg", m.Install["ffmpeg"].PkgPath)
	assert.Equal(t, "22.1.0", m.Install["node"].Version)
	assert.Equal(t, "127.0.0.1:8188", m.Vars["COMFY_HOST"])
	assert.Equal(t, "echo ready", m.Hook.OnActivate)
}

func TestLoadManifestErrors(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[install\n"), 0o644))
	_, err = LoadManifest(bad)
	assert.Error(t, err)
}

func TestManagerManifest(t *testing.T) {
	m := newManager(t)
	installEnv(t, m)
	require.NoError(t, os.WriteFile(
		filepath.Join(m.EnvPath, ".flox", "env", "manifest.toml"),
		[]byte(sampleManifest), 0o644))

	manifest, err := m.Manifest()
	require.NoError(t, err)
	assert.Len(t, manifest.Install, 2)
}

func TestActivateCommand(t *testing.T) {
	m := newManager(t)
	assert.Equal(t,
		"flox pull bmorphism/effective-topos && flox activate -d "+m.EnvPath,
		m.ActivateCommand())

	installEnv(t, m)
	assert.Equal(t, "flox activate -d "+m.EnvPath, m.ActivateCommand())
}

func TestRunArgs(t *testing.T) {
	m := newManager(t)
	assert.Equal(t,
		[]string{"flox", "activate", "-d", m.EnvPath, "--", "python", "-m", "comfy"},
		m.RunArgs("python", "-m", "comfy"))
}

func TestInstall(t *testing.T) {
	m := newManager(t)
	var got []string
	m.Runner = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "flox", name)
		got = args
		return nil, nil
	}

	require.NoError(t, m.Install(context.Background(), "ffmpeg", "imagemagick"))
	assert.Equal(t, []string{"install", "-d", m.EnvPath, "ffmpeg", "imagemagick"}, got)

	got = nil
	require.NoError(t, m.Install(context.Background()))
	assert.Nil(t, got)

	m.Runner = func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("no network")
	}
	assert.Error(t, m.Install(context.Background(), "ffmpeg"))
}

func TestListPackages(t *testing.T) {
	m := newManager(t)
	m.Runner = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "flox", name)
		assert.Equal(t, []string{"list", "-d", m.EnvPath, "--json"}, args)
		return []byte(`[{"name": "ffmpeg", "pkg-path": "ffmpeg", "version": "7.0"}]`), nil
	}

	pkgs := m.ListPackages(context.Background())
	require.Len(t, pkgs, 1)
	assert.Equal(t, "ffmpeg", pkgs[0].Name)
	assert.Equal(t, "7.0", pkgs[0].Version)
}

func TestListPackagesToleratesFailure(t *testing.T) {
	m := newManager(t)
	m.Runner = func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("flox not installed")
	}
	assert.Empty(t, m.ListPackages(context.Background()))

	m.Runner = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("not json"), nil
	}
	assert.Empty(t, m.ListPackages(context.Background()))
}

func TestStatus(t *testing.T) {
	m := newManager(t)
	m.Getenv = func(key string) string {
		if key == "FLOX_ENV_DESCRIPTION" {
			return "effective-topos"
		}
		return ""
	}

	st := m.Status()
	assert.False(t, st.Installed)
	assert.False(t, st.EnvInstalled)
	assert.Equal(t, "effective-topos", st.ActiveEnv)
	assert.Equal(t, m.EnvPath, st.EnvPath)

	installEnv(t, m)
	m.LookPath = func(string) (string, error) { return "/usr/local/bin/flox", nil }
	st = m.Status()
	assert.True(t, st.Installed)
	assert.True(t, st.EnvInstalled)
}
