package session

import (
	"testing"

	"github.com/comfy-pilot/bridge/internal/logging"
	"github.com/comfy-pilot/bridge/internal/pty"
	"github.com/stretchr/testify/assert"
)

func TestRegistryAddGetRemove(t *testing.T) {
	r := NewRegistry(logging.NewNop())

	s := pty.NewSession(nil)
	r.Add("conn-1", s)
	assert.Equal(t, 1, r.Count())

	got, ok := r.get("conn-1")
	assert.True(t, ok)
	assert.Same(t, s, got)

	r.Remove("conn-1")
	assert.Equal(t, 0, r.Count())
	_, ok = r.get("conn-1")
	assert.False(t, ok)
}

func TestRegistryRemoveUnknownIsNoop(t *testing.T) {
	r := NewRegistry(nil)
	r.Remove("never-registered")
	assert.Equal(t, 0, r.Count())
}

func TestRegistryReplaceClosesPrevious(t *testing.T) {
	r := NewRegistry(nil)

	first := pty.NewSession(nil)
	second := pty.NewSession(nil)
	r.Add("conn-1", first)
	r.Add("conn-1", second)

	assert.Equal(t, 1, r.Count())
	got, _ := r.get("conn-1")
	assert.Same(t, second, got)
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry(nil)
	r.Add("a", pty.NewSession(nil))
	r.Add("b", pty.NewSession(nil))

	r.CloseAll()
	assert.Equal(t, 0, r.Count())
}
