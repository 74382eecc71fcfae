package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfy-pilot/bridge/internal/config"
	"github.com/comfy-pilot/bridge/internal/logging"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Relay.Timeout = 50 * time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg, logging.NewNop())
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestRoutesWired(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, http.StatusOK, get(t, s, "/health").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/metrics").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/claude-code/graph-command").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/claude-code/mcp-status").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/claude-code/stats").Code)
	assert.Equal(t, http.StatusOK, get(t, s, "/claude-code/env-status").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/claude-code/workflow").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/claude-code/graph-command/result/nope").Code)
}

func TestCORSHeadersPresent(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/claude-code/graph-command", nil)
	req.Header.Set("Origin", "http://127.0.0.1:8188")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.RequestsPerSecond = 1
		cfg.RateLimit.Burst = 2
	})

	require.Equal(t, http.StatusOK, get(t, s, "/health").Code)
	require.Equal(t, http.StatusOK, get(t, s, "/health").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, s, "/health").Code)
}

func TestTerminalRouteRejectsPlainHTTP(t *testing.T) {
	s := newTestServer(t, nil)

	// Without an Upgrade header the WebSocket route fails the handshake.
	w := get(t, s, "/ws/claude-terminal")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
