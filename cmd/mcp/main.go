// Package main is the stdio tool server spawned by the AI assistant. It
// speaks line-delimited JSON-RPC on stdin/stdout and proxies tool calls to
// the bridge and the graph host. Logs go to stderr; stdout belongs to the
// protocol.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/comfy-pilot/bridge/internal/config"
	"github.com/comfy-pilot/bridge/internal/graph"
	"github.com/comfy-pilot/bridge/internal/logging"
	"github.com/comfy-pilot/bridge/internal/mcp"
)

func main() {
	bridgeURL := flag.String("bridge", "", "bridge server URL (overrides HOST/PORT)")
	graphURL := flag.String("graph", "", "graph host URL (overrides GRAPH_URL)")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *graphURL != "" {
		cfg.Graph.URL = *graphURL
	}
	bridge := *bridgeURL
	if bridge == "" {
		bridge = "http://" + cfg.Server.Host + ":" + cfg.Server.Port
	}

	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	tools := mcp.NewTools(mcp.ToolsOptions{
		BridgeURL: bridge,
		Graph: graph.Options{
			BaseURL:    cfg.Graph.URL,
			CatalogTTL: cfg.Graph.CatalogTTL,
			Timeout:    cfg.Graph.Timeout,
		},
		// Relay submissions block up to the relay deadline on the bridge side.
		Timeout: cfg.Relay.Timeout + 10*time.Second,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := mcp.NewServer(tools.All(), os.Stdin, os.Stdout, log)
	if err := srv.Serve(ctx); err != nil && err != context.Canceled {
		log.Error("serve failed", zap.Error(err))
		os.Exit(1)
	}
}
