// Package main is the entry point for the bridge server.
//
// The bridge sits between a browser-hosted graph editor and an AI assistant
// CLI running in a terminal:
//
//	Browser (graph editor) ⇄ Bridge ⇄ Assistant CLI (PTY)
//	                          ↕
//	                      Graph host API
//
// The server provides:
//   - Terminal sessions over WebSocket, each backed by a PTY
//   - A synchronous command relay between the assistant and the browser
//   - Workflow snapshot storage and node execution endpoints
//   - Prometheus metrics and health probes
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
