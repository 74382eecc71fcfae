// Package api exposes the bridge's HTTP surface: the graph-command relay
// endpoints used by the automation client and the browser to rendezvous, the
// shared workflow blob, run-node, and the status/stats endpoints.
//
// Status conventions: missing or unknown fields are a 400, a relay
// submission that outlives its deadline is a 504, and unexpected internal
// failures are a 500 with the error message surfaced for diagnostics.
package api
