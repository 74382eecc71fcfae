package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registered once per process; handlers share them.
var (
	relaySubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bridge",
		Subsystem: "relay",
		Name:      "submissions_total",
		Help:      "Commands submitted to the graph-command relay.",
	})

	relayTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bridge",
		Subsystem: "relay",
		Name:      "timeouts_total",
		Help:      "Relay submissions that expired before a client resolved them.",
	})

	relayResolutions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bridge",
		Subsystem: "relay",
		Name:      "resolutions_total",
		Help:      "Results posted back by the polling client.",
	})
)
