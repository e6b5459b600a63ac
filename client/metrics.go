package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Totals across every connection of the process.
var (
	metricObjects = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "playwright",
		Subsystem: "registry",
		Name:      "objects",
		Help:      "Live remote objects, root excluded.",
	})
	metricPendingCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "playwright",
		Subsystem: "rpc",
		Name:      "pending_calls",
		Help:      "Calls written to the driver and not yet resolved.",
	})
)
