package verify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crewmesh_verification_queue_depth",
		Help: "Verification requests waiting for dispatch.",
	})

	dispatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crewmesh_verification_dispatches_total",
		Help: "Verification calls released to the external service.",
	})

	callFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crewmesh_verification_failures_total",
		Help: "Verification calls that resolved with an error.",
	})
)
