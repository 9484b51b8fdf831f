package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crewmesh_engine_events_applied_total",
		Help: "Mesh updates merged into the snapshot, by event kind.",
	}, []string{"kind"})

	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crewmesh_engine_events_dropped_total",
		Help: "Mesh updates dropped without merging, by reason.",
	}, []string{"reason"})

	flushesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crewmesh_engine_flushes_total",
		Help: "Coalesced snapshot publications.",
	})

	personsOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crewmesh_engine_persons_online",
		Help: "Roster members currently within the liveness window.",
	})
)
