package link

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// transitionsTotal counts supervisor state changes by target state.
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pppring_link_transitions_total",
		Help: "Total link state transitions by device and target state",
	}, []string{"device", "state"})

	helperSpawnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pppring_helper_spawns_total",
		Help: "Total helper spawn attempts by device and result",
	}, []string{"device", "result"})

	// watchdogClosuresTotal counts links the watchdog tore down.
	watchdogClosuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pppring_watchdog_closures_total",
		Help: "Total links closed by the watchdog by device and reason",
	}, []string{"device", "reason"}) // "silence" or "artifact"
)
