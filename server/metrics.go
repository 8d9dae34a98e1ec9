package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// linkState is 0 down, 1 starting, 2 up.
	linkState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pppring_link_state",
		Help: "Current link state by device (0 down, 1 starting, 2 up)",
	}, []string{"device"})

	heartbeatsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pppring_heartbeats_total",
		Help: "Total heartbeats originated by this node",
	})

	unauthenticatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pppring_unauthenticated_total",
		Help: "Total received messages that failed authentication by device",
	}, []string{"device"})

	peerLastHeard = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pppring_peer_last_heard_timestamp_seconds",
		Help: "Unix time a peer was last heard from",
	}, []string{"node"})

	journalPrunedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pppring_journal_pruned_total",
		Help: "Total transitions pruned from the journal",
	})
)
