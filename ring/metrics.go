package ring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pppring_messages_sent_total",
		Help: "Total messages handed to a send socket by device",
	}, []string{"device"})

	// sendSkippedTotal counts writes reported as successful because the
	// link was not up yet.
	sendSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pppring_messages_send_skipped_total",
		Help: "Total writes dropped while the link was not up, by device",
	}, []string{"device"})

	refusedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pppring_send_refused_total",
		Help: "Total sends answered with connection refused, by device",
	}, []string{"device"})

	sendFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pppring_send_failures_total",
		Help: "Total writes that failed and closed the link, by device",
	}, []string{"device"})

	receivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pppring_messages_received_total",
		Help: "Total datagrams received by device",
	}, []string{"device"})

	receiveErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pppring_receive_errors_total",
		Help: "Total receive errors by device",
	}, []string{"device"})

	malformedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pppring_messages_malformed_total",
		Help: "Total datagrams that did not decode, by device",
	}, []string{"device"})

	forwardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pppring_messages_forwarded_total",
		Help: "Total forwarded copies by outgoing device",
	}, []string{"device"})
)
