package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus collectors, served via the -m flag of cmd/bridge.
var (
	txSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_transactions_total",
		Help: "Backend transactions by command kind and outcome.",
	}, []string{"kind", "outcome"})

	chainEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_chain_events_total",
		Help: "Decoded contract events by kind.",
	}, []string{"event"})

	nonceResyncs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bridge_nonce_resyncs_total",
		Help: "Nonce corrections applied after failed ticks.",
	})

	droppedBroadcasts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bridge_dropped_broadcasts_total",
		Help: "Broadcast messages dropped because a session queue was full.",
	})

	sessionCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_sessions",
		Help: "Currently connected client sessions.",
	})
)

func init() {
	prometheus.MustRegister(txSubmissions, chainEvents, nonceResyncs, droppedBroadcasts, sessionCount)
}
