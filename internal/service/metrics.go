package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "groupguard_messages_received_total",
	Help: "Inbound messages by intake result",
}, []string{"result"})

var reviewsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "groupguard_reviews_in_flight",
	Help: "Messages currently being reviewed",
})

var reviewDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "groupguard_review_duration_seconds",
	Help:    "Time to review and act on one message",
	Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
})

var verdictsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "groupguard_verdicts_total",
	Help: "Review verdicts by content type",
}, []string{"content", "verdict"})

var stepsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "groupguard_dispatch_steps_total",
	Help: "Dispatched steps by outcome",
}, []string{"step", "status"})

var unmutesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "groupguard_unmutes_total",
	Help: "Timed mutes lifted by the unmute runner",
}, []string{"status"})

var ledgerKeys = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "groupguard_ledger_keys",
	Help: "Tracked violation windows after the last sweep",
}, []string{"scope"})
