package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var relaySends = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "anonrelay_relay_sends_total",
	Help: "Number of relay send attempts by result",
}, []string{"result"})

var relayDeliverDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "anonrelay_relay_deliver_seconds",
	Help:    "Time spent in Messenger.Deliver",
	Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
})

var reportsFiled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "anonrelay_reports_filed_total",
	Help: "Number of report requests by result",
}, []string{"result"})

var adminActions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "anonrelay_admin_actions_total",
	Help: "Number of admin actions on reports by outcome",
}, []string{"verb", "outcome"})

var notifyAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "anonrelay_notify_attempts_total",
	Help: "Number of admin notification attempts by result",
}, []string{"result"})

var dispatchQueueDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "anonrelay_dispatch_dropped_total",
	Help: "Number of inbound updates dropped because the queue was full",
})

var dispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "anonrelay_dispatch_latency_seconds",
	Help:    "Time from enqueue to handled for inbound updates",
	Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
})
