// Package services - business metrics
//
// Prometheus counters for order lifecycle events and support traffic. They
// are registered on the default registry and exposed by the HTTP layer at
// /metrics next to the request metrics.

package services

import "github.com/prometheus/client_golang/prometheus"

var (
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_orders_total",
			Help: "Order lifecycle events.",
		},
		[]string{"event"}, // created|cancelled
	)

	supportMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_support_messages_total",
			Help: "Support messages stored, by origin.",
		},
		[]string{"source"}, // web|telegram
	)

	supportSyncUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_support_sync_updates_total",
			Help: "Inbound Telegram updates seen by sync, by outcome.",
		},
		[]string{"outcome"}, // saved|duplicate|skipped
	)
)

func init() {
	prometheus.MustRegister(ordersTotal, supportMessagesTotal, supportSyncUpdates)
}
