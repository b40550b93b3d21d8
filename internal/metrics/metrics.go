package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bridge_signals_total", Help: "Normalized signals by intent"},
		[]string{"intent"},
	)
	DuplicatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "bridge_duplicates_total", Help: "Signals dropped by the dedup window"},
	)
	RejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bridge_rejected_total", Help: "Signals rejected before submission by error kind"},
		[]string{"kind"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bridge_orders_total", Help: "Orders submitted"},
		[]string{"side", "result"},
	)
	ProtectionTriggersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bridge_protection_triggers_total", Help: "Take-profit / stop-loss triggers"},
		[]string{"kind"},
	)
	ExchangeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bridge_exchange_requests_total", Help: "Exchange REST calls by outcome"},
		[]string{"method", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		SignalsTotal,
		DuplicatesTotal,
		RejectedTotal,
		OrdersTotal,
		ProtectionTriggersTotal,
		ExchangeRequestsTotal,
	)
}

func Handler() http.Handler { return promhttp.Handler() }
