package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created from carts",
	})

	OrdersRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_rejected_total",
		Help: "Total number of rejected order creations",
	}, []string{"reason"})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	PaymentInitializationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_initializations_total",
		Help: "Total number of payment initializations",
	}, []string{"outcome"})

	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_settlements_total",
		Help: "Total number of applied settlements",
	}, []string{"status", "channel", "source"})

	SettlementNoopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_settlement_noops_total",
		Help: "Settlement attempts on already terminal transactions",
	}, []string{"source"})

	VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_verifications_total",
		Help: "Total number of client verification calls",
	}, []string{"outcome"})

	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_refunds_total",
		Help: "Total number of refund requests",
	}, []string{"outcome"})

	StockShortfallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_shortfalls_total",
		Help: "Order items whose stock could not be decremented at settlement",
	})

	StockShortfallAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_shortfall_alerts_total",
		Help: "Stock shortfall alerts raised by the shortfall worker",
	})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Inbound gateway webhook deliveries",
	}, []string{"event", "outcome"})

	GatewayRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_latency_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
