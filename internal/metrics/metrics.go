package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_orders_created_total",
		Help: "Orders persisted in pending_payment.",
	})

	StockRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_stock_rejections_total",
		Help: "Order attempts rejected for insufficient stock.",
	})

	PaymentsVerified = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_payments_verified_total",
		Help: "Payment attempts settled as verified.",
	})

	PaymentsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_payments_failed_total",
		Help: "Payment attempts recorded as failed.",
	})

	WebhookDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_webhook_duplicates_total",
		Help: "Webhook deliveries collapsed by the idempotency key.",
	})

	PaymentConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_payment_conflicts_total",
		Help: "Payment events surfaced for manual reconciliation.",
	})
)
