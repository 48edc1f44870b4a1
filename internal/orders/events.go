package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderPaid      = "OrderPaid"
	EventPaymentFailed  = "PaymentFailed"
	EventOrderCancelled = "OrderCancelled"
	EventOrderRefunded  = "OrderRefunded"
	EventStockReserved  = "StockReserved"
	EventStockReleased  = "StockReleased"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	VariantID int64 `json:"variant_id"`
	Qty       int   `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID       string    `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	UserID        int64     `json:"user_id"`
	Items         []ItemQty `json:"items"`
	SubtotalPaise int64     `json:"subtotal_paise"`
	DiscountPaise int64     `json:"discount_paise"`
	TotalPaise    int64     `json:"total_paise"`
}

type OrderPaidPayload struct {
	OrderID          string `json:"order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	AmountPaise      int64  `json:"amount_paise"`
}

type PaymentFailedPayload struct {
	OrderID        string `json:"order_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	Reason         string `json:"reason"`
}

type OrderCancelledPayload struct {
	OrderID     string `json:"order_id"`
	CancelledBy string `json:"cancelled_by"` // "customer" | "admin" | "expiry"
}

type OrderRefundedPayload struct {
	OrderID         string `json:"order_id"`
	GatewayRefundID string `json:"gateway_refund_id"`
	AmountPaise     int64  `json:"amount_paise"`
}

type StockMovementPayload struct {
	OrderID string    `json:"order_id"`
	Items   []ItemQty `json:"items"`
}
