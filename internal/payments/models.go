package payments

import (
	"time"

	"github.com/zenithcart/checkout/internal/orders"
)

type AttemptStatus string

const (
	AttemptInitiated AttemptStatus = "initiated"
	AttemptVerified  AttemptStatus = "verified"
	AttemptFailed    AttemptStatus = "failed"
)

const (
	MethodGateway = "gateway"
	MethodCOD     = "cod"
)

// PaymentAttempt is one gateway-side payment session for an order. An order
// may accumulate attempts across retries but at most one reaches verified.
type PaymentAttempt struct {
	ID                string
	OrderID           string
	GatewayOrderID    string
	GatewayPaymentID  *string
	Method            string
	Status            AttemptStatus
	SignatureVerified bool
	AmountPaise       int64
	Currency          string
	FailureReason     *string
	// CreatedAt is exposed so an external sweep can find attempts stuck in
	// initiated after a gateway timeout.
	CreatedAt time.Time
	SettledAt *time.Time
}

// IdempotencyKey collapses duplicate gateway deliveries into one effect.
func (a *PaymentAttempt) IdempotencyKey(gatewayPaymentID string) string {
	return a.GatewayOrderID + "|" + gatewayPaymentID
}

type Session struct {
	GatewayOrderID string `json:"gateway_order_id"`
	GatewayKey     string `json:"gateway_key"`
	AmountPaise    int64  `json:"amount"`
	Currency       string `json:"currency"`
	OrderNumber    string `json:"order_number"`
}

type VerificationResult struct {
	OrderID        string        `json:"order_id"`
	OrderStatus    orders.Status `json:"order_status"`
	AlreadySettled bool          `json:"already_settled"`
}
