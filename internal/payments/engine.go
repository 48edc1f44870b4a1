package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/zenithcart/checkout/internal/kafka"
	"github.com/zenithcart/checkout/internal/metrics"
	"github.com/zenithcart/checkout/internal/orders"
)

// OrderGetter is the slice of the order repository the engine needs.
type OrderGetter interface {
	GetByID(ctx context.Context, id string) (*orders.Order, error)
}

// Engine reconciles gateway payment events against local order state. It is
// the only component allowed to move an order out of pending_payment on
// gateway evidence, and every entry point is idempotent: callback and
// webhook may both arrive, in any order, any number of times.
type Engine struct {
	Store    Store
	Gateway  Gateway
	Orders   OrderGetter
	Producer *kafkax.Producer
	Log      *zap.Logger
	Name     string

	KeyID         string
	KeySecret     string
	WebhookSecret string
	Currency      string
	Timeout       time.Duration
}

// CreateSession opens a payment attempt with the gateway for a pending
// order. The gateway call runs outside any database transaction.
func (e *Engine) CreateSession(ctx context.Context, orderID string, userID int64) (*Session, error) {
	o, err := e.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if userID != 0 && o.UserID != userID {
		return nil, orders.ErrNotOwner
	}
	if o.Status != orders.StatusPendingPayment {
		return nil, ErrOrderNotPayable
	}
	verified, err := e.Store.HasVerifiedAttempt(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if verified {
		return nil, ErrOrderAlreadyPaid
	}

	gctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()
	g, err := e.Gateway.CreateOrder(gctx, GatewayOrderRequest{
		AmountPaise: o.TotalPaise,
		Currency:    e.Currency,
		Receipt:     o.OrderNumber,
		Notes:       map[string]string{"order_id": o.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("create gateway order: %w", err)
	}

	attempt := &PaymentAttempt{
		ID:             uuid.NewString(),
		OrderID:        o.ID,
		GatewayOrderID: g.ID,
		Method:         MethodGateway,
		Status:         AttemptInitiated,
		AmountPaise:    o.TotalPaise,
		Currency:       e.Currency,
		CreatedAt:      time.Now().UTC(),
	}
	if err := e.Store.CreateAttempt(ctx, attempt); err != nil {
		return nil, err
	}
	e.Log.Info("payment session created",
		zap.String("order_id", o.ID),
		zap.String("gateway_order_id", g.ID),
		zap.Int64("amount_paise", o.TotalPaise))

	return &Session{
		GatewayOrderID: g.ID,
		GatewayKey:     e.KeyID,
		AmountPaise:    o.TotalPaise,
		Currency:       e.Currency,
		OrderNumber:    o.OrderNumber,
	}, nil
}

// VerifyCallback handles the browser-redirect leg. The signature is
// recomputed locally; a mismatch records a failed attempt but never touches
// the order, since the authoritative webhook may still arrive.
func (e *Engine) VerifyCallback(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (*VerificationResult, error) {
	if !VerifyCallbackSignature(e.KeySecret, gatewayOrderID, gatewayPaymentID, signature) {
		e.Log.Warn("callback signature mismatch",
			zap.String("gateway_order_id", gatewayOrderID),
			zap.String("gateway_payment_id", gatewayPaymentID))
		e.recordSignatureFailure(ctx, gatewayOrderID)
		return nil, ErrSignatureMismatch
	}
	return e.settleSuccess(ctx, gatewayOrderID, gatewayPaymentID, "callback")
}

func (e *Engine) recordSignatureFailure(ctx context.Context, gatewayOrderID string) {
	st, err := e.Store.BeginSettlement(ctx, gatewayOrderID)
	if err != nil {
		return
	}
	defer st.Rollback(ctx)
	if st.Attempt().Status != AttemptInitiated {
		return
	}
	if err := st.MarkFailed(ctx, "signature mismatch"); err != nil {
		return
	}
	if err := st.Commit(ctx); err != nil {
		e.Log.Error("record signature failure", zap.Error(err))
	}
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				ErrorDescription string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleWebhook is the authoritative reconciliation path. The raw body is
// authenticated before parsing, and redeliveries collapse to no-ops.
func (e *Engine) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !VerifyWebhookSignature(e.WebhookSecret, body, signature) {
		e.Log.Warn("webhook signature mismatch")
		return ErrSignatureMismatch
	}

	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ErrInvalidWebhookPayload
	}
	entity := ev.Payload.Payment.Entity
	if ev.Event == "" || entity.OrderID == "" {
		return ErrInvalidWebhookPayload
	}

	switch ev.Event {
	case "payment.captured":
		if entity.ID == "" {
			return ErrInvalidWebhookPayload
		}
		_, err := e.settleSuccess(ctx, entity.OrderID, entity.ID, "webhook")
		return err
	case "payment.failed":
		reason := entity.ErrorDescription
		if reason == "" {
			reason = "payment failed"
		}
		return e.settleFailure(ctx, entity.OrderID, reason)
	default:
		e.Log.Warn("unknown webhook event", zap.String("event", ev.Event))
		return ErrInvalidWebhookPayload
	}
}

// settleSuccess is shared by callback and webhook. Exactly one success per
// attempt takes effect; the rest are duplicates or conflicts.
func (e *Engine) settleSuccess(ctx context.Context, gatewayOrderID, gatewayPaymentID, source string) (*VerificationResult, error) {
	st, err := e.Store.BeginSettlement(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}
	defer st.Rollback(ctx)

	a := st.Attempt()
	switch a.Status {
	case AttemptVerified:
		if a.GatewayPaymentID != nil && *a.GatewayPaymentID == gatewayPaymentID {
			metrics.WebhookDuplicates.Inc()
			e.Log.Info("duplicate payment success ignored",
				zap.String("order_id", a.OrderID),
				zap.String("gateway_payment_id", gatewayPaymentID),
				zap.String("source", source))
			return &VerificationResult{OrderID: a.OrderID, OrderStatus: orders.StatusPaid, AlreadySettled: true}, nil
		}
		metrics.PaymentConflicts.Inc()
		e.Log.Error("second payment id for verified attempt",
			zap.String("order_id", a.OrderID),
			zap.String("gateway_order_id", gatewayOrderID),
			zap.String("gateway_payment_id", gatewayPaymentID))
		return nil, ErrConflictingPaymentEvent

	case AttemptFailed:
		metrics.PaymentConflicts.Inc()
		e.Log.Error("success after recorded failure",
			zap.String("order_id", a.OrderID),
			zap.String("gateway_order_id", gatewayOrderID),
			zap.Stringp("failure_reason", a.FailureReason))
		return nil, ErrConflictingPaymentEvent
	}

	if err := st.MarkVerified(ctx, gatewayPaymentID); err != nil {
		var ist *orders.InvalidStateTransitionError
		if errors.As(err, &ist) {
			// Money captured but the order left pending_payment in the
			// meantime (e.g. cancelled). Manual reconciliation territory.
			metrics.PaymentConflicts.Inc()
			e.Log.Error("payment captured for non-pending order",
				zap.String("order_id", a.OrderID), zap.Error(err))
			return nil, ErrConflictingPaymentEvent
		}
		return nil, err
	}
	if err := st.Commit(ctx); err != nil {
		return nil, err
	}

	metrics.PaymentsVerified.Inc()
	e.Log.Info("payment verified",
		zap.String("order_id", a.OrderID),
		zap.String("gateway_payment_id", gatewayPaymentID),
		zap.String("source", source))
	e.publish(orders.TopicOrderPaid, orders.EventOrderPaid, a.OrderID, orders.OrderPaidPayload{
		OrderID:          a.OrderID,
		GatewayPaymentID: gatewayPaymentID,
		AmountPaise:      a.AmountPaise,
	})
	return &VerificationResult{OrderID: a.OrderID, OrderStatus: orders.StatusPaid}, nil
}

func (e *Engine) settleFailure(ctx context.Context, gatewayOrderID, reason string) error {
	st, err := e.Store.BeginSettlement(ctx, gatewayOrderID)
	if err != nil {
		return err
	}
	defer st.Rollback(ctx)

	a := st.Attempt()
	if a.Status == AttemptVerified {
		metrics.PaymentConflicts.Inc()
		e.Log.Error("failure after recorded success",
			zap.String("order_id", a.OrderID),
			zap.String("gateway_order_id", gatewayOrderID),
			zap.String("reason", reason))
		return ErrConflictingPaymentEvent
	}

	// A tampered callback marks the attempt failed without touching the
	// order, so the order-side effect is applied even when the attempt is
	// already failed. FailOrderAndRelease is idempotent.
	duplicate := a.Status == AttemptFailed
	if !duplicate {
		if err := st.MarkFailed(ctx, reason); err != nil {
			return err
		}
	}
	released, err := st.FailOrderAndRelease(ctx)
	if err != nil {
		return err
	}
	if err := st.Commit(ctx); err != nil {
		return err
	}

	if duplicate && len(released) == 0 {
		metrics.WebhookDuplicates.Inc()
		return nil
	}

	metrics.PaymentsFailed.Inc()
	e.Log.Info("payment failed",
		zap.String("order_id", a.OrderID),
		zap.String("gateway_order_id", gatewayOrderID),
		zap.String("reason", reason))
	e.publish(orders.TopicPaymentFailed, orders.EventPaymentFailed, a.OrderID, orders.PaymentFailedPayload{
		OrderID:        a.OrderID,
		GatewayOrderID: gatewayOrderID,
		Reason:         reason,
	})
	if len(released) > 0 {
		items := make([]orders.ItemQty, 0, len(released))
		for _, it := range released {
			items = append(items, orders.ItemQty{VariantID: it.VariantID, Qty: it.Qty})
		}
		e.publish(orders.TopicStockReleased, orders.EventStockReleased, a.OrderID,
			orders.StockMovementPayload{OrderID: a.OrderID, Items: items})
	}
	return nil
}

// SettleCOD confirms a cash-on-delivery order without a gateway session.
func (e *Engine) SettleCOD(ctx context.Context, o *orders.Order) error {
	if o.Status != orders.StatusPendingPayment {
		return ErrOrderNotPayable
	}
	if err := e.Store.SettleCOD(ctx, o); err != nil {
		return err
	}
	e.publish(orders.TopicOrderPaid, orders.EventOrderPaid, o.ID, orders.OrderPaidPayload{
		OrderID:     o.ID,
		AmountPaise: o.TotalPaise,
	})
	return nil
}

// RefundOrder implements orders.Refunder. The gateway call happens before
// the order moves to refunded, so a refused refund leaves state untouched.
func (e *Engine) RefundOrder(ctx context.Context, o *orders.Order) (string, int64, error) {
	a, err := e.Store.VerifiedAttempt(ctx, o.ID)
	if err != nil {
		return "", 0, err
	}
	if a.Method != MethodGateway || a.GatewayPaymentID == nil {
		return "", 0, ErrNoVerifiedPayment
	}

	gctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()
	r, err := e.Gateway.Refund(gctx, *a.GatewayPaymentID, a.AmountPaise)
	if err != nil {
		return "", 0, fmt.Errorf("gateway refund: %w", err)
	}
	e.Log.Info("gateway refund issued",
		zap.String("order_id", o.ID),
		zap.String("gateway_refund_id", r.ID),
		zap.Int64("amount_paise", a.AmountPaise))
	return r.ID, a.AmountPaise, nil
}

func (e *Engine) publish(topic, eventType, orderID string, payload any) {
	if e.Producer == nil {
		return
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      e.Name,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	e.Producer.Publish(topic, orders.PartitionKey(orderID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
