package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/zenithcart/checkout/internal/inventory"
	kafkax "github.com/zenithcart/checkout/internal/kafka"
	"github.com/zenithcart/checkout/internal/metrics"
	"github.com/zenithcart/checkout/internal/redisx"
)

var (
	ErrNotOwner            = errors.New("order does not belong to caller")
	ErrReturnWindowExpired = errors.New("return window expired")
)

// ReturnWindow is how long after delivery a return may be requested.
const ReturnWindow = 7 * 24 * time.Hour

// Refunder asks the payment gateway to return the money collected for an
// order. Implemented by the payment reconciliation engine.
type Refunder interface {
	RefundOrder(ctx context.Context, o *Order) (refundID string, amountPaise int64, err error)
}

type Service struct {
	Repo     *Repo
	Ledger   *inventory.Ledger
	Cart     inventory.CartReader
	Redis    *redis.Client
	Producer *kafkax.Producer
	Refunder Refunder
	Log      *zap.Logger
	Name     string
}

type StatusUpdate struct {
	Status                Status
	TrackingNumber        *string
	CarrierName           *string
	EstimatedDeliveryDate *time.Time
	Notes                 string
}

// CreateOrder is the transactional entry point of the whole checkout: reserve
// stock, apply the coupon, persist pending_payment — all or nothing.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, []inventory.InsufficientStockError, error) {
	if in.IdempotencyKey != "" {
		// The redis key is only a hint; the DB lookup is authoritative.
		idemKey := fmt.Sprintf(redisx.KeyIdemOrderCreate, in.UserID, in.IdempotencyKey)
		if id, err := s.Redis.Get(ctx, idemKey).Result(); err == nil && id != "" {
			if o, err := s.Repo.GetByID(ctx, id); err == nil && o.UserID == in.UserID {
				return o, nil, nil
			}
		}
		if o, err := s.Repo.FindByIdempotencyKey(ctx, in.UserID, in.IdempotencyKey); err == nil {
			return o, nil, nil
		} else if !errors.Is(err, ErrOrderNotFound) {
			return nil, nil, err
		}
	}

	if len(in.Items) == 0 && s.Cart != nil {
		cartItems, err := s.Cart.CartItems(ctx, in.UserID)
		if err != nil {
			return nil, nil, err
		}
		for _, it := range cartItems {
			in.Items = append(in.Items, inventory.ItemQuantity{VariantID: it.VariantID, Qty: it.Quantity})
		}
		in.ClearCart = true
	}

	o, shortfalls, err := s.Repo.CreateOrderTx(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	if len(shortfalls) > 0 {
		metrics.StockRejections.Inc()
		return nil, shortfalls, nil
	}

	metrics.OrdersCreated.Inc()
	if in.IdempotencyKey != "" {
		idemKey := fmt.Sprintf(redisx.KeyIdemOrderCreate, in.UserID, in.IdempotencyKey)
		_ = s.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err()
	}
	s.cacheStatus(ctx, o.ID, o.Status)

	itemQtys := make([]ItemQty, 0, len(o.Items))
	for _, it := range o.Items {
		itemQtys = append(itemQtys, ItemQty{VariantID: it.VariantID, Qty: it.Quantity})
	}
	s.publish(TopicOrderCreated, EventOrderCreated, o.ID, OrderCreatedPayload{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Items:         itemQtys,
		SubtotalPaise: o.SubtotalPaise,
		DiscountPaise: o.DiscountPaise,
		TotalPaise:    o.TotalPaise,
	})
	s.publish(TopicStockReserved, EventStockReserved, o.ID, StockMovementPayload{OrderID: o.ID, Items: itemQtys})

	return o, nil, nil
}

// GetOrder enforces ownership; admins go through the repo directly.
func (s *Service) GetOrder(ctx context.Context, userID int64, orderNumber string) (*Order, error) {
	o, err := s.Repo.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotOwner
	}
	return o, nil
}

// Status serves from the redis cache, falling back to the DB.
func (s *Service) Status(ctx context.Context, orderID string) (Status, error) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if v, err := s.Redis.Get(ctx, key).Result(); err == nil && v != "" {
		return Status(v), nil
	}
	o, err := s.Repo.GetByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	s.cacheStatus(ctx, orderID, o.Status)
	return o.Status, nil
}

// Cancel is customer- or sweep-initiated; only legal before shipped. The
// transition releases all reserved stock.
func (s *Service) Cancel(ctx context.Context, orderID string, userID *int64, by string) error {
	if userID != nil {
		o, err := s.Repo.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != *userID {
			return ErrNotOwner
		}
	}

	released, err := s.transitionWithRelease(ctx, orderID, StatusCancelled, userID, "cancelled by "+by)
	if err != nil {
		return err
	}
	s.cacheStatus(ctx, orderID, StatusCancelled)
	s.publish(TopicOrderCancelled, EventOrderCancelled, orderID, OrderCancelledPayload{OrderID: orderID, CancelledBy: by})
	s.publishReleased(orderID, released)
	return nil
}

// UpdateStatus is the admin-driven fulfillment path.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, upd StatusUpdate, changedBy int64) error {
	if !ValidStatus(upd.Status) {
		return &InvalidStateTransitionError{From: "", To: upd.Status}
	}
	if upd.Status == StatusRefunded {
		return s.Refund(ctx, orderID, changedBy)
	}

	tx, err := s.Repo.DB.BeginTx(ctx, pgxTxOptions)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := TransitionTx(ctx, tx, orderID, upd.Status, &changedBy, upd.Notes); err != nil {
		return err
	}
	if upd.TrackingNumber != nil || upd.CarrierName != nil || upd.EstimatedDeliveryDate != nil {
		if err := SetTrackingTx(ctx, tx, orderID, upd.TrackingNumber, upd.CarrierName, upd.EstimatedDeliveryDate); err != nil {
			return err
		}
	}

	var released []inventory.ItemQuantity
	if ReleasesStock(upd.Status) {
		if released, err = s.Ledger.ReleaseAllTx(ctx, tx, orderID); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.cacheStatus(ctx, orderID, upd.Status)
	if upd.Status == StatusCancelled {
		s.publish(TopicOrderCancelled, EventOrderCancelled, orderID, OrderCancelledPayload{OrderID: orderID, CancelledBy: "admin"})
	}
	s.publishReleased(orderID, released)
	return nil
}

// RequestReturn opens the return flow for a delivered order, inside the
// return window.
func (s *Service) RequestReturn(ctx context.Context, orderID string, userID int64, reason string) error {
	o, err := s.Repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o.UserID != userID {
		return ErrNotOwner
	}
	if o.Status == StatusDelivered && time.Since(o.UpdatedAt) > ReturnWindow {
		return ErrReturnWindowExpired
	}

	tx, err := s.Repo.DB.BeginTx(ctx, pgxTxOptions)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := TransitionTx(ctx, tx, orderID, StatusReturnRequested, &userID, reason); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.cacheStatus(ctx, orderID, StatusReturnRequested)
	return nil
}

func (s *Service) ApproveReturn(ctx context.Context, orderID string, adminID int64) error {
	tx, err := s.Repo.DB.BeginTx(ctx, pgxTxOptions)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := TransitionTx(ctx, tx, orderID, StatusReturnApproved, &adminID, ""); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.cacheStatus(ctx, orderID, StatusReturnApproved)
	return nil
}

// Refund asks the gateway for the money back first, then records the
// terminal transition. The gateway call never runs inside a transaction.
func (s *Service) Refund(ctx context.Context, orderID string, adminID int64) error {
	o, err := s.Repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if !CanTransition(o.Status, StatusRefunded) {
		return &InvalidStateTransitionError{From: o.Status, To: StatusRefunded}
	}

	refundID, amount, err := s.Refunder.RefundOrder(ctx, o)
	if err != nil {
		return fmt.Errorf("gateway refund: %w", err)
	}

	// The returned goods are back in the warehouse: the transition credits
	// the still-reserved quantities back to the ledger.
	released, err := s.transitionWithRelease(ctx, orderID, StatusRefunded, &adminID, "refund "+refundID)
	if err != nil {
		return err
	}

	s.cacheStatus(ctx, orderID, StatusRefunded)
	s.publish(TopicOrderRefunded, EventOrderRefunded, orderID, OrderRefundedPayload{
		OrderID:         orderID,
		GatewayRefundID: refundID,
		AmountPaise:     amount,
	})
	s.publishReleased(orderID, released)
	return nil
}

// ExpirePending cancels payment-pending orders older than the cutoff and
// releases their stock. Called by the external reconciliation sweep.
func (s *Service) ExpirePending(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := s.Repo.ListPendingBefore(ctx, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if err := s.Cancel(ctx, id, nil, "expiry"); err != nil {
			var bad *InvalidStateTransitionError
			if errors.As(err, &bad) {
				continue // settled between listing and cancel
			}
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *Service) transitionWithRelease(ctx context.Context, orderID string, to Status, changedBy *int64, notes string) ([]inventory.ItemQuantity, error) {
	tx, err := s.Repo.DB.BeginTx(ctx, pgxTxOptions)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := TransitionTx(ctx, tx, orderID, to, changedBy, notes); err != nil {
		return nil, err
	}
	released, err := s.Ledger.ReleaseAllTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return released, nil
}

func (s *Service) cacheStatus(ctx context.Context, orderID string, status Status) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if err := s.Redis.Set(ctx, key, string(status), redisx.TTLStatusCache).Err(); err != nil {
		s.Log.Debug("status cache write failed", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (s *Service) publishReleased(orderID string, released []inventory.ItemQuantity) {
	if len(released) == 0 {
		return
	}
	items := make([]ItemQty, 0, len(released))
	for _, it := range released {
		items = append(items, ItemQty{VariantID: it.VariantID, Qty: it.Qty})
	}
	s.publish(TopicStockReleased, EventStockReleased, orderID, StockMovementPayload{OrderID: orderID, Items: items})
}

func (s *Service) publish(topic, eventType, orderID string, payload any) {
	if s.Producer == nil {
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Name,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	s.Producer.Publish(topic, PartitionKey(orderID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
