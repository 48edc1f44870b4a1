package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenithcart/checkout/internal/coupon"
	"github.com/zenithcart/checkout/internal/inventory"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrEmptyOrder    = errors.New("order has no items")
)

var pgxTxOptions = pgx.TxOptions{}

type VariantNotFoundError struct {
	VariantID int64
}

func (e *VariantNotFoundError) Error() string {
	return fmt.Sprintf("variant %d not found", e.VariantID)
}

type Repo struct {
	DB           *pgxpool.Pool
	Ledger       *inventory.Ledger
	Coupons      *coupon.PGStore
	CouponEngine *coupon.Engine

	NumberPrefix string
}

type CreateOrderInput struct {
	UserID            int64
	Items             []inventory.ItemQuantity
	ShippingAddressID int64
	BillingAddressID  int64
	PaymentMethod     string
	CouponCode        string
	CustomerNotes     string
	IdempotencyKey    string
	ClearCart         bool
}

// FindByIdempotencyKey supports the create-order idempotency short circuit.
func (r *Repo) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (*Order, error) {
	var id string
	err := r.DB.QueryRow(ctx,
		`SELECT id FROM orders WHERE user_id=$1 AND idempotency_key=$2`,
		userID, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// CreateOrderTx builds and persists an order as one transaction: price
// snapshot, stock reservation, coupon redemption, order number, order rows.
// A non-empty shortfall list means nothing was committed.
func (r *Repo) CreateOrderTx(ctx context.Context, in CreateOrderInput) (*Order, []inventory.InsufficientStockError, error) {
	if len(in.Items) == 0 {
		return nil, nil, ErrEmptyOrder
	}
	for _, it := range in.Items {
		if it.Qty <= 0 {
			return nil, nil, fmt.Errorf("invalid quantity %d for variant %d", it.Qty, it.VariantID)
		}
	}
	merged := inventory.MergeQuantities(in.Items)

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	orderID := uuid.NewString()

	// Snapshot prices under the same row locks the reservation will use.
	// Ascending variant order keeps concurrent orders deadlock-free.
	type snapshot struct {
		name    string
		details string
		price   int64
		active  bool
	}
	snaps := make(map[int64]snapshot, len(merged))
	for _, it := range merged {
		var s snapshot
		err := tx.QueryRow(ctx, `
			SELECT product_name, variant_details, price_paise, is_active
			FROM product_variants WHERE id=$1 FOR UPDATE
		`, it.VariantID).Scan(&s.name, &s.details, &s.price, &s.active)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, &VariantNotFoundError{VariantID: it.VariantID}
		}
		if err != nil {
			return nil, nil, err
		}
		snaps[it.VariantID] = s
	}

	shortfalls, err := r.Ledger.ReserveAll(ctx, tx, orderID, merged)
	if err != nil {
		return nil, nil, err
	}
	if len(shortfalls) > 0 {
		return nil, shortfalls, nil // rollback via defer
	}

	var subtotal int64
	items := make([]OrderItem, 0, len(merged))
	for _, it := range merged {
		s := snaps[it.VariantID]
		lineTotal := s.price * int64(it.Qty)
		subtotal += lineTotal
		items = append(items, OrderItem{
			ID:              uuid.NewString(),
			OrderID:         orderID,
			VariantID:       it.VariantID,
			ProductName:     s.name,
			VariantDetails:  s.details,
			Quantity:        it.Qty,
			UnitPricePaise:  s.price,
			TotalPricePaise: lineTotal,
		})
	}

	var discount int64
	couponCode := ""
	if in.CouponCode != "" {
		v, err := r.CouponEngine.Validate(ctx, in.UserID, in.CouponCode, subtotal)
		if err != nil {
			return nil, nil, err
		}
		discount = v.DiscountPaise
		couponCode = coupon.Normalize(in.CouponCode)

		c, err := r.Coupons.FindByCode(ctx, couponCode)
		if err != nil {
			return nil, nil, err
		}
		if err := r.Coupons.RecordRedemption(ctx, tx, c.ID, in.UserID, orderID); err != nil {
			return nil, nil, err
		}
	}
	total := subtotal - discount
	if total < 0 {
		total = 0
	}

	number, err := r.uniqueOrderNumber(ctx, tx)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	o := &Order{
		ID:                orderID,
		OrderNumber:       number,
		UserID:            in.UserID,
		Status:            StatusPendingPayment,
		SubtotalPaise:     subtotal,
		DiscountPaise:     discount,
		TotalPaise:        total,
		CouponCode:        couponCode,
		PaymentMethod:     in.PaymentMethod,
		ShippingAddressID: in.ShippingAddressID,
		BillingAddressID:  in.BillingAddressID,
		CustomerNotes:     in.CustomerNotes,
		Items:             items,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, order_number, user_id, status, subtotal_paise, discount_paise,
		                   total_paise, coupon_code, payment_method, shipping_address_id,
		                   billing_address_id, customer_notes, idempotency_key, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9,$10,$11,$12,NULLIF($13,''),$14,$14)
	`, o.ID, o.OrderNumber, o.UserID, o.Status, o.SubtotalPaise, o.DiscountPaise,
		o.TotalPaise, o.CouponCode, o.PaymentMethod, o.ShippingAddressID,
		o.BillingAddressID, o.CustomerNotes, in.IdempotencyKey, now)
	if err != nil {
		return nil, nil, err
	}

	for _, it := range items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, variant_id, product_name, variant_details,
			                        quantity, unit_price_paise, total_price_paise)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, it.ID, it.OrderID, it.VariantID, it.ProductName, it.VariantDetails,
			it.Quantity, it.UnitPricePaise, it.TotalPricePaise)
		if err != nil {
			return nil, nil, err
		}
	}

	if in.ClearCart {
		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id=$1`, in.UserID); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return o, nil, nil
}

func (r *Repo) uniqueOrderNumber(ctx context.Context, tx pgx.Tx) (string, error) {
	const maxAttempts = 10
	for i := 0; i < maxAttempts; i++ {
		number, err := NewOrderNumber(r.NumberPrefix, time.Now().UTC())
		if err != nil {
			return "", err
		}
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM orders WHERE order_number=$1)`, number).Scan(&exists); err != nil {
			return "", err
		}
		if !exists {
			// The unique index catches the remaining race window.
			return number, nil
		}
	}
	return "", errors.New("failed to generate unique order number")
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Order, error) {
	return r.getOrder(ctx, `WHERE o.id=$1`, id)
}

func (r *Repo) GetByNumber(ctx context.Context, number string) (*Order, error) {
	return r.getOrder(ctx, `WHERE o.order_number=$1`, number)
}

func (r *Repo) getOrder(ctx context.Context, where string, arg any) (*Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT o.id, o.order_number, o.user_id, o.status, o.subtotal_paise, o.discount_paise,
		       o.total_paise, COALESCE(o.coupon_code, ''), o.payment_method,
		       o.shipping_address_id, o.billing_address_id, o.tracking_number, o.carrier_name,
		       o.estimated_delivery_date, COALESCE(o.customer_notes, ''), o.created_at, o.updated_at
		FROM orders o `+where,
		arg).Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.SubtotalPaise, &o.DiscountPaise,
		&o.TotalPaise, &o.CouponCode, &o.PaymentMethod,
		&o.ShippingAddressID, &o.BillingAddressID, &o.TrackingNumber, &o.CarrierName,
		&o.EstimatedDeliveryDate, &o.CustomerNotes, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, variant_id, product_name, variant_details,
		       quantity, unit_price_paise, total_price_paise
		FROM order_items WHERE order_id=$1 ORDER BY variant_id
	`, o.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.VariantID, &it.ProductName,
			&it.VariantDetails, &it.Quantity, &it.UnitPricePaise, &it.TotalPricePaise); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

// TransitionTx locks the order row, validates the transition and stamps the
// status history. Serializes every writer of one order's lifecycle.
func TransitionTx(ctx context.Context, tx pgx.Tx, orderID string, to Status, changedBy *int64, notes string) (Status, error) {
	var from Status
	err := tx.QueryRow(ctx,
		`SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&from)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrOrderNotFound
	}
	if err != nil {
		return "", err
	}
	if !CanTransition(from, to) {
		return from, &InvalidStateTransitionError{From: from, To: to}
	}
	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, orderID, to); err != nil {
		return from, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO order_status_history(order_id, from_status, to_status, changed_by, notes)
		VALUES ($1,$2,$3,$4,NULLIF($5,''))
	`, orderID, from, to, changedBy, notes); err != nil {
		return from, err
	}
	return from, nil
}

// SetTrackingTx attaches the admin-supplied fulfillment metadata. Opaque to
// the state machine.
func SetTrackingTx(ctx context.Context, tx pgx.Tx, orderID string, trackingNumber, carrierName *string, eta *time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE orders SET
			tracking_number = COALESCE($2, tracking_number),
			carrier_name = COALESCE($3, carrier_name),
			estimated_delivery_date = COALESCE($4, estimated_delivery_date),
			updated_at = now()
		WHERE id=$1
	`, orderID, trackingNumber, carrierName, eta)
	return err
}

// ListPendingBefore returns pending_payment orders created before the cutoff,
// for the expiry sweep.
func (r *Repo) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT id FROM orders WHERE status=$1 AND created_at < $2`,
		StatusPendingPayment, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// History returns the order's transition log, oldest first.
func (r *Repo) History(ctx context.Context, orderID string) ([]StatusChange, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, from_status, to_status, changed_by, COALESCE(notes, ''), created_at
		FROM order_status_history WHERE order_id=$1 ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusChange
	for rows.Next() {
		var h StatusChange
		if err := rows.Scan(&h.ID, &h.OrderID, &h.From, &h.To, &h.ChangedBy, &h.Notes, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
