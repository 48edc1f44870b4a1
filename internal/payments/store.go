package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenithcart/checkout/internal/inventory"
	"github.com/zenithcart/checkout/internal/orders"
)

// Settlement is a locked unit of work over one payment attempt and its
// order. Begin locks the attempt row, so concurrent callback and webhook
// deliveries for the same gateway order serialize here.
type Settlement interface {
	Attempt() *PaymentAttempt
	MarkVerified(ctx context.Context, gatewayPaymentID string) error
	MarkFailed(ctx context.Context, reason string) error
	// FailOrderAndRelease moves the order to payment_failed when it is still
	// pending and releases its reserved stock. Safe to call when the order
	// already failed; the release markers make the credit happen once.
	FailOrderAndRelease(ctx context.Context) ([]inventory.ItemQuantity, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context)
}

type Store interface {
	BeginSettlement(ctx context.Context, gatewayOrderID string) (Settlement, error)
	CreateAttempt(ctx context.Context, a *PaymentAttempt) error
	HasVerifiedAttempt(ctx context.Context, orderID string) (bool, error)
	VerifiedAttempt(ctx context.Context, orderID string) (*PaymentAttempt, error)
	SettleCOD(ctx context.Context, o *orders.Order) error
}

type PGStore struct {
	DB     *pgxpool.Pool
	Ledger *inventory.Ledger
}

func NewPGStore(db *pgxpool.Pool, ledger *inventory.Ledger) *PGStore {
	return &PGStore{DB: db, Ledger: ledger}
}

const attemptColumns = `id, order_id, gateway_order_id, gateway_payment_id, method, status,
		signature_verified, amount_paise, currency, failure_reason, created_at, settled_at`

func scanAttempt(row pgx.Row) (*PaymentAttempt, error) {
	var a PaymentAttempt
	err := row.Scan(&a.ID, &a.OrderID, &a.GatewayOrderID, &a.GatewayPaymentID, &a.Method,
		&a.Status, &a.SignatureVerified, &a.AmountPaise, &a.Currency, &a.FailureReason,
		&a.CreatedAt, &a.SettledAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PGStore) BeginSettlement(ctx context.Context, gatewayOrderID string) (Settlement, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin settlement: %w", err)
	}

	a, err := scanAttempt(tx.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts WHERE gateway_order_id = $1 FOR UPDATE`,
		gatewayOrderID))
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("lock payment attempt: %w", err)
	}
	return &pgSettlement{tx: tx, ledger: s.Ledger, attempt: a}, nil
}

func (s *PGStore) CreateAttempt(ctx context.Context, a *PaymentAttempt) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO payment_attempts
			(id, order_id, gateway_order_id, method, status, amount_paise, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.OrderID, a.GatewayOrderID, a.Method, a.Status, a.AmountPaise, a.Currency, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment attempt: %w", err)
	}
	return nil
}

func (s *PGStore) HasVerifiedAttempt(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := s.DB.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payment_attempts WHERE order_id = $1 AND status = 'verified')`,
		orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check verified attempt: %w", err)
	}
	return exists, nil
}

func (s *PGStore) VerifiedAttempt(ctx context.Context, orderID string) (*PaymentAttempt, error) {
	a, err := scanAttempt(s.DB.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts WHERE order_id = $1 AND status = 'verified'`,
		orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoVerifiedPayment
		}
		return nil, fmt.Errorf("load verified attempt: %w", err)
	}
	return a, nil
}

// SettleCOD records a cash-on-delivery settlement: the order confirms
// immediately and the synthetic attempt is verified by business rule, not by
// a gateway signature.
func (s *PGStore) SettleCOD(ctx context.Context, o *orders.Order) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin cod settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := orders.TransitionTx(ctx, tx, o.ID, orders.StatusPaid, nil, "cash on delivery"); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO payment_attempts
			(id, order_id, gateway_order_id, method, status, amount_paise, currency, created_at, settled_at)
		VALUES ($1, $2, $3, $4, 'verified', $5, $6, now(), now())`,
		uuid.NewString(), o.ID, "cod-"+o.ID, MethodCOD, o.TotalPaise, "INR")
	if err != nil {
		return fmt.Errorf("insert cod attempt: %w", err)
	}
	return tx.Commit(ctx)
}

type pgSettlement struct {
	tx      pgx.Tx
	ledger  *inventory.Ledger
	attempt *PaymentAttempt
}

func (st *pgSettlement) Attempt() *PaymentAttempt { return st.attempt }

func (st *pgSettlement) MarkVerified(ctx context.Context, gatewayPaymentID string) error {
	now := time.Now()
	_, err := st.tx.Exec(ctx, `
		UPDATE payment_attempts
		SET status = 'verified', gateway_payment_id = $2, signature_verified = TRUE, settled_at = $3
		WHERE id = $1`,
		st.attempt.ID, gatewayPaymentID, now)
	if err != nil {
		return fmt.Errorf("mark attempt verified: %w", err)
	}
	if _, err := orders.TransitionTx(ctx, st.tx, st.attempt.OrderID, orders.StatusPaid, nil,
		"payment "+gatewayPaymentID); err != nil {
		return err
	}
	st.attempt.Status = AttemptVerified
	st.attempt.GatewayPaymentID = &gatewayPaymentID
	st.attempt.SignatureVerified = true
	st.attempt.SettledAt = &now
	return nil
}

func (st *pgSettlement) MarkFailed(ctx context.Context, reason string) error {
	_, err := st.tx.Exec(ctx,
		`UPDATE payment_attempts SET status = 'failed', failure_reason = $2 WHERE id = $1`,
		st.attempt.ID, reason)
	if err != nil {
		return fmt.Errorf("mark attempt failed: %w", err)
	}
	st.attempt.Status = AttemptFailed
	st.attempt.FailureReason = &reason
	return nil
}

func (st *pgSettlement) FailOrderAndRelease(ctx context.Context) ([]inventory.ItemQuantity, error) {
	var status orders.Status
	err := st.tx.QueryRow(ctx,
		`SELECT status FROM orders WHERE id = $1 FOR UPDATE`, st.attempt.OrderID).Scan(&status)
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}
	if status == orders.StatusPendingPayment {
		if _, err := orders.TransitionTx(ctx, st.tx, st.attempt.OrderID, orders.StatusPaymentFailed,
			nil, "gateway reported failure"); err != nil {
			return nil, err
		}
	}
	return st.ledger.ReleaseAllTx(ctx, st.tx, st.attempt.OrderID)
}

func (st *pgSettlement) Commit(ctx context.Context) error { return st.tx.Commit(ctx) }

func (st *pgSettlement) Rollback(ctx context.Context) { _ = st.tx.Rollback(ctx) }
