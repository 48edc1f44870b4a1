package inventory

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ledger owns the variant stock counters. Every writer on the order path
// goes through here; stock is never mutated by plain CRUD.
type Ledger struct {
	DB *pgxpool.Pool
}

// CheckAvailable is a single row read and never holds a lock. A missing or
// inactive variant reports zero availability. The result is advisory only:
// a concurrent reservation can invalidate it, only Reserve is authoritative.
func (l *Ledger) CheckAvailable(ctx context.Context, variantID int64, qty int) (Availability, error) {
	var stock int
	var active bool
	err := l.DB.QueryRow(ctx,
		`SELECT stock_quantity, is_active FROM product_variants WHERE id=$1`,
		variantID).Scan(&stock, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Availability{VariantID: variantID}, nil
	}
	if err != nil {
		return Availability{}, err
	}
	if !active {
		return Availability{VariantID: variantID, Active: false}, nil
	}
	return Availability{VariantID: variantID, Available: stock, Active: true}, nil
}

// Reserve atomically commits qty of a variant against orderID inside the
// caller's transaction: row lock, reservation marker, counter decrement.
// Re-reserving an (order, variant) pair that is already RESERVED is a no-op,
// so a payment retry cannot double-debit.
func (l *Ledger) Reserve(ctx context.Context, tx pgx.Tx, orderID string, variantID int64, qty int) error {
	var stock int
	var active bool
	err := tx.QueryRow(ctx,
		`SELECT stock_quantity, is_active FROM product_variants WHERE id=$1 FOR UPDATE`,
		variantID).Scan(&stock, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return &InsufficientStockError{VariantID: variantID, Available: 0, Requested: qty}
	}
	if err != nil {
		return err
	}

	// Marker first: if the pair is already RESERVED nothing else may happen.
	ct, err := tx.Exec(ctx, `
		INSERT INTO stock_reservations(order_id, variant_id, quantity, status)
		VALUES ($1, $2, $3, 'RESERVED')
		ON CONFLICT (order_id, variant_id) DO UPDATE
			SET status='RESERVED', quantity=EXCLUDED.quantity
			WHERE stock_reservations.status='RELEASED'
	`, orderID, variantID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return nil // already reserved for this order
	}

	if !active {
		return &InsufficientStockError{VariantID: variantID, Available: 0, Requested: qty}
	}
	if stock < qty {
		return &InsufficientStockError{VariantID: variantID, Available: stock, Requested: qty}
	}

	_, err = tx.Exec(ctx,
		`UPDATE product_variants SET stock_quantity = stock_quantity - $2 WHERE id=$1`,
		variantID, qty)
	return err
}

// ReserveAll reserves every item or none. Variants are locked in ascending
// ID order so concurrent multi-item orders cannot deadlock each other.
// A non-empty shortfall list means the caller must roll back its transaction.
func (l *Ledger) ReserveAll(ctx context.Context, tx pgx.Tx, orderID string, items []ItemQuantity) ([]InsufficientStockError, error) {
	merged := MergeQuantities(items)

	var shortfalls []InsufficientStockError
	for _, it := range merged {
		err := l.Reserve(ctx, tx, orderID, it.VariantID, it.Qty)
		if err == nil {
			continue
		}
		var ins *InsufficientStockError
		if errors.As(err, &ins) {
			shortfalls = append(shortfalls, *ins)
			continue
		}
		return nil, err
	}
	return shortfalls, nil
}

// ReleaseTx flips the reservation marker and credits the counter back.
// The marker makes it idempotent per (order, variant): a second release
// affects no marker row and credits nothing.
func (l *Ledger) ReleaseTx(ctx context.Context, tx pgx.Tx, orderID string, variantID int64) (int, error) {
	var qty int
	err := tx.QueryRow(ctx, `
		UPDATE stock_reservations SET status='RELEASED'
		WHERE order_id=$1 AND variant_id=$2 AND status='RESERVED'
		RETURNING quantity
	`, orderID, variantID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	_, err = tx.Exec(ctx,
		`UPDATE product_variants SET stock_quantity = stock_quantity + $2 WHERE id=$1`,
		variantID, qty)
	if err != nil {
		return 0, err
	}
	return qty, nil
}

// ReleaseAllTx releases every live reservation of the order inside the
// caller's transaction and returns what was actually credited.
func (l *Ledger) ReleaseAllTx(ctx context.Context, tx pgx.Tx, orderID string) ([]ItemQuantity, error) {
	rows, err := tx.Query(ctx,
		`SELECT variant_id FROM stock_reservations WHERE order_id=$1 AND status='RESERVED' ORDER BY variant_id`,
		orderID)
	if err != nil {
		return nil, err
	}
	var variantIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		variantIDs = append(variantIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var released []ItemQuantity
	for _, id := range variantIDs {
		qty, err := l.ReleaseTx(ctx, tx, orderID, id)
		if err != nil {
			return nil, err
		}
		if qty > 0 {
			released = append(released, ItemQuantity{VariantID: id, Qty: qty})
		}
	}
	return released, nil
}

// ReleaseAll is the standalone variant for callers without a transaction.
func (l *Ledger) ReleaseAll(ctx context.Context, orderID string) ([]ItemQuantity, error) {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	released, err := l.ReleaseAllTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return released, nil
}

// MergeQuantities collapses duplicate variant IDs by summing their
// quantities and returns the result in ascending variant order.
func MergeQuantities(items []ItemQuantity) []ItemQuantity {
	byID := make(map[int64]int, len(items))
	for _, it := range items {
		byID[it.VariantID] += it.Qty
	}
	out := make([]ItemQuantity, 0, len(byID))
	for id, qty := range byID {
		out = append(out, ItemQuantity{VariantID: id, Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariantID < out[j].VariantID })
	return out
}
