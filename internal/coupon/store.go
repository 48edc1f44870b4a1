package coupon

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGStore struct {
	DB *pgxpool.Pool
}

func (s *PGStore) FindByCode(ctx context.Context, code string) (*Coupon, error) {
	var c Coupon
	err := s.DB.QueryRow(ctx, `
		SELECT id, code, discount_type, discount_value, min_order_paise,
		       COALESCE(max_discount_paise, 0), COALESCE(usage_limit, 0),
		       used_count, per_user_limit, is_active, expires_at
		FROM coupons WHERE code=$1
	`, code).Scan(
		&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &c.MinOrderPaise,
		&c.MaxDiscountPaise, &c.UsageLimit, &c.UsedCount, &c.PerUserLimit,
		&c.IsActive, &c.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PGStore) UserUsageCount(ctx context.Context, couponID, userID int64) (int, error) {
	var n int
	err := s.DB.QueryRow(ctx,
		`SELECT COUNT(*) FROM coupon_usages WHERE coupon_id=$1 AND user_id=$2`,
		couponID, userID).Scan(&n)
	return n, err
}

// RecordRedemption runs inside the order-creation transaction so the usage
// counter moves exactly when an order is placed, never at validation.
func (s *PGStore) RecordRedemption(ctx context.Context, tx pgx.Tx, couponID, userID int64, orderID string) error {
	if _, err := tx.Exec(ctx,
		`UPDATE coupons SET used_count = used_count + 1 WHERE id=$1`, couponID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO coupon_usages(coupon_id, user_id, order_id) VALUES ($1, $2, $3)`,
		couponID, userID, orderID)
	return err
}
