package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Store is the coupon-CRUD collaborator's read surface plus the redemption
// counter consulted during validation.
type Store interface {
	// FindByCode returns ErrCouponNotFound for unknown or inactive codes.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	UserUsageCount(ctx context.Context, couponID, userID int64) (int, error)
}

// Engine computes discounts deterministically and never consumes usage:
// redemption is recorded by the order orchestrator when an order is actually
// placed, so Validate can run repeatedly for preview.
type Engine struct {
	Store Store
	Now   func() time.Time
}

func NewEngine(store Store) *Engine {
	return &Engine{Store: store, Now: time.Now}
}

// Normalize is the canonical form codes are stored and compared in.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks eligibility and computes the discount for the subtotal.
// On a rule failure the returned Validation still carries the caller-safe
// message alongside the typed error.
func (e *Engine) Validate(ctx context.Context, userID int64, code string, subtotalPaise int64) (Validation, error) {
	invalid := func(msg string, err error) (Validation, error) {
		return Validation{Valid: false, DiscountPaise: 0, FinalTotalPaise: subtotalPaise, Message: msg}, err
	}

	c, err := e.Store.FindByCode(ctx, Normalize(code))
	if err != nil {
		if err == ErrCouponNotFound {
			return invalid("Invalid or inactive coupon code", ErrCouponNotFound)
		}
		return Validation{}, err
	}
	if !c.IsActive {
		return invalid("Invalid or inactive coupon code", ErrCouponNotFound)
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(e.Now()) {
		return invalid("Coupon has expired", ErrCouponExpired)
	}
	if subtotalPaise < c.MinOrderPaise {
		return invalid(fmt.Sprintf("Minimum order value of %d required", c.MinOrderPaise), ErrCouponMinimumNotMet)
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return invalid("Coupon usage limit exceeded", ErrCouponUsageExceeded)
	}
	if c.PerUserLimit > 0 {
		used, err := e.Store.UserUsageCount(ctx, c.ID, userID)
		if err != nil {
			return Validation{}, err
		}
		if used >= c.PerUserLimit {
			return invalid("You have already used this coupon the maximum allowed times", ErrCouponUserLimitReached)
		}
	}

	discount := Discount(c, subtotalPaise)
	final := subtotalPaise - discount
	if final < 0 {
		final = 0
	}
	return Validation{
		Valid:           true,
		DiscountPaise:   discount,
		FinalTotalPaise: final,
		Message:         "Coupon applied successfully",
	}, nil
}

// Discount computes the raw discount: percentage of subtotal capped at the
// configured maximum, or a flat amount. Either kind is clamped to the
// subtotal so the payable total never goes negative.
func Discount(c *Coupon, subtotalPaise int64) int64 {
	var d int64
	switch c.DiscountType {
	case DiscountPercentage:
		d = subtotalPaise * c.DiscountValue / 100
		if c.MaxDiscountPaise > 0 && d > c.MaxDiscountPaise {
			d = c.MaxDiscountPaise
		}
	case DiscountFixed:
		d = c.DiscountValue
	}
	if d > subtotalPaise {
		d = subtotalPaise
	}
	if d < 0 {
		d = 0
	}
	return d
}
