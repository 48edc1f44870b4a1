package coupon

import (
	"errors"
	"time"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Coupon is read-only from the core's perspective; authoring lives with the
// coupon-CRUD collaborator.
type Coupon struct {
	ID            int64
	Code          string
	DiscountType  DiscountType
	DiscountValue int64 // percent (0-100) or flat paise
	MinOrderPaise int64
	// MaxDiscountPaise caps percentage discounts; 0 means uncapped.
	MaxDiscountPaise int64
	// UsageLimit caps global redemptions; 0 means unlimited.
	UsageLimit   int
	UsedCount    int
	PerUserLimit int
	IsActive     bool
	ExpiresAt    *time.Time
}

type Validation struct {
	Valid           bool   `json:"valid"`
	DiscountPaise   int64  `json:"discount_amount"`
	FinalTotalPaise int64  `json:"final_total"`
	Message         string `json:"message"`
}

var (
	ErrCouponNotFound         = errors.New("invalid or inactive coupon code")
	ErrCouponExpired          = errors.New("coupon has expired")
	ErrCouponMinimumNotMet    = errors.New("minimum order value not met")
	ErrCouponUsageExceeded    = errors.New("coupon usage limit exceeded")
	ErrCouponUserLimitReached = errors.New("coupon already used the maximum allowed times")
)
