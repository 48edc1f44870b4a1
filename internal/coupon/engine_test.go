package coupon

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStore struct {
	coupons map[string]*Coupon
	usage   map[int64]int // couponID -> usage for the test user
}

func (f fakeStore) FindByCode(_ context.Context, code string) (*Coupon, error) {
	c, ok := f.coupons[code]
	if !ok {
		return nil, ErrCouponNotFound
	}
	return c, nil
}

func (f fakeStore) UserUsageCount(_ context.Context, couponID, _ int64) (int, error) {
	return f.usage[couponID], nil
}

func engineAt(t time.Time, store fakeStore) *Engine {
	e := NewEngine(store)
	e.Now = func() time.Time { return t }
	return e
}

func TestValidatePercentageNoCap(t *testing.T) {
	t.Parallel()

	e := engineAt(time.Now(), fakeStore{coupons: map[string]*Coupon{
		"WELCOME10": {ID: 1, Code: "WELCOME10", DiscountType: DiscountPercentage, DiscountValue: 10, IsActive: true, PerUserLimit: 1},
	}})

	v, err := e.Validate(context.Background(), 7, "welcome10", 2500)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Valid || v.DiscountPaise != 250 || v.FinalTotalPaise != 2250 {
		t.Fatalf("unexpected validation: %+v", v)
	}
}

func TestValidatePercentageCapped(t *testing.T) {
	t.Parallel()

	e := engineAt(time.Now(), fakeStore{coupons: map[string]*Coupon{
		"BIG50": {ID: 2, Code: "BIG50", DiscountType: DiscountPercentage, DiscountValue: 50, MaxDiscountPaise: 1000, IsActive: true},
	}})

	v, err := e.Validate(context.Background(), 7, "BIG50", 10000)
	if err != nil {
		t.Fatal(err)
	}
	if v.DiscountPaise != 1000 || v.FinalTotalPaise != 9000 {
		t.Fatalf("cap not applied: %+v", v)
	}
}

func TestValidatePercentageClampedToSubtotal(t *testing.T) {
	t.Parallel()

	e := engineAt(time.Now(), fakeStore{coupons: map[string]*Coupon{
		"MEGA150": {ID: 9, Code: "MEGA150", DiscountType: DiscountPercentage, DiscountValue: 150, IsActive: true},
	}})

	v, err := e.Validate(context.Background(), 7, "MEGA150", 2000)
	if err != nil {
		t.Fatal(err)
	}
	if v.DiscountPaise != 2000 || v.FinalTotalPaise != 0 {
		t.Fatalf("discount must never exceed the subtotal: %+v", v)
	}
}

func TestValidateFixedNeverExceedsSubtotal(t *testing.T) {
	t.Parallel()

	e := engineAt(time.Now(), fakeStore{coupons: map[string]*Coupon{
		"FLAT500": {ID: 3, Code: "FLAT500", DiscountType: DiscountFixed, DiscountValue: 500, IsActive: true},
	}})

	v, err := e.Validate(context.Background(), 7, "FLAT500", 300)
	if err != nil {
		t.Fatal(err)
	}
	if v.DiscountPaise != 300 || v.FinalTotalPaise != 0 {
		t.Fatalf("fixed discount must floor total at zero: %+v", v)
	}
}

func TestValidateFailures(t *testing.T) {
	t.Parallel()

	expired := time.Now().Add(-time.Hour)
	store := fakeStore{
		coupons: map[string]*Coupon{
			"GONE":    {ID: 4, Code: "GONE", DiscountType: DiscountFixed, DiscountValue: 100, IsActive: true, ExpiresAt: &expired},
			"MIN":     {ID: 5, Code: "MIN", DiscountType: DiscountFixed, DiscountValue: 100, IsActive: true, MinOrderPaise: 5000},
			"CAPPED":  {ID: 6, Code: "CAPPED", DiscountType: DiscountFixed, DiscountValue: 100, IsActive: true, UsageLimit: 10, UsedCount: 10},
			"ONCE":    {ID: 7, Code: "ONCE", DiscountType: DiscountFixed, DiscountValue: 100, IsActive: true, PerUserLimit: 1},
			"OFF":     {ID: 8, Code: "OFF", DiscountType: DiscountFixed, DiscountValue: 100, IsActive: false},
		},
		usage: map[int64]int{7: 1},
	}
	e := engineAt(time.Now(), store)

	cases := []struct {
		name string
		code string
		want error
	}{
		{"unknown code", "NOPE", ErrCouponNotFound},
		{"inactive code", "OFF", ErrCouponNotFound},
		{"expired", "GONE", ErrCouponExpired},
		{"minimum not met", "MIN", ErrCouponMinimumNotMet},
		{"global limit", "CAPPED", ErrCouponUsageExceeded},
		{"per-user limit", "ONCE", ErrCouponUserLimitReached},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := e.Validate(context.Background(), 7, tc.code, 1000)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if v.Valid {
				t.Fatal("validation must be invalid")
			}
			if v.DiscountPaise != 0 || v.FinalTotalPaise != 1000 {
				t.Fatalf("failed validation must not discount: %+v", v)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	if got := Normalize("  welcome10 "); got != "WELCOME10" {
		t.Fatalf("Normalize = %q", got)
	}
}
