package inventory

import (
	"context"
	"fmt"
	"testing"
)

type fakeReader struct {
	stock  map[int64]int
	active map[int64]bool
}

func (f fakeReader) CheckAvailable(_ context.Context, variantID int64, _ int) (Availability, error) {
	stock, ok := f.stock[variantID]
	if !ok {
		return Availability{VariantID: variantID}, nil
	}
	active := true
	if v, ok := f.active[variantID]; ok {
		active = v
	}
	return Availability{VariantID: variantID, Available: stock, Active: active}, nil
}

type fakeCart struct {
	items map[int64][]StockCheckItem
}

func (f fakeCart) CartItems(_ context.Context, userID int64) ([]StockCheckItem, error) {
	return f.items[userID], nil
}

func TestCheckBatchShortfall(t *testing.T) {
	t.Parallel()

	c := &Checker{Reader: fakeReader{stock: map[int64]int{101: 1, 205: 3}}}

	res, err := c.CheckBatch(context.Background(), []StockCheckItem{
		{VariantID: 101, Quantity: 2},
		{VariantID: 205, Quantity: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Available {
		t.Fatal("expected available=false")
	}
	if len(res.InsufficientItems) != 1 {
		t.Fatalf("expected exactly 1 insufficient item, got %d", len(res.InsufficientItems))
	}
	got := res.InsufficientItems[0]
	if got.VariantID != 101 || got.AvailableQuantity != 1 || got.RequestedQuantity != 2 {
		t.Fatalf("unexpected shortfall: %+v", got)
	}
	want := "Insufficient stock for variant 101"
	if got.Message != want {
		t.Fatalf("message = %q, want %q", got.Message, want)
	}
}

func TestCheckBatchAllSufficient(t *testing.T) {
	t.Parallel()

	c := &Checker{Reader: fakeReader{stock: map[int64]int{1: 5, 2: 5}}}
	res, err := c.CheckBatch(context.Background(), []StockCheckItem{
		{VariantID: 1, Quantity: 5},
		{VariantID: 2, Quantity: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Available {
		t.Fatalf("expected available=true, got %+v", res)
	}
	if res.InsufficientItems == nil || len(res.InsufficientItems) != 0 {
		t.Fatalf("expected empty (non-nil) insufficient list, got %#v", res.InsufficientItems)
	}
}

func TestCheckBatchMergesDuplicates(t *testing.T) {
	t.Parallel()

	// 2+2 requested against 3 in stock must fail even though each line
	// alone would pass.
	c := &Checker{Reader: fakeReader{stock: map[int64]int{7: 3}}}
	res, err := c.CheckBatch(context.Background(), []StockCheckItem{
		{VariantID: 7, Quantity: 2},
		{VariantID: 7, Quantity: 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Available {
		t.Fatal("expected available=false for merged quantities")
	}
	if got := res.InsufficientItems[0].RequestedQuantity; got != 4 {
		t.Fatalf("requested = %d, want 4", got)
	}
}

func TestCheckBatchInactiveVariantIsZero(t *testing.T) {
	t.Parallel()

	c := &Checker{Reader: fakeReader{
		stock:  map[int64]int{9: 10},
		active: map[int64]bool{9: false},
	}}
	res, err := c.CheckBatch(context.Background(), []StockCheckItem{{VariantID: 9, Quantity: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Available {
		t.Fatal("inactive variant must not be available")
	}
	if got := res.InsufficientItems[0].AvailableQuantity; got != 0 {
		t.Fatalf("inactive variant available = %d, want 0", got)
	}
}

func TestCheckBatchUnknownVariant(t *testing.T) {
	t.Parallel()

	c := &Checker{Reader: fakeReader{stock: map[int64]int{}}}
	res, err := c.CheckBatch(context.Background(), []StockCheckItem{{VariantID: 404, Quantity: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Available || res.InsufficientItems[0].AvailableQuantity != 0 {
		t.Fatalf("unknown variant should report zero availability: %+v", res)
	}
}

func TestCheckForUserMatchesBatchShape(t *testing.T) {
	t.Parallel()

	reader := fakeReader{stock: map[int64]int{101: 1}}
	items := []StockCheckItem{{VariantID: 101, Quantity: 2}}

	c := &Checker{
		Reader: reader,
		Cart:   fakeCart{items: map[int64][]StockCheckItem{42: items}},
	}

	fromCart, err := c.CheckForUser(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	fromBatch, err := c.CheckBatch(context.Background(), items)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprintf("%+v", fromCart) != fmt.Sprintf("%+v", fromBatch) {
		t.Fatalf("cart-derived result %+v differs from batch result %+v", fromCart, fromBatch)
	}
}

func TestMergeQuantities(t *testing.T) {
	t.Parallel()

	got := MergeQuantities([]ItemQuantity{
		{VariantID: 5, Qty: 1},
		{VariantID: 3, Qty: 2},
		{VariantID: 5, Qty: 4},
	})
	want := []ItemQuantity{{VariantID: 3, Qty: 2}, {VariantID: 5, Qty: 5}}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("merged[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
