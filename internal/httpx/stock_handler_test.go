package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/zenithcart/checkout/internal/inventory"
)

type fakeReader struct {
	stock map[int64]inventory.Availability
}

func (f *fakeReader) CheckAvailable(_ context.Context, variantID int64, _ int) (inventory.Availability, error) {
	a, ok := f.stock[variantID]
	if !ok {
		return inventory.Availability{VariantID: variantID}, nil
	}
	return a, nil
}

type fakeCart struct {
	items map[int64][]inventory.StockCheckItem
}

func (f *fakeCart) CartItems(_ context.Context, userID int64) ([]inventory.StockCheckItem, error) {
	return f.items[userID], nil
}

func newStockRouter(t *testing.T) http.Handler {
	t.Helper()
	reader := &fakeReader{stock: map[int64]inventory.Availability{
		101: {VariantID: 101, Available: 1, Active: true},
		205: {VariantID: 205, Available: 10, Active: true},
	}}
	cart := &fakeCart{items: map[int64][]inventory.StockCheckItem{
		7: {{VariantID: 101, Quantity: 1}},
	}}
	h := &StockHandler{
		Checker: &inventory.Checker{Reader: reader, Cart: cart},
		Log:     zap.NewNop(),
	}
	r := NewRouter()
	h.Register(r)
	return r
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) inventory.StockCheckResult {
	t.Helper()
	var res inventory.StockCheckResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return res
}

func TestStockCheckPost(t *testing.T) {
	t.Parallel()

	r := newStockRouter(t)
	body := `{"items":[{"variant_id":101,"quantity":2},{"variant_id":205,"quantity":1}]}`
	req := httptest.NewRequest(http.MethodPost, "/stock/check", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	res := decodeResult(t, rec)
	if res.Available {
		t.Fatal("expected shortfall on variant 101")
	}
	if len(res.InsufficientItems) != 1 || res.InsufficientItems[0].VariantID != 101 {
		t.Fatalf("unexpected insufficient items: %+v", res.InsufficientItems)
	}
	if got := res.InsufficientItems[0]; got.AvailableQuantity != 1 || got.RequestedQuantity != 2 {
		t.Fatalf("unexpected shortfall detail: %+v", got)
	}
}

func TestStockCheckLegacyQueryParams(t *testing.T) {
	t.Parallel()

	r := newStockRouter(t)
	req := httptest.NewRequest(http.MethodGet,
		"/stock/check?variant_id=101&quantity=2&variant_id=205&quantity=1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	res := decodeResult(t, rec)
	if res.Available || len(res.InsufficientItems) != 1 {
		t.Fatalf("legacy form must behave like the POST body: %+v", res)
	}
}

func TestStockCheckLegacyMismatchedParams(t *testing.T) {
	t.Parallel()

	r := newStockRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/stock/check?variant_id=101", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStockCheckCartFallback(t *testing.T) {
	t.Parallel()

	r := newStockRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/stock/check", strings.NewReader(`{"items":[]}`))
	req.Header.Set("X-User-ID", "7")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	res := decodeResult(t, rec)
	if !res.Available {
		t.Fatalf("cart of user 7 fits the stock: %+v", res)
	}
}

func TestStockCheckCartFallbackNeedsIdentity(t *testing.T) {
	t.Parallel()

	r := newStockRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/stock/check", strings.NewReader(`{"items":[]}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
