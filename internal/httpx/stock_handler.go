package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenithcart/checkout/internal/inventory"
)

type StockHandler struct {
	Checker *inventory.Checker
	Log     *zap.Logger
}

type stockCheckReq struct {
	Items []inventory.StockCheckItem `json:"items"`
}

func (h *StockHandler) Register(r *chi.Mux) {
	r.Post("/stock/check", h.check)
	r.Get("/stock/check", h.checkLegacy)
}

func (h *StockHandler) check(w http.ResponseWriter, r *http.Request) {
	var req stockCheckReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	h.respond(w, r, req.Items)
}

// checkLegacy accepts the old repeated query-param form
// (?variant_id=1&quantity=2&variant_id=3&quantity=1). Kept until the last
// storefront client moves to the POST body; remove with it.
func (h *StockHandler) checkLegacy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ids, qtys := q["variant_id"], q["quantity"]
	if len(ids) != len(qtys) {
		writeError(w, http.StatusBadRequest, "variant_id and quantity counts differ")
		return
	}

	items := make([]inventory.StockCheckItem, 0, len(ids))
	for i := range ids {
		variantID, err := strconv.ParseInt(ids[i], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid variant_id "+ids[i])
			return
		}
		qty, err := strconv.Atoi(qtys[i])
		if err != nil || qty <= 0 {
			writeError(w, http.StatusBadRequest, "invalid quantity "+qtys[i])
			return
		}
		items = append(items, inventory.StockCheckItem{VariantID: variantID, Quantity: qty})
	}

	h.Log.Warn("deprecated GET /stock/check used", zap.Int("items", len(items)))
	h.respond(w, r, items)
}

func (h *StockHandler) respond(w http.ResponseWriter, r *http.Request, items []inventory.StockCheckItem) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var (
		res inventory.StockCheckResult
		err error
	)
	if len(items) == 0 {
		// No explicit items: fall back to the caller's cart.
		userID, ok := requireUser(w, r)
		if !ok {
			return
		}
		res, err = h.Checker.CheckForUser(ctx, userID)
	} else {
		res, err = h.Checker.CheckBatch(ctx, items)
	}
	if err != nil {
		h.Log.Error("stock check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
