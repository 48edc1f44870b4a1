package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/zenithcart/checkout/internal/coupon"
	"github.com/zenithcart/checkout/internal/orders"
	"github.com/zenithcart/checkout/internal/payments"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// Identity arrives pre-resolved from the auth layer in front of this
// service; these headers are trusted inside the perimeter.
func callerID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func isAdmin(r *http.Request) bool {
	return r.Header.Get("X-User-Role") == "admin"
}

func requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid X-User-ID")
	}
	return id, ok
}

func requireAdmin(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or invalid X-User-ID")
		return 0, false
	}
	if !isAdmin(r) {
		writeError(w, http.StatusForbidden, "admin role required")
		return 0, false
	}
	return id, true
}

// writeDomainError maps typed domain errors onto stable JSON responses.
// Anything unrecognized is reported as an internal error without leaking
// the cause.
func writeDomainError(w http.ResponseWriter, err error) {
	var ist *orders.InvalidStateTransitionError
	var vnf *orders.VariantNotFoundError

	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, orders.ErrNotOwner):
		writeError(w, http.StatusForbidden, "order does not belong to caller")
	case errors.Is(err, orders.ErrEmptyOrder):
		writeError(w, http.StatusBadRequest, "order has no items")
	case errors.Is(err, orders.ErrReturnWindowExpired):
		writeError(w, http.StatusUnprocessableEntity, "return window expired")
	case errors.As(err, &ist):
		writeError(w, http.StatusConflict, ist.Error())
	case errors.As(err, &vnf):
		writeError(w, http.StatusNotFound, vnf.Error())
	case errors.Is(err, coupon.ErrCouponNotFound),
		errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, coupon.ErrCouponMinimumNotMet),
		errors.Is(err, coupon.ErrCouponUsageExceeded),
		errors.Is(err, coupon.ErrCouponUserLimitReached):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, payments.ErrOrderNotPayable):
		writeError(w, http.StatusConflict, "order is not in a payable state")
	case errors.Is(err, payments.ErrOrderAlreadyPaid):
		writeError(w, http.StatusConflict, "order already has a verified payment")
	case errors.Is(err, payments.ErrAttemptNotFound):
		writeError(w, http.StatusNotFound, "payment attempt not found")
	case errors.Is(err, payments.ErrNoVerifiedPayment):
		writeError(w, http.StatusConflict, "order has no verified gateway payment")
	case errors.Is(err, payments.ErrSignatureMismatch):
		writeError(w, http.StatusBadRequest, "signature verification failed")
	case errors.Is(err, payments.ErrInvalidWebhookPayload):
		writeError(w, http.StatusBadRequest, "invalid webhook payload")
	case errors.Is(err, payments.ErrConflictingPaymentEvent):
		writeError(w, http.StatusConflict, "conflicting payment events; flagged for manual reconciliation")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
