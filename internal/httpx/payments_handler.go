package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenithcart/checkout/internal/payments"
)

type PaymentsHandler struct {
	Engine *payments.Engine
	Log    *zap.Logger
}

type createSessionReq struct {
	OrderID string `json:"order_id"`
}

type verifyReq struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

func (h *PaymentsHandler) Register(r *chi.Mux) {
	r.Post("/payments/session", h.createSession)
	r.Post("/payments/verify", h.verify)
	r.Post("/payments/webhook", h.webhook)
}

func (h *PaymentsHandler) createSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createSessionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "missing order_id")
		return
	}

	// The gateway round trip dominates; budget for it on top of the DB work.
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sess, err := h.Engine.CreateSession(ctx, req.OrderID, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *PaymentsHandler) verify(w http.ResponseWriter, r *http.Request) {
	var req verifyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "missing fields")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Engine.VerifyCallback(ctx, req.GatewayOrderID, req.GatewayPaymentID, req.Signature)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PaymentsHandler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	err = h.Engine.HandleWebhook(ctx, body, r.Header.Get("X-Gateway-Signature"))
	if err != nil {
		h.Log.Warn("webhook rejected", zap.Error(err))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
