package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenithcart/checkout/internal/inventory"
	"github.com/zenithcart/checkout/internal/orders"
	"github.com/zenithcart/checkout/internal/payments"
)

type OrdersHandler struct {
	Service  *orders.Service
	Payments *payments.Engine
	Log      *zap.Logger
}

type createOrderReq struct {
	Items             []inventory.ItemQuantity `json:"items"`
	ShippingAddressID int64                    `json:"shipping_address_id"`
	BillingAddressID  int64                    `json:"billing_address_id"`
	PaymentMethod     string                   `json:"payment_method"`
	CouponCode        string                   `json:"coupon_code"`
	CustomerNotes     string                   `json:"customer_notes"`
	ClearCart         bool                     `json:"clear_cart"`
}

type updateStatusReq struct {
	Status                string     `json:"status"`
	TrackingNumber        *string    `json:"tracking_number"`
	CarrierName           *string    `json:"carrier_name"`
	EstimatedDeliveryDate *time.Time `json:"estimated_delivery_date"`
	Notes                 string     `json:"notes"`
}

type returnReq struct {
	Reason string `json:"reason"`
}

type orderItemResp struct {
	VariantID       int64  `json:"variant_id"`
	ProductName     string `json:"product_name"`
	VariantDetails  string `json:"variant_details"`
	Quantity        int    `json:"quantity"`
	UnitPricePaise  int64  `json:"unit_price_paise"`
	TotalPricePaise int64  `json:"total_price_paise"`
}

type orderResp struct {
	ID                    string          `json:"id"`
	OrderNumber           string          `json:"order_number"`
	Status                string          `json:"status"`
	SubtotalPaise         int64           `json:"subtotal_paise"`
	DiscountPaise         int64           `json:"discount_paise"`
	TotalPaise            int64           `json:"total_paise"`
	CouponCode            string          `json:"coupon_code,omitempty"`
	PaymentMethod         string          `json:"payment_method"`
	TrackingNumber        *string         `json:"tracking_number,omitempty"`
	CarrierName           *string         `json:"carrier_name,omitempty"`
	EstimatedDeliveryDate *time.Time      `json:"estimated_delivery_date,omitempty"`
	Items                 []orderItemResp `json:"items"`
	CreatedAt             time.Time       `json:"created_at"`
}

func toOrderResp(o *orders.Order) orderResp {
	items := make([]orderItemResp, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResp{
			VariantID:       it.VariantID,
			ProductName:     it.ProductName,
			VariantDetails:  it.VariantDetails,
			Quantity:        it.Quantity,
			UnitPricePaise:  it.UnitPricePaise,
			TotalPricePaise: it.TotalPricePaise,
		})
	}
	return orderResp{
		ID:                    o.ID,
		OrderNumber:           o.OrderNumber,
		Status:                string(o.Status),
		SubtotalPaise:         o.SubtotalPaise,
		DiscountPaise:         o.DiscountPaise,
		TotalPaise:            o.TotalPaise,
		CouponCode:            o.CouponCode,
		PaymentMethod:         o.PaymentMethod,
		TrackingNumber:        o.TrackingNumber,
		CarrierName:           o.CarrierName,
		EstimatedDeliveryDate: o.EstimatedDeliveryDate,
		Items:                 items,
		CreatedAt:             o.CreatedAt,
	}
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.orderStatus)
	r.Put("/orders/{id}/cancel", h.cancelOrder)
	r.Put("/orders/{id}/status", h.updateStatus)
	r.Post("/orders/{id}/return", h.requestReturn)
	r.Put("/orders/{id}/return/approve", h.approveReturn)
	r.Put("/orders/{id}/refund", h.refundOrder)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = payments.MethodGateway
	}
	if req.PaymentMethod != payments.MethodGateway && req.PaymentMethod != payments.MethodCOD {
		writeError(w, http.StatusBadRequest, "unsupported payment_method")
		return
	}
	if req.ShippingAddressID <= 0 {
		writeError(w, http.StatusBadRequest, "missing shipping_address_id")
		return
	}
	if req.BillingAddressID <= 0 {
		req.BillingAddressID = req.ShippingAddressID
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, shortfalls, err := h.Service.CreateOrder(ctx, orders.CreateOrderInput{
		UserID:            userID,
		Items:             req.Items,
		ShippingAddressID: req.ShippingAddressID,
		BillingAddressID:  req.BillingAddressID,
		PaymentMethod:     req.PaymentMethod,
		CouponCode:        req.CouponCode,
		CustomerNotes:     req.CustomerNotes,
		IdempotencyKey:    r.Header.Get("Idempotency-Key"),
		ClearCart:         req.ClearCart,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if len(shortfalls) > 0 {
		items := make([]inventory.InsufficientItem, 0, len(shortfalls))
		for _, sf := range shortfalls {
			items = append(items, inventory.InsufficientItem{
				VariantID:         sf.VariantID,
				AvailableQuantity: sf.Available,
				RequestedQuantity: sf.Requested,
				Message:           sf.Error(),
			})
		}
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":              "insufficient stock",
			"insufficient_items": items,
		})
		return
	}

	if req.PaymentMethod == payments.MethodCOD && o.Status == orders.StatusPendingPayment {
		if err := h.Payments.SettleCOD(ctx, o); err != nil {
			writeDomainError(w, err)
			return
		}
		o.Status = orders.StatusPaid
	}

	writeJSON(w, http.StatusCreated, toOrderResp(o))
}

// getOrder looks up by the customer-facing order number first and falls
// back to the internal id, so both identifiers resolve.
func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "id")
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Service.Repo.GetByNumber(ctx, ref)
	if errors.Is(err, orders.ErrOrderNotFound) && uuid.Validate(ref) == nil {
		o, err = h.Service.Repo.GetByID(ctx, ref)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !isAdmin(r) && o.UserID != userID {
		writeDomainError(w, orders.ErrNotOwner)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

// orderStatus is the cheap polling endpoint the storefront hits while a
// payment is in flight. Served from the redis cache when warm.
func (h *OrdersHandler) orderStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status, err := h.Service.Status(ctx, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"order_id": orderID, "status": string(status)})
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var err error
	if isAdmin(r) {
		err = h.Service.Cancel(ctx, orderID, nil, "admin")
	} else {
		err = h.Service.Cancel(ctx, orderID, &userID, "customer")
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(orders.StatusCancelled)})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	adminID, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	to := orders.Status(req.Status)
	if !orders.ValidStatus(to) {
		writeError(w, http.StatusBadRequest, "unknown status "+req.Status)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	err := h.Service.UpdateStatus(ctx, chi.URLParam(r, "id"), orders.StatusUpdate{
		Status:                to,
		TrackingNumber:        req.TrackingNumber,
		CarrierName:           req.CarrierName,
		EstimatedDeliveryDate: req.EstimatedDeliveryDate,
		Notes:                 req.Notes,
	}, adminID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

func (h *OrdersHandler) requestReturn(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req returnReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Service.RequestReturn(ctx, chi.URLParam(r, "id"), userID, req.Reason); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(orders.StatusReturnRequested)})
}

func (h *OrdersHandler) approveReturn(w http.ResponseWriter, r *http.Request) {
	adminID, ok := requireAdmin(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Service.ApproveReturn(ctx, chi.URLParam(r, "id"), adminID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(orders.StatusReturnApproved)})
}

func (h *OrdersHandler) refundOrder(w http.ResponseWriter, r *http.Request) {
	adminID, ok := requireAdmin(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if err := h.Service.Refund(ctx, chi.URLParam(r, "id"), adminID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(orders.StatusRefunded)})
}
