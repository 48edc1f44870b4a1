package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type GatewayOrderRequest struct {
	AmountPaise int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Receipt     string            `json:"receipt"`
	Notes       map[string]string `json:"notes,omitempty"`
}

type GatewayOrder struct {
	ID string `json:"id"`
}

type GatewayRefund struct {
	ID string `json:"id"`
}

// Gateway is the external payment collaborator. Calls happen strictly after
// local persistence; no stock lock or transaction is ever held across them.
type Gateway interface {
	CreateOrder(ctx context.Context, req GatewayOrderRequest) (GatewayOrder, error)
	Refund(ctx context.Context, gatewayPaymentID string, amountPaise int64) (GatewayRefund, error)
}

// HTTPGateway speaks the gateway's REST surface with basic auth.
type HTTPGateway struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Client    *http.Client
}

func NewHTTPGateway(baseURL, keyID, keySecret string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		BaseURL:   baseURL,
		KeyID:     keyID,
		KeySecret: keySecret,
		Client:    &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGateway) CreateOrder(ctx context.Context, req GatewayOrderRequest) (GatewayOrder, error) {
	var out GatewayOrder
	err := g.post(ctx, "/v1/orders", req, &out)
	return out, err
}

func (g *HTTPGateway) Refund(ctx context.Context, gatewayPaymentID string, amountPaise int64) (GatewayRefund, error) {
	var out GatewayRefund
	body := map[string]int64{"amount": amountPaise}
	err := g.post(ctx, "/v1/payments/"+gatewayPaymentID+"/refund", body, &out)
	return out, err
}

func (g *HTTPGateway) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.KeyID, g.KeySecret)

	resp, err := g.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little context for the log; gateway errors are never
		// surfaced verbatim to end users.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway %s: status %d: %s", path, resp.StatusCode, snippet)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
