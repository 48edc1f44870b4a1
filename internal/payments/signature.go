package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// CallbackSignature is the gateway's documented scheme: HMAC-SHA256 of
// "{gateway_order_id}|{gateway_payment_id}" under the key secret.
func CallbackSignature(secret, gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCallbackSignature recomputes the expected signature; the client's
// own claim of verification is never trusted.
func VerifyCallbackSignature(secret, gatewayOrderID, gatewayPaymentID, signature string) bool {
	expected := CallbackSignature(secret, gatewayOrderID, gatewayPaymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// WebhookSignature signs the raw webhook body under the webhook secret.
func WebhookSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	expected := WebhookSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
