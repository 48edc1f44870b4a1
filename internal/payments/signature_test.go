package payments

import "testing"

func TestCallbackSignatureRoundTrip(t *testing.T) {
	t.Parallel()

	sig := CallbackSignature("key_secret", "gw_order_1", "gw_pay_1")
	if !VerifyCallbackSignature("key_secret", "gw_order_1", "gw_pay_1", sig) {
		t.Fatal("signature should verify against the same inputs")
	}
	if VerifyCallbackSignature("key_secret", "gw_order_1", "gw_pay_2", sig) {
		t.Fatal("signature must not verify for a different payment id")
	}
	if VerifyCallbackSignature("other_secret", "gw_order_1", "gw_pay_1", sig) {
		t.Fatal("signature must not verify under a different secret")
	}
}

func TestCallbackSignatureCoversBothIDs(t *testing.T) {
	t.Parallel()

	// The signed string joins the two ids with a pipe, so shifting a
	// character between them must change the signature.
	a := CallbackSignature("s", "ab", "c")
	b := CallbackSignature("s", "a", "bc")
	if a == b {
		t.Fatal("signatures for (ab, c) and (a, bc) must differ")
	}
}

func TestWebhookSignature(t *testing.T) {
	t.Parallel()

	body := []byte(`{"event":"payment.captured"}`)
	sig := WebhookSignature("hook_secret", body)
	if !VerifyWebhookSignature("hook_secret", body, sig) {
		t.Fatal("webhook signature should verify")
	}
	if VerifyWebhookSignature("hook_secret", []byte(`{"event":"payment.failed"}`), sig) {
		t.Fatal("webhook signature must be bound to the exact body")
	}
}
