package payments

import "errors"

var (
	ErrOrderNotPayable       = errors.New("order is not in a payable state")
	ErrOrderAlreadyPaid      = errors.New("order already has a verified payment")
	ErrAttemptNotFound       = errors.New("payment attempt not found")
	ErrNoVerifiedPayment     = errors.New("order has no verified gateway payment")
	ErrSignatureMismatch     = errors.New("payment signature mismatch")
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")
	// ErrConflictingPaymentEvent means the gateway reported both failure and
	// success for one attempt. Never resolved silently; it goes to manual
	// reconciliation.
	ErrConflictingPaymentEvent = errors.New("conflicting payment events for attempt")
)
