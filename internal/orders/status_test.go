package orders

import (
	"errors"
	"testing"
)

func TestCanTransitionHappyPath(t *testing.T) {
	t.Parallel()

	path := []Status{StatusPendingPayment, StatusPaid, StatusProcessing, StatusShipped, StatusDelivered}
	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Fatalf("expected %s -> %s to be legal", path[i], path[i+1])
		}
	}
}

func TestCanTransitionIllegal(t *testing.T) {
	t.Parallel()

	cases := []struct{ from, to Status }{
		{StatusDelivered, StatusProcessing}, // no going backwards
		{StatusShipped, StatusCancelled},    // too late to cancel
		{StatusDelivered, StatusCancelled},
		{StatusCancelled, StatusPaid},
		{StatusRefunded, StatusPendingPayment},
		{StatusPendingPayment, StatusShipped},
		{StatusPaid, StatusDelivered},
		{StatusReturnRequested, StatusRefunded}, // needs approval first
	}
	for _, c := range cases {
		if CanTransition(c.from, c.to) {
			t.Errorf("expected %s -> %s to be illegal", c.from, c.to)
		}
	}
}

func TestCancelAllowedBeforeShipped(t *testing.T) {
	t.Parallel()

	for _, from := range []Status{StatusPendingPayment, StatusPaid, StatusProcessing} {
		if !CanTransition(from, StatusCancelled) {
			t.Errorf("expected %s -> cancelled to be legal", from)
		}
	}
}

func TestReturnFlow(t *testing.T) {
	t.Parallel()

	flow := []Status{StatusDelivered, StatusReturnRequested, StatusReturnApproved, StatusRefunded}
	for i := 0; i < len(flow)-1; i++ {
		if !CanTransition(flow[i], flow[i+1]) {
			t.Fatalf("expected %s -> %s to be legal", flow[i], flow[i+1])
		}
	}
}

func TestPaymentRetryReopensOrder(t *testing.T) {
	t.Parallel()

	if !CanTransition(StatusPendingPayment, StatusPaymentFailed) {
		t.Fatal("expected pending_payment -> payment_failed to be legal")
	}
	if !CanTransition(StatusPaymentFailed, StatusPendingPayment) {
		t.Fatal("expected payment_failed -> pending_payment (retry) to be legal")
	}
}

func TestInvalidStateTransitionError(t *testing.T) {
	t.Parallel()

	err := error(&InvalidStateTransitionError{From: StatusDelivered, To: StatusProcessing})
	var bad *InvalidStateTransitionError
	if !errors.As(err, &bad) {
		t.Fatal("errors.As failed")
	}
	if bad.From != StatusDelivered || bad.To != StatusProcessing {
		t.Fatalf("unexpected fields: %+v", bad)
	}
	want := "invalid order state transition: delivered -> processing"
	if err.Error() != want {
		t.Fatalf("message = %q, want %q", err.Error(), want)
	}
}

func TestReleasesStock(t *testing.T) {
	t.Parallel()

	for _, to := range []Status{StatusCancelled, StatusPaymentFailed, StatusRefunded} {
		if !ReleasesStock(to) {
			t.Errorf("expected %s to release stock", to)
		}
	}
	if ReleasesStock(StatusPaid) || ReleasesStock(StatusReturnApproved) {
		t.Fatal("paid/return_approved must not release stock")
	}
}
