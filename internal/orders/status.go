package orders

import "fmt"

type Status string

const (
	StatusPendingPayment  Status = "pending_payment"
	StatusPaid            Status = "paid"
	StatusProcessing      Status = "processing"
	StatusShipped         Status = "shipped"
	StatusDelivered       Status = "delivered"
	StatusPaymentFailed   Status = "payment_failed"
	StatusCancelled       Status = "cancelled"
	StatusReturnRequested Status = "return_requested"
	StatusReturnApproved  Status = "return_approved"
	StatusRefunded        Status = "refunded"
)

var validNext = map[Status]map[Status]bool{
	StatusPendingPayment:  {StatusPaid: true, StatusPaymentFailed: true, StatusCancelled: true},
	StatusPaid:            {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing:      {StatusShipped: true, StatusCancelled: true},
	StatusShipped:         {StatusDelivered: true},
	StatusDelivered:       {StatusReturnRequested: true},
	StatusPaymentFailed:   {StatusPendingPayment: true}, // payment retry re-opens the order
	StatusReturnRequested: {StatusReturnApproved: true},
	StatusReturnApproved:  {StatusRefunded: true},
	StatusCancelled:       {},
	StatusRefunded:        {},
}

func ValidStatus(s Status) bool {
	_, ok := validNext[s]
	return ok
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// InvalidStateTransitionError is a caller error and is never coerced into a
// silent state change.
type InvalidStateTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid order state transition: %s -> %s", e.From, e.To)
}

// ReleasesStock reports whether entering the status must return the order's
// reserved stock to the ledger.
func ReleasesStock(to Status) bool {
	return to == StatusCancelled || to == StatusPaymentFailed || to == StatusRefunded
}
