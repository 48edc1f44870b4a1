package inventory

import "fmt"

// InsufficientStockError aborts the enclosing order transaction; the caller's
// rollback undoes every reservation already taken for the same order.
type InsufficientStockError struct {
	VariantID int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %d: available=%d requested=%d",
		e.VariantID, e.Available, e.Requested)
}
