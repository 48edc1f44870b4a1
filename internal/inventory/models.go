package inventory

type ItemQuantity struct {
	VariantID int64 `json:"variant_id"`
	Qty       int   `json:"quantity"`
}

type Availability struct {
	VariantID int64
	Available int
	Active    bool
}

// Sufficient reports whether the current counter covers qty. Inactive
// variants count as zero availability.
func (a Availability) Sufficient(qty int) bool {
	return a.Active && a.Available >= qty
}

type StockCheckItem struct {
	VariantID int64 `json:"variant_id"`
	Quantity  int   `json:"quantity"`
}

type InsufficientItem struct {
	VariantID         int64  `json:"variant_id"`
	AvailableQuantity int    `json:"available_quantity"`
	RequestedQuantity int    `json:"requested_quantity"`
	Message           string `json:"message"`
}

type StockCheckResult struct {
	Available         bool               `json:"available"`
	InsufficientItems []InsufficientItem `json:"insufficient_items"`
}
