package orders

import "time"

type Order struct {
	ID            string
	OrderNumber   string
	UserID        int64
	Status        Status
	SubtotalPaise int64
	DiscountPaise int64
	TotalPaise    int64
	CouponCode    string
	PaymentMethod string

	ShippingAddressID int64
	BillingAddressID  int64

	TrackingNumber        *string
	CarrierName           *string
	EstimatedDeliveryDate *time.Time
	CustomerNotes         string

	Items []OrderItem

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem freezes the variant's price and attributes at order time.
// Later catalog edits must not show through.
type OrderItem struct {
	ID              string
	OrderID         string
	VariantID       int64
	ProductName     string
	VariantDetails  string
	Quantity        int
	UnitPricePaise  int64
	TotalPricePaise int64
}

type StatusChange struct {
	ID        int64
	OrderID   string
	From      Status
	To        Status
	ChangedBy *int64
	Notes     string
	CreatedAt time.Time
}
