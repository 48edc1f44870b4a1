package orders

const (
	TopicOrderCreated   = "checkout.order.created"
	TopicOrderPaid      = "checkout.order.paid"
	TopicPaymentFailed  = "checkout.order.payment_failed"
	TopicOrderCancelled = "checkout.order.cancelled"
	TopicOrderRefunded  = "checkout.order.refunded"
	TopicStockReserved  = "checkout.stock.reserved"
	TopicStockReleased  = "checkout.stock.released"
)

// AllTopics is what the audit consumer subscribes to.
func AllTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderPaid,
		TopicPaymentFailed,
		TopicOrderCancelled,
		TopicOrderRefunded,
		TopicStockReserved,
		TopicStockReleased,
	}
}

// PartitionKey keeps every event of one order on one partition so ordering
// per order is preserved.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
