package orders

const (
	TopicOrderCreated           = "order.created"
	TopicOrderUpdated           = "order.updated"
	TopicReconciliationRequired = "stock.reconciliation.required"
)

// Partition key = order_id (or attempt id), so events for one order stay ordered.
func PartitionKey(id string) []byte { return []byte(id) }
