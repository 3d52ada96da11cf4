package orders

const (
	TopicOrderCreated     = "order.created"
	TopicOrderPaid        = "order.paid"
	TopicOrderCompensated = "order.compensated"
	TopicCouponIssued     = "coupon.issued"
	TopicCouponUsed       = "coupon.used"
)

// Partition key = user_id, so one user's facts keep their relative order.
// No ordering exists across users.
func PartitionKey(userID string) []byte { return []byte(userID) }
