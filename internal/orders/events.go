package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated     = "OrderCreated"
	EventOrderPaid        = "OrderPaid"
	EventOrderCompensated = "OrderCompensated"
	EventCouponIssued     = "CouponIssued"
	EventCouponUsed       = "CouponUsed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- payload per event ----

type OrderItemFact struct {
	ItemID    string `json:"item_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID        string          `json:"order_id"`
	OrderNumber    string          `json:"order_number"`
	UserID         string          `json:"user_id"`
	Items          []OrderItemFact `json:"items"`
	TotalAmount    string          `json:"total_amount"`
	DiscountAmount string          `json:"discount_amount"`
	FinalAmount    string          `json:"final_amount"`
}

type OrderPaidPayload struct {
	OrderID       string `json:"order_id"`
	UserID        string `json:"user_id"`
	FinalAmount   string `json:"final_amount"`
	PaymentMethod string `json:"payment_method"`
}

type OrderCompensatedPayload struct {
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	FinalStatus string `json:"final_status"` // CANCELLED | EXPIRED
	Reason      string `json:"reason"`
}

type CouponIssuedPayload struct {
	UserCouponID string `json:"user_coupon_id"`
	CouponID     string `json:"coupon_id"`
	UserID       string `json:"user_id"`
}

type CouponUsedPayload struct {
	UserCouponID string `json:"user_coupon_id"`
	CouponID     string `json:"coupon_id"`
	UserID       string `json:"user_id"`
	OrderID      string `json:"order_id"`
}
