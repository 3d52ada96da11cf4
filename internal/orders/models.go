package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID             string
	OrderNumber    string
	UserID         string
	CouponID       *string
	UserCouponID   *string
	TotalAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	Status         Status
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

type ItemStatus string

const (
	ItemReserved  ItemStatus = "RESERVED"
	ItemConfirmed ItemStatus = "CONFIRMED"
	ItemCancelled ItemStatus = "CANCELLED"
)

type OrderItem struct {
	ID        string
	OrderID   string
	ItemID    string
	Quantity  int
	UnitPrice decimal.Decimal
	Status    ItemStatus
}

// OrderNumber builds the human-readable number: ORD + timestamp + user tag.
func OrderNumber(now time.Time, userID string) string {
	tag := userID
	if len(tag) > 8 {
		tag = tag[:8]
	}
	return fmt.Sprintf("ORD%s%s", now.Format("20060102150405"), tag)
}
