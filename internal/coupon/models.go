package coupon

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountFixed      DiscountType = "FIXED"
	DiscountPercentage DiscountType = "PERCENTAGE"
)

type UserCouponStatus string

const (
	UserCouponActive UserCouponStatus = "ACTIVE"
	UserCouponUsed   UserCouponStatus = "USED"
)

var (
	ErrCouponNotFound      = errors.New("coupon not found")
	ErrUserCouponNotFound  = errors.New("user coupon not found")
	ErrQuotaExceeded       = errors.New("coupon issue quota exceeded")
	ErrAlreadyIssued       = errors.New("coupon already issued to user")
	ErrNotInValidityWindow = errors.New("coupon outside validity window")
	ErrAlreadyUsed         = errors.New("coupon already used")
	ErrMinOrderNotMet      = errors.New("order amount below coupon minimum")
)

type Coupon struct {
	ID             string
	Name           string
	DiscountType   DiscountType
	DiscountValue  decimal.Decimal
	MinOrderAmount decimal.Decimal
	MaxIssueCount  int
	IssuedCount    int
	ValidFrom      time.Time
	ValidTo        time.Time
}

func (c Coupon) ValidAt(now time.Time) bool {
	return !now.Before(c.ValidFrom) && !now.After(c.ValidTo)
}

// Discount computes the amount taken off an order total. Percentage
// discounts round down to a whole amount.
func (c Coupon) Discount(total decimal.Decimal) (decimal.Decimal, error) {
	if total.LessThan(c.MinOrderAmount) {
		return decimal.Zero, ErrMinOrderNotMet
	}
	if c.DiscountType == DiscountFixed {
		if c.DiscountValue.GreaterThan(total) {
			return total, nil
		}
		return c.DiscountValue, nil
	}
	rate := c.DiscountValue.Div(decimal.NewFromInt(100))
	return total.Mul(rate).Floor(), nil
}

// UserCoupon is one user's issuance of a coupon. At most one row per
// (user, coupon), whatever the status.
type UserCoupon struct {
	ID       string
	UserID   string
	CouponID string
	Status   UserCouponStatus
	IssuedAt time.Time
	UsedAt   *time.Time
	OrderID  *string
}
