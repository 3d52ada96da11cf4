package redisx

import (
	"fmt"
	"time"
)

const (
	// Mutual exclusion per contended resource: lock:item:{item_id}
	KeyItemLock = "lock:item:%s"

	// lock:coupon:{coupon_id}
	KeyCouponLock = "lock:coupon:%s"

	// Read-side cache of order status: cache:order:{order_id}
	KeyOrderStatus = "cache:order:%s"
)

const TTLStatusCache = 60 * time.Second

func ItemLockKey(itemID string) string {
	return fmt.Sprintf(KeyItemLock, itemID)
}

func CouponLockKey(couponID string) string {
	return fmt.Sprintf(KeyCouponLock, couponID)
}

func OrderStatusKey(orderID string) string {
	return fmt.Sprintf(KeyOrderStatus, orderID)
}
