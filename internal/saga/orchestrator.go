package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-core.git/internal/clock"
	"github.com/ariefcatur/go-order-core.git/internal/coupon"
	"github.com/ariefcatur/go-order-core.git/internal/locker"
	"github.com/ariefcatur/go-order-core.git/internal/orders"
	"github.com/ariefcatur/go-order-core.git/internal/postgres"
	"github.com/ariefcatur/go-order-core.git/internal/redisx"
	"github.com/ariefcatur/go-order-core.git/internal/stock"
)

var ErrNoItems = errors.New("order has no items")

type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type OrderRepository interface {
	Insert(ctx context.Context, o orders.Order) error
	InsertItems(ctx context.Context, items []orders.OrderItem) error
	Get(ctx context.Context, orderID string) (orders.Order, error)
	Transition(ctx context.Context, orderID string, from []orders.Status, to orders.Status) (bool, error)
	ItemsByOrder(ctx context.Context, orderID string) ([]orders.OrderItem, error)
	SetItemStatusByOrder(ctx context.Context, orderID string, status orders.ItemStatus) error
}

// Notifier pushes committed orders to the external systems (ERP/logistics)
// in a transaction scope of its own.
type Notifier interface {
	Notify(ctx context.Context, o orders.Order) error
}

// FactPublisher receives domain facts strictly after local commit.
type FactPublisher interface {
	OrderCreated(o orders.Order, items []orders.OrderItem)
	OrderPaid(o orders.Order, paymentMethod string)
	OrderCompensated(o orders.Order, reason string)
	CouponIssued(userID, couponID, userCouponID string)
	CouponUsed(userID, couponID, userCouponID, orderID string)
}

type Config struct {
	LockWait   time.Duration
	LockLease  time.Duration
	HoldWindow time.Duration
}

// Orchestrator drives order creation, payment and compensation. It is the
// only writer of order status transitions.
type Orchestrator struct {
	locks    locker.Coordinator
	tx       TxRunner
	stock    *stock.Ledger
	coupons  *coupon.Ledger
	orders   OrderRepository
	notifier Notifier
	facts    FactPublisher
	clock    clock.Clock
	cfg      Config
	log      *zap.Logger
}

func NewOrchestrator(
	locks locker.Coordinator,
	tx TxRunner,
	stockLedger *stock.Ledger,
	couponLedger *coupon.Ledger,
	orderRepo OrderRepository,
	notifier Notifier,
	facts FactPublisher,
	clk clock.Clock,
	cfg Config,
	log *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		locks:    locks,
		tx:       tx,
		stock:    stockLedger,
		coupons:  couponLedger,
		orders:   orderRepo,
		notifier: notifier,
		facts:    facts,
		clock:    clk,
		cfg:      cfg,
		log:      log,
	}
}

type ItemRequest struct {
	ItemID   string
	Quantity int
}

type CreateOrderInput struct {
	UserID   string
	Items    []ItemRequest
	CouponID *string
}

// CreateOrder runs the creation saga: locks in ascending key order, stock
// reservations, optional coupon issuance, order persistence — one local
// transaction — then post-commit facts and external notification. A
// notification failure compensates the already-committed order.
func (o *Orchestrator) CreateOrder(ctx context.Context, in CreateOrderInput) (orders.Order, error) {
	if in.UserID == "" || len(in.Items) == 0 {
		return orders.Order{}, ErrNoItems
	}

	keys := make([]string, 0, len(in.Items)+1)
	for _, it := range in.Items {
		keys = append(keys, redisx.ItemLockKey(it.ItemID))
	}
	if in.CouponID != nil {
		keys = append(keys, redisx.CouponLockKey(*in.CouponID))
	}

	var ord orders.Order
	err := locker.WithKeys(ctx, o.locks, keys, o.cfg.LockWait, o.cfg.LockLease, func(ctx context.Context) error {
		return o.tx.WithTx(ctx, func(ctx context.Context) error {
			now := o.clock.Now()
			orderID := uuid.NewString()

			total := decimal.Zero
			reserved := make([]stock.Reservation, 0, len(in.Items))
			orderItems := make([]orders.OrderItem, 0, len(in.Items))

			for _, req := range in.Items {
				item, err := o.stock.Item(ctx, req.ItemID)
				if err != nil {
					o.releaseAll(ctx, reserved, "order creation failed")
					return err
				}
				res, err := o.stock.Reserve(ctx, req.ItemID, orderID, req.Quantity)
				if err != nil {
					// partial orders are never persisted
					o.releaseAll(ctx, reserved, "order creation failed")
					return err
				}
				reserved = append(reserved, res)
				total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity))))
				orderItems = append(orderItems, orders.OrderItem{
					ID:        uuid.NewString(),
					OrderID:   orderID,
					ItemID:    req.ItemID,
					Quantity:  req.Quantity,
					UnitPrice: item.UnitPrice,
					Status:    orders.ItemReserved,
				})
			}

			discount := decimal.Zero
			var userCouponID *string
			if in.CouponID != nil {
				cpn, err := o.coupons.Coupon(ctx, *in.CouponID)
				if err != nil {
					o.releaseAll(ctx, reserved, "order creation failed")
					return err
				}
				discount, err = cpn.Discount(total)
				if err != nil {
					o.releaseAll(ctx, reserved, "order creation failed")
					return err
				}
				uc, err := o.coupons.Issue(ctx, *in.CouponID, in.UserID)
				if err != nil {
					o.releaseAll(ctx, reserved, "order creation failed")
					return err
				}
				userCouponID = &uc.ID
			}

			final := total.Sub(discount)
			if final.IsNegative() {
				final = decimal.Zero
			}

			ord = orders.Order{
				ID:             orderID,
				OrderNumber:    orders.OrderNumber(now, in.UserID),
				UserID:         in.UserID,
				CouponID:       in.CouponID,
				UserCouponID:   userCouponID,
				TotalAmount:    total,
				DiscountAmount: discount,
				FinalAmount:    final,
				Status:         orders.StatusPending,
				CreatedAt:      now,
				ExpiresAt:      now.Add(o.cfg.HoldWindow),
			}
			if err := o.orders.Insert(ctx, ord); err != nil {
				o.releaseAll(ctx, reserved, "order creation failed")
				return err
			}
			if err := o.orders.InsertItems(ctx, orderItems); err != nil {
				o.releaseAll(ctx, reserved, "order creation failed")
				return err
			}

			created := ord
			postgres.OnCommit(ctx, func() {
				o.facts.OrderCreated(created, orderItems)
				if userCouponID != nil {
					o.facts.CouponIssued(in.UserID, *in.CouponID, *userCouponID)
				}
			})
			return nil
		})
	})
	if err != nil {
		return orders.Order{}, err
	}

	o.log.Info("order created",
		zap.String("order_id", ord.ID),
		zap.String("order_number", ord.OrderNumber),
		zap.String("user_id", ord.UserID))

	// the order is committed; an external failure here triggers
	// compensation, never a rollback
	if err := o.notifier.Notify(ctx, ord); err != nil {
		if cerr := o.Compensate(ctx, ord.ID, orders.StatusCancelled, "external integration failed"); cerr != nil {
			// picked up by the reaper on its next sweep
			o.log.Error("compensation failed after integration failure",
				zap.String("order_id", ord.ID),
				zap.Error(cerr))
		}
		return orders.Order{}, err
	}
	return ord, nil
}

// PayOrder finalizes a pending order: reservations confirm, the coupon is
// redeemed, the order turns PAID. No new item locks: the reservations
// already hold the stock.
func (o *Orchestrator) PayOrder(ctx context.Context, orderID, paymentMethod string) (orders.Order, error) {
	var ord orders.Order
	err := o.tx.WithTx(ctx, func(ctx context.Context) error {
		cur, err := o.orders.Get(ctx, orderID)
		if err != nil {
			return err
		}

		moved, err := o.orders.Transition(ctx, orderID, []orders.Status{orders.StatusPending}, orders.StatusPaid)
		if err != nil {
			return err
		}
		if !moved {
			if cur.Status == orders.StatusPaid {
				return fmt.Errorf("order %s: %w", orderID, orders.ErrAlreadyPaid)
			}
			return fmt.Errorf("order %s is %s: %w", orderID, cur.Status, orders.ErrTerminalState)
		}

		reservations, err := o.stock.ReservationsByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		for _, res := range reservations {
			if err := o.stock.Confirm(ctx, res.ID); err != nil {
				return err
			}
		}
		if cur.UserCouponID != nil {
			if err := o.coupons.Redeem(ctx, *cur.UserCouponID, orderID); err != nil {
				return err
			}
		}
		if err := o.orders.SetItemStatusByOrder(ctx, orderID, orders.ItemConfirmed); err != nil {
			return err
		}

		ord = cur
		ord.Status = orders.StatusPaid
		paid := ord
		postgres.OnCommit(ctx, func() {
			o.facts.OrderPaid(paid, paymentMethod)
			if paid.UserCouponID != nil && paid.CouponID != nil {
				o.facts.CouponUsed(paid.UserID, *paid.CouponID, *paid.UserCouponID, paid.ID)
			}
		})
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}

	o.log.Info("order paid", zap.String("order_id", ord.ID))
	return ord, nil
}

// IssueCoupon grants a coupon outside an order, under the coupon's lock so
// the quota check and the counter bump stay serialized.
func (o *Orchestrator) IssueCoupon(ctx context.Context, couponID, userID string) (coupon.UserCoupon, error) {
	var uc coupon.UserCoupon
	err := locker.WithKeys(ctx, o.locks, []string{redisx.CouponLockKey(couponID)}, o.cfg.LockWait, o.cfg.LockLease, func(ctx context.Context) error {
		return o.tx.WithTx(ctx, func(ctx context.Context) error {
			issued, err := o.coupons.Issue(ctx, couponID, userID)
			if err != nil {
				return err
			}
			uc = issued
			postgres.OnCommit(ctx, func() {
				o.facts.CouponIssued(userID, couponID, issued.ID)
			})
			return nil
		})
	})
	if err != nil {
		return coupon.UserCoupon{}, err
	}
	return uc, nil
}

func (o *Orchestrator) CancelOrder(ctx context.Context, orderID, reason string) error {
	return o.Compensate(ctx, orderID, orders.StatusCancelled, reason)
}

// Compensate undoes a pending order: reservations released (or expired, on
// the reaper's path), coupon usage revoked, order moved to the terminal
// status. Idempotent: an already-terminal order is a no-op.
func (o *Orchestrator) Compensate(ctx context.Context, orderID string, to orders.Status, reason string) error {
	ord, err := o.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if ord.Status.Terminal() {
		return nil
	}

	reservations, err := o.stock.ReservationsByOrder(ctx, orderID)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(reservations)+1)
	for _, res := range reservations {
		keys = append(keys, redisx.ItemLockKey(res.ItemID))
	}
	if ord.CouponID != nil {
		keys = append(keys, redisx.CouponLockKey(*ord.CouponID))
	}

	return locker.WithKeys(ctx, o.locks, keys, o.cfg.LockWait, o.cfg.LockLease, func(ctx context.Context) error {
		return o.tx.WithTx(ctx, func(ctx context.Context) error {
			moved, err := o.orders.Transition(ctx, orderID, []orders.Status{orders.StatusPending}, to)
			if err != nil {
				return err
			}
			if !moved {
				// payment or a previous compensation won the race
				cur, err := o.orders.Get(ctx, orderID)
				if err != nil {
					return err
				}
				if cur.Status.Terminal() {
					return nil
				}
				return fmt.Errorf("order %s: unexpected status %s during compensation", orderID, cur.Status)
			}

			now := o.clock.Now()
			for _, res := range reservations {
				if to == orders.StatusExpired && res.Status == stock.ReservationPending && now.After(res.ExpiresAt) {
					err = o.stock.Expire(ctx, res.ID)
				} else {
					err = o.stock.Release(ctx, res.ID, reason)
				}
				if err != nil {
					return err
				}
			}
			if ord.UserCouponID != nil {
				if err := o.coupons.Revoke(ctx, *ord.UserCouponID); err != nil {
					return err
				}
			}
			if err := o.orders.SetItemStatusByOrder(ctx, orderID, orders.ItemCancelled); err != nil {
				return err
			}

			compensated := ord
			compensated.Status = to
			postgres.OnCommit(ctx, func() {
				o.facts.OrderCompensated(compensated, reason)
			})

			o.log.Info("order compensated",
				zap.String("order_id", orderID),
				zap.String("status", string(to)),
				zap.String("reason", reason))
			return nil
		})
	})
}

func (o *Orchestrator) releaseAll(ctx context.Context, reserved []stock.Reservation, reason string) {
	for _, res := range reserved {
		if err := o.stock.Release(ctx, res.ID, reason); err != nil {
			o.log.Error("release during unwind failed",
				zap.String("reservation_id", res.ID),
				zap.Error(err))
		}
	}
}
