package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-core.git/internal/clock"
)

type Repository interface {
	GetCoupon(ctx context.Context, couponID string) (Coupon, error)
	// IncrementIssued bumps issued_count only while it is below the cap and
	// reports whether a row changed.
	IncrementIssued(ctx context.Context, couponID string) (bool, error)
	DecrementIssued(ctx context.Context, couponID string) error
	FindUserCoupon(ctx context.Context, userID, couponID string) (*UserCoupon, error)
	GetUserCoupon(ctx context.Context, id string) (UserCoupon, error)
	// InsertUserCoupon maps the (user_id, coupon_id) unique violation to
	// ErrAlreadyIssued.
	InsertUserCoupon(ctx context.Context, uc UserCoupon) error
	// MarkUsed flips ACTIVE to USED, stamping used_at and order_id; reports
	// whether a row changed.
	MarkUsed(ctx context.Context, id, orderID string, usedAt time.Time) (bool, error)
	// MarkActive flips USED back to ACTIVE, clearing used_at and order_id.
	MarkActive(ctx context.Context, id string) (bool, error)
}

// Config holds issuance policy.
type Config struct {
	// RestoreQuotaOnRevoke gives the issuance slot back when a redeemed
	// coupon's usage is revoked by compensation. Off by default: only the
	// usage is undone, the slot stays consumed.
	RestoreQuotaOnRevoke bool
}

// Ledger owns coupon quota and per-user uniqueness. Issue assumes the
// caller holds the coupon's lock.
type Ledger struct {
	repo  Repository
	clock clock.Clock
	cfg   Config
	log   *zap.Logger
}

func NewLedger(repo Repository, clk clock.Clock, cfg Config, log *zap.Logger) *Ledger {
	return &Ledger{repo: repo, clock: clk, cfg: cfg, log: log}
}

func (l *Ledger) Coupon(ctx context.Context, couponID string) (Coupon, error) {
	return l.repo.GetCoupon(ctx, couponID)
}

// Issue grants the coupon to the user: validity window, one-per-user, quota,
// then counter bump plus ACTIVE row in one atomic step.
func (l *Ledger) Issue(ctx context.Context, couponID, userID string) (UserCoupon, error) {
	c, err := l.repo.GetCoupon(ctx, couponID)
	if err != nil {
		return UserCoupon{}, err
	}

	now := l.clock.Now()
	if !c.ValidAt(now) {
		return UserCoupon{}, fmt.Errorf("coupon %s: %w", couponID, ErrNotInValidityWindow)
	}

	existing, err := l.repo.FindUserCoupon(ctx, userID, couponID)
	if err != nil {
		return UserCoupon{}, err
	}
	if existing != nil {
		return UserCoupon{}, fmt.Errorf("coupon %s user %s: %w", couponID, userID, ErrAlreadyIssued)
	}

	bumped, err := l.repo.IncrementIssued(ctx, couponID)
	if err != nil {
		return UserCoupon{}, err
	}
	if !bumped {
		return UserCoupon{}, fmt.Errorf("coupon %s: %w", couponID, ErrQuotaExceeded)
	}

	uc := UserCoupon{
		ID:       uuid.NewString(),
		UserID:   userID,
		CouponID: couponID,
		Status:   UserCouponActive,
		IssuedAt: now,
	}
	if err := l.repo.InsertUserCoupon(ctx, uc); err != nil {
		return UserCoupon{}, err
	}

	l.log.Info("coupon issued",
		zap.String("coupon_id", couponID),
		zap.String("user_id", userID))
	return uc, nil
}

// Redeem consumes the coupon for an order: ACTIVE -> USED.
func (l *Ledger) Redeem(ctx context.Context, userCouponID, orderID string) error {
	changed, err := l.repo.MarkUsed(ctx, userCouponID, orderID, l.clock.Now())
	if err != nil {
		return err
	}
	if !changed {
		if _, err := l.repo.GetUserCoupon(ctx, userCouponID); err != nil {
			return err
		}
		return fmt.Errorf("user coupon %s: %w", userCouponID, ErrAlreadyUsed)
	}
	return nil
}

// Revoke undoes a redemption during compensation: USED -> ACTIVE. The quota
// slot stays consumed unless RestoreQuotaOnRevoke is set. A no-op when the
// coupon was never redeemed, so compensation can re-run.
func (l *Ledger) Revoke(ctx context.Context, userCouponID string) error {
	uc, err := l.repo.GetUserCoupon(ctx, userCouponID)
	if err != nil {
		return err
	}
	if uc.Status != UserCouponUsed {
		return nil
	}

	changed, err := l.repo.MarkActive(ctx, userCouponID)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if l.cfg.RestoreQuotaOnRevoke {
		if err := l.repo.DecrementIssued(ctx, uc.CouponID); err != nil {
			return err
		}
	}

	l.log.Info("coupon usage revoked", zap.String("user_coupon_id", userCouponID))
	return nil
}

func (l *Ledger) UserCoupon(ctx context.Context, id string) (UserCoupon, error) {
	return l.repo.GetUserCoupon(ctx, id)
}
