package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-order-core.git/internal/postgres"
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) q(ctx context.Context) postgres.Querier {
	return postgres.From(ctx, r.DB)
}

func (r *Repo) GetCoupon(ctx context.Context, couponID string) (Coupon, error) {
	var c Coupon
	err := r.q(ctx).QueryRow(ctx, `
		SELECT id, name, discount_type, discount_value, min_order_amount,
		       max_issue_count, issued_count, valid_from, valid_to
		FROM coupons WHERE id=$1`, couponID).
		Scan(&c.ID, &c.Name, &c.DiscountType, &c.DiscountValue, &c.MinOrderAmount,
			&c.MaxIssueCount, &c.IssuedCount, &c.ValidFrom, &c.ValidTo)
	if errors.Is(err, pgx.ErrNoRows) {
		return Coupon{}, ErrCouponNotFound
	}
	if err != nil {
		return Coupon{}, fmt.Errorf("get coupon: %w", err)
	}
	return c, nil
}

func (r *Repo) IncrementIssued(ctx context.Context, couponID string) (bool, error) {
	ct, err := r.q(ctx).Exec(ctx, `
		UPDATE coupons SET issued_count = issued_count + 1
		WHERE id=$1 AND issued_count < max_issue_count`, couponID)
	if err != nil {
		return false, fmt.Errorf("increment issued: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) DecrementIssued(ctx context.Context, couponID string) error {
	_, err := r.q(ctx).Exec(ctx, `
		UPDATE coupons SET issued_count = issued_count - 1
		WHERE id=$1 AND issued_count > 0`, couponID)
	if err != nil {
		return fmt.Errorf("decrement issued: %w", err)
	}
	return nil
}

func (r *Repo) FindUserCoupon(ctx context.Context, userID, couponID string) (*UserCoupon, error) {
	var uc UserCoupon
	err := r.q(ctx).QueryRow(ctx, `
		SELECT id, user_id, coupon_id, status, issued_at, used_at, order_id
		FROM user_coupons WHERE user_id=$1 AND coupon_id=$2`, userID, couponID).
		Scan(&uc.ID, &uc.UserID, &uc.CouponID, &uc.Status, &uc.IssuedAt, &uc.UsedAt, &uc.OrderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user coupon: %w", err)
	}
	return &uc, nil
}

func (r *Repo) GetUserCoupon(ctx context.Context, id string) (UserCoupon, error) {
	var uc UserCoupon
	err := r.q(ctx).QueryRow(ctx, `
		SELECT id, user_id, coupon_id, status, issued_at, used_at, order_id
		FROM user_coupons WHERE id=$1`, id).
		Scan(&uc.ID, &uc.UserID, &uc.CouponID, &uc.Status, &uc.IssuedAt, &uc.UsedAt, &uc.OrderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserCoupon{}, ErrUserCouponNotFound
	}
	if err != nil {
		return UserCoupon{}, fmt.Errorf("get user coupon: %w", err)
	}
	return uc, nil
}

func (r *Repo) InsertUserCoupon(ctx context.Context, uc UserCoupon) error {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO user_coupons(id, user_id, coupon_id, status, issued_at)
		VALUES ($1,$2,$3,$4,$5)`,
		uc.ID, uc.UserID, uc.CouponID, uc.Status, uc.IssuedAt)
	if postgres.IsUniqueViolation(err) {
		// backstop: the coupon lock should already serialize issuance
		return ErrAlreadyIssued
	}
	if err != nil {
		return fmt.Errorf("insert user coupon: %w", err)
	}
	return nil
}

func (r *Repo) MarkUsed(ctx context.Context, id, orderID string, usedAt time.Time) (bool, error) {
	ct, err := r.q(ctx).Exec(ctx, `
		UPDATE user_coupons SET status='USED', used_at=$2, order_id=$3
		WHERE id=$1 AND status='ACTIVE'`, id, usedAt, orderID)
	if err != nil {
		return false, fmt.Errorf("mark used: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) MarkActive(ctx context.Context, id string) (bool, error) {
	ct, err := r.q(ctx).Exec(ctx, `
		UPDATE user_coupons SET status='ACTIVE', used_at=NULL, order_id=NULL
		WHERE id=$1 AND status='USED'`, id)
	if err != nil {
		return false, fmt.Errorf("mark active: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}
