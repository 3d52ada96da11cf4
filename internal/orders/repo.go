package orders

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

func (r *Repo) Insert(ctx context.Context, o Order) error {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO orders(id, order_number, user_id, coupon_id, user_coupon_id,
		                   total_amount, discount_amount, final_amount, status, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		o.ID, o.OrderNumber, o.UserID, o.CouponID, o.UserCouponID,
		o.TotalAmount, o.DiscountAmount, o.FinalAmount, o.Status, o.CreatedAt, o.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *Repo) InsertItems(ctx context.Context, items []OrderItem) error {
	for _, it := range items {
		_, err := r.q(ctx).Exec(ctx, `
			INSERT INTO order_items(id, order_id, item_id, quantity, unit_price, item_status)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			it.ID, it.OrderID, it.ItemID, it.Quantity, it.UnitPrice, it.Status)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, orderID string) (Order, error) {
	var o Order
	err := r.q(ctx).QueryRow(ctx, `
		SELECT id, order_number, user_id, coupon_id, user_coupon_id,
		       total_amount, discount_amount, final_amount, status, created_at, expires_at
		FROM orders WHERE id=$1`, orderID).
		Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.CouponID, &o.UserCouponID,
			&o.TotalAmount, &o.DiscountAmount, &o.FinalAmount, &o.Status, &o.CreatedAt, &o.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// Transition moves the order out of one of the given statuses and reports
// whether a row actually changed; the guard keeps terminal states terminal
// under concurrent writers.
func (r *Repo) Transition(ctx context.Context, orderID string, from []Status, to Status) (bool, error) {
	ct, err := r.q(ctx).Exec(ctx, `
		UPDATE orders SET status=$2 WHERE id=$1 AND status = ANY($3)`,
		orderID, to, statusStrings(from))
	if err != nil {
		return false, fmt.Errorf("transition order: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) ItemsByOrder(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, order_id, item_id, quantity, unit_price, item_status
		FROM order_items WHERE order_id=$1 ORDER BY item_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("items by order: %w", err)
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ItemID, &it.Quantity, &it.UnitPrice, &it.Status); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) SetItemStatusByOrder(ctx context.Context, orderID string, status ItemStatus) error {
	_, err := r.q(ctx).Exec(ctx, `
		UPDATE order_items SET item_status=$2 WHERE order_id=$1`, orderID, status)
	if err != nil {
		return fmt.Errorf("set item status: %w", err)
	}
	return nil
}

func (r *Repo) ExpiredPending(ctx context.Context, now time.Time, limit int) ([]Order, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, order_number, user_id, coupon_id, user_coupon_id,
		       total_amount, discount_amount, final_amount, status, created_at, expires_at
		FROM orders
		WHERE status='PENDING' AND expires_at < $1
		ORDER BY expires_at LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("expired pending orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.CouponID, &o.UserCouponID,
			&o.TotalAmount, &o.DiscountAmount, &o.FinalAmount, &o.Status, &o.CreatedAt, &o.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func statusStrings(in []Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
