package stock

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

func (r *Repo) GetItem(ctx context.Context, itemID string) (Item, error) {
	var it Item
	err := r.q(ctx).QueryRow(ctx, `
		SELECT id, sku, name, physical_quantity, unit_price, created_at, updated_at
		FROM items WHERE id=$1`, itemID).
		Scan(&it.ID, &it.SKU, &it.Name, &it.PhysicalQuantity, &it.UnitPrice, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrItemNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

func (r *Repo) ReservedQuantity(ctx context.Context, itemID string) (int, error) {
	var total int
	err := r.q(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(reserved_quantity), 0)
		FROM stock_reservations
		WHERE item_id=$1 AND status IN ('PENDING','CONFIRMED')`, itemID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum reserved: %w", err)
	}
	return total, nil
}

func (r *Repo) CreateReservation(ctx context.Context, res Reservation) error {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO stock_reservations(id, item_id, order_id, reserved_quantity, status, reserved_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		res.ID, res.ItemID, res.OrderID, res.Quantity, res.Status, res.ReservedAt, res.ExpiresAt)
	if postgres.IsUniqueViolation(err) {
		return ErrDuplicateReservation
	}
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (r *Repo) GetReservation(ctx context.Context, id string) (Reservation, error) {
	var res Reservation
	err := r.q(ctx).QueryRow(ctx, `
		SELECT id, item_id, order_id, reserved_quantity, status, reserved_at, expires_at
		FROM stock_reservations WHERE id=$1`, id).
		Scan(&res.ID, &res.ItemID, &res.OrderID, &res.Quantity, &res.Status, &res.ReservedAt, &res.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, ErrReservationNotFound
	}
	if err != nil {
		return Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

func (r *Repo) TransitionReservation(ctx context.Context, id string, from []ReservationStatus, to ReservationStatus) (bool, error) {
	ct, err := r.q(ctx).Exec(ctx, `
		UPDATE stock_reservations SET status=$2
		WHERE id=$1 AND status = ANY($3)`, id, to, statusStrings(from))
	if err != nil {
		return false, fmt.Errorf("transition reservation: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) ReservationsByOrder(ctx context.Context, orderID string) ([]Reservation, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, item_id, order_id, reserved_quantity, status, reserved_at, expires_at
		FROM stock_reservations WHERE order_id=$1 ORDER BY item_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("reservations by order: %w", err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (r *Repo) ExpiredPending(ctx context.Context, now time.Time, limit int) ([]Reservation, error) {
	rows, err := r.q(ctx).Query(ctx, `
		SELECT id, item_id, order_id, reserved_quantity, status, reserved_at, expires_at
		FROM stock_reservations
		WHERE status='PENDING' AND expires_at < $1
		ORDER BY expires_at LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("expired pending: %w", err)
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (r *Repo) AdjustPhysical(ctx context.Context, itemID string, delta int) (int, error) {
	var resulting int
	err := r.q(ctx).QueryRow(ctx, `
		UPDATE items SET physical_quantity = physical_quantity + $2, updated_at = now()
		WHERE id=$1 AND physical_quantity + $2 >= 0
		RETURNING physical_quantity`, itemID, delta).Scan(&resulting)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientStock
	}
	if err != nil {
		return 0, fmt.Errorf("adjust physical: %w", err)
	}
	return resulting, nil
}

func (r *Repo) RecordMovement(ctx context.Context, m Movement) error {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO stock_movements(id, item_id, delta, resulting_quantity, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		m.ID, m.ItemID, m.Delta, m.ResultingQuantity, m.Reason, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

func scanReservations(rows pgx.Rows) ([]Reservation, error) {
	var out []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.ID, &res.ItemID, &res.OrderID, &res.Quantity, &res.Status, &res.ReservedAt, &res.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func statusStrings(in []ReservationStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
