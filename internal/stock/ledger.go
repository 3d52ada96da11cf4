package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-core.git/internal/clock"
)

type Repository interface {
	GetItem(ctx context.Context, itemID string) (Item, error)
	// ReservedQuantity sums reserved_quantity over PENDING and CONFIRMED
	// reservations for the item.
	ReservedQuantity(ctx context.Context, itemID string) (int, error)
	CreateReservation(ctx context.Context, r Reservation) error
	GetReservation(ctx context.Context, id string) (Reservation, error)
	// TransitionReservation moves id from one of the given statuses to the
	// target and reports whether a row actually changed.
	TransitionReservation(ctx context.Context, id string, from []ReservationStatus, to ReservationStatus) (bool, error)
	ReservationsByOrder(ctx context.Context, orderID string) ([]Reservation, error)
	ExpiredPending(ctx context.Context, now time.Time, limit int) ([]Reservation, error)
	AdjustPhysical(ctx context.Context, itemID string, delta int) (int, error)
	RecordMovement(ctx context.Context, m Movement) error
}

// Ledger owns stock reservations and the derived available quantity.
// Reserve/Confirm/Release/Expire assume the caller holds the item's lock;
// the ledger only guarantees transactional integrity, not serialization.
type Ledger struct {
	repo    Repository
	clock   clock.Clock
	holdTTL time.Duration
	log     *zap.Logger
}

const defaultHoldTTL = 15 * time.Minute

func NewLedger(repo Repository, clk clock.Clock, holdTTL time.Duration, log *zap.Logger) *Ledger {
	if holdTTL <= 0 {
		holdTTL = defaultHoldTTL
	}
	return &Ledger{repo: repo, clock: clk, holdTTL: holdTTL, log: log}
}

func (l *Ledger) Item(ctx context.Context, itemID string) (Item, error) {
	return l.repo.GetItem(ctx, itemID)
}

// Available is physical stock minus all non-terminal reservations.
func (l *Ledger) Available(ctx context.Context, itemID string) (int, error) {
	item, err := l.repo.GetItem(ctx, itemID)
	if err != nil {
		return 0, err
	}
	reserved, err := l.repo.ReservedQuantity(ctx, itemID)
	if err != nil {
		return 0, err
	}
	available := item.PhysicalQuantity - reserved
	if available < 0 {
		return 0, fmt.Errorf("stock inconsistency for item %s: physical=%d reserved=%d", itemID, item.PhysicalQuantity, reserved)
	}
	return available, nil
}

// Reserve inserts a PENDING reservation when quantity fits the available
// stock; otherwise fails without side effects.
func (l *Ledger) Reserve(ctx context.Context, itemID, orderID string, quantity int) (Reservation, error) {
	if quantity <= 0 {
		return Reservation{}, ErrInvalidQuantity
	}

	available, err := l.Available(ctx, itemID)
	if err != nil {
		return Reservation{}, err
	}
	if quantity > available {
		return Reservation{}, fmt.Errorf("item %s: need %d, have %d: %w", itemID, quantity, available, ErrInsufficientStock)
	}

	now := l.clock.Now()
	res := Reservation{
		ID:         uuid.NewString(),
		ItemID:     itemID,
		OrderID:    orderID,
		Quantity:   quantity,
		Status:     ReservationPending,
		ReservedAt: now,
		ExpiresAt:  now.Add(l.holdTTL),
	}
	if err := l.repo.CreateReservation(ctx, res); err != nil {
		return Reservation{}, err
	}

	l.log.Info("stock reserved",
		zap.String("item_id", itemID),
		zap.String("order_id", orderID),
		zap.Int("quantity", quantity))
	return res, nil
}

// Confirm moves PENDING to CONFIRMED when payment finalizes the order.
// Availability does not change: the hold stays counted. Idempotent when
// already CONFIRMED.
func (l *Ledger) Confirm(ctx context.Context, reservationID string) error {
	changed, err := l.repo.TransitionReservation(ctx, reservationID,
		[]ReservationStatus{ReservationPending}, ReservationConfirmed)
	if err != nil {
		return err
	}
	if changed {
		return nil
	}

	res, err := l.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if res.Status == ReservationConfirmed {
		return nil
	}
	return fmt.Errorf("confirm reservation %s: status %s", reservationID, res.Status)
}

// Release restores availability immediately. Idempotent against already
// released or expired reservations so compensation can re-run safely.
func (l *Ledger) Release(ctx context.Context, reservationID, reason string) error {
	changed, err := l.repo.TransitionReservation(ctx, reservationID,
		[]ReservationStatus{ReservationPending, ReservationConfirmed}, ReservationReleased)
	if err != nil {
		return err
	}
	if !changed {
		// already RELEASED or EXPIRED: the hold no longer counts either way
		if _, err := l.repo.GetReservation(ctx, reservationID); err != nil {
			return err
		}
		return nil
	}

	l.log.Info("stock reservation released",
		zap.String("reservation_id", reservationID),
		zap.String("reason", reason))
	return nil
}

// Expire is the reaper's release: PENDING past its expiry becomes EXPIRED
// with the same availability effect.
func (l *Ledger) Expire(ctx context.Context, reservationID string) error {
	res, err := l.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if res.Status != ReservationPending {
		return nil
	}
	if l.clock.Now().Before(res.ExpiresAt) {
		return fmt.Errorf("reservation %s not yet expired", reservationID)
	}

	changed, err := l.repo.TransitionReservation(ctx, reservationID,
		[]ReservationStatus{ReservationPending}, ReservationExpired)
	if err != nil {
		return err
	}
	if changed {
		l.log.Info("stock reservation expired", zap.String("reservation_id", reservationID))
	}
	return nil
}

func (l *Ledger) ReservationsByOrder(ctx context.Context, orderID string) ([]Reservation, error) {
	return l.repo.ReservationsByOrder(ctx, orderID)
}

func (l *Ledger) ExpiredPending(ctx context.Context, limit int) ([]Reservation, error) {
	return l.repo.ExpiredPending(ctx, l.clock.Now(), limit)
}

// Adjust changes physical stock (restock or fulfillment) and records the
// movement. A negative delta may not take availability below zero.
func (l *Ledger) Adjust(ctx context.Context, itemID string, delta int, reason string) error {
	if delta == 0 {
		return ErrInvalidQuantity
	}
	if delta < 0 {
		available, err := l.Available(ctx, itemID)
		if err != nil {
			return err
		}
		if available < -delta {
			return fmt.Errorf("item %s: remove %d, have %d: %w", itemID, -delta, available, ErrInsufficientStock)
		}
	}

	resulting, err := l.repo.AdjustPhysical(ctx, itemID, delta)
	if err != nil {
		return err
	}
	return l.repo.RecordMovement(ctx, Movement{
		ID:                uuid.NewString(),
		ItemID:            itemID,
		Delta:             delta,
		ResultingQuantity: resulting,
		Reason:            reason,
		CreatedAt:         l.clock.Now(),
	})
}
