package stock

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

var (
	ErrItemNotFound         = errors.New("item not found")
	ErrReservationNotFound  = errors.New("stock reservation not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrDuplicateReservation = errors.New("reservation already exists for order and item")
)

type Item struct {
	ID               string
	SKU              string
	Name             string
	PhysicalQuantity int
	UnitPrice        decimal.Decimal
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Reservation holds quantity against an item for a bounded window. One row
// per (order, item).
type Reservation struct {
	ID         string
	ItemID     string
	OrderID    string
	Quantity   int
	Status     ReservationStatus
	ReservedAt time.Time
	ExpiresAt  time.Time
}

func (r Reservation) Active() bool {
	return r.Status == ReservationPending || r.Status == ReservationConfirmed
}

// Movement is an append-only record of a physical stock change.
type Movement struct {
	ID                string
	ItemID            string
	Delta             int
	ResultingQuantity int
	Reason            string
	CreatedAt         time.Time
}
