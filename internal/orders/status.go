package orders

import "errors"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrTerminalState is returned on any transition attempt out of PAID,
	// CANCELLED or EXPIRED.
	ErrTerminalState = errors.New("order is in a terminal state")
	ErrAlreadyPaid   = errors.New("order already paid")
)

// PENDING is the only non-terminal state.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPaid: true, StatusCancelled: true, StatusExpired: true},
	StatusPaid:      {},
	StatusCancelled: {},
	StatusExpired:   {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	return s != StatusPending
}
