package reaper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-core.git/internal/clock"
	"github.com/ariefcatur/go-order-core.git/internal/orders"
	"github.com/ariefcatur/go-order-core.git/internal/stock"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeOrderStore struct {
	mu     sync.Mutex
	orders map[string]orders.Order
}

func (s *fakeOrderStore) Get(_ context.Context, orderID string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, nil
}

func (s *fakeOrderStore) ExpiredPending(_ context.Context, now time.Time, limit int) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Order
	for _, o := range s.orders {
		if o.Status == orders.StatusPending && o.ExpiresAt.Before(now) {
			out = append(out, o)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type fakeStockLedger struct {
	mu      sync.Mutex
	lapsed  []stock.Reservation
	expired []string
	fail    map[string]error
}

func (l *fakeStockLedger) ExpiredPending(_ context.Context, limit int) ([]stock.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.lapsed) > limit {
		return append([]stock.Reservation(nil), l.lapsed[:limit]...), nil
	}
	return append([]stock.Reservation(nil), l.lapsed...), nil
}

func (l *fakeStockLedger) Expire(_ context.Context, reservationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fail[reservationID]; err != nil {
		return err
	}
	l.expired = append(l.expired, reservationID)
	return nil
}

type fakeCompensator struct {
	mu     sync.Mutex
	calls  []string
	fail   map[string]error
	orders *fakeOrderStore
}

func (c *fakeCompensator) Compensate(_ context.Context, orderID string, to orders.Status, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail[orderID]; err != nil {
		return err
	}
	c.calls = append(c.calls, orderID)
	c.orders.mu.Lock()
	defer c.orders.mu.Unlock()
	if o, ok := c.orders.orders[orderID]; ok && o.Status == orders.StatusPending {
		o.Status = to
		c.orders.orders[orderID] = o
	}
	return nil
}

func pendingOrder(id string, expiresAt time.Time) orders.Order {
	return orders.Order{ID: id, UserID: "user-1", Status: orders.StatusPending, ExpiresAt: expiresAt}
}

func newReaper(store *fakeOrderStore, ledger *fakeStockLedger, comp *fakeCompensator) *Reaper {
	return New(store, ledger, comp, clock.NewFixed(testNow), 30*time.Second, 100, zap.NewNop())
}

func TestSweep_ExpiresLapsedOrders(t *testing.T) {
	store := &fakeOrderStore{orders: map[string]orders.Order{
		"order-1": pendingOrder("order-1", testNow.Add(-time.Minute)),
		"order-2": pendingOrder("order-2", testNow.Add(time.Minute)),
	}}
	ledger := &fakeStockLedger{}
	comp := &fakeCompensator{orders: store}

	if err := newReaper(store, ledger, comp).Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(comp.calls) != 1 || comp.calls[0] != "order-1" {
		t.Fatalf("compensated = %v, want [order-1]", comp.calls)
	}
	if got := store.orders["order-1"].Status; got != orders.StatusExpired {
		t.Fatalf("order-1 status = %s, want EXPIRED", got)
	}
	if got := store.orders["order-2"].Status; got != orders.StatusPending {
		t.Fatalf("order-2 status = %s, want PENDING untouched", got)
	}
}

func TestSweep_OneFailureDoesNotStopBatch(t *testing.T) {
	store := &fakeOrderStore{orders: map[string]orders.Order{
		"order-1": pendingOrder("order-1", testNow.Add(-time.Minute)),
		"order-2": pendingOrder("order-2", testNow.Add(-time.Minute)),
	}}
	ledger := &fakeStockLedger{}
	comp := &fakeCompensator{
		orders: store,
		fail:   map[string]error{"order-1": errors.New("lock timeout")},
	}

	if err := newReaper(store, ledger, comp).Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(comp.calls) != 1 || comp.calls[0] != "order-2" {
		t.Fatalf("compensated = %v, want [order-2]", comp.calls)
	}
}

func TestSweep_ExpiresOrphanedReservations(t *testing.T) {
	store := &fakeOrderStore{orders: map[string]orders.Order{
		"order-done": {ID: "order-done", Status: orders.StatusCancelled},
	}}
	ledger := &fakeStockLedger{lapsed: []stock.Reservation{
		{ID: "res-gone", OrderID: "order-missing", Status: stock.ReservationPending, ExpiresAt: testNow.Add(-time.Minute)},
		{ID: "res-done", OrderID: "order-done", Status: stock.ReservationPending, ExpiresAt: testNow.Add(-time.Minute)},
	}}
	comp := &fakeCompensator{orders: store}

	if err := newReaper(store, ledger, comp).Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(ledger.expired) != 2 {
		t.Fatalf("expired = %v, want both orphans", ledger.expired)
	}
}

func TestSweep_SkipsReservationsOfLiveOrders(t *testing.T) {
	store := &fakeOrderStore{orders: map[string]orders.Order{
		"order-live": pendingOrder("order-live", testNow.Add(time.Minute)),
	}}
	ledger := &fakeStockLedger{lapsed: []stock.Reservation{
		{ID: "res-live", OrderID: "order-live", Status: stock.ReservationPending, ExpiresAt: testNow.Add(-time.Second)},
	}}
	comp := &fakeCompensator{orders: store}

	if err := newReaper(store, ledger, comp).Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(ledger.expired) != 0 {
		t.Fatalf("expired = %v, want none", ledger.expired)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	store := &fakeOrderStore{orders: map[string]orders.Order{}}
	r := New(store, &fakeStockLedger{}, &fakeCompensator{orders: store},
		clock.NewFixed(testNow), time.Millisecond, 10, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop on cancel")
	}
}
