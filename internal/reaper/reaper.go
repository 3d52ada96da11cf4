package reaper

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-core.git/internal/clock"
	"github.com/ariefcatur/go-order-core.git/internal/orders"
	"github.com/ariefcatur/go-order-core.git/internal/stock"
)

// Compensator drives the expiry path of the order saga.
type Compensator interface {
	Compensate(ctx context.Context, orderID string, to orders.Status, reason string) error
}

type OrderStore interface {
	Get(ctx context.Context, orderID string) (orders.Order, error)
	ExpiredPending(ctx context.Context, now time.Time, limit int) ([]orders.Order, error)
}

type StockLedger interface {
	ExpiredPending(ctx context.Context, limit int) ([]stock.Reservation, error)
	Expire(ctx context.Context, reservationID string) error
}

// Reaper sweeps holds whose window elapsed: pending orders go through the
// compensation sequence into EXPIRED, and reservations left behind by an
// interrupted creation are expired directly. Every sweep is idempotent, so
// a crash mid-sweep just means the next tick finishes the job.
type Reaper struct {
	orders   OrderStore
	stock    StockLedger
	saga     Compensator
	clock    clock.Clock
	interval time.Duration
	batch    int
	log      *zap.Logger
}

func New(orderStore OrderStore, stockLedger StockLedger, saga Compensator, clk clock.Clock, interval time.Duration, batch int, log *zap.Logger) *Reaper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Reaper{
		orders:   orderStore,
		stock:    stockLedger,
		saga:     saga,
		clock:    clk,
		interval: interval,
		batch:    batch,
		log:      log,
	}
}

func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("reaper started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reaper stopped")
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.log.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep expires one batch of lapsed orders, then one batch of orphaned
// reservations. A single failing order does not stop the batch.
func (r *Reaper) Sweep(ctx context.Context) error {
	now := r.clock.Now()

	expired, err := r.orders.ExpiredPending(ctx, now, r.batch)
	if err != nil {
		return err
	}
	for _, o := range expired {
		if err := r.saga.Compensate(ctx, o.ID, orders.StatusExpired, "hold window elapsed"); err != nil {
			r.log.Error("order expiry failed",
				zap.String("order_id", o.ID),
				zap.Error(err))
			continue
		}
		r.log.Info("order expired", zap.String("order_id", o.ID))
	}

	return r.sweepOrphans(ctx)
}

// sweepOrphans catches reservations whose creating transaction never
// produced a live order: the order row is gone or already terminal, yet the
// hold still counts against availability.
func (r *Reaper) sweepOrphans(ctx context.Context) error {
	lapsed, err := r.stock.ExpiredPending(ctx, r.batch)
	if err != nil {
		return err
	}
	for _, res := range lapsed {
		o, err := r.orders.Get(ctx, res.OrderID)
		switch {
		case errors.Is(err, orders.ErrOrderNotFound):
			// no order to compensate, expire the hold directly
		case err != nil:
			r.log.Error("orphan check failed",
				zap.String("reservation_id", res.ID),
				zap.Error(err))
			continue
		case !o.Status.Terminal():
			// the order sweep owns this one
			continue
		}
		if err := r.stock.Expire(ctx, res.ID); err != nil {
			r.log.Error("reservation expiry failed",
				zap.String("reservation_id", res.ID),
				zap.Error(err))
			continue
		}
		r.log.Info("orphaned reservation expired",
			zap.String("reservation_id", res.ID),
			zap.String("order_id", res.OrderID))
	}
	return nil
}
