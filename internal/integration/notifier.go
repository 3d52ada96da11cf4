package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-core.git/internal/clock"
	"github.com/ariefcatur/go-order-core.git/internal/orders"
)

// ErrNotifyFailed marks an external-system failure after the order already
// committed; the caller compensates instead of rolling back.
var ErrNotifyFailed = errors.New("external notification failed")

// Client is the ERP/logistics collaborator.
type Client interface {
	Notify(ctx context.Context, target Type, o orders.Order) error
}

type LogRepository interface {
	Append(ctx context.Context, l Log) error
}

// Notifier pushes a committed order to the external systems and records
// every attempt. Called only after the order's transaction committed; the
// log writes land in their own transaction scope.
type Notifier struct {
	client Client
	logs   LogRepository
	clock  clock.Clock
	log    *zap.Logger
}

func NewNotifier(client Client, logs LogRepository, clk clock.Clock, log *zap.Logger) *Notifier {
	return &Notifier{client: client, logs: logs, clock: clk, log: log}
}

func (n *Notifier) Notify(ctx context.Context, o orders.Order) error {
	for _, target := range []Type{TypeERP, TypeLogistics} {
		if err := n.notifyOne(ctx, target, o); err != nil {
			return err
		}
	}
	return nil
}

func (n *Notifier) notifyOne(ctx context.Context, target Type, o orders.Order) error {
	rec := Log{
		ID:        uuid.NewString(),
		OrderID:   o.ID,
		Type:      target,
		CreatedAt: n.clock.Now(),
	}

	if err := n.client.Notify(ctx, target, o); err != nil {
		rec.Success = false
		rec.RetryCount = 1
		rec.Message = err.Error()
		if logErr := n.logs.Append(ctx, rec); logErr != nil {
			n.log.Error("integration log append failed", zap.Error(logErr))
		}
		n.log.Error("external notification failed",
			zap.String("order_id", o.ID),
			zap.String("target", string(target)),
			zap.Error(err))
		return fmt.Errorf("%s order %s: %w", target, o.ID, ErrNotifyFailed)
	}

	rec.Success = true
	rec.Message = fmt.Sprintf("%s accepted order %s", target, o.OrderNumber)
	if err := n.logs.Append(ctx, rec); err != nil {
		n.log.Error("integration log append failed", zap.Error(err))
	}
	return nil
}
