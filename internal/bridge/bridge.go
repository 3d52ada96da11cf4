package bridge

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-core.git/internal/orders"
)

// Bridge turns committed domain facts into broker messages. It is invoked
// only from post-commit hooks, so every fact describes durable state.
// Delivery is at-least-once, best-effort.
type Bridge struct {
	p       *Producer
	service string
	log     *zap.Logger
}

func New(p *Producer, service string, log *zap.Logger) *Bridge {
	return &Bridge{p: p, service: service, log: log}
}

func (b *Bridge) OrderCreated(o orders.Order, items []orders.OrderItem) {
	facts := make([]orders.OrderItemFact, 0, len(items))
	for _, it := range items {
		facts = append(facts, orders.OrderItemFact{
			ItemID:    it.ItemID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.String(),
		})
	}
	b.emit(orders.TopicOrderCreated, orders.EventOrderCreated, o.UserID, o.ID, orders.OrderCreatedPayload{
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		UserID:         o.UserID,
		Items:          facts,
		TotalAmount:    o.TotalAmount.String(),
		DiscountAmount: o.DiscountAmount.String(),
		FinalAmount:    o.FinalAmount.String(),
	})
}

func (b *Bridge) OrderPaid(o orders.Order, paymentMethod string) {
	b.emit(orders.TopicOrderPaid, orders.EventOrderPaid, o.UserID, o.ID, orders.OrderPaidPayload{
		OrderID:       o.ID,
		UserID:        o.UserID,
		FinalAmount:   o.FinalAmount.String(),
		PaymentMethod: paymentMethod,
	})
}

func (b *Bridge) OrderCompensated(o orders.Order, reason string) {
	b.emit(orders.TopicOrderCompensated, orders.EventOrderCompensated, o.UserID, o.ID, orders.OrderCompensatedPayload{
		OrderID:     o.ID,
		UserID:      o.UserID,
		FinalStatus: string(o.Status),
		Reason:      reason,
	})
}

func (b *Bridge) CouponIssued(userID, couponID, userCouponID string) {
	b.emit(orders.TopicCouponIssued, orders.EventCouponIssued, userID, "", orders.CouponIssuedPayload{
		UserCouponID: userCouponID,
		CouponID:     couponID,
		UserID:       userID,
	})
}

func (b *Bridge) CouponUsed(userID, couponID, userCouponID, orderID string) {
	b.emit(orders.TopicCouponUsed, orders.EventCouponUsed, userID, orderID, orders.CouponUsedPayload{
		UserCouponID: userCouponID,
		CouponID:     couponID,
		UserID:       userID,
		OrderID:      orderID,
	})
}

func (b *Bridge) emit(topic, eventType, userID, correlationID string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.log.Error("fact marshal failed", zap.String("event", eventType), zap.Error(err))
		return
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      b.service,
		CorrelationID: correlationID,
		Payload:       raw,
	}
	value, err := json.Marshal(env)
	if err != nil {
		b.log.Error("envelope marshal failed", zap.String("event", eventType), zap.Error(err))
		return
	}
	b.p.Publish(topic, orders.PartitionKey(userID), value,
		kafka.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafka.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
