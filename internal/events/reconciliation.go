// Package events publishes reconciliation events: records of a payment flow
// that completed at the gateway but could not be fully committed locally.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	KindRenewalNotApplied     = "renewal_not_applied"
	KindSubscriberNotRecorded = "subscriber_not_recorded"
)

type Reconciliation struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Reason     string    `json:"reason"`
	MerchantID string    `json:"merchantId,omitempty"`
	UserID     string    `json:"userId,omitempty"`
	ChitPlanID string    `json:"chitPlanId,omitempty"`
	OrderID    string    `json:"orderId,omitempty"`
	PaymentID  string    `json:"paymentId"`
	Plan       string    `json:"plan,omitempty"`
	Amount     float64   `json:"amount,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

type Publisher interface {
	PublishReconciliation(ctx context.Context, ev Reconciliation) error
}

func stamp(ev *Reconciliation) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
}

type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		ErrorLogger:  kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Error(fmt.Sprintf(msg, args...)) }),
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

// PublishReconciliation writes synchronously, keyed by gateway payment id so
// events for one payment stay ordered.
func (p *KafkaPublisher) PublishReconciliation(ctx context.Context, ev Reconciliation) error {
	stamp(&ev)
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal reconciliation event: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.writer.WriteTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(writeCtx, kafka.Message{Key: []byte(ev.PaymentID), Value: value}); err != nil {
		p.logger.Error("failed to publish reconciliation event",
			zap.String("kind", ev.Kind),
			zap.String("paymentId", ev.PaymentID),
			zap.Error(err),
		)
		return fmt.Errorf("publish reconciliation event: %w", err)
	}
	p.logger.Warn("reconciliation event published", zap.String("id", ev.ID), zap.String("kind", ev.Kind))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher is used when no broker is configured; operators pick the
// events up from the log stream.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishReconciliation(_ context.Context, ev Reconciliation) error {
	stamp(&ev)
	p.logger.Error("reconciliation required",
		zap.String("id", ev.ID),
		zap.String("kind", ev.Kind),
		zap.String("reason", ev.Reason),
		zap.String("merchantId", ev.MerchantID),
		zap.String("userId", ev.UserID),
		zap.String("chitPlanId", ev.ChitPlanID),
		zap.String("orderId", ev.OrderID),
		zap.String("paymentId", ev.PaymentID),
		zap.Float64("amount", ev.Amount),
		zap.Time("occurredAt", ev.OccurredAt),
	)
	return nil
}
