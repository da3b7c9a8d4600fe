package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event types emitted after a ledger transaction commits.
const (
	TypeChargeCreated   = "charge.created"
	TypeChargeVoided    = "charge.voided"
	TypeLateFeeApplied  = "late_fee.applied"
	TypePaymentRecorded = "payment.recorded"
	TypePaymentRefunded = "payment.refunded"
)

// LedgerEvent is the JSON value of every message. Messages are keyed by
// lease id so one lease's events stay ordered within a partition.
type LedgerEvent struct {
	Type       string      `json:"type"`
	LLCID      string      `json:"llc_id"`
	LeaseID    string      `json:"lease_id"`
	ActorID    string      `json:"actor_id,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// Writer is the subset of kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher emits ledger events.
type Publisher interface {
	Publish(ctx context.Context, event LedgerEvent) error
	Close() error
}

type KafkaPublisher struct {
	writer Writer
}

// WriteBatchTimeout bounds how long a single event waits in the writer before
// it is flushed. Publish runs on the request path after commit.
const WriteBatchTimeout = 10 * time.Millisecond

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: newKafkaWriter(brokers, topic)}
}

func newKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: WriteBatchTimeout,
	}
}

// NewPublisher returns a Kafka publisher, or a NopPublisher when no brokers
// are configured.
func NewPublisher(brokers []string, topic string, logger *zap.Logger) Publisher {
	if len(brokers) == 0 {
		logger.Warn("KAFKA_BROKERS not set, ledger events are dropped")
		return NopPublisher{}
	}
	logger.Info("publishing ledger events", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return NewKafkaPublisher(brokers, topic)
}

// NewKafkaPublisherWithWriter allows injecting a test writer.
func NewKafkaPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event LedgerEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(event.LeaseID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", event.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, LedgerEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
