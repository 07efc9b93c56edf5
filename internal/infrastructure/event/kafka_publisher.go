package event

import (
	"context"
	"encoding/json"
	"fmt"

	appcosting "github.com/jwfreed/inventory-manager-sub010/internal/application/costing"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/costing"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/config"
	"github.com/jwfreed/inventory-manager-sub010/internal/infrastructure/telemetry"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafka.Writer used by the publisher
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMovementPublisher publishes projected movements to a Kafka topic,
// keyed by movement id so that one movement's messages stay ordered
type KafkaMovementPublisher struct {
	writer MessageWriter
	topic  string
	logger *zap.Logger
}

// NewKafkaWriter builds the writer for cfg
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           cfg.WriteTimeout,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
	}
}

// NewKafkaMovementPublisher creates a publisher writing through w
func NewKafkaMovementPublisher(w MessageWriter, topic string, logger *zap.Logger) *KafkaMovementPublisher {
	return &KafkaMovementPublisher{writer: w, topic: topic, logger: logger}
}

// PublishMovementPosted writes one message per event. The trace context of
// ctx travels in the message headers.
func (p *KafkaMovementPublisher) PublishMovementPosted(ctx context.Context, event *costing.MovementPostedEvent) error {
	ctx, span := telemetry.StartProducerSpan(ctx, p.topic+" publish",
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination.name", p.topic),
		attribute.String("messaging.kafka.message.key", event.MovementID.String()),
		telemetry.AttrEventType.String(event.EventType()),
	)
	defer span.End()

	value, err := json.Marshal(event)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("encode movement event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.MovementID.String()),
		Value: value,
		Time:  event.OccurredAt(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType())},
			{Key: "tenant_id", Value: []byte(event.TenantID().String())},
		},
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: &msg})

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("write movement event to %s: %w", p.topic, err)
	}
	telemetry.SetOK(span)

	p.logger.Debug("movement event published",
		zap.String("topic", p.topic),
		zap.String("movement_id", event.MovementID.String()),
	)
	return nil
}

// Close flushes pending writes
func (p *KafkaMovementPublisher) Close() error {
	return p.writer.Close()
}

// headerCarrier adapts Kafka message headers to a propagation.TextMapCarrier
type headerCarrier struct {
	msg *kafka.Message
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// FanoutPublisher delivers to every publisher and returns the first error
type FanoutPublisher []appcosting.MovementEventPublisher

// PublishMovementPosted implements the costing MovementEventPublisher
func (f FanoutPublisher) PublishMovementPosted(ctx context.Context, event *costing.MovementPostedEvent) error {
	var first error
	for _, p := range f {
		if err := p.PublishMovementPosted(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var (
	_ appcosting.MovementEventPublisher = (*KafkaMovementPublisher)(nil)
	_ appcosting.MovementEventPublisher = FanoutPublisher(nil)
)
