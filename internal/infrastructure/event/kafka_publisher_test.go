package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jwfreed/inventory-manager-sub010/internal/domain/costing"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func headerValue(msg kafka.Message, key string) string {
	return headerCarrier{msg: &msg}.Get(key)
}

func TestKafkaMovementPublisher_WritesKeyedMessage(t *testing.T) {
	prevProp := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prevProp) })

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "parent")
	defer span.End()

	w := &fakeWriter{}
	p := NewKafkaMovementPublisher(w, "inventory.movement.posted", zap.NewNop())

	tenantID, movementID, itemID := uuid.New(), uuid.New(), uuid.New()
	ev := costing.NewMovementPostedEvent(tenantID, movementID, costing.MovementTypeIssue, []uuid.UUID{itemID}, nil)
	require.NoError(t, p.PublishMovementPosted(ctx, ev))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, movementID.String(), string(msg.Key))
	assert.Equal(t, costing.EventTypeMovementPosted, headerValue(msg, "event_type"))
	assert.Equal(t, tenantID.String(), headerValue(msg, "tenant_id"))
	assert.Contains(t, headerValue(msg, "traceparent"), span.SpanContext().TraceID().String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, movementID.String(), body["movement_id"])
	assert.Equal(t, "issue", body["movement_type"])
	assert.Equal(t, []any{itemID.String()}, body["item_ids"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaMovementPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := NewKafkaMovementPublisher(w, "movements", zap.NewNop())

	ev := costing.NewMovementPostedEvent(uuid.New(), uuid.New(), costing.MovementTypeReceive, nil, nil)
	err := p.PublishMovementPosted(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "movements")
}

func TestHeaderCarrier_SetReplaces(t *testing.T) {
	msg := kafka.Message{}
	c := headerCarrier{msg: &msg}
	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("a", "3")

	assert.Equal(t, "3", c.Get("a"))
	assert.Equal(t, []string{"a", "b"}, c.Keys())
	assert.Empty(t, c.Get("missing"))
}

type countingPublisher struct {
	calls int
	err   error
}

func (p *countingPublisher) PublishMovementPosted(context.Context, *costing.MovementPostedEvent) error {
	p.calls++
	return p.err
}

func TestFanoutPublisher(t *testing.T) {
	failing := &countingPublisher{err: errors.New("down")}
	healthy := &countingPublisher{}
	ev := costing.NewMovementPostedEvent(uuid.New(), uuid.New(), costing.MovementTypeReceive, nil, nil)

	err := FanoutPublisher{failing, healthy}.PublishMovementPosted(context.Background(), ev)
	assert.EqualError(t, err, "down")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, healthy.calls)
}
