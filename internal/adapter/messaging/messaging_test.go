package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/shophub/internal/core/domain"
)

type mockWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockWriter) Close() error { return nil }

func sampleEvent(orderID string) domain.OrderEvent {
	return domain.NewOrderEvent(domain.OrderEventPlaced, domain.Order{
		ID:     orderID,
		UserID: "user-1",
		Status: domain.OrderStatusPending,
		Total:  decimal.RequireFromString("189.97"),
	})
}

func TestKafkaPublisher_PublishOrderEvent(t *testing.T) {
	w := &mockWriter{}
	pub := &KafkaPublisher{writer: w, topic: "order-events"}

	require.NoError(t, pub.PublishOrderEvent(context.Background(), sampleEvent("order-1")))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "order-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "OrderPlaced", string(msg.Headers[0].Value))

	var decoded struct {
		Type    string `json:"type"`
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
		Total   string `json:"total"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "OrderPlaced", decoded.Type)
	assert.Equal(t, "PENDING", decoded.Status)
	assert.Equal(t, "189.97", decoded.Total)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	pub := &KafkaPublisher{writer: &mockWriter{err: errors.New("broker down")}, topic: "order-events"}

	err := pub.PublishOrderEvent(context.Background(), sampleEvent("order-1"))
	assert.ErrorContains(t, err, "broker down")
}

type countingPublisher struct {
	mu     sync.Mutex
	seen   []string
	failOn string
}

func (c *countingPublisher) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if event.OrderID == c.failOn {
		return errors.New("publish failed")
	}
	c.seen = append(c.seen, event.OrderID)
	return nil
}

func TestStartWorkers_DrainsQueue(t *testing.T) {
	queue := make(chan domain.OrderEvent, 10)
	pub := &countingPublisher{failOn: "order-3"}

	wait := StartWorkers(3, queue, pub, zerolog.Nop())
	for _, id := range []string{"order-1", "order-2", "order-3", "order-4"} {
		queue <- sampleEvent(id)
	}
	close(queue)

	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop after queue close")
	}

	assert.ElementsMatch(t, []string{"order-1", "order-2", "order-4"}, pub.seen)
}

func TestLogPublisher(t *testing.T) {
	assert.NoError(t, NewLogPublisher(zerolog.Nop()).PublishOrderEvent(context.Background(), sampleEvent("order-1")))
}
