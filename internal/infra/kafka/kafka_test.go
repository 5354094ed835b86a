package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain/model"
)

type recordingWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *recordingWriter) messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func TestProducer_RunFlushesOnShutdown(t *testing.T) {
	w := &recordingWriter{}
	p := newProducer(w, 8, nil)

	require.NoError(t, p.Publish([]byte("1"), []byte("a")))
	require.NoError(t, p.Publish([]byte("2"), []byte("b")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return len(w.messages()) == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, p.Publish([]byte("3"), []byte("c")))
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not stop")
	}
	assert.Len(t, w.messages(), 3)
	assert.True(t, w.closed)
}

// ブローカーに届かない書き込み。ctxが切れるまで返らない。
type stuckWriter struct {
	hadDeadline chan bool
}

func (w *stuckWriter) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	_, ok := ctx.Deadline()
	w.hadDeadline <- ok
	<-ctx.Done()
	return ctx.Err()
}

func (w *stuckWriter) Close() error { return nil }

func TestProducer_StuckWriteDoesNotBlockShutdown(t *testing.T) {
	w := &stuckWriter{hadDeadline: make(chan bool, 4)}
	p := newProducer(w, 8, nil)
	p.writeTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.NoError(t, p.Publish([]byte("1"), []byte("a")))
	select {
	case ok := <-w.hadDeadline:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("write was not attempted")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not stop")
	}
}

func TestProducer_PublishWhenFull(t *testing.T) {
	p := newProducer(&recordingWriter{}, 1, nil)

	require.NoError(t, p.Publish(nil, []byte("a")))
	assert.ErrorIs(t, p.Publish(nil, []byte("b")), ErrProducerBusy)
}

type capturePublisher struct {
	key, value []byte
	headers    []kafka.Header
}

func (c *capturePublisher) Publish(key, value []byte, headers ...kafka.Header) error {
	c.key, c.value, c.headers = key, value, headers
	return nil
}

func TestOrderEventPublisher_OrderPlaced(t *testing.T) {
	cp := &capturePublisher{}
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	pub := &OrderEventPublisher{p: cp, now: func() time.Time { return at }}

	order := model.Order{ID: 10, UserID: 3, Total: decimal.NewFromInt(200), Status: model.OrderStatusPending}
	items := []model.OrderItem{{ProductID: 5, Quantity: 2, Price: decimal.NewFromInt(100)}}
	require.NoError(t, pub.OrderPlaced(context.Background(), order, items))

	assert.Equal(t, "10", string(cp.key))
	require.Len(t, cp.headers, 1)
	assert.Equal(t, EventOrderPlaced, string(cp.headers[0].Value))

	var env Envelope
	require.NoError(t, json.Unmarshal(cp.value, &env))
	assert.Equal(t, EventOrderPlaced, env.EventType)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, at, env.OccurredAt)
	assert.Equal(t, "10", env.CorrelationID)
	_, err := uuid.Parse(env.EventID)
	assert.NoError(t, err)

	assert.JSONEq(t, `{"order_id":10,"user_id":3,"total":"200.00","status":"pending","items":[{"product_id":5,"quantity":2,"price":"100.00"}]}`, string(env.Payload))
}

func TestOrderEventPublisher_OrderStatusChanged(t *testing.T) {
	cp := &capturePublisher{}
	pub := &OrderEventPublisher{p: cp, now: time.Now}

	order := model.Order{ID: 4, Status: model.OrderStatusShipped}
	require.NoError(t, pub.OrderStatusChanged(context.Background(), order, model.OrderStatusPending, 1))

	var env Envelope
	require.NoError(t, json.Unmarshal(cp.value, &env))
	assert.Equal(t, EventOrderStatusChanged, env.EventType)
	assert.JSONEq(t, `{"order_id":4,"from":"pending","to":"shipped","actor_user_id":1}`, string(env.Payload))
}
