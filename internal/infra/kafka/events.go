package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"storefront/internal/domain/model"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"

	eventVersion = 1
	producerName = "storefront-api"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderItemPayload struct {
	ProductID int64  `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Price     string `json:"price"`
}

type OrderPlacedPayload struct {
	OrderID int64              `json:"order_id"`
	UserID  int64              `json:"user_id"`
	Total   string             `json:"total"`
	Status  string             `json:"status"`
	Items   []OrderItemPayload `json:"items"`
}

type OrderStatusChangedPayload struct {
	OrderID     int64  `json:"order_id"`
	From        string `json:"from"`
	To          string `json:"to"`
	ActorUserID int64  `json:"actor_user_id"`
}

type publisher interface {
	Publish(key, value []byte, headers ...kafka.Header) error
}

// 注文イベントをEnvelopeに包んで流す。キーは注文ID。
type OrderEventPublisher struct {
	p   publisher
	now func() time.Time
}

func NewOrderEventPublisher(p *Producer) *OrderEventPublisher {
	return &OrderEventPublisher{p: p, now: time.Now}
}

func (e *OrderEventPublisher) OrderPlaced(_ context.Context, order model.Order, items []model.OrderItem) error {
	payload := OrderPlacedPayload{
		OrderID: order.ID,
		UserID:  order.UserID,
		Total:   order.Total.StringFixed(2),
		Status:  string(order.Status),
		Items:   make([]OrderItemPayload, 0, len(items)),
	}
	for _, it := range items {
		payload.Items = append(payload.Items, OrderItemPayload{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price.StringFixed(2),
		})
	}
	return e.publish(EventOrderPlaced, order.ID, payload)
}

func (e *OrderEventPublisher) OrderStatusChanged(_ context.Context, order model.Order, from model.OrderStatus, actorUserID int64) error {
	return e.publish(EventOrderStatusChanged, order.ID, OrderStatusChangedPayload{
		OrderID:     order.ID,
		From:        string(from),
		To:          string(order.Status),
		ActorUserID: actorUserID,
	})
}

func (e *OrderEventPublisher) publish(eventType string, orderID int64, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	key := strconv.FormatInt(orderID, 10)
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		OccurredAt:    e.now().UTC(),
		Producer:      producerName,
		CorrelationID: key,
		Payload:       raw,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return e.p.Publish([]byte(key), value, kafka.Header{Key: "event_type", Value: []byte(eventType)})
}
