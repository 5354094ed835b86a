package usecase

import (
	"context"

	"storefront/internal/domain/model"
)

// コミット後に注文イベントを流す。失敗しても注文結果は変わらない。
type OrderEventPublisher interface {
	OrderPlaced(ctx context.Context, order model.Order, items []model.OrderItem) error
	OrderStatusChanged(ctx context.Context, order model.Order, from model.OrderStatus, actorUserID int64) error
}

// 冪等キー→注文IDのキャッシュ。正はDB。
type IdempotencyCache interface {
	Get(ctx context.Context, userID int64, key string) (orderID int64, ok bool, err error)
	Set(ctx context.Context, userID int64, key string, orderID int64) error
}

type nopPublisher struct{}

func (nopPublisher) OrderPlaced(context.Context, model.Order, []model.OrderItem) error {
	return nil
}

func (nopPublisher) OrderStatusChanged(context.Context, model.Order, model.OrderStatus, int64) error {
	return nil
}

type nopCache struct{}

func (nopCache) Get(context.Context, int64, string) (int64, bool, error) { return 0, false, nil }
func (nopCache) Set(context.Context, int64, string, int64) error         { return nil }
