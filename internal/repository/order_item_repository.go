package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"storefront/internal/domain/model"
)

// 表示用の明細（商品名は現在の商品から引く）
type OrderItemDetail struct {
	OrderID   int64
	ProductID int64
	Name      string
	Quantity  int64
	Price     decimal.Decimal
}

type OrderItemRepository interface {
	CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error
	ListDetailsByOrderIDs(ctx context.Context, orderIDs []int64) ([]OrderItemDetail, error)
}
