package repository

import (
	"context"

	"gorm.io/gorm"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

type OrderItemGormRepository struct {
	db *gorm.DB
}

func NewOrderItemGormRepository(db *gorm.DB) *OrderItemGormRepository {
	return &OrderItemGormRepository{db: db}
}

func (r *OrderItemGormRepository) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].OrderID = orderID
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

// 商品名は現在の商品から引く。論理削除済みの商品でも名前は出す。
func (r *OrderItemGormRepository) ListDetailsByOrderIDs(ctx context.Context, orderIDs []int64) ([]repo.OrderItemDetail, error) {
	if len(orderIDs) == 0 {
		return []repo.OrderItemDetail{}, nil
	}

	var details []repo.OrderItemDetail
	err := r.db.WithContext(ctx).Raw(`
		SELECT oi.order_id, oi.product_id, COALESCE(p.name, '') AS name, oi.quantity, oi.price
		FROM order_items AS oi
		LEFT JOIN products AS p ON p.id = oi.product_id
		WHERE oi.order_id IN ?
		ORDER BY oi.order_id, oi.id`, orderIDs).
		Scan(&details).Error
	if err != nil {
		return []repo.OrderItemDetail{}, err
	}
	if details == nil {
		details = []repo.OrderItemDetail{}
	}
	return details, nil
}
