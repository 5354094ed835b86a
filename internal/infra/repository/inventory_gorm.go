package repository

import (
	"context"

	"gorm.io/gorm"

	"storefront/internal/domain/model"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

// 在庫が足りるときだけ減らす。falseなら在庫不足（または商品なし）。
func (r *InventoryGormRepository) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		Update("stock", gorm.Expr("stock - ?", qty))

	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}

// 調整履歴作成
func (r *InventoryGormRepository) CreateAdjustments(ctx context.Context, adjustments []model.InventoryAdjustment) error {
	if len(adjustments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&adjustments).Error
}

func (r *InventoryGormRepository) ListAdjustmentsByOrderID(ctx context.Context, orderID int64) ([]model.InventoryAdjustment, error) {
	var adjustments []model.InventoryAdjustment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id asc").
		Find(&adjustments).Error
	if err != nil {
		return []model.InventoryAdjustment{}, err
	}
	return adjustments, nil
}
