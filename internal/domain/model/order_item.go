package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 注文明細。Priceは購入時点の単価（商品側の価格変更の影響を受けない）。
type OrderItem struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64           `gorm:"not null;index" json:"order_id"`
	ProductID int64           `gorm:"not null;index" json:"product_id"`
	Quantity  int64           `gorm:"not null;check:chk_order_items_quantity,quantity > 0" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	CreatedAt time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`

	// FK制約用（保存時はnilのまま）
	Order   *Order   `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	Product *Product `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
}

// 小計
func (it OrderItem) Subtotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(it.Quantity))
}
