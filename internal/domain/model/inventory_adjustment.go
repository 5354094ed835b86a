package model

import "time"

type AdjustmentReason string

const (
	AdjustmentReasonOrder AdjustmentReason = "order"
	// 管理者による商品作成・在庫数の直接変更
	AdjustmentReasonAdmin AdjustmentReason = "admin"
)

// 在庫増減の履歴。注文確定時は明細1行ごとにDelta=-数量で残す。
// 管理者の変更はOrderIDなしで差分を残す。
type InventoryAdjustment struct {
	ID          int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID   int64            `gorm:"not null;index" json:"product_id"`
	OrderID     *int64           `gorm:"index" json:"order_id,omitempty"`
	ActorUserID int64            `gorm:"not null;index" json:"actor_user_id"`
	Delta       int64            `gorm:"not null" json:"delta"`
	Reason      AdjustmentReason `gorm:"type:varchar(50);not null" json:"reason"`
	CreatedAt   time.Time        `gorm:"not null;autoCreateTime" json:"created_at"`
}
