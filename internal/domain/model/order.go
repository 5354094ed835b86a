package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
)

// 前進のみ。同じステータスへの更新は呼び出し側で何もしない扱い。
var nextOrderStatuses = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPending:   {OrderStatusShipped: true, OrderStatusDelivered: true},
	OrderStatusShipped:   {OrderStatusDelivered: true},
	OrderStatusDelivered: {},
}

func (s OrderStatus) Valid() bool {
	_, ok := nextOrderStatuses[s]
	return ok
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return nextOrderStatuses[s][next]
}

// 注文ヘッダ。Totalは作成時に一度だけ計算する。
type Order struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID         int64           `gorm:"not null;index;uniqueIndex:idx_orders_user_idem,priority:1" json:"user_id"`
	Total          decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total"`
	Status         OrderStatus     `gorm:"type:varchar(20);not null;index;default:'pending'" json:"status"`
	IdempotencyKey *string         `gorm:"type:varchar(255);uniqueIndex:idx_orders_user_idem,priority:2" json:"-"`
	CreatedAt      time.Time       `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`

	// FK制約用（保存時はnilのまま）
	User *User `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
}
