package repository

import (
	"context"

	"gorm.io/gorm"

	repo "storefront/internal/repository"
)

// 1つのtxに束ねたリポジトリ群
type txScope struct {
	tx *gorm.DB
}

func (s txScope) Orders() repo.OrderRepository         { return NewOrderGormRepository(s.tx) }
func (s txScope) OrderItems() repo.OrderItemRepository { return NewOrderItemGormRepository(s.tx) }
func (s txScope) Inventory() repo.InventoryRepository  { return NewInventoryGormRepository(s.tx) }
func (s txScope) Products() repo.ProductRepository     { return NewProductGormRepository(s.tx) }
func (s txScope) AuditLogs() repo.AuditLogRepository   { return NewAuditLogGormRepository(s.tx) }

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

// fnがエラーを返すかpanicしたらrollback。
// ctxが既に終わっていればtxを開始しない。
func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(txScope{tx: tx})
	})
}
