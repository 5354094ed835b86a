package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status string
}

// 管理者一覧の1行（注文＋注文者）
type AdminOrderRow struct {
	ID         int64
	UserID     int64
	OwnerName  string
	OwnerEmail string
	Total      decimal.Decimal
	Status     model.OrderStatus
	CreatedAt  time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	// 行ロック付きで取得（トランザクション内で使う）
	FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error)
	// 新しい順
	ListByUserID(ctx context.Context, userID int64) ([]model.Order, error)
	Create(ctx context.Context, order model.Order) (model.Order, error)
	// statusがfromのままのときだけtoへ。変わっていればErrConflict。
	UpdateStatus(ctx context.Context, orderID int64, from, to model.OrderStatus) error

	//検索（同じキーなら同じ結果を返す）
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error)
	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]AdminOrderRow, int64, error)
}
