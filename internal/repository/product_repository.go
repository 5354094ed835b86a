package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 商品の永続化（保存・取得）だけを約束。
type ProductRepository interface {
	List(ctx context.Context) ([]model.Product, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)
	// 行ロック付きで取得（トランザクション内で使う）
	FindByIDForUpdate(ctx context.Context, id int64) (model.Product, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
	// name/description/price/stock/image を上書き
	Update(ctx context.Context, p model.Product) error
	// 論理削除。注文明細からは名前を引き続き参照できる。
	SoftDelete(ctx context.Context, id int64) error
}
