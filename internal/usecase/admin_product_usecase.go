package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"storefront/internal/domain/model"
	"storefront/internal/logging"
	repo "storefront/internal/repository"
)

const (
	maxProductNameLen  = 255
	maxProductImageLen = 512
)

// 管理者の商品作成・更新・削除。
// 在庫数の変更は行ロックして同じtxで履歴と監査ログを残す。
type AdminProductUsecase struct {
	tx repo.TransactionManager
}

func NewAdminProductUsecase(tx repo.TransactionManager) *AdminProductUsecase {
	return &AdminProductUsecase{tx: tx}
}

type AdminProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int64
	Image       string
}

func (in AdminProductInput) normalize() (AdminProductInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Image = strings.TrimSpace(in.Image)

	if in.Name == "" {
		return in, NewValidationError("name", "required")
	}
	if utf8.RuneCountInString(in.Name) > maxProductNameLen {
		return in, NewValidationError("name", "too long")
	}
	if in.Price.IsNegative() {
		return in, NewValidationError("price", "must be >= 0")
	}
	if !in.Price.Equal(in.Price.Round(2)) {
		return in, NewValidationError("price", "at most 2 decimal places")
	}
	if in.Stock < 0 {
		return in, NewValidationError("stock", "must be >= 0")
	}
	if len(in.Image) > maxProductImageLen {
		return in, NewValidationError("image", "too long")
	}
	return in, nil
}

func (u *AdminProductUsecase) Create(ctx context.Context, actorUserID int64, in AdminProductInput) (model.Product, error) {
	if actorUserID <= 0 {
		return model.Product{}, ErrUnauthorized
	}
	in, err := in.normalize()
	if err != nil {
		return model.Product{}, err
	}

	var created model.Product

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Products().Create(ctx, model.Product{
			Name:        in.Name,
			Description: in.Description,
			Price:       in.Price,
			Stock:       in.Stock,
			Image:       in.Image,
		})
		if err != nil {
			return storageError("create product", err)
		}
		created = p

		if p.Stock > 0 {
			if err := r.Inventory().CreateAdjustments(ctx, []model.InventoryAdjustment{{
				ProductID:   p.ID,
				ActorUserID: actorUserID,
				Delta:       p.Stock,
				Reason:      model.AdjustmentReasonAdmin,
			}}); err != nil {
				return storageError("create inventory adjustment", err)
			}
		}

		return writeProductAudit(ctx, r, actorUserID, model.AuditActionCreateProduct, p.ID, nil, &p)
	})
	if err != nil {
		if !classified(err) {
			err = storageError("create product", err)
		}
		return model.Product{}, err
	}

	logging.FromContext(ctx).Info("product created", "product_id", created.ID, "actor_user_id", actorUserID)
	return created, nil
}

// 全項目を上書きする。既存の注文明細の価格は変わらない。
func (u *AdminProductUsecase) Update(ctx context.Context, actorUserID int64, productID int64, in AdminProductInput) (model.Product, error) {
	if actorUserID <= 0 {
		return model.Product{}, ErrUnauthorized
	}
	if productID <= 0 {
		return model.Product{}, NewValidationError("id", "must be positive")
	}
	in, err := in.normalize()
	if err != nil {
		return model.Product{}, err
	}

	var updated model.Product

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 注文の在庫減算と競合しないよう行ロック
		before, err := r.Products().FindByIDForUpdate(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("product %d: %w", productID, ErrNotFound)
		}
		if err != nil {
			return storageError("find product", err)
		}

		if err := r.Products().Update(ctx, model.Product{
			ID:          productID,
			Name:        in.Name,
			Description: in.Description,
			Price:       in.Price,
			Stock:       in.Stock,
			Image:       in.Image,
		}); err != nil {
			return storageError("update product", err)
		}

		if delta := in.Stock - before.Stock; delta != 0 {
			if err := r.Inventory().CreateAdjustments(ctx, []model.InventoryAdjustment{{
				ProductID:   productID,
				ActorUserID: actorUserID,
				Delta:       delta,
				Reason:      model.AdjustmentReasonAdmin,
			}}); err != nil {
				return storageError("create inventory adjustment", err)
			}
		}

		updated, err = r.Products().FindByID(ctx, productID)
		if err != nil {
			return storageError("reload product", err)
		}
		return writeProductAudit(ctx, r, actorUserID, model.AuditActionUpdateProduct, productID, &before, &updated)
	})
	if err != nil {
		if !classified(err) {
			err = storageError("update product", err)
		}
		return model.Product{}, err
	}

	logging.FromContext(ctx).Info("product updated", "product_id", productID, "actor_user_id", actorUserID)
	return updated, nil
}

// 論理削除。以降は注文できないが、過去の注文履歴には名前が残る。
func (u *AdminProductUsecase) Delete(ctx context.Context, actorUserID int64, productID int64) error {
	if actorUserID <= 0 {
		return ErrUnauthorized
	}
	if productID <= 0 {
		return NewValidationError("id", "must be positive")
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := r.Products().FindByIDForUpdate(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("product %d: %w", productID, ErrNotFound)
		}
		if err != nil {
			return storageError("find product", err)
		}

		if err := r.Products().SoftDelete(ctx, productID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("product %d: %w", productID, ErrNotFound)
			}
			return storageError("delete product", err)
		}

		return writeProductAudit(ctx, r, actorUserID, model.AuditActionDeleteProduct, productID, &before, nil)
	})
	if err != nil {
		if !classified(err) {
			err = storageError("delete product", err)
		}
		return err
	}

	logging.FromContext(ctx).Info("product deleted", "product_id", productID, "actor_user_id", actorUserID)
	return nil
}

// before/afterはnilなら空
func writeProductAudit(ctx context.Context, r repo.TxRepos, actorUserID int64, action model.AuditAction, productID int64, before, after *model.Product) error {
	snapshot := func(p *model.Product) (string, error) {
		if p == nil {
			return "", nil
		}
		b, err := json.Marshal(model.NewProductSnapshot(*p))
		if err != nil {
			return "", fmt.Errorf("encode product snapshot: %w", err)
		}
		return string(b), nil
	}

	beforeJSON, err := snapshot(before)
	if err != nil {
		return err
	}
	afterJSON, err := snapshot(after)
	if err != nil {
		return err
	}

	if err := r.AuditLogs().Create(ctx, model.AuditLog{
		ActorUserID:  actorUserID,
		Action:       action,
		ResourceType: model.AuditResourceProduct,
		ResourceID:   productID,
		BeforeJSON:   beforeJSON,
		AfterJSON:    afterJSON,
	}); err != nil {
		return storageError("create audit log", err)
	}
	return nil
}
