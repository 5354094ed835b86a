package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/domain/model"
	"storefront/internal/logging"
	repo "storefront/internal/repository"
)

const maxAdminPageSize = 100

type AdminOrderUsecase struct {
	tx              repo.TransactionManager
	events          OrderEventPublisher
	defaultPageSize int
}

func NewAdminOrderUsecase(tx repo.TransactionManager, events OrderEventPublisher, defaultPageSize int) *AdminOrderUsecase {
	if events == nil {
		events = nopPublisher{}
	}
	if defaultPageSize <= 0 || defaultPageSize > maxAdminPageSize {
		defaultPageSize = 10
	}
	return &AdminOrderUsecase{tx: tx, events: events, defaultPageSize: defaultPageSize}
}

type AdminOrderListInput struct {
	Status string
	Page   int
	Limit  int
}

type AdminOrderOutput struct {
	ID        int64             `json:"id"`
	UserID    int64             `json:"user_id"`
	Name      string            `json:"name"`
	Email     string            `json:"email"`
	Total     decimal.Decimal   `json:"total"`
	Status    model.OrderStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

// ステータス変更履歴の1件
type StatusChangeOutput struct {
	From        model.OrderStatus `json:"from"`
	To          model.OrderStatus `json:"to"`
	ActorUserID int64             `json:"actor_user_id"`
	ChangedAt   time.Time         `json:"changed_at"`
}

type AdminOrderListOutput struct {
	Items []AdminOrderOutput `json:"items"`
	Total int64              `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

// 全ユーザーの注文一覧（注文者付き、IDの新しい順）
func (u *AdminOrderUsecase) List(ctx context.Context, in AdminOrderListInput) (AdminOrderListOutput, error) {
	if in.Page == 0 {
		in.Page = 1
	}
	if in.Page < 1 {
		return AdminOrderListOutput{}, NewValidationError("page", "must be >= 1")
	}
	if in.Limit == 0 {
		in.Limit = u.defaultPageSize
	}
	if in.Limit < 1 || in.Limit > maxAdminPageSize {
		return AdminOrderListOutput{}, NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", maxAdminPageSize))
	}
	status := strings.TrimSpace(in.Status)
	if status != "" && !model.OrderStatus(status).Valid() {
		return AdminOrderListOutput{}, NewValidationError("status", "unknown status")
	}

	out := AdminOrderListOutput{Page: in.Page, Limit: in.Limit}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		rows, total, err := r.Orders().ListAdmin(ctx, repo.AdminOrderListFilter{
			Page:   in.Page,
			Limit:  in.Limit,
			Status: status,
		})
		if err != nil {
			return storageError("list admin orders", err)
		}

		out.Total = total
		out.Items = make([]AdminOrderOutput, 0, len(rows))
		for _, row := range rows {
			out.Items = append(out.Items, AdminOrderOutput{
				ID:        row.ID,
				UserID:    row.UserID,
				Name:      row.OwnerName,
				Email:     row.OwnerEmail,
				Total:     row.Total,
				Status:    row.Status,
				CreatedAt: row.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return AdminOrderListOutput{}, err
	}
	return out, nil
}

// 1注文の明細。注文がなければNotFound、明細0件なら空配列。
func (u *AdminOrderUsecase) GetOrderItems(ctx context.Context, orderID int64) ([]OrderItemOutput, error) {
	if orderID <= 0 {
		return []OrderItemOutput{}, NewValidationError("id", "must be positive")
	}

	var outs []OrderItemOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if _, err := r.Orders().FindByID(ctx, orderID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
			}
			return storageError("find order", err)
		}

		details, err := r.OrderItems().ListDetailsByOrderIDs(ctx, []int64{orderID})
		if err != nil {
			return storageError("list order items", err)
		}

		outs = make([]OrderItemOutput, 0, len(details))
		for _, d := range details {
			outs = append(outs, toOrderItemOutput(d))
		}
		return nil
	})
	if err != nil {
		return []OrderItemOutput{}, err
	}
	return outs, nil
}

// ステータス更新（前進のみ）。同じステータスなら何もせずに返す。
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorUserID int64, orderID int64, status string) (model.Order, error) {
	if actorUserID <= 0 {
		return model.Order{}, ErrUnauthorized
	}
	if orderID <= 0 {
		return model.Order{}, NewValidationError("id", "must be positive")
	}
	next := model.OrderStatus(strings.TrimSpace(status))
	if !next.Valid() {
		return model.Order{}, NewValidationError("status", "must be one of pending, shipped, delivered")
	}

	var (
		updated model.Order
		before  model.OrderStatus
		changed bool
	)

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 同時更新で後戻りしないよう行ロックして読む
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
		}
		if err != nil {
			return storageError("find order", err)
		}

		before = o.Status
		if o.Status == next {
			updated = o
			return nil
		}
		if !o.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: cannot change status from %s to %s", ErrConflict, o.Status, next)
		}

		if err := r.Orders().UpdateStatus(ctx, orderID, o.Status, next); err != nil {
			switch {
			case errors.Is(err, repo.ErrNotFound):
				return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
			case errors.Is(err, repo.ErrConflict):
				return fmt.Errorf("%w: order %d is no longer %s", ErrConflict, orderID, o.Status)
			}
			return storageError("update order status", err)
		}

		beforeJSON, err := json.Marshal(model.OrderStatusSnapshot{Status: o.Status})
		if err != nil {
			return err
		}
		afterJSON, err := json.Marshal(model.OrderStatusSnapshot{Status: next})
		if err != nil {
			return err
		}
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actorUserID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   string(beforeJSON),
			AfterJSON:    string(afterJSON),
		}); err != nil {
			return storageError("create audit log", err)
		}

		// updated_atを反映させるため読み直す
		updated, err = r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return storageError("reload order", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		if !classified(err) {
			err = storageError("update status", err)
		}
		return model.Order{}, err
	}

	if changed {
		log := logging.FromContext(ctx)
		log.Info("order status changed", "order_id", orderID, "from", before, "to", next, "actor_user_id", actorUserID)
		if err := u.events.OrderStatusChanged(ctx, updated, before, actorUserID); err != nil {
			log.Warn("publish order status changed failed", "order_id", orderID, "error", err)
		}
	}
	return updated, nil
}

// 注文のステータス変更履歴（古い順）。監査ログから組み立てる。
func (u *AdminOrderUsecase) StatusHistory(ctx context.Context, orderID int64) ([]StatusChangeOutput, error) {
	if orderID <= 0 {
		return []StatusChangeOutput{}, NewValidationError("id", "must be positive")
	}

	var outs []StatusChangeOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if _, err := r.Orders().FindByID(ctx, orderID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
			}
			return storageError("find order", err)
		}

		logs, err := r.AuditLogs().ListByResource(ctx, model.AuditResourceOrder, orderID)
		if err != nil {
			return storageError("list audit logs", err)
		}

		outs = make([]StatusChangeOutput, 0, len(logs))
		for _, l := range logs {
			if l.Action != model.AuditActionUpdateOrderStatus {
				continue
			}
			var before, after model.OrderStatusSnapshot
			if err := json.Unmarshal([]byte(l.BeforeJSON), &before); err != nil {
				return fmt.Errorf("decode audit log %d: %w", l.ID, err)
			}
			if err := json.Unmarshal([]byte(l.AfterJSON), &after); err != nil {
				return fmt.Errorf("decode audit log %d: %w", l.ID, err)
			}
			outs = append(outs, StatusChangeOutput{
				From:        before.Status,
				To:          after.Status,
				ActorUserID: l.ActorUserID,
				ChangedAt:   l.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		if !classified(err) {
			err = storageError("status history", err)
		}
		return []StatusChangeOutput{}, err
	}
	return outs, nil
}
