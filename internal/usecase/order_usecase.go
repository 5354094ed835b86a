package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/domain/model"
	"storefront/internal/logging"
	repo "storefront/internal/repository"
)

const (
	maxOrderLines        = 100
	maxIdempotencyKeyLen = 255
)

type OrderUsecase struct {
	tx        repo.TransactionManager
	events    OrderEventPublisher
	idem      IdempotencyCache
	txTimeout time.Duration
}

// events/idemはnilなら何もしない実装を使う
func NewOrderUsecase(tx repo.TransactionManager, events OrderEventPublisher, idem IdempotencyCache, txTimeout time.Duration) *OrderUsecase {
	if events == nil {
		events = nopPublisher{}
	}
	if idem == nil {
		idem = nopCache{}
	}
	return &OrderUsecase{tx: tx, events: events, idem: idem, txTimeout: txTimeout}
}

// カートの1行。価格はクライアントから受け取らない。
type CartLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type PlaceOrderInput struct {
	Items          []CartLine
	IdempotencyKey string
}

type OrderItemOutput struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderOutput struct {
	ID        int64             `json:"id"`
	UserID    int64             `json:"user_id"`
	Total     decimal.Decimal   `json:"total"`
	Status    model.OrderStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	Items     []OrderItemOutput `json:"items"`

	// 冪等キーで既存注文を返したとき true
	Replayed bool `json:"-"`
}

// tx内で冪等キーの衝突を検知したとき（rollbackして既存注文を返す）
var errIdempotentReplay = errors.New("idempotent replay")

// 注文確定。検証→価格決定→在庫減算→注文/明細作成を1トランザクションで行う。
func (u *OrderUsecase) PlaceOrder(ctx context.Context, userID int64, in PlaceOrderInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, ErrUnauthorized
	}
	if err := validateCartLines(in.Items); err != nil {
		return OrderOutput{}, err
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return OrderOutput{}, NewValidationError("idempotency_key", "too long")
	}

	log := logging.FromContext(ctx).With("user_id", userID)

	// 同じキーなら同じ結果
	if key != "" {
		out, found, err := u.findReplay(ctx, userID, key)
		if err != nil {
			return OrderOutput{}, err
		}
		if found {
			log.Info("order replayed", "order_id", out.ID)
			return out, nil
		}
	}

	txCtx := ctx
	if u.txTimeout > 0 {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, u.txTimeout)
		defer cancel()
	}

	var (
		created model.Order
		items   []model.OrderItem
		names   map[int64]string
	)

	err := u.tx.WithinTx(txCtx, func(r repo.TxRepos) error {
		items = make([]model.OrderItem, 0, len(in.Items))
		names = make(map[int64]string, len(in.Items))
		total := decimal.Zero

		// 入力順に1行ずつ処理（同じ商品が複数行あっても別々に減算する）
		for _, line := range in.Items {
			p, err := r.Products().FindByIDForUpdate(txCtx, line.ProductID)
			if errors.Is(err, repo.ErrNotFound) {
				return &ProductNotFoundError{ProductID: line.ProductID}
			}
			if err != nil {
				return storageError("find product", err)
			}
			if p.Stock < line.Quantity {
				return &InsufficientStockError{ProductID: p.ID, Available: p.Stock, Requested: line.Quantity}
			}

			ok, err := r.Inventory().DecreaseStockIfEnough(txCtx, p.ID, line.Quantity)
			if err != nil {
				return storageError("decrease stock", err)
			}
			if !ok {
				return &InsufficientStockError{ProductID: p.ID, Available: p.Stock, Requested: line.Quantity}
			}

			item := model.OrderItem{
				ProductID: p.ID,
				Quantity:  line.Quantity,
				Price:     p.Price,
			}
			items = append(items, item)
			names[p.ID] = p.Name
			total = total.Add(item.Subtotal())
		}

		order := model.Order{
			UserID: userID,
			Total:  total,
			Status: model.OrderStatusPending,
		}
		if key != "" {
			order.IdempotencyKey = &key
		}

		var err error
		created, err = r.Orders().Create(txCtx, order)
		if errors.Is(err, repo.ErrDuplicate) && key != "" {
			// 同じキーの注文が同時に確定された
			return errIdempotentReplay
		}
		if err != nil {
			return storageError("create order", err)
		}

		if err := r.OrderItems().CreateBulk(txCtx, created.ID, items); err != nil {
			return storageError("create order items", err)
		}

		orderID := created.ID
		adjustments := make([]model.InventoryAdjustment, 0, len(items))
		for _, it := range items {
			adjustments = append(adjustments, model.InventoryAdjustment{
				ProductID:   it.ProductID,
				OrderID:     &orderID,
				ActorUserID: userID,
				Delta:       -it.Quantity,
				Reason:      model.AdjustmentReasonOrder,
			})
		}
		if err := r.Inventory().CreateAdjustments(txCtx, adjustments); err != nil {
			return storageError("create inventory adjustments", err)
		}

		return nil
	})

	if errors.Is(err, errIdempotentReplay) {
		out, found, err := u.findReplay(ctx, userID, key)
		if err != nil {
			return OrderOutput{}, err
		}
		if !found {
			return OrderOutput{}, fmt.Errorf("%w: idempotency key %q", ErrConflict, key)
		}
		return out, nil
	}
	if err != nil {
		if !classified(err) {
			err = storageError("place order", err)
		}
		log.Warn("place order failed", "error", err)
		return OrderOutput{}, err
	}

	// ここからはコミット済み。失敗してもログだけ。
	if key != "" {
		if err := u.idem.Set(ctx, userID, key, created.ID); err != nil {
			log.Warn("idempotency cache set failed", "order_id", created.ID, "error", err)
		}
	}
	if err := u.events.OrderPlaced(ctx, created, items); err != nil {
		log.Warn("publish order placed failed", "order_id", created.ID, "error", err)
	}

	log.Info("order placed", "order_id", created.ID, "total", created.Total.String(), "lines", len(items))

	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      names[it.ProductID],
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}
	return toOrderOutput(created, outItems), nil
}

// 自分の注文履歴（新しい順、明細付き）
func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64) ([]OrderOutput, error) {
	if userID <= 0 {
		return []OrderOutput{}, ErrUnauthorized
	}

	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, err := r.Orders().ListByUserID(ctx, userID)
		if err != nil {
			return storageError("list orders", err)
		}

		ids := make([]int64, 0, len(orders))
		for _, o := range orders {
			ids = append(ids, o.ID)
		}
		details, err := r.OrderItems().ListDetailsByOrderIDs(ctx, ids)
		if err != nil {
			return storageError("list order items", err)
		}

		byOrder := groupDetails(details)
		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			outs = append(outs, toOrderOutput(o, byOrder[o.ID]))
		}
		return nil
	})

	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

// キャッシュ→DBの順で既存注文を探す
func (u *OrderUsecase) findReplay(ctx context.Context, userID int64, key string) (OrderOutput, bool, error) {
	cachedID, hit, err := u.idem.Get(ctx, userID, key)
	if err != nil {
		logging.FromContext(ctx).Warn("idempotency cache get failed", "error", err)
		hit = false
	}

	var (
		out   OrderOutput
		found bool
	)
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var o model.Order
		if hit {
			got, err := r.Orders().FindByID(ctx, cachedID)
			if err == nil && got.UserID == userID {
				o, found = got, true
			}
		}
		if !found {
			got, ok, err := r.Orders().FindByIdempotencyKey(ctx, userID, key)
			if err != nil {
				return storageError("find order by idempotency key", err)
			}
			if !ok {
				return nil
			}
			o, found = got, true
		}

		details, err := r.OrderItems().ListDetailsByOrderIDs(ctx, []int64{o.ID})
		if err != nil {
			return storageError("list order items", err)
		}
		out = toOrderOutput(o, groupDetails(details)[o.ID])
		out.Replayed = true
		return nil
	})
	if err != nil {
		return OrderOutput{}, false, err
	}
	return out, found, nil
}

func validateCartLines(lines []CartLine) error {
	if len(lines) == 0 {
		return NewValidationError("items", "must not be empty")
	}
	if len(lines) > maxOrderLines {
		return NewValidationError("items", fmt.Sprintf("must not exceed %d lines", maxOrderLines))
	}
	for i, l := range lines {
		if l.ProductID <= 0 {
			return NewValidationError(fmt.Sprintf("items[%d].product_id", i), "must be positive")
		}
		if l.Quantity <= 0 {
			return NewValidationError(fmt.Sprintf("items[%d].quantity", i), "must be positive")
		}
	}
	return nil
}

func groupDetails(details []repo.OrderItemDetail) map[int64][]OrderItemOutput {
	byOrder := make(map[int64][]OrderItemOutput)
	for _, d := range details {
		byOrder[d.OrderID] = append(byOrder[d.OrderID], toOrderItemOutput(d))
	}
	return byOrder
}

func toOrderItemOutput(d repo.OrderItemDetail) OrderItemOutput {
	return OrderItemOutput{
		ProductID: d.ProductID,
		Name:      d.Name,
		Quantity:  d.Quantity,
		Price:     d.Price,
	}
}

func toOrderOutput(o model.Order, items []OrderItemOutput) OrderOutput {
	if items == nil {
		items = []OrderItemOutput{}
	}
	return OrderOutput{
		ID:        o.ID,
		UserID:    o.UserID,
		Total:     o.Total,
		Status:    o.Status,
		CreatedAt: o.CreatedAt,
		Items:     items,
	}
}
