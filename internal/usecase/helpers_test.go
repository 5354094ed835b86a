package usecase

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"storefront/internal/domain/model"
	"storefront/internal/infra/db/testdb"
	infrarepo "storefront/internal/infra/repository"
	repo "storefront/internal/repository"
)

type testEnv struct {
	db *gorm.DB
	tx repo.TransactionManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gdb := testdb.New(t)
	return &testEnv{db: gdb, tx: infrarepo.NewTxManagerGorm(gdb)}
}

func (e *testEnv) user(t *testing.T, name, email string) model.User {
	t.Helper()
	u := model.User{Name: name, Email: email, PasswordHash: "x", Role: model.RoleUser}
	require.NoError(t, e.db.Create(&u).Error)
	return u
}

func (e *testEnv) product(t *testing.T, name, price string, stock int64) model.Product {
	t.Helper()
	p := model.Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock}
	require.NoError(t, e.db.Create(&p).Error)
	return p
}

func (e *testEnv) stock(t *testing.T, productID int64) int64 {
	t.Helper()
	var p model.Product
	require.NoError(t, e.db.Unscoped().First(&p, productID).Error)
	return p.Stock
}

func (e *testEnv) count(t *testing.T, m any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(m).Count(&n).Error)
	return n
}

type publisherMock struct{ mock.Mock }

func (m *publisherMock) OrderPlaced(ctx context.Context, order model.Order, items []model.OrderItem) error {
	args := m.Called(ctx, order, items)
	return args.Error(0)
}

func (m *publisherMock) OrderStatusChanged(ctx context.Context, order model.Order, from model.OrderStatus, actorUserID int64) error {
	args := m.Called(ctx, order, from, actorUserID)
	return args.Error(0)
}

type cacheMock struct{ mock.Mock }

func (m *cacheMock) Get(ctx context.Context, userID int64, key string) (int64, bool, error) {
	args := m.Called(ctx, userID, key)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *cacheMock) Set(ctx context.Context, userID int64, key string, orderID int64) error {
	args := m.Called(ctx, userID, key, orderID)
	return args.Error(0)
}

// WithinTxが常に失敗するTxManager
type failingTx struct{ err error }

func (f failingTx) WithinTx(context.Context, func(repo.TxRepos) error) error { return f.err }

// 行ロックで読んだ注文のステータスを書き換えて返すTxManager。
// 読んだ後に別の更新がコミットされた状態を再現する。
type staleOrderTx struct {
	repo.TransactionManager
	status model.OrderStatus
}

func (s staleOrderTx) WithinTx(ctx context.Context, fn func(repo.TxRepos) error) error {
	return s.TransactionManager.WithinTx(ctx, func(r repo.TxRepos) error {
		return fn(staleTxRepos{TxRepos: r, status: s.status})
	})
}

type staleTxRepos struct {
	repo.TxRepos
	status model.OrderStatus
}

func (r staleTxRepos) Orders() repo.OrderRepository {
	return staleOrders{OrderRepository: r.TxRepos.Orders(), status: r.status}
}

type staleOrders struct {
	repo.OrderRepository
	status model.OrderStatus
}

func (o staleOrders) FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error) {
	got, err := o.OrderRepository.FindByIDForUpdate(ctx, orderID)
	if err == nil {
		got.Status = o.status
	}
	return got, err
}
