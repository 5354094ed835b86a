//go:build postgres

package usecase

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"storefront/internal/domain/model"
	"storefront/internal/infra/db"
	infrarepo "storefront/internal/infra/repository"
)

// TEST_POSTGRES_DSN の実DBで、行ロックと条件付き減算の両方を通す。
//
//	TEST_POSTGRES_DSN=postgres://... go test -tags postgres ./internal/usecase/
func newPostgresEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN is not set")
	}
	gdb, err := db.OpenPostgres(context.Background(), dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })

	return &testEnv{db: gdb, tx: infrarepo.NewTxManagerGorm(gdb)}
}

func TestPostgres_ConcurrentCheckoutsNeverOversell(t *testing.T) {
	env := newPostgresEnv(t)
	const stock, buyers = 5, 20

	buyer := env.user(t, "Buyer", "buyer-"+uuid.NewString()+"@example.com")
	a := env.product(t, "A", "1", stock)
	uc := NewOrderUsecase(env.tx, nil, nil, 30*time.Second)

	results := make([]error, buyers)
	var g errgroup.Group
	for i := 0; i < buyers; i++ {
		g.Go(func() error {
			_, err := uc.PlaceOrder(context.Background(), buyer.ID, PlaceOrderInput{Items: []CartLine{{ProductID: a.ID, Quantity: 1}}})
			results[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var ok int
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		require.True(t, errors.Is(err, ErrInsufficientStock), "unexpected error: %v", err)
	}
	assert.Equal(t, stock, ok)
	assert.Equal(t, int64(0), env.stock(t, a.ID))

	var placed int64
	require.NoError(t, env.db.Model(&model.Order{}).Where("user_id = ?", buyer.ID).Count(&placed).Error)
	assert.Equal(t, int64(stock), placed)
}

func TestPostgres_ConcurrentStatusUpdatesOnlyMoveForward(t *testing.T) {
	env := newPostgresEnv(t)
	admin := env.user(t, "Admin", "admin-"+uuid.NewString()+"@example.com")
	o := model.Order{UserID: admin.ID, Total: decimal.Zero, Status: model.OrderStatusPending}
	require.NoError(t, env.db.Create(&o).Error)

	uc := NewAdminOrderUsecase(env.tx, nil, 10)

	var g errgroup.Group
	for _, next := range []string{"delivered", "shipped"} {
		g.Go(func() error {
			_, err := uc.UpdateStatus(context.Background(), admin.ID, o.ID, next)
			if err != nil && !errors.Is(err, ErrConflict) {
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// どちらの順で確定しても最後はdelivered
	var stored model.Order
	require.NoError(t, env.db.First(&stored, o.ID).Error)
	assert.Equal(t, model.OrderStatusDelivered, stored.Status)
}
