// Package testdb はテスト用のインメモリSQLiteを用意する。
package testdb

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"storefront/internal/infra/db"
)

// New はマイグレーション済みの :memory: DBを返す。テスト終了時に閉じる。
func New(t testing.TB) *gorm.DB {
	t.Helper()

	gdb, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	t.Cleanup(func() { _ = db.Close(gdb) })
	return gdb
}
