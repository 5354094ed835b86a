package model

// AutoMigrate対象のモデル一覧（依存の少ない順）。
func All() []any {
	return []any{
		&User{},
		&Product{},
		&Order{},
		&OrderItem{},
		&InventoryAdjustment{},
		&AuditLog{},
	}
}
