package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 監査ログ。書き込みは更新と同じtxで行う。
type AuditLogRepository interface {
	Create(ctx context.Context, log model.AuditLog) error
	// 対象1件分を古い順で
	ListByResource(ctx context.Context, resourceType model.AuditResourceType, resourceID int64) ([]model.AuditLog, error)
}
