package repository

import (
	"context"
	"time"

	"market/internal/domain/model"
)

// 監査ログの絞り込み条件。Page/Limit が0ならリポジトリ側の既定値。
type AuditLogFilter struct {
	ActorUserID  *int64
	Action       string
	ResourceType string
	ResourceID   *int64
	From         *time.Time
	To           *time.Time
	Page         int
	Limit        int
}

// 監査ログは追記のみ。更新・削除は持たない。
type AuditLogRepository interface {
	Append(ctx context.Context, log model.AuditLog) error
	// 新しい順。total は絞り込み後の件数。
	List(ctx context.Context, f AuditLogFilter) ([]model.AuditLog, int64, error)
}
