package model

import "time"

// 出品の更新、在庫の設定など。
type AuditAction string

const (
	//在庫数を直接設定した操作。
	AuditActionUpdateStock AuditAction = "UPDATE_STOCK"
	//価格・状態など出品内容を更新した操作。
	AuditActionUpdateListing AuditAction = "UPDATE_LISTING"
)

// 何に対する操作か
type AuditResourceType string

const (
	//出品に対する操作。
	AuditResourceListing AuditResourceType = "listing"
)

// 監査ログ（出品者・管理者の操作ログ）。
// 「誰が」「何を」「どの対象に」「どう変えたか」を残す。
// 注文ステータスの変更は OrderStatusHistory に残す。
type AuditLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//操作したユーザーのID。
	ActorUserID int64 `gorm:"not null;index" json:"actor_user_id"`

	Action AuditAction `gorm:"type:varchar(50);not null;index" json:"action"`

	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`

	ResourceID int64 `gorm:"not null;index" json:"resource_id"`

	//JSON文字列で保存する。
	BeforeJSON string `gorm:"type:text" json:"before_json"`

	//JSON文字列で保存する。
	AfterJSON string `gorm:"type:text" json:"after_json"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
