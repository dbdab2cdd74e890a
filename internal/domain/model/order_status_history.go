package model

import "time"

// 注文ステータスの変更履歴（追記のみ）。
// 作成時は from_status = NULL, to_status = PENDING の行を入れる。
type OrderStatusHistory struct {
	ID          int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID     int64        `gorm:"not null;index" json:"order_id"`
	FromStatus  *OrderStatus `gorm:"type:varchar(20)" json:"from_status"`
	ToStatus    OrderStatus  `gorm:"type:varchar(20);not null" json:"to_status"`
	ActorUserID int64        `gorm:"not null;index" json:"actor_user_id"`
	CreatedAt   time.Time    `gorm:"not null;index" json:"created_at"`
}

func (OrderStatusHistory) TableName() string { return "order_status_history" }

// ReplayStatus は作成順に並んだ履歴を畳み込んで現在のステータスを返す。
// 先頭が NULL→PENDING でない、または途中で不正な遷移があれば ok=false。
func ReplayStatus(entries []OrderStatusHistory) (OrderStatus, bool) {
	if len(entries) == 0 {
		return "", false
	}
	first := entries[0]
	if first.FromStatus != nil || first.ToStatus != OrderStatusPending {
		return "", false
	}

	cur := first.ToStatus
	for _, e := range entries[1:] {
		if e.FromStatus == nil || *e.FromStatus != cur {
			return "", false
		}
		if !CanTransition(cur, e.ToStatus) {
			return "", false
		}
		cur = e.ToStatus
	}
	return cur, true
}
