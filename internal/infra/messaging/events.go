package messaging

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"

	producerName = "market-api"
)

// Envelope はトピックに流す共通の外側。
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// 購入後の残数と出品状態（表示の更新用）
type OrderCreated struct {
	OrderID           int64           `json:"order_id"`
	ListingID         int64           `json:"listing_id"`
	BuyerID           int64           `json:"buyer_id"`
	SellerID          int64           `json:"seller_id"`
	Quantity          int64           `json:"quantity"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	Status            string          `json:"status"`
	RemainingQuantity int64           `json:"remaining_quantity"`
	ListingStatus     string          `json:"listing_status"`
}

type OrderStatusChanged struct {
	OrderID     int64  `json:"order_id"`
	ListingID   int64  `json:"listing_id"`
	BuyerID     int64  `json:"buyer_id"`
	SellerID    int64  `json:"seller_id"`
	FromStatus  string `json:"from_status"`
	ToStatus    string `json:"to_status"`
	ActorUserID int64  `json:"actor_user_id"`
}
