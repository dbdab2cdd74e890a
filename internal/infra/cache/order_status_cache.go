package cache

import (
	"context"
	"fmt"
	"time"

	repo "market/internal/repository"

	"github.com/redis/go-redis/v9"
)

// 置いてある step が新しい値以上なら書かない。
// KEYS[1]=キー ARGV[1..4]=order_id buyer_id seller_id status ARGV[5]=step ARGV[6]=TTL(ms)
// 戻り値: 書いたら 1
var setIfNewer = redis.NewScript(`
local key = KEYS[1]
local step = tonumber(ARGV[5])

local cur = redis.call('HGET', key, 'step')
if cur and tonumber(cur) >= step then
  return 0
end

redis.call('HSET', key, 'order_id', ARGV[1], 'buyer_id', ARGV[2], 'seller_id', ARGV[3], 'status', ARGV[4], 'step', ARGV[5])
redis.call('PEXPIRE', key, ARGV[6])
return 1
`)

// 注文ステータスをハッシュで持つ。キーは order:status:{id}
type OrderStatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewOrderStatusCache(rdb *redis.Client, ttl time.Duration) *OrderStatusCache {
	return &OrderStatusCache{rdb: rdb, ttl: ttl}
}

func orderStatusKey(orderID int64) string {
	return fmt.Sprintf("order:status:%d", orderID)
}

// SetIfNewer は snap.Step が置いてある値より大きいときだけ書く。
// DBを読んでから書くまでの間に遷移が入っても、古いステータスで戻さない。
func (c *OrderStatusCache) SetIfNewer(ctx context.Context, snap repo.OrderStatusSnapshot) (bool, error) {
	n, err := setIfNewer.Run(ctx, c.rdb, []string{orderStatusKey(snap.OrderID)},
		snap.OrderID, snap.BuyerID, snap.SellerID, string(snap.Status), snap.Step, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *OrderStatusCache) Delete(ctx context.Context, orderID int64) error {
	return c.rdb.Del(ctx, orderStatusKey(orderID)).Err()
}

func (c *OrderStatusCache) Get(ctx context.Context, orderID int64) (repo.OrderStatusSnapshot, bool, error) {
	res := c.rdb.HGetAll(ctx, orderStatusKey(orderID))
	fields, err := res.Result()
	if err != nil {
		return repo.OrderStatusSnapshot{}, false, err
	}
	if len(fields) == 0 {
		return repo.OrderStatusSnapshot{}, false, nil
	}

	var snap repo.OrderStatusSnapshot
	if err := res.Scan(&snap); err != nil {
		return repo.OrderStatusSnapshot{}, false, err
	}
	return snap, true, nil
}
