package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// スライディングウィンドウ（ZSET）。古い記録を消して数え、上限未満なら追加する。
// KEYS[1]=キー ARGV[1]=now(ms) ARGV[2]=窓の開始(ms) ARGV[3]=窓(秒) ARGV[4]=member ARGV[5]=上限
// 戻り値: 窓内の件数。上限に達していれば -1
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowSec = tonumber(ARGV[3])
local member = ARGV[4]
local limit = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', key, '0', windowStart)

local count = redis.call('ZCARD', key)
if count < limit then
  redis.call('ZADD', key, now, member)
  redis.call('EXPIRE', key, windowSec)
  return count + 1
end
return -1
`)

// rate_limit:{prefix}:{subject}
func rateLimitKey(prefix, subject string) string {
	return "rate_limit:" + prefix + ":" + subject
}

// RateLimiter はユーザー単位の流量制限。
type RateLimiter struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRateLimiter(rdb *redis.Client, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{rdb: rdb, prefix: prefix, limit: limit, window: window}
}

// Allow は今回の呼び出しを数えて、上限内なら true。
func (l *RateLimiter) Allow(ctx context.Context, subject string) (bool, error) {
	now := time.Now()
	windowSec := int64(l.window / time.Second)
	if windowSec < 1 {
		windowSec = 1
	}
	start := now.Add(-l.window).UnixMilli()
	member := fmt.Sprintf("%d-%d", now.UnixMilli(), now.UnixNano())

	n, err := slidingWindow.Run(ctx, l.rdb, []string{rateLimitKey(l.prefix, subject)},
		now.UnixMilli(), start, windowSec, member, l.limit).Int()
	if err != nil {
		return false, err
	}
	return n >= 0, nil
}
