package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

type Limiter interface {
	Allow(ctx context.Context, subject string) (bool, error)
}

// RateLimit はユーザー単位（未認証ならIP）で流量を制限する。
// Redis が落ちているときは通す。
func RateLimit(l Limiter, logger *slog.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			subject := "ip:" + c.RealIP()
			if id, ok := c.Get(CtxUserIDKey).(int64); ok && id > 0 {
				subject = "user:" + strconv.FormatInt(id, 10)
			}

			ok, err := l.Allow(c.Request().Context(), subject)
			if err != nil {
				logger.Warn("rate limit check failed", slog.String("subject", subject), slog.Any("err", err))
				return next(c)
			}
			if !ok {
				return c.JSON(http.StatusTooManyRequests, errorJSON("too many requests"))
			}
			return next(c)
		}
	}
}
