package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"market/internal/config"
	"market/internal/handler"
	"market/internal/middleware"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

type Handlers struct {
	Orders      *handler.OrderHandler
	AdminOrders *handler.AdminOrderHandler
	Listings    *handler.ListingHandler
	AuditLogs   *handler.AuditLogHandler

	// /healthz で叩く。nil なら常に ok
	Health func(ctx context.Context) error
}

// New はルート登録済みの echo を返す。
// orderLimiter が nil なら POST /orders に流量制限をかけない。
func New(cfg config.Config, h Handlers, orderLimiter middleware.Limiter, logger *slog.Logger) *echo.Echo {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("err", v.Error.Error()))
				logger.LogAttrs(c.Request().Context(), slog.LevelError, "request", attrs...)
				return nil
			}
			logger.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			return nil
		},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		if h.Health != nil {
			if err := h.Health(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, handler.ErrorResponse{Error: "unhealthy"})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	var limitMW echo.MiddlewareFunc
	if orderLimiter != nil {
		limitMW = middleware.RateLimit(orderLimiter, logger)
	}

	if h.Listings != nil {
		h.Listings.RegisterRoutes(e, cfg)
	}
	if h.Orders != nil {
		h.Orders.RegisterRoutes(e, cfg, limitMW)
	}
	if h.AdminOrders != nil {
		h.AdminOrders.RegisterRoutes(e, cfg)
	}
	if h.AuditLogs != nil {
		h.AuditLogs.RegisterRoutes(e, cfg)
	}

	return e
}

// Run は ctx がキャンセルされるまで待ち受け、その後 graceful に止める。
func Run(ctx context.Context, e *echo.Echo, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("http server stopped")
	return nil
}
