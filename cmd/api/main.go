package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market/internal/config"
	"market/internal/handler"
	"market/internal/infra/cache"
	"market/internal/infra/db"
	"market/internal/infra/messaging"
	infraRepo "market/internal/infra/repository"
	"market/internal/middleware"
	repo "market/internal/repository"
	"market/internal/server"
	"market/internal/usecase"

	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	//.env は無くてもよい（本番は環境変数で渡す）
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(gormDB); err != nil {
		return err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	//Repository（GORM実装）生成
	txm := infraRepo.NewTxManagerGorm(gormDB)
	listingRepo := infraRepo.NewListingGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	historyRepo := infraRepo.NewOrderStatusHistoryGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)

	//Redis（任意）
	var statusCache repo.OrderStatusCache
	var orderLimiter middleware.Limiter
	if cfg.RedisAddr != "" {
		rdb := cache.New(cfg.RedisAddr, cfg.RedisDB)
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := cache.Ping(pingCtx, rdb)
		cancel()
		if err != nil {
			//落ちていても起動はする。キャッシュは読み書き失敗を握りつぶす
			logger.Warn("redis ping failed", slog.String("addr", cfg.RedisAddr), slog.Any("err", err))
		}
		statusCache = cache.NewOrderStatusCache(rdb, cfg.OrderStatusCacheTTL)
		orderLimiter = cache.NewRateLimiter(rdb, "orders", cfg.OrderRateLimit, cfg.OrderRateWindow)
	}

	//Kafka（任意）
	var events usecase.OrderEventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.KafkaOrderEventsTopic, 256, logger)
		producer.Start()
		defer producer.Close()
		events = producer
	}

	//Usecase生成
	orderUC := usecase.NewOrderUsecase(txm, listingRepo, orderRepo, historyRepo, statusCache, events, logger)
	adminOrderUC := usecase.NewAdminOrderUsecase(orderRepo)
	listingUC := usecase.NewListingUsecase(txm, listingRepo)
	auditUC := usecase.NewAuditLogUsecase(auditRepo, listingRepo)

	//Handler生成
	e := server.New(cfg, server.Handlers{
		Orders:      handler.NewOrderHandler(orderUC),
		AdminOrders: handler.NewAdminOrderHandler(adminOrderUC),
		Listings:    handler.NewListingHandler(listingUC),
		AuditLogs:   handler.NewAuditLogHandler(auditUC),
		Health:      sqlDB.PingContext,
	}, orderLimiter, logger)

	//Server起動
	return server.Run(ctx, e, cfg.Addr(), logger)
}
