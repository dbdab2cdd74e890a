package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

// Configはアプリ全体の設定
type Config struct {
	Port  string // サーバーポート（8080）
	GoEnv string // dev/prod

	JWTSecret string // JWT署名シークレット（認証基盤と共有）

	DBDriver    string // postgres / sqlite
	DatabaseURL string // あれば最優先

	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	SQLitePath string // ローカル開発用

	RedisAddr string // 空ならキャッシュ・流量制限は無効
	RedisDB   int

	KafkaBrokers          []string // 空ならイベント送信は無効
	KafkaOrderEventsTopic string

	// 注文作成の流量制限（ユーザー単位）
	OrderRateLimit  int
	OrderRateWindow time.Duration

	OrderStatusCacheTTL time.Duration
}

// Loadは環境変数
func Load() (Config, error) {
	cfg := Config{
		Port:  os.Getenv("PORT"),
		GoEnv: getenv("GO_ENV", "dev"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		DBDriver:    strings.ToLower(getenv("DB_DRIVER", DBDriverPostgres)),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		PostgresHost:     getenv("POSTGRES_HOST", "localhost"),
		PostgresUser:     getenv("POSTGRES_USER", "postgres"),
		PostgresPassword: getenv("POSTGRES_PASSWORD", "postgres"),
		PostgresDB:       getenv("POSTGRES_DB", "market"),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		SQLitePath: getenv("SQLITE_PATH", "market.db"),

		RedisAddr: os.Getenv("REDIS_ADDR"),

		KafkaBrokers:          splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaOrderEventsTopic: getenv("KAFKA_TOPIC_ORDER_EVENTS", "market.order.events"),
	}

	var err error
	if cfg.PostgresPort, err = atoiDefault("POSTGRES_PORT", 5432); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = atoiDefault("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.OrderRateLimit, err = atoiDefault("ORDER_RATE_LIMIT", 20); err != nil {
		return Config{}, err
	}
	windowSec, err := atoiDefault("ORDER_RATE_WINDOW_SEC", 60)
	if err != nil {
		return Config{}, err
	}
	cfg.OrderRateWindow = time.Duration(windowSec) * time.Second

	ttlSec, err := atoiDefault("ORDER_STATUS_CACHE_TTL_SEC", 300)
	if err != nil {
		return Config{}, err
	}
	cfg.OrderStatusCacheTTL = time.Duration(ttlSec) * time.Second

	//必須チェック
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("PORT is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	switch cfg.DBDriver {
	case DBDriverPostgres, DBDriverSQLite:
	default:
		return Config{}, fmt.Errorf("DB_DRIVER must be postgres or sqlite")
	}
	if cfg.OrderRateLimit <= 0 {
		return Config{}, fmt.Errorf("ORDER_RATE_LIMIT must be > 0")
	}
	if windowSec <= 0 {
		return Config{}, fmt.Errorf("ORDER_RATE_WINDOW_SEC must be > 0")
	}
	if ttlSec <= 0 {
		return Config{}, fmt.Errorf("ORDER_STATUS_CACHE_TTL_SEC must be > 0")
	}

	return cfg, nil
}

// ":8080" 形式のアドレス
func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func getenv(key string, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func atoiDefault(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
