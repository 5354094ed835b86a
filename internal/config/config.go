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
	Port string // サーバーポート（8080）

	DBDriver    string // postgres / sqlite
	DatabaseURL string // あれば最優先

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     int
	PostgresSSLMode  string

	SQLitePath string // DB_DRIVER=sqlite のとき

	JWTSecret string
	JWTTTL    time.Duration

	GoEnv    string // dev/prod
	LogLevel string
	FEURL    string // CORS許可オリジン

	OrderTxTimeout time.Duration // 注文トランザクションの上限時間
	AdminPageSize  int

	RedisAddr       string   // 空ならRedisを使わない
	KafkaBrokers    []string // 空ならイベント送信しない
	KafkaOrderTopic string
}

// Loadは環境変数から設定を読む
func Load() (Config, error) {
	pgPort, err := envInt("POSTGRES_PORT", 5432)
	if err != nil {
		return Config{}, err
	}
	jwtTTL, err := envDuration("JWT_TTL", 24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	txTimeout, err := envDuration("ORDER_TX_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	pageSize, err := envInt("ADMIN_PAGE_SIZE", 10)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port: envDefault("PORT", "8080"),

		DBDriver:    strings.ToLower(envDefault("DB_DRIVER", DBDriverPostgres)),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		PostgresUser:     envDefault("POSTGRES_USER", "postgres"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       envDefault("POSTGRES_DB", "storefront"),
		PostgresHost:     envDefault("POSTGRES_HOST", "localhost"),
		PostgresPort:     pgPort,
		PostgresSSLMode:  envDefault("POSTGRES_SSLMODE", "disable"),

		SQLitePath: envDefault("SQLITE_PATH", "storefront.db"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTTTL:    jwtTTL,

		GoEnv:    envDefault("GO_ENV", "dev"),
		LogLevel: envDefault("LOG_LEVEL", "info"),
		FEURL:    os.Getenv("FE_URL"),

		OrderTxTimeout: txTimeout,
		AdminPageSize:  pageSize,

		RedisAddr:       os.Getenv("REDIS_ADDR"),
		KafkaBrokers:    csv(os.Getenv("KAFKA_BROKERS")),
		KafkaOrderTopic: envDefault("KAFKA_ORDER_TOPIC", "order.events"),
	}

	//必須チェック
	switch cfg.DBDriver {
	case DBDriverPostgres, DBDriverSQLite:
	default:
		return Config{}, fmt.Errorf("DB_DRIVER must be %q or %q", DBDriverPostgres, DBDriverSQLite)
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.OrderTxTimeout <= 0 {
		return Config{}, fmt.Errorf("ORDER_TX_TIMEOUT must be positive")
	}
	if cfg.AdminPageSize < 1 || cfg.AdminPageSize > 100 {
		return Config{}, fmt.Errorf("ADMIN_PAGE_SIZE must be between 1 and 100")
	}

	return cfg, nil
}

// PostgresDSNはDATABASE_URLがあればそれを、なければ個別設定から組み立てる
func (c Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

func (c Config) IsProd() bool {
	return c.GoEnv == "prod"
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be duration: %w", key, err)
	}
	return d, nil
}

func csv(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
