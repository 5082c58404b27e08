package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "ORDERCORE_"

// Configはアプリ全体の設定
type Config struct {
	App      AppConfig      `koanf:"app"`
	Database DatabaseConfig `koanf:"database"`
	Checkout CheckoutConfig `koanf:"checkout"`
	Redis    RedisConfig    `koanf:"redis"`
	Kafka    KafkaConfig    `koanf:"kafka"`
	Outbox   OutboxConfig   `koanf:"outbox"`
	Security SecurityConfig `koanf:"security"`
	Seed     SeedConfig     `koanf:"seed"`
}

type AppConfig struct {
	Name     string `koanf:"name"`
	Env      string `koanf:"env"`       // dev/prod
	HTTPAddr string `koanf:"http_addr"` // :8080
	LogLevel string `koanf:"log_level"`
	LogFile  string `koanf:"log_file"`
}

type DatabaseConfig struct {
	Driver          string        `koanf:"driver"` // postgres / memory
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	// 行ロック待ちの上限（SET LOCAL lock_timeout）
	LockTimeout time.Duration `koanf:"lock_timeout"`
	AutoMigrate bool          `koanf:"auto_migrate"`
}

type CheckoutConfig struct {
	// 注文番号衝突などでトランザクションをやり直す最大回数
	MaxAttempts int `koanf:"max_attempts"`
	// 注文番号の日付に使うタイムゾーン
	Timezone string `koanf:"timezone"`
}

type RedisConfig struct {
	Addr     string        `koanf:"addr"` // 空なら集計キャッシュ無し
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	StatsTTL time.Duration `koanf:"stats_ttl"`
}

type KafkaConfig struct {
	Brokers string `koanf:"brokers"` // カンマ区切り。空ならログ出力のみ
	Topic   string `koanf:"topic"`
}

type OutboxConfig struct {
	Interval  time.Duration `koanf:"interval"`
	BatchSize int           `koanf:"batch_size"`
}

type SecurityConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	Issuer    string        `koanf:"issuer"`
	AccessTTL time.Duration `koanf:"access_ttl"`
}

type SeedConfig struct {
	// memoryドライバ用のデモデータ投入
	Demo bool `koanf:"demo"`
}

// 既定値
func Default() Config {
	return Config{
		App: AppConfig{
			Name:     "ordercore",
			Env:      "dev",
			HTTPAddr: ":8080",
			LogLevel: "info",
			LogFile:  "./logs/app.log",
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    20,
			MaxIdleConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
			LockTimeout:     5 * time.Second,
			AutoMigrate:     true,
		},
		Checkout: CheckoutConfig{
			MaxAttempts: 3,
			Timezone:    "UTC",
		},
		Redis: RedisConfig{
			StatsTTL: 30 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic: "order-events",
		},
		Outbox: OutboxConfig{
			Interval:  time.Second,
			BatchSize: 100,
		},
		Security: SecurityConfig{
			Issuer:    "ordercore",
			AccessTTL: 15 * time.Minute,
		},
	}
}

// Loadは .env → dir/base.yaml → dir/<APP_ENV>.yaml → ORDERCORE_* の順に重ねる。
// 例: ORDERCORE_DATABASE__DSN, ORDERCORE_SECURITY__JWT_SECRET
func Load(dir string) (Config, error) {
	//.envは任意
	_ = godotenv.Load()

	k := koanf.New(".")

	if dir != "" {
		if err := loadYAML(k, filepath.Join(dir, "base.yaml")); err != nil {
			return Config{}, fmt.Errorf("load base: %w", err)
		}
		envName := os.Getenv("APP_ENV")
		if envName == "" {
			envName = "dev"
		}
		if err := loadYAML(k, filepath.Join(dir, envName+".yaml")); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", envName, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	// DATABASE_URL があれば最優先で使う
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.DSN = dsn
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ファイルが無ければ何もしない
func loadYAML(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return k.Load(file.Provider(path), yaml.Parser())
}

func (c Config) Validate() error {
	//必須チェック
	if c.App.HTTPAddr == "" {
		return fmt.Errorf("app.http_addr is required")
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret is required")
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be postgres or memory: %q", c.Database.Driver)
	}
	if c.Database.LockTimeout <= 0 {
		return fmt.Errorf("database.lock_timeout must be positive")
	}
	if c.Checkout.MaxAttempts < 1 {
		return fmt.Errorf("checkout.max_attempts must be >= 1")
	}
	if _, err := time.LoadLocation(c.Checkout.Timezone); err != nil {
		return fmt.Errorf("checkout.timezone: %w", err)
	}
	if c.Outbox.BatchSize < 1 {
		return fmt.Errorf("outbox.batch_size must be >= 1")
	}
	return nil
}

// 注文番号の日付に使うロケーション（Validate済み前提）
func (c CheckoutConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ブローカー一覧（空要素は捨てる）
func (c KafkaConfig) BrokerList() []string {
	brokers := []string{}
	for _, b := range strings.Split(c.Brokers, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
