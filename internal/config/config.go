package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Billing providers
const (
	BillingProviderNone    = "none"
	BillingProviderCheddar = "cheddar"
	BillingProviderStripe  = "stripe"
)

// Config holds configuration for the gateway.
type Config struct {
	HTTPPort string
	Log      LogConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Redis    RedisConfig
	Quota    QuotaConfig
	Billing  BillingConfig
	Usage    UsageQueueConfig
	Archive  ArchiveConfig
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string // json or text
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// CacheConfig holds cache settings
type CacheConfig struct {
	APIKeyCacheSize int
	APIKeyCacheTTL  time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LedgerPrefix string
}

// QuotaConfig holds plan defaults
type QuotaConfig struct {
	TrialCharacterLimit int64
	RequestsPerMinute   int // per-key request rate guard, 0 disables it
}

// BillingConfig selects and configures the external billing provider
type BillingConfig struct {
	Provider          string // none, cheddar or stripe
	ReconcileSchedule string // cron spec
	ReconcileTimeout  time.Duration

	CheddarBaseURL     string
	CheddarUsername    string
	CheddarPassword    string
	CheddarProductCode string
	CheddarItemCode    string

	StripeSecretKey string
}

// UsageQueueConfig holds settings of the usage audit queue
type UsageQueueConfig struct {
	Backend      string // memory or redis
	BatchSize    int
	BatchTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	Capacity     int
}

// ArchiveConfig selects the S3 bucket persisted usage batches are copied to. An empty
// bucket disables archiving.
type ArchiveConfig struct {
	S3Bucket string
	S3Region string
	S3Prefix string
	Instance string
}

func defaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	v.SetDefault("CACHE_API_KEY_SIZE", 1000)
	v.SetDefault("CACHE_API_KEY_TTL", 5*time.Minute)

	v.SetDefault("REDIS_ADDRESS", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 2)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_LEDGER_PREFIX", "usage:")

	v.SetDefault("TRIAL_CHARACTER_LIMIT", 10_000)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 0)

	v.SetDefault("BILLING_PROVIDER", BillingProviderNone)
	v.SetDefault("RECONCILE_SCHEDULE", "@every 3h")
	v.SetDefault("RECONCILE_TIMEOUT", 10*time.Minute)
	v.SetDefault("CHEDDAR_BASE_URL", "https://getcheddar.com")
	v.SetDefault("CHEDDAR_ITEM_CODE", "thousand_chars")

	v.SetDefault("USAGE_QUEUE_BACKEND", "redis")
	v.SetDefault("USAGE_QUEUE_BATCH_SIZE", 100)
	v.SetDefault("USAGE_QUEUE_BATCH_TIMEOUT", 5*time.Second)
	v.SetDefault("USAGE_QUEUE_MAX_RETRIES", 3)
	v.SetDefault("USAGE_QUEUE_RETRY_BACKOFF", 1*time.Second)
	v.SetDefault("USAGE_QUEUE_CAPACITY", 10_000)

	v.SetDefault("ARCHIVE_S3_REGION", "us-east-1")
	v.SetDefault("ARCHIVE_S3_PREFIX", "usage/")
	v.SetDefault("HOSTNAME", "gateway")
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from an optional .env/yaml file overlaid by environment
// variables. Environment variables always win.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Load database configuration
	dbURL := v.GetString("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		HTTPPort: v.GetString("HTTP_PORT"),
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Database: DatabaseConfig{
			URL:             dbURL,
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime: v.GetDuration("DB_CONN_MAX_IDLE_TIME"),
		},
		Cache: CacheConfig{
			APIKeyCacheSize: v.GetInt("CACHE_API_KEY_SIZE"),
			APIKeyCacheTTL:  v.GetDuration("CACHE_API_KEY_TTL"),
		},
		Redis: RedisConfig{
			Address:      v.GetString("REDIS_ADDRESS"),
			Password:     v.GetString("REDIS_PASSWORD"),
			DB:           v.GetInt("REDIS_DB"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
			DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("REDIS_WRITE_TIMEOUT"),
			LedgerPrefix: v.GetString("REDIS_LEDGER_PREFIX"),
		},
		Quota: QuotaConfig{
			TrialCharacterLimit: v.GetInt64("TRIAL_CHARACTER_LIMIT"),
			RequestsPerMinute:   v.GetInt("RATE_LIMIT_PER_MINUTE"),
		},
		Billing: BillingConfig{
			Provider:           strings.ToLower(v.GetString("BILLING_PROVIDER")),
			ReconcileSchedule:  v.GetString("RECONCILE_SCHEDULE"),
			ReconcileTimeout:   v.GetDuration("RECONCILE_TIMEOUT"),
			CheddarBaseURL:     v.GetString("CHEDDAR_BASE_URL"),
			CheddarUsername:    v.GetString("CHEDDAR_USERNAME"),
			CheddarPassword:    v.GetString("CHEDDAR_PASSWORD"),
			CheddarProductCode: v.GetString("CHEDDAR_PRODUCT_CODE"),
			CheddarItemCode:    v.GetString("CHEDDAR_ITEM_CODE"),
			StripeSecretKey:    v.GetString("STRIPE_SECRET_KEY"),
		},
		Usage: UsageQueueConfig{
			Backend:      strings.ToLower(v.GetString("USAGE_QUEUE_BACKEND")),
			BatchSize:    v.GetInt("USAGE_QUEUE_BATCH_SIZE"),
			BatchTimeout: v.GetDuration("USAGE_QUEUE_BATCH_TIMEOUT"),
			MaxRetries:   v.GetInt("USAGE_QUEUE_MAX_RETRIES"),
			RetryBackoff: v.GetDuration("USAGE_QUEUE_RETRY_BACKOFF"),
			Capacity:     v.GetInt("USAGE_QUEUE_CAPACITY"),
		},
		Archive: ArchiveConfig{
			S3Bucket: v.GetString("ARCHIVE_S3_BUCKET"),
			S3Region: v.GetString("ARCHIVE_S3_REGION"),
			S3Prefix: v.GetString("ARCHIVE_S3_PREFIX"),
			Instance: v.GetString("HOSTNAME"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Billing.Provider {
	case BillingProviderNone:
	case BillingProviderCheddar:
		if c.Billing.CheddarProductCode == "" || c.Billing.CheddarUsername == "" {
			return fmt.Errorf("CHEDDAR_PRODUCT_CODE and CHEDDAR_USERNAME are required for the cheddar billing provider")
		}
	case BillingProviderStripe:
		if c.Billing.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required for the stripe billing provider")
		}
	default:
		return fmt.Errorf("unknown BILLING_PROVIDER %q", c.Billing.Provider)
	}

	switch c.Usage.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown USAGE_QUEUE_BACKEND %q", c.Usage.Backend)
	}

	if c.Quota.RequestsPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative")
	}

	if c.Quota.TrialCharacterLimit <= 0 {
		return fmt.Errorf("TRIAL_CHARACTER_LIMIT must be positive")
	}
	return nil
}
