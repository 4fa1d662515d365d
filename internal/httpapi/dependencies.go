package httpapi

import (
	"context"
	"fmt"
	"time"

	"lang_gateway/internal/archive"
	"lang_gateway/internal/auth"
	"lang_gateway/internal/billing"
	"lang_gateway/internal/config"
	"lang_gateway/internal/cost"
	"lang_gateway/internal/ledger"
	"lang_gateway/internal/metrics"
	"lang_gateway/internal/middleware"
	"lang_gateway/internal/models"
	"lang_gateway/internal/queue"
	"lang_gateway/internal/ratelimit"
	"lang_gateway/internal/storage"
	"lang_gateway/internal/utils"
)

// HealthChecker is a backing service reporting its health
type HealthChecker interface {
	Health(ctx context.Context) error
}

// UsageSummarizer aggregates the usage audit trail of a key
type UsageSummarizer interface {
	SummarizeByAPIKey(ctx context.Context, apiKey string, since time.Time) ([]storage.UsageSummary, error)
}

// Dependencies aggregates all services the HTTP layer and the background jobs need.
type Dependencies struct {
	DB    *storage.DB
	Redis *storage.RedisClient

	Keys             *storage.APIKeyRepository
	KeyInvalidations *storage.KeyInvalidationBus

	Registry   *auth.Registry
	Ledger     ledger.Store
	Tracker    *billing.Tracker
	Reconciler *billing.Reconciler
	Scheduler  *billing.Scheduler
	Metrics    metrics.Metrics

	Usage       UsageSummarizer
	RateLimiter middleware.RequestLimiter
	UsageWorker *storage.UsageQueueWorker

	HealthChecks map[string]HealthChecker
}

// NewDependencies connects to Postgres and Redis, applies the schema and wires the
// metering services.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	logger := utils.NewLogger("startup")

	dbConfig := storage.DBConfig{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		APIKeyCacheSize: cfg.Cache.APIKeyCacheSize,
		APIKeyCacheTTL:  cfg.Cache.APIKeyCacheTTL,
	}

	db, err := storage.NewDB(ctx, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	redisConfig := storage.RedisConfig{
		Address:      cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}

	redisClient, err := storage.NewRedisClient(ctx, redisConfig)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	// Every process publishes key writes; the gateway also listens (see Start)
	keys := db.NewAPIKeyRepository()
	keyInvalidations := storage.NewKeyInvalidationBus(redisClient.Client(), storage.DefaultKeyInvalidationChannel)
	keys.SetInvalidationPublisher(keyInvalidations)

	registry := auth.NewRegistry(keys, cfg.Quota.TrialCharacterLimit, nil)
	ledgerStore := storage.NewLedgerStore(redisClient.Client(), cfg.Redis.LedgerPrefix)
	collector := metrics.New()

	// Usage audit trail
	usageQueueCfg := queue.DefaultConfig("usage")
	usageQueueCfg.BatchSize = cfg.Usage.BatchSize
	usageQueueCfg.BatchTimeout = cfg.Usage.BatchTimeout
	usageQueueCfg.MaxRetries = cfg.Usage.MaxRetries
	usageQueueCfg.RetryBackoff = cfg.Usage.RetryBackoff
	usageQueueCfg.Capacity = cfg.Usage.Capacity

	queueClient := redisClient.Client()
	if cfg.Usage.Backend == "memory" {
		queueClient = nil
	}
	usageQueue, usageDLQ := queue.New[*models.UsageRecord](usageQueueCfg, queueClient)
	usageRepo := db.NewUsageRepository()
	usageWorker := storage.NewUsageQueueWorker(usageQueue, usageDLQ, usageRepo, usageQueueCfg)
	if cfg.Archive.S3Bucket != "" {
		archiver, err := archive.NewS3Archiver(ctx, archive.Config{
			Bucket:   cfg.Archive.S3Bucket,
			Region:   cfg.Archive.S3Region,
			Prefix:   cfg.Archive.S3Prefix,
			Instance: cfg.Archive.Instance,
		})
		if err != nil {
			redisClient.Close()
			db.Close()
			return nil, fmt.Errorf("failed to initialize usage archive: %w", err)
		}
		usageWorker.SetArchiver(archiver)
	}

	provider := NewBillingProvider(cfg.Billing)
	reconciler := billing.NewReconciler(registry, ledgerStore, provider, collector)
	reconciler.SetPendingStore(storage.NewPendingReportStore(redisClient.Client(), storage.DefaultPendingReportPrefix))

	logger.Info("Dependencies initialized",
		"billing_provider", provider.Name(), "usage_queue", cfg.Usage.Backend,
		"usage_archive", cfg.Archive.S3Bucket != "")

	return &Dependencies{
		DB:               db,
		Redis:            redisClient,
		Keys:             keys,
		KeyInvalidations: keyInvalidations,
		Registry:         registry,
		Ledger:           ledgerStore,
		Tracker:          billing.NewTracker(registry, ledgerStore, cost.DefaultTable(), usageWorker, collector),
		Reconciler:       reconciler,
		Scheduler:        billing.NewScheduler(reconciler, cfg.Billing.ReconcileSchedule, cfg.Billing.ReconcileTimeout),
		Metrics:          collector,
		Usage:            usageRepo,
		RateLimiter:      ratelimit.NewRateLimiter(redisClient.Client(), cfg.Quota.RequestsPerMinute, ratelimit.DefaultWindow),
		UsageWorker:      usageWorker,
		HealthChecks:     map[string]HealthChecker{"postgres": db, "redis": redisClient},
	}, nil
}

// NewBillingProvider returns the configured billing provider
func NewBillingProvider(cfg config.BillingConfig) billing.Provider {
	switch cfg.Provider {
	case config.BillingProviderCheddar:
		return billing.NewCheddarProvider(billing.CheddarConfig{
			BaseURL:     cfg.CheddarBaseURL,
			Username:    cfg.CheddarUsername,
			Password:    cfg.CheddarPassword,
			ProductCode: cfg.CheddarProductCode,
			ItemCode:    cfg.CheddarItemCode,
		})
	case config.BillingProviderStripe:
		return billing.NewStripeProvider(cfg.StripeSecretKey)
	}
	return billing.NewNoopProvider()
}

// Start subscribes to key invalidations and launches the usage worker and the
// reconciliation schedule
func (d *Dependencies) Start(ctx context.Context) error {
	if d.KeyInvalidations != nil && d.Keys != nil {
		if err := d.KeyInvalidations.Listen(ctx, d.Keys.Evict); err != nil {
			return err
		}
	}
	if d.UsageWorker != nil {
		d.UsageWorker.Start(ctx)
	}
	if d.Scheduler != nil {
		if err := d.Scheduler.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Close stops background work and releases connections. The usage worker drains its
// batch in flight before the stores are closed.
func (d *Dependencies) Close() {
	if d.Scheduler != nil {
		d.Scheduler.Stop()
	}
	if d.UsageWorker != nil {
		_ = d.UsageWorker.Stop()
	}
	if d.Redis != nil {
		utils.LogError(d.Redis.Close())
	}
	if d.DB != nil {
		utils.LogError(d.DB.Close())
	}
}
