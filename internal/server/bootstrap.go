package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"atsboost/internal/ai"
	"atsboost/internal/cache"
	"atsboost/internal/config"
	apperrors "atsboost/internal/errors"
	"atsboost/internal/notify"
	"atsboost/internal/scoring"
	"atsboost/internal/store"
	"atsboost/internal/webhook"

	"github.com/redis/go-redis/v9"
)

const promptReloadDebounce = 500 * time.Millisecond

// Components owns the connections opened for a server run
type Components struct {
	Deps    Dependencies
	closers []func() error
}

// Close releases every opened connection
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Bootstrap opens the collaborators described by cfg. The payment webhook
// is wired only when a webhook secret and a datastore are configured.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *apperrors.Logger) (*Components, error) {
	if logger == nil {
		logger = apperrors.NewNopLogger()
	}
	c := &Components{}

	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			PoolSize:     cfg.Redis.PoolSize,
		})
		c.closers = append(c.closers, redisClient.Close)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.LogError(err, "Redis not reachable at startup", "address", cfg.Redis.Address)
		}
	}

	analysisCache := buildCache(ctx, cfg, redisClient)

	var random scoring.RandomSource
	if cfg.Scoring.Seed != 0 {
		random = scoring.NewSeededSource(cfg.Scoring.Seed)
	}

	svc, err := ai.NewService(ctx, cfg, ai.ServiceOptions{Cache: analysisCache, Random: random}, logger)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Deps.Analysis = svc

	if cfg.AI.Prompts.Watch {
		c.Deps.PromptWatcher = config.NewPromptWatcher(cfg.AI.Prompts, promptReloadDebounce,
			func(ps config.PromptSet) { svc.SetPrompts(ps.System, ps.User) }, logger)
	}

	if err := bootstrapWebhook(ctx, cfg, c, redisClient, logger); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func buildCache(ctx context.Context, cfg *config.Config, client *redis.Client) cache.Cache {
	if !cfg.Cache.Enabled {
		return nil
	}
	if cfg.Cache.Backend == config.CacheBackendRedis && client != nil {
		return cache.NewRedisCache(client, cfg.Cache.Namespace, cfg.Cache.TTL)
	}
	mem := cache.NewMemoryCache(cfg.Cache.TTL, cfg.Cache.MaxEntries)
	if cfg.Cache.CleanupInterval > 0 {
		mem.StartCleanup(ctx, cfg.Cache.CleanupInterval)
	}
	return mem
}

func bootstrapWebhook(ctx context.Context, cfg *config.Config, c *Components, redisClient *redis.Client, logger *apperrors.Logger) error {
	if err := cfg.ValidateWebhook(); err != nil {
		logger.Warn("Payment webhook disabled", "reason", err.Error())
		return nil
	}

	pg, err := store.Open(cfg.Datastore)
	if err != nil {
		return apperrors.NewStorageError(apperrors.ErrCodeStorageFailed, "failed to open datastore", err)
	}
	c.closers = append(c.closers, pg.Close)
	c.Deps.Datastore = pg

	if cfg.Datastore.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			return apperrors.NewStorageError(apperrors.ErrCodeStorageFailed, "failed to migrate datastore", err)
		}
		logger.Info("Datastore schema migrated")
	}

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Notify.Enabled {
		sns, err := notify.NewSNSNotifier(ctx, cfg.Notify.Region, cfg.Notify.TopicARN)
		if err != nil {
			return fmt.Errorf("failed to create SNS notifier: %w", err)
		}
		notifier = sns
	}

	c.Deps.Processor = webhook.NewProcessor(pg, notifier, cfg.Payments.PaymentMethod, logger)
	secret := webhook.NewRotatingSecret(cfg.Payments.WebhookSecret)
	c.Deps.WebhookSecret = secret

	if cfg.Payments.Idempotency.Enabled && redisClient != nil {
		c.Deps.Deduplicator = webhook.NewRedisDeduplicator(redisClient, "", cfg.Payments.Idempotency.TTL)
	}

	if cfg.Vault.Enabled && cfg.Vault.Watch.Enabled && cfg.Vault.Secrets.Payments != "" {
		vaultClient, err := config.NewVaultClient(cfg.Vault, logger)
		if err != nil {
			return fmt.Errorf("failed to create Vault client for secret rotation: %w", err)
		}
		c.Deps.SecretWatcher = NewSecretWatcher(vaultClient, cfg.Vault.Secrets.Payments,
			cfg.Vault.Watch.PollInterval, secret, logger)
	}
	return nil
}
