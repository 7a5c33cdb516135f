package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"tempbox/backend/internal/billing"
	"tempbox/backend/internal/config"
	"tempbox/backend/internal/logger"
	"tempbox/backend/internal/retry"
	"tempbox/backend/internal/service"
	"tempbox/backend/internal/storage"
	rediscache "tempbox/backend/internal/storage/redis"
	sqlstore "tempbox/backend/internal/storage/sql"
)

// main 执行一轮完整的额度同步并打印汇总结果。
// 供 cron 等外部调度器一次性调用。
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if cfg.Billing.BaseURL == "" {
		fmt.Fprintln(os.Stderr, "billing portal is not configured (TEMPBOX_BILLING_BASE_URL)")
		os.Exit(1)
	}

	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		fmt.Fprintln(os.Stderr, "database is not configured (TEMPBOX_DATABASE_TYPE / TEMPBOX_DATABASE_DSN)")
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	var store storage.Store
	err = retry.Do(context.Background(), retry.DefaultPolicy(), func(ctx context.Context) error {
		store, err = sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		return err
	})
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer store.Close() //nolint:errcheck

	var cache *rediscache.Cache
	if cfg.Redis.Address != "" {
		cache, err = rediscache.NewCache(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("failed to connect to redis, continuing without cache", zap.Error(err))
		} else {
			defer cache.Close() //nolint:errcheck
		}
	}

	client := billing.NewClient(cfg.Billing.BaseURL, cfg.Billing.UserAgent, cfg.Billing.HTTPTimeout)
	syncService := service.NewCreditSyncService(store, client, cfg.Billing.RequestDelay, cache, nil, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := syncService.Run(ctx)
	if err != nil {
		log.Fatal("credit sync failed", zap.Error(err))
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		log.Fatal("failed to encode summary", zap.Error(err))
	}
	fmt.Println(string(out))

	if summary.Errors > 0 {
		os.Exit(2)
	}
}
