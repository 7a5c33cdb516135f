package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tempbox/backend/internal/billing"
	"tempbox/backend/internal/config"
	"tempbox/backend/internal/health"
	"tempbox/backend/internal/logger"
	"tempbox/backend/internal/monitoring"
	"tempbox/backend/internal/retry"
	"tempbox/backend/internal/service"
	"tempbox/backend/internal/smtp"
	"tempbox/backend/internal/storage"
	"tempbox/backend/internal/storage/memory"
	rediscache "tempbox/backend/internal/storage/redis"
	sqlstore "tempbox/backend/internal/storage/sql"
	httptransport "tempbox/backend/internal/transport/http"
	"tempbox/backend/internal/verification"
)

// main 启动同时包含 HTTP API 与 SMTP 的综合服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync() //nolint:errcheck

	log.Info("starting tempbox server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		// 数据库可能晚于本服务就绪，带退避重试连接
		err = retry.Do(context.Background(), retry.Policy{MaxAttempts: 5, BaseDelay: 2 * time.Second},
			func(ctx context.Context) error {
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
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer store.Close() //nolint:errcheck

	// 初始化 Redis 缓存（可选）
	var cache *rediscache.Cache
	if cfg.Redis.Address != "" {
		cache, err = rediscache.NewCache(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("failed to connect to redis, continuing without cache", zap.Error(err))
		} else {
			log.Info("redis cache connected", zap.String("address", cfg.Redis.Address))
			defer cache.Close() //nolint:errcheck
		}
	}

	// 初始化监控与健康检查
	metrics := monitoring.New()
	healthHandler := health.NewHandler(store, cache)

	// 初始化服务层
	codes := verification.NewGenerator(cfg.Verification.Secret, verification.Mode(cfg.Verification.Mode))
	quotaService := service.NewQuotaService(store, cfg, codes, log)
	tokenService := service.NewTokenService(store, cfg)

	billingClient := billing.NewClient(cfg.Billing.BaseURL, cfg.Billing.UserAgent, cfg.Billing.HTTPTimeout)
	syncService := service.NewCreditSyncService(store, billingClient, cfg.Billing.RequestDelay, cache, metrics, log)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:       cfg,
		QuotaService: quotaService,
		TokenService: tokenService,
		SyncService:  syncService,
		Store:        store,
		Cache:        cache,
		Metrics:      metrics,
		Health:       healthHandler,
		Logger:       log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 创建 SMTP 服务器
	smtpBackend := smtp.NewBackend(store, cfg.Mailbox.AllowedDomains, log)
	smtpServer := smtp.NewServer(smtpBackend, cfg.SMTP.BindAddr, cfg.SMTP.Domain)

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting SMTP server",
			zap.String("address", cfg.SMTP.BindAddr),
			zap.String("domain", cfg.SMTP.Domain),
		)
		if err := smtpServer.ListenAndServe(); err != nil && groupCtx.Err() == nil {
			log.Error("SMTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 定时额度同步 goroutine（仅在配置了账单门户时启动）
	if cfg.Billing.BaseURL != "" {
		group.Go(func() error {
			ticker := time.NewTicker(cfg.Billing.SyncInterval)
			defer ticker.Stop()

			log.Info("starting credit sync scheduler", zap.Duration("interval", cfg.Billing.SyncInterval))

			for {
				select {
				case <-groupCtx.Done():
					log.Info("credit sync scheduler stopped")
					return nil
				case <-ticker.C:
					if _, err := syncService.Run(groupCtx); err != nil && groupCtx.Err() == nil {
						log.Error("scheduled credit sync failed", zap.Error(err))
					}
				}
			}
		})
	} else {
		log.Info("billing portal not configured, credit sync scheduler disabled")
	}

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := smtpServer.Close(); err != nil {
			log.Error("SMTP server shutdown error", zap.Error(err))
		}
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server exited with error", zap.Error(err))
	}
	log.Info("server stopped")
}
