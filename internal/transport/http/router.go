package httptransport

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/middleware"
	"tempbox/backend/internal/monitoring"
	"tempbox/backend/internal/service"
	"tempbox/backend/internal/storage"
	rediscache "tempbox/backend/internal/storage/redis"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config       *config.Config
	QuotaService *service.QuotaService
	TokenService *service.TokenService
	SyncService  *service.CreditSyncService
	Store        storage.Store
	Cache        *rediscache.Cache // 可为 nil
	Metrics      *monitoring.Metrics
	Health       healthcheck.Handler
	Logger       *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	// 使用自定义中间件替代默认中间件
	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())

	// 全局请求体大小限制 1MB，本服务没有大体积请求
	router.Use(middleware.RequestSizeLimit(1 * 1024 * 1024))

	// CORS 配置
	router.Use(gincors.New(gincors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Token"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	// 创建处理器
	tokenHandler := NewTokenHandler(deps.TokenService, deps.Metrics)
	mailboxHandler := NewMailboxHandler(deps.QuotaService, deps.Store, deps.Metrics)
	automationHandler := NewAutomationHandler(deps.Config.Automation, deps.SyncService, deps.Store, deps.Logger)

	// 创建中间件
	tokenAuth := middleware.NewAPITokenAuth(deps.TokenService, deps.Metrics)
	adminAuth := requireAdminSecret(deps.Config.Automation.Secret)

	// 探针与指标
	if deps.Health != nil {
		router.GET("/health", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	} else {
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// V1 API
	v1 := router.Group("/v1")
	{
		// ========== Automation Routes（调度器对接，自带鉴权） ==========
		v1.POST("/automation", automationHandler.Handle)

		// ========== Token Routes（管理面，需要管理口令） ==========
		tokenRoutes := v1.Group("/tokens")
		tokenRoutes.Use(adminAuth)
		{
			tokenRoutes.POST("", tokenHandler.CreateToken)            // 创建令牌
			tokenRoutes.GET("", tokenHandler.ListTokens)              // 列出令牌
			tokenRoutes.POST("/validate", tokenHandler.ValidateToken) // 验证令牌（不记使用）
			tokenRoutes.DELETE("/:token", tokenHandler.RevokeToken)   // 吊销令牌
			tokenRoutes.GET("/:token/stats", tokenHandler.TokenStats) // 使用统计
		}

		// ========== Mailbox Routes（需要API令牌） ==========
		mailboxRoutes := v1.Group("/mailboxes")
		mailboxRoutes.Use(tokenAuth.RequireToken())
		{
			mailboxRoutes.POST("", mailboxHandler.CreateMailbox)                            // 创建单个邮箱
			mailboxRoutes.POST("/allocate", mailboxHandler.AllocateMailboxes)               // 批量分配
			mailboxRoutes.GET("/:address/verification-code", mailboxHandler.VerificationCode) // 验证码
		}

		// ========== Anonymous Routes（无需认证） ==========
		v1.POST("/anonymous-mailboxes", mailboxHandler.CreateAnonymousMailbox)

		// ========== User Routes（需要API令牌） ==========
		userRoutes := v1.Group("/users")
		userRoutes.Use(tokenAuth.RequireToken())
		{
			userRoutes.GET("/:id/mailboxes", mailboxHandler.ListMailboxes) // 邮箱列表
			userRoutes.GET("/:id/quota", mailboxHandler.QuotaStatus)       // 配额状态
		}

		// ========== Sync Routes（管理面） ==========
		if deps.Cache != nil {
			v1.GET("/sync/last-summary", adminAuth, func(c *gin.Context) {
				summary, err := deps.Cache.GetLastSyncSummary(c.Request.Context())
				if err != nil {
					InternalError(c, MsgInternalError)
					return
				}
				if summary == nil {
					NotFound(c, "尚未执行过同步")
					return
				}
				Success(c, summary)
			})
		}
	}

	return router
}

// requireAdminSecret 管理面端点的 Bearer 口令校验
func requireAdminSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		provided := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") ||
			subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
