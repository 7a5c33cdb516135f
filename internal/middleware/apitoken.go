package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tempbox/backend/internal/monitoring"
	"tempbox/backend/internal/service"
)

// APITokenAuth API令牌认证中间件
type APITokenAuth struct {
	tokens  *service.TokenService
	metrics *monitoring.Metrics
}

// NewAPITokenAuth 创建API令牌认证中间件
func NewAPITokenAuth(tokens *service.TokenService, metrics *monitoring.Metrics) *APITokenAuth {
	return &APITokenAuth{
		tokens:  tokens,
		metrics: metrics,
	}
}

// RequireToken 要求有效的API令牌。
// 验证通过即记一次使用：计数自增是持久化写入，
// 写入失败的请求按认证失败处理。
func (m *APITokenAuth) RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.GetHeader("X-API-Token")
		if tokenStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "missing API token",
			})
			c.Abort()
			return
		}

		token, err := m.tokens.Validate(tokenStr)
		if err != nil {
			m.metrics.RecordTokenValidation("rejected")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": authErrorMessage(err),
			})
			c.Abort()
			return
		}

		if err := m.tokens.Use(tokenStr); err != nil {
			m.metrics.RecordTokenValidation("rejected")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": authErrorMessage(err),
			})
			c.Abort()
			return
		}

		m.metrics.RecordTokenValidation("accepted")
		m.metrics.RecordTokenUse()

		c.Set("tokenID", token.ID)
		c.Set("tokenLabel", token.Label)

		c.Next()
	}
}

// authErrorMessage 按错误类型返回对外提示
func authErrorMessage(err error) string {
	switch err {
	case service.ErrTokenExpired:
		return "token expired"
	case service.ErrTokenExhausted:
		return "token usage limit reached"
	default:
		return "invalid API token"
	}
}
