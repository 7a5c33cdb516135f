package httptransport

import (
	"time"

	"github.com/gin-gonic/gin"

	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/monitoring"
	"tempbox/backend/internal/service"
)

// TokenHandler API令牌管理处理器
type TokenHandler struct {
	tokens  *service.TokenService
	metrics *monitoring.Metrics
}

// NewTokenHandler 创建令牌处理器
func NewTokenHandler(tokens *service.TokenService, metrics *monitoring.Metrics) *TokenHandler {
	return &TokenHandler{
		tokens:  tokens,
		metrics: metrics,
	}
}

// createTokenRequest 创建令牌请求
type createTokenRequest struct {
	Label     string `json:"label" binding:"required"` // 令牌用途说明
	ExpiresIn string `json:"expiresIn,omitempty"`      // 有效期（如 "720h" 表示30天）
}

// tokenResponse 令牌响应
type tokenResponse struct {
	ID         string     `json:"id"`
	Token      string     `json:"token"`
	Label      string     `json:"label"`
	UsageCount int64      `json:"usageCount"`
	Revoked    bool       `json:"revoked"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

// CreateToken 创建新的API令牌。
// 完整令牌字符串只在创建响应中出现一次，列表接口做脱敏显示。
func (h *TokenHandler) CreateToken(c *gin.Context) {
	var req createTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	var expiresIn *time.Duration
	if req.ExpiresIn != "" {
		duration, err := time.ParseDuration(req.ExpiresIn)
		if err != nil {
			BadRequest(c, MsgInvalidExpiresIn)
			return
		}
		expiresIn = &duration
	}

	token, err := h.tokens.Create(service.CreateTokenInput{
		Label:     req.Label,
		ExpiresIn: expiresIn,
	})
	if err != nil {
		InternalError(c, MsgTokenCreateFailed)
		return
	}

	Created(c, toTokenResponse(token, false))
}

// ListTokens 获取令牌列表，令牌字符串脱敏显示。
func (h *TokenHandler) ListTokens(c *gin.Context) {
	tokens, err := h.tokens.List()
	if err != nil {
		InternalError(c, MsgTokenListFailed)
		return
	}

	items := make([]tokenResponse, 0, len(tokens))
	for _, token := range tokens {
		items = append(items, toTokenResponse(token, true))
	}

	Success(c, gin.H{
		"items": items,
		"count": len(items),
	})
}

// validateTokenRequest 验证令牌请求
type validateTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// ValidateToken 验证令牌有效性，不记使用计数。
func (h *TokenHandler) ValidateToken(c *gin.Context) {
	var req validateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	token, err := h.tokens.Validate(req.Token)
	if err != nil {
		h.metrics.RecordTokenValidation("rejected")
		switch err {
		case service.ErrInvalidToken, service.ErrTokenExpired, service.ErrTokenExhausted:
			Unauthorized(c, GetErrorMessage(err))
		default:
			InternalError(c, MsgInternalError)
		}
		return
	}

	h.metrics.RecordTokenValidation("accepted")
	Success(c, toTokenResponse(token, true))
}

// RevokeToken 吊销令牌。吊销是终态，不可恢复。
func (h *TokenHandler) RevokeToken(c *gin.Context) {
	tokenStr := c.Param("token")

	if err := h.tokens.Revoke(tokenStr); err != nil {
		if err == service.ErrInvalidToken {
			NotFound(c, MsgTokenNotFound)
			return
		}
		InternalError(c, MsgTokenRevokeFailed)
		return
	}

	NoContent(c)
}

// TokenStats 获取令牌使用统计。
func (h *TokenHandler) TokenStats(c *gin.Context) {
	tokenStr := c.Param("token")

	stats, err := h.tokens.Stats(tokenStr)
	if err != nil {
		if err == service.ErrInvalidToken {
			NotFound(c, MsgTokenNotFound)
			return
		}
		InternalError(c, MsgTokenStatsFailed)
		return
	}

	Success(c, stats)
}

// toTokenResponse 转换实体为响应体
func toTokenResponse(token *domain.APIToken, mask bool) tokenResponse {
	tokenStr := token.Token
	if mask {
		tokenStr = maskToken(tokenStr)
	}
	return tokenResponse{
		ID:         token.ID,
		Token:      tokenStr,
		Label:      token.Label,
		UsageCount: token.UsageCount,
		Revoked:    token.Revoked,
		CreatedAt:  token.CreatedAt,
		ExpiresAt:  token.ExpiresAt,
		LastUsedAt: token.LastUsedAt,
	}
}

// maskToken 脱敏显示令牌
// 只显示前8个字符和后4个字符，中间用*代替
func maskToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:8] + "****" + token[len(token)-4:]
}
