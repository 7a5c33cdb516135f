package service

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/storage"
)

var (
	// ErrInvalidToken 令牌不存在或已吊销
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired 令牌已过期
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenExhausted 令牌调用次数已达上限
	ErrTokenExhausted = errors.New("token exhausted")
)

// TokenService API令牌业务逻辑服务
//
// 令牌验证失败一律以类型化错误上报调用方，绝不静默当作成功。
type TokenService struct {
	store    storage.Store
	maxUsage int64 // 单令牌调用上限，0 表示不限
}

// NewTokenService 创建令牌服务
func NewTokenService(store storage.Store, cfg *config.Config) *TokenService {
	return &TokenService{
		store:    store,
		maxUsage: cfg.Token.MaxUsage,
	}
}

// CreateTokenInput 创建令牌的输入参数
type CreateTokenInput struct {
	Label     string
	ExpiresIn *time.Duration // 有效期（可选，nil 表示永不过期）
}

// Create 创建新的 API 令牌
//
// 令牌字符串来自加密安全随机源，与验证码的弱哈希无关。
func (s *TokenService) Create(input CreateTokenInput) (*domain.APIToken, error) {
	tokenStr, err := generateOpaqueToken()
	if err != nil {
		return nil, err
	}

	var expiresAt *time.Time
	if input.ExpiresIn != nil {
		t := time.Now().UTC().Add(*input.ExpiresIn)
		expiresAt = &t
	}

	token := &domain.APIToken{
		ID:        uuid.New().String(),
		Token:     tokenStr,
		Label:     input.Label,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	}

	if err := s.store.SaveAPIToken(token); err != nil {
		return nil, err
	}

	return token, nil
}

// Validate 验证令牌并返回令牌记录
//
// 失败类型：
//   - ErrInvalidToken: 令牌不存在或已吊销
//   - ErrTokenExpired: 已过期
//   - ErrTokenExhausted: 调用次数达到配置上限
func (s *TokenService) Validate(tokenStr string) (*domain.APIToken, error) {
	token, err := s.store.GetAPITokenByToken(tokenStr)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if token.Revoked {
		return nil, ErrInvalidToken
	}

	if token.IsExpired(time.Now().UTC()) {
		return nil, ErrTokenExpired
	}

	if s.maxUsage > 0 && token.UsageCount >= s.maxUsage {
		return nil, ErrTokenExhausted
	}

	return token, nil
}

// Use 记录一次授权调用：原子自增使用计数并刷新最后使用时间。
//
// 每次授权请求恰好调用一次；自增是持久化写入，
// 没有对应落库的调用不允许成功。
func (s *TokenService) Use(tokenStr string) error {
	token, err := s.Validate(tokenStr)
	if err != nil {
		return err
	}
	return s.store.TouchAPIToken(token.ID, time.Now().UTC())
}

// Revoke 吊销令牌，之后 Validate 返回 ErrInvalidToken。
func (s *TokenService) Revoke(tokenStr string) error {
	token, err := s.store.GetAPITokenByToken(tokenStr)
	if err != nil {
		return ErrInvalidToken
	}

	token.Revoked = true
	return s.store.UpdateAPIToken(token)
}

// Stats 返回令牌使用统计。
func (s *TokenService) Stats(tokenStr string) (*domain.TokenStats, error) {
	token, err := s.store.GetAPITokenByToken(tokenStr)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &domain.TokenStats{
		UsageCount: token.UsageCount,
		LastUsedAt: token.LastUsedAt,
	}, nil
}

// List 返回全部令牌。
func (s *TokenService) List() ([]*domain.APIToken, error) {
	return s.store.ListAPITokens()
}

// generateOpaqueToken 生成一个安全的随机令牌字符串（48字符）
func generateOpaqueToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}

	token := base64.URLEncoding.EncodeToString(bytes)
	if len(token) > 48 {
		token = token[:48]
	}

	return token, nil
}
