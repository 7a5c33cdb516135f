package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/storage/memory"
)

func newTokenService(maxUsage int64) *TokenService {
	cfg := &config.Config{Token: config.TokenConfig{MaxUsage: maxUsage}}
	return NewTokenService(memory.NewStore(), cfg)
}

func TestTokenService_Lifecycle(t *testing.T) {
	t.Run("创建后可验证", func(t *testing.T) {
		svc := newTokenService(0)

		token, err := svc.Create(CreateTokenInput{Label: "ci"})
		require.NoError(t, err)
		require.Len(t, token.Token, 48)

		got, err := svc.Validate(token.Token)
		require.NoError(t, err)
		assert.Equal(t, token.ID, got.ID)
		assert.Equal(t, "ci", got.Label)
	})

	t.Run("未知令牌返回ErrInvalidToken", func(t *testing.T) {
		svc := newTokenService(0)

		_, err := svc.Validate("does-not-exist")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("吊销后验证失败", func(t *testing.T) {
		svc := newTokenService(0)

		token, err := svc.Create(CreateTokenInput{Label: "revocable"})
		require.NoError(t, err)

		require.NoError(t, svc.Revoke(token.Token))

		_, err = svc.Validate(token.Token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("过期令牌返回ErrTokenExpired", func(t *testing.T) {
		svc := newTokenService(0)

		expiry := -time.Minute
		token, err := svc.Create(CreateTokenInput{Label: "stale", ExpiresIn: &expiry})
		require.NoError(t, err)

		_, err = svc.Validate(token.Token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})
}

func TestTokenService_Use(t *testing.T) {
	t.Run("每次调用计数恰好加一", func(t *testing.T) {
		svc := newTokenService(0)

		token, err := svc.Create(CreateTokenInput{Label: "metered"})
		require.NoError(t, err)

		require.NoError(t, svc.Use(token.Token))
		require.NoError(t, svc.Use(token.Token))
		require.NoError(t, svc.Use(token.Token))

		stats, err := svc.Stats(token.Token)
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.UsageCount)
		require.NotNil(t, stats.LastUsedAt)
	})

	t.Run("达到上限后返回ErrTokenExhausted", func(t *testing.T) {
		svc := newTokenService(2)

		token, err := svc.Create(CreateTokenInput{Label: "capped"})
		require.NoError(t, err)

		require.NoError(t, svc.Use(token.Token))
		require.NoError(t, svc.Use(token.Token))

		err = svc.Use(token.Token)
		assert.ErrorIs(t, err, ErrTokenExhausted)

		// 失败的调用不落库
		stats, statsErr := svc.Stats(token.Token)
		require.NoError(t, statsErr)
		assert.Equal(t, int64(2), stats.UsageCount)
	})

	t.Run("吊销令牌的Use不增加计数", func(t *testing.T) {
		svc := newTokenService(0)

		token, err := svc.Create(CreateTokenInput{Label: "revoked"})
		require.NoError(t, err)
		require.NoError(t, svc.Use(token.Token))
		require.NoError(t, svc.Revoke(token.Token))

		assert.ErrorIs(t, svc.Use(token.Token), ErrInvalidToken)

		stats, err := svc.Stats(token.Token)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.UsageCount)
	})
}

func TestTokenService_List(t *testing.T) {
	svc := newTokenService(0)

	_, err := svc.Create(CreateTokenInput{Label: "a"})
	require.NoError(t, err)
	_, err = svc.Create(CreateTokenInput{Label: "b"})
	require.NoError(t, err)

	tokens, err := svc.List()
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
}

func TestGenerateOpaqueToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := generateOpaqueToken()
		require.NoError(t, err)
		assert.Len(t, token, 48)
		assert.False(t, seen[token], "duplicate token generated")
		seen[token] = true
	}
}
