package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/storage/memory"
	"tempbox/backend/internal/verification"
)

func newQuotaService(store *memory.Store) *QuotaService {
	cfg := &config.Config{
		Mailbox: config.MailboxConfig{
			AllowedDomains: []string{"temp.box"},
			DefaultTTL:     time.Hour,
		},
	}
	codes := verification.NewGenerator("test-secret", verification.ModeHMAC)
	return NewQuotaService(store, cfg, codes, zap.NewNop())
}

func seedUser(t *testing.T, store *memory.Store, id string, quota int) {
	t.Helper()
	require.NoError(t, store.CreateUser(&domain.User{
		ID:         id,
		Email:      id + "@example.com",
		EmailQuota: quota,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}))
}

func TestQuotaService_CanCreate(t *testing.T) {
	store := memory.NewStore()
	svc := newQuotaService(store)
	seedUser(t, store, "u1", 1)

	result, err := svc.CanCreate("u1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 0, result.Used)
	assert.Equal(t, 1, result.Limit)

	_, err = svc.CreateOne("u1", "")
	require.NoError(t, err)

	result, err = svc.CanCreate("u1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Contains(t, result.Reason, "1/1")
}

func TestQuotaService_CreateOne(t *testing.T) {
	t.Run("超出配额返回ErrQuotaExceeded且无写入", func(t *testing.T) {
		store := memory.NewStore()
		svc := newQuotaService(store)
		seedUser(t, store, "u1", 1)

		_, err := svc.CreateOne("u1", "")
		require.NoError(t, err)

		_, err = svc.CreateOne("u1", "")
		assert.ErrorIs(t, err, ErrQuotaExceeded)

		count, err := store.CountMailboxesByUserID("u1")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("停用用户被拒绝", func(t *testing.T) {
		store := memory.NewStore()
		svc := newQuotaService(store)
		require.NoError(t, store.CreateUser(&domain.User{
			ID: "u1", Email: "u1@example.com", EmailQuota: 5, IsActive: false,
		}))

		_, err := svc.CreateOne("u1", "")
		assert.ErrorIs(t, err, ErrUserInactive)
	})

	t.Run("首个邮箱标记为永久", func(t *testing.T) {
		store := memory.NewStore()
		svc := newQuotaService(store)
		seedUser(t, store, "u1", 3)

		first, err := svc.CreateOne("u1", "")
		require.NoError(t, err)
		second, err := svc.CreateOne("u1", "")
		require.NoError(t, err)

		assert.True(t, first.IsPermanent)
		assert.False(t, second.IsPermanent)
		assert.Equal(t, domain.MailboxStatusRegistered, first.Status)
	})

	t.Run("自定义前缀", func(t *testing.T) {
		store := memory.NewStore()
		svc := newQuotaService(store)
		seedUser(t, store, "u1", 3)

		mb, err := svc.CreateOne("u1", "Build-Reports")
		require.NoError(t, err)
		assert.Equal(t, "build-reports@temp.box", mb.Address)

		_, err = svc.CreateOne("u1", "x")
		assert.ErrorIs(t, err, ErrPrefixInvalid)

		_, err = svc.CreateOne("u1", "ok@evil.example")
		assert.ErrorIs(t, err, ErrPrefixInvalid)
	})

	t.Run("并发创建不超过配额", func(t *testing.T) {
		store := memory.NewStore()
		svc := newQuotaService(store)
		seedUser(t, store, "u1", 5)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = svc.CreateOne("u1", "")
			}()
		}
		wg.Wait()

		user, err := store.GetUserByID("u1")
		require.NoError(t, err)
		assert.Equal(t, 5, user.UsedQuota)

		count, err := store.CountMailboxesByUserID("u1")
		require.NoError(t, err)
		assert.Equal(t, 5, count)
	})
}

func TestQuotaService_Allocate(t *testing.T) {
	t.Run("分配数量小于配额上限", func(t *testing.T) {
		store := memory.NewStore()
		svc := newQuotaService(store)
		seedUser(t, store, "u1", 5)

		created, err := svc.Allocate("u1", 3)
		require.NoError(t, err)
		assert.Len(t, created, 3)
		assert.True(t, created[0].IsPermanent)
		assert.False(t, created[1].IsPermanent)

		user, err := store.GetUserByID("u1")
		require.NoError(t, err)
		assert.Equal(t, 3, user.UsedQuota)
	})

	t.Run("零配额合法且无副作用", func(t *testing.T) {
		store := memory.NewStore()
		svc := newQuotaService(store)
		seedUser(t, store, "u1", 5)

		created, err := svc.Allocate("u1", 0)
		require.NoError(t, err)
		assert.Empty(t, created)

		count, err := store.CountMailboxesByUserID("u1")
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("请求超过配额上限被整体拒绝", func(t *testing.T) {
		store := memory.NewStore()
		svc := newQuotaService(store)
		seedUser(t, store, "u1", 2)

		_, err := svc.Allocate("u1", 3)
		assert.ErrorIs(t, err, ErrQuotaExceeded)

		count, err := store.CountMailboxesByUserID("u1")
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("中途失败回滚本批次全部邮箱", func(t *testing.T) {
		inner := memory.NewStore()
		store := &faultStore{Store: inner, failSaveAfter: 2}
		svc := newQuotaService(inner)
		svc.store = store
		seedUser(t, inner, "u1", 5)

		_, err := svc.Allocate("u1", 4)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "allocate aborted")

		// 已创建的两个邮箱被补偿删除，used_quota 保持原值
		count, err := inner.CountMailboxesByUserID("u1")
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		user, err := inner.GetUserByID("u1")
		require.NoError(t, err)
		assert.Equal(t, 0, user.UsedQuota)
	})
}

func TestQuotaService_CreateAnonymous(t *testing.T) {
	store := memory.NewStore()
	svc := newQuotaService(store)

	mb, err := svc.CreateAnonymous("")
	require.NoError(t, err)
	assert.Equal(t, domain.MailboxStatusAnonymous, mb.Status)
	assert.Nil(t, mb.UserID)
	require.NotNil(t, mb.ExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), *mb.ExpiresAt, time.Minute)
}

func TestQuotaService_VerificationCode(t *testing.T) {
	store := memory.NewStore()
	svc := newQuotaService(store)
	seedUser(t, store, "u1", 1)

	mb, err := svc.CreateOne("u1", "codes")
	require.NoError(t, err)

	code, err := svc.VerificationCode(mb.Address)
	require.NoError(t, err)
	assert.Len(t, code, 6)

	// 同一地址的验证码确定性可复算
	again, err := svc.VerificationCode(mb.Address)
	require.NoError(t, err)
	assert.Equal(t, code, again)
}

// faultStore 包装内存存储，在第 N 次 SaveMailbox 之后注入失败
type faultStore struct {
	*memory.Store
	failSaveAfter int
	saves         int
}

func (f *faultStore) SaveMailbox(mailbox *domain.Mailbox) error {
	if f.saves >= f.failSaveAfter {
		return errors.New("injected save failure")
	}
	f.saves++
	return f.Store.SaveMailbox(mailbox)
}
