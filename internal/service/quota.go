package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/storage"
	"tempbox/backend/internal/verification"
)

var (
	// ErrQuotaExceeded 用户已用配额达到上限
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrUserInactive 用户已停用或过期
	ErrUserInactive = errors.New("user inactive")
	// ErrPrefixInvalid 自定义地址前缀格式无效
	ErrPrefixInvalid = errors.New("prefix invalid")
)

// QuotaService 封装邮箱配额分配相关业务操作。
//
// 同一用户的配额检查与自增构成临界区：服务层用按用户分键的互斥锁
// 串行化，存储层再以条件自增兜底，双保险杜绝并发越额。
type QuotaService struct {
	store storage.Store
	cfg   *config.Config
	codes *verification.Generator
	log   *zap.Logger

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewQuotaService 创建配额分配服务。
func NewQuotaService(store storage.Store, cfg *config.Config, codes *verification.Generator, log *zap.Logger) *QuotaService {
	if log == nil {
		log = zap.NewNop()
	}
	return &QuotaService{
		store:     store,
		cfg:       cfg,
		codes:     codes,
		log:       log,
		userLocks: make(map[string]*sync.Mutex),
	}
}

// CanCreateResult 配额检查结果
type CanCreateResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Used    int    `json:"used"`
	Limit   int    `json:"limit"`
}

// CanCreate 判断用户是否还能创建邮箱。
func (s *QuotaService) CanCreate(userID string) (*CanCreateResult, error) {
	user, err := s.store.GetUserByID(userID)
	if err != nil {
		return nil, err
	}

	result := &CanCreateResult{
		Used:  user.UsedQuota,
		Limit: user.EmailQuota,
	}

	if !user.HasRemainingQuota() {
		result.Reason = fmt.Sprintf("quota exceeded: %d/%d mailboxes used", user.UsedQuota, user.EmailQuota)
		return result, nil
	}

	result.Allowed = true
	return result, nil
}

// CreateOne 为用户创建单个邮箱并将已用配额加一。
//
// 先做 CanCreate 快速失败，再创建邮箱，最后条件自增配额；
// 自增失败时补偿删除刚创建的邮箱，保证不留下半成品状态。
func (s *QuotaService) CreateOne(userID, customAddress string) (*domain.Mailbox, error) {
	lock := s.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	user, err := s.store.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive || user.IsExpired(time.Now().UTC()) {
		return nil, ErrUserInactive
	}
	if !user.HasRemainingQuota() {
		return nil, ErrQuotaExceeded
	}

	address, err := s.resolveAddress(customAddress)
	if err != nil {
		return nil, err
	}

	count, err := s.store.CountMailboxesByUserID(userID)
	if err != nil {
		return nil, err
	}

	mailbox := s.newMailbox(address, &user.ID, count == 0)
	if err := s.store.SaveMailbox(mailbox); err != nil {
		return nil, err
	}

	if err := s.store.IncrementUsedQuota(userID); err != nil {
		// 补偿删除，不留下没有配额记账的邮箱
		if delErr := s.store.DeleteMailbox(mailbox.ID); delErr != nil {
			s.log.Error("failed to compensate mailbox after quota increment failure",
				zap.String("mailbox_id", mailbox.ID),
				zap.Error(delErr),
			)
		}
		if errors.Is(err, storage.ErrQuotaCeilingReached) {
			return nil, ErrQuotaExceeded
		}
		return nil, err
	}

	return mailbox, nil
}

// Allocate 为用户一次性分配 quota 个邮箱，成功后写入 used_quota = quota。
//
// 任何一步失败都会对本批次已创建的邮箱执行补偿删除：
// 失败的 Allocate 不留下任何邮箱，used_quota 保持原值。
// quota = 0 合法，不分配也不报错。
func (s *QuotaService) Allocate(userID string, quota int) ([]domain.Mailbox, error) {
	if quota < 0 {
		return nil, fmt.Errorf("quota must not be negative: %d", quota)
	}
	if quota == 0 {
		return []domain.Mailbox{}, nil
	}

	lock := s.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	user, err := s.store.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive || user.IsExpired(time.Now().UTC()) {
		return nil, ErrUserInactive
	}
	if quota > user.EmailQuota {
		return nil, ErrQuotaExceeded
	}

	existing, err := s.store.CountMailboxesByUserID(userID)
	if err != nil {
		return nil, err
	}

	created := make([]domain.Mailbox, 0, quota)
	for i := 0; i < quota; i++ {
		address, err := s.resolveAddress("")
		if err != nil {
			s.rollback(created)
			return nil, fmt.Errorf("allocate aborted at mailbox %d/%d: %w", i+1, quota, err)
		}

		mailbox := s.newMailbox(address, &user.ID, existing == 0 && i == 0)
		if err := s.store.SaveMailbox(mailbox); err != nil {
			s.rollback(created)
			return nil, fmt.Errorf("allocate aborted at mailbox %d/%d: %w", i+1, quota, err)
		}
		created = append(created, *mailbox)
	}

	if err := s.store.SetUsedQuota(userID, quota); err != nil {
		s.rollback(created)
		return nil, fmt.Errorf("allocate aborted while updating quota: %w", err)
	}

	return created, nil
}

// CreateAnonymous 创建无归属用户的游客邮箱。
func (s *QuotaService) CreateAnonymous(customPrefix string) (*domain.Mailbox, error) {
	address, err := s.resolveAddress(customPrefix)
	if err != nil {
		return nil, err
	}

	mailbox := s.newMailbox(address, nil, false)
	mailbox.Status = domain.MailboxStatusAnonymous

	ttl := s.cfg.Mailbox.DefaultTTL
	if ttl > 0 {
		expires := time.Now().UTC().Add(ttl)
		mailbox.ExpiresAt = &expires
	}

	if err := s.store.SaveMailbox(mailbox); err != nil {
		return nil, err
	}
	return mailbox, nil
}

// VerificationCode 返回邮箱地址对应的6位验证码。
// 验证码由地址前缀确定性导出，不落库。
func (s *QuotaService) VerificationCode(address string) (string, error) {
	mailbox, err := s.store.GetMailboxByAddress(address)
	if err != nil {
		return "", err
	}
	return s.codes.Generate(mailbox.LocalPart()), nil
}

// rollback 对本批次已创建的邮箱执行补偿删除
func (s *QuotaService) rollback(created []domain.Mailbox) {
	for i := len(created) - 1; i >= 0; i-- {
		if err := s.store.DeleteMailbox(created[i].ID); err != nil {
			s.log.Error("failed to roll back mailbox",
				zap.String("mailbox_id", created[i].ID),
				zap.String("address", created[i].Address),
				zap.Error(err),
			)
		}
	}
}

// lockFor 返回指定用户的互斥锁，惰性创建
func (s *QuotaService) lockFor(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	return lock
}

// newMailbox 构造邮箱实体
func (s *QuotaService) newMailbox(address string, userID *string, permanent bool) *domain.Mailbox {
	status := domain.MailboxStatusAnonymous
	if userID != nil {
		status = domain.MailboxStatusRegistered
	}
	return &domain.Mailbox{
		ID:          uuid.NewString(),
		Address:     address,
		UserID:      userID,
		IsPermanent: permanent,
		Status:      status,
		CreatedAt:   time.Now().UTC(),
	}
}

// resolveAddress 生成或校验完整邮箱地址
func (s *QuotaService) resolveAddress(custom string) (string, error) {
	domainName := s.cfg.Mailbox.AllowedDomains[0]

	custom = strings.ToLower(strings.TrimSpace(custom))
	if custom == "" {
		return fmt.Sprintf("%s@%s", randomLocalPart(), domainName), nil
	}

	// 允许直接传完整地址，也允许只传前缀
	if strings.Contains(custom, "@") {
		parts := strings.SplitN(custom, "@", 2)
		if len(parts) != 2 || !validLocalPart(parts[0]) || !s.domainAllowed(parts[1]) {
			return "", ErrPrefixInvalid
		}
		return custom, nil
	}

	if !validLocalPart(custom) {
		return "", ErrPrefixInvalid
	}
	return fmt.Sprintf("%s@%s", custom, domainName), nil
}

// domainAllowed 判断域名是否在允许列表中
func (s *QuotaService) domainAllowed(domainName string) bool {
	for _, d := range s.cfg.Mailbox.AllowedDomains {
		if d == domainName {
			return true
		}
	}
	return false
}

// randomLocalPart 生成随机前缀
func randomLocalPart() string {
	base := strings.ToLower(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return base[:12]
}

// validLocalPart 校验地址前缀：2-64位，小写字母数字及 .-_
func validLocalPart(localPart string) bool {
	if len(localPart) < 2 || len(localPart) > 64 {
		return false
	}
	for _, ch := range localPart {
		switch {
		case ch >= 'a' && ch <= 'z':
		case ch >= '0' && ch <= '9':
		case ch == '.' || ch == '-' || ch == '_':
		default:
			return false
		}
	}
	return true
}
