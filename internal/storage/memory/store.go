package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/storage"
)

// Store 使用内存保存用户、邮箱与令牌数据，主要用于开发验证与测试。
type Store struct {
	mu        sync.RWMutex
	users     map[string]*domain.User     // userID -> user
	byEmail   map[string]string           // email -> userID
	mailboxes map[string]*domain.Mailbox  // mailboxID -> mailbox
	byAddress map[string]string           // address -> mailboxID
	tokens    map[string]*domain.APIToken // tokenID -> token
	byToken   map[string]string           // token string -> tokenID
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		users:     make(map[string]*domain.User),
		byEmail:   make(map[string]string),
		mailboxes: make(map[string]*domain.Mailbox),
		byAddress: make(map[string]string),
		tokens:    make(map[string]*domain.APIToken),
		byToken:   make(map[string]string),
	}
}

// ========== User Repository ==========

// CreateUser 创建用户。
func (s *Store) CreateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[user.Email]; ok {
		return storage.ErrEmailExists
	}

	clone := *user
	s.users[user.ID] = &clone
	s.byEmail[user.Email] = user.ID
	return nil
}

// GetUserByID 根据 ID 获取用户。
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

// GetUserByEmail 根据邮箱地址获取用户。
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return s.GetUserByID(id)
}

// UpdateUser 更新用户信息。
func (s *Store) UpdateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return storage.ErrUserNotFound
	}

	if existing.Email != user.Email {
		delete(s.byEmail, existing.Email)
		s.byEmail[user.Email] = user.ID
	}

	clone := *user
	clone.UpdatedAt = time.Now().UTC()
	s.users[user.ID] = &clone
	return nil
}

// IncrementUsedQuota 条件自增已用配额。
// 整个检查-自增在同一把写锁内完成，并发调用不会越过上限。
func (s *Store) IncrementUsedQuota(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	if user.UsedQuota >= user.EmailQuota {
		return storage.ErrQuotaCeilingReached
	}

	user.UsedQuota++
	user.UpdatedAt = time.Now().UTC()
	return nil
}

// DecrementUsedQuota 自减已用配额，不低于零。
func (s *Store) DecrementUsedQuota(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	if user.UsedQuota > 0 {
		user.UsedQuota--
		user.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// SetUsedQuota 直接写入已用配额。
func (s *Store) SetUsedQuota(userID string, used int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}

	user.UsedQuota = used
	user.UpdatedAt = time.Now().UTC()
	return nil
}

// ========== Mailbox Repository ==========

// SaveMailbox 保存邮箱，地址冲突时拒绝。
func (s *Store) SaveMailbox(mailbox *domain.Mailbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	address := strings.ToLower(mailbox.Address)
	if existingID, ok := s.byAddress[address]; ok && existingID != mailbox.ID {
		return storage.ErrAddressExists
	}

	clone := *mailbox
	s.mailboxes[mailbox.ID] = &clone
	s.byAddress[address] = mailbox.ID
	return nil
}

// GetMailbox 根据 ID 获取邮箱。
func (s *Store) GetMailbox(id string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mailbox, ok := s.mailboxes[id]
	if !ok {
		return nil, storage.ErrMailboxNotFound
	}
	clone := *mailbox
	return &clone, nil
}

// GetMailboxByAddress 根据完整地址获取邮箱。
func (s *Store) GetMailboxByAddress(address string) (*domain.Mailbox, error) {
	s.mu.RLock()
	id, ok := s.byAddress[strings.ToLower(strings.TrimSpace(address))]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrMailboxNotFound
	}
	return s.GetMailbox(id)
}

// ListMailboxesByUserID 返回指定用户的全部邮箱。
func (s *Store) ListMailboxesByUserID(userID string) ([]domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Mailbox, 0)
	for _, mb := range s.mailboxes {
		if mb.UserID != nil && *mb.UserID == userID {
			result = append(result, *mb)
		}
	}
	sortByAddress(result)
	return result, nil
}

// CountMailboxesByUserID 统计指定用户名下的邮箱数量。
func (s *Store) CountMailboxesByUserID(userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, mb := range s.mailboxes {
		if mb.UserID != nil && *mb.UserID == userID {
			count++
		}
	}
	return count, nil
}

// ListMailboxes 返回全部邮箱的快照。
func (s *Store) ListMailboxes() ([]domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Mailbox, 0, len(s.mailboxes))
	for _, mb := range s.mailboxes {
		result = append(result, *mb)
	}
	sortByAddress(result)
	return result, nil
}

// ListSyncEligibleMailboxes 返回状态为 registered 的邮箱，按地址升序。
// 缺少账单链接的邮箱也在列表内，由同步任务记为 skipped。
func (s *Store) ListSyncEligibleMailboxes() ([]domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Mailbox, 0)
	for _, mb := range s.mailboxes {
		if mb.Status == domain.MailboxStatusRegistered {
			result = append(result, *mb)
		}
	}
	sortByAddress(result)
	return result, nil
}

// UpdateMailboxCredit 写入额度字段，幂等。
func (s *Store) UpdateMailboxCredit(address string, balance int, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byAddress[strings.ToLower(address)]
	if !ok {
		return storage.ErrMailboxNotFound
	}

	mailbox := s.mailboxes[id]
	mailbox.CreditBalance = &balance
	mailbox.CreditBalanceUpdatedAt = &updatedAt
	return nil
}

// DeleteMailbox 删除邮箱，仅供补偿回滚使用。
func (s *Store) DeleteMailbox(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mailbox, ok := s.mailboxes[id]
	if !ok {
		return storage.ErrMailboxNotFound
	}

	delete(s.byAddress, strings.ToLower(mailbox.Address))
	delete(s.mailboxes, id)
	return nil
}

// ========== API Token Repository ==========

// SaveAPIToken 保存令牌。
func (s *Store) SaveAPIToken(token *domain.APIToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *token
	s.tokens[token.ID] = &clone
	s.byToken[token.Token] = token.ID
	return nil
}

// GetAPIToken 根据 ID 获取令牌。
func (s *Store) GetAPIToken(id string) (*domain.APIToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[id]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	clone := *token
	return &clone, nil
}

// GetAPITokenByToken 根据令牌字符串获取令牌。
func (s *Store) GetAPITokenByToken(token string) (*domain.APIToken, error) {
	s.mu.RLock()
	id, ok := s.byToken[token]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	return s.GetAPIToken(id)
}

// ListAPITokens 返回全部令牌。
func (s *Store) ListAPITokens() ([]*domain.APIToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.APIToken, 0, len(s.tokens))
	for _, tok := range s.tokens {
		clone := *tok
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// UpdateAPIToken 更新令牌。
func (s *Store) UpdateAPIToken(token *domain.APIToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[token.ID]; !ok {
		return storage.ErrTokenNotFound
	}

	clone := *token
	s.tokens[token.ID] = &clone
	s.byToken[token.Token] = token.ID
	return nil
}

// TouchAPIToken 原子自增使用计数并刷新最后使用时间。
func (s *Store) TouchAPIToken(id string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[id]
	if !ok {
		return storage.ErrTokenNotFound
	}

	token.UsageCount++
	token.LastUsedAt = &usedAt
	return nil
}

// Close 关闭存储，内存实现为空操作。
func (s *Store) Close() error { return nil }

// Health 健康检查，内存实现恒为健康。
func (s *Store) Health() error { return nil }

// sortByAddress 按地址升序排序，保证遍历顺序稳定
func sortByAddress(mailboxes []domain.Mailbox) {
	sort.Slice(mailboxes, func(i, j int) bool {
		return mailboxes[i].Address < mailboxes[j].Address
	})
}
