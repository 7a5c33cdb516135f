package domain

import "time"

// Store 聚合所有存储接口
//
// 存储层不假设多行事务可用：配额分配的回滚由服务层
// 通过补偿删除实现，而不是包裹事务。
type Store interface {
	// ========== User Repository ==========
	CreateUser(user *User) error
	GetUserByID(id string) (*User, error)
	GetUserByEmail(email string) (*User, error)
	UpdateUser(user *User) error
	// IncrementUsedQuota 条件自增：仅当 used_quota < email_quota 时加一，
	// 到达上限时返回 ErrQuotaCeilingReached，绝不落超额状态
	IncrementUsedQuota(userID string) error
	// DecrementUsedQuota 自减已用配额（不低于零），用于补偿回滚
	DecrementUsedQuota(userID string) error
	// SetUsedQuota 直接写入已用配额，仅供批量分配在全部成功后调用
	SetUsedQuota(userID string, used int) error

	// ========== Mailbox Repository ==========
	SaveMailbox(mailbox *Mailbox) error
	GetMailbox(id string) (*Mailbox, error)
	GetMailboxByAddress(address string) (*Mailbox, error)
	ListMailboxesByUserID(userID string) ([]Mailbox, error)
	CountMailboxesByUserID(userID string) (int, error)
	// ListSyncEligibleMailboxes 返回状态为 registered 的邮箱，
	// 顺序稳定（按地址升序），供额度同步任务遍历；
	// 缺少账单链接的邮箱由同步任务记为 skipped
	ListSyncEligibleMailboxes() ([]Mailbox, error)
	ListMailboxes() ([]Mailbox, error)
	// UpdateMailboxCredit 仅写入额度字段，自包含且幂等
	UpdateMailboxCredit(address string, balance int, updatedAt time.Time) error
	// DeleteMailbox 仅用于分配失败时的补偿删除
	DeleteMailbox(id string) error

	// ========== API Token Repository ==========
	SaveAPIToken(token *APIToken) error
	GetAPIToken(id string) (*APIToken, error)
	GetAPITokenByToken(token string) (*APIToken, error)
	ListAPITokens() ([]*APIToken, error)
	UpdateAPIToken(token *APIToken) error
	// TouchAPIToken 原子自增 usage_count 并刷新 last_used_at
	TouchAPIToken(id string, usedAt time.Time) error

	Close() error
	Health() error
}
