package sql

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tempbox/backend/internal/domain"
	"tempbox/backend/internal/storage"
)

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）
type Store struct {
	db         *sql.DB
	gormDB     *gorm.DB
	driverName string // "mysql" or "postgres"
}

// NewStore 创建 SQL 数据库存储
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	if driverName != "mysql" && driverName != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var gormDB *gorm.DB
	switch driverName {
	case "mysql":
		gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: db}), gormConfig)
	case "postgres":
		gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: db}), gormConfig)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	store := &Store{
		db:         db,
		gormDB:     gormDB,
		driverName: driverName,
	}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Migrate 执行数据库迁移（使用 GORM AutoMigrate）
func (s *Store) Migrate() error {
	return s.gormDB.AutoMigrate(
		&domain.User{},
		&domain.Mailbox{},
		&domain.APIToken{},
	)
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Ping()
}

// ========== User Repository ==========

// CreateUser 创建用户。
func (s *Store) CreateUser(user *domain.User) error {
	var count int64
	if err := s.gormDB.Model(&domain.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return storage.ErrEmailExists
	}
	return s.gormDB.Create(user).Error
}

// GetUserByID 根据 ID 获取用户。
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	var user domain.User
	if err := s.gormDB.First(&user, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail 根据邮箱地址获取用户。
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	var user domain.User
	if err := s.gormDB.First(&user, "email = ?", email).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdateUser 更新用户信息。
func (s *Store) UpdateUser(user *domain.User) error {
	res := s.gormDB.Model(&domain.User{}).Where("id = ?", user.ID).Updates(user)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// IncrementUsedQuota 条件自增已用配额。
//
// 用单条条件 UPDATE 实现"仅当低于上限时加一"，
// 数据库的行级原子性保证并发下不会落超额状态。
func (s *Store) IncrementUsedQuota(userID string) error {
	res := s.gormDB.Model(&domain.User{}).
		Where("id = ? AND used_quota < email_quota", userID).
		UpdateColumn("used_quota", gorm.Expr("used_quota + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// 区分用户不存在与配额到顶
		if _, err := s.GetUserByID(userID); err != nil {
			return err
		}
		return storage.ErrQuotaCeilingReached
	}
	return nil
}

// DecrementUsedQuota 自减已用配额，不低于零。
func (s *Store) DecrementUsedQuota(userID string) error {
	res := s.gormDB.Model(&domain.User{}).
		Where("id = ? AND used_quota > 0", userID).
		UpdateColumn("used_quota", gorm.Expr("used_quota - 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetUserByID(userID); err != nil {
			return err
		}
	}
	return nil
}

// SetUsedQuota 直接写入已用配额。
func (s *Store) SetUsedQuota(userID string, used int) error {
	res := s.gormDB.Model(&domain.User{}).
		Where("id = ?", userID).
		UpdateColumn("used_quota", used)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// ========== Mailbox Repository ==========

// SaveMailbox 保存邮箱，地址冲突时拒绝。
func (s *Store) SaveMailbox(mailbox *domain.Mailbox) error {
	mailbox.Address = strings.ToLower(mailbox.Address)

	var count int64
	if err := s.gormDB.Model(&domain.Mailbox{}).
		Where("address = ? AND id <> ?", mailbox.Address, mailbox.ID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return storage.ErrAddressExists
	}

	return s.gormDB.Save(mailbox).Error
}

// GetMailbox 根据 ID 获取邮箱。
func (s *Store) GetMailbox(id string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	if err := s.gormDB.First(&mailbox, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrMailboxNotFound
		}
		return nil, err
	}
	return &mailbox, nil
}

// GetMailboxByAddress 根据完整地址获取邮箱。
func (s *Store) GetMailboxByAddress(address string) (*domain.Mailbox, error) {
	address = strings.ToLower(strings.TrimSpace(address))

	var mailbox domain.Mailbox
	if err := s.gormDB.First(&mailbox, "address = ?", address).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrMailboxNotFound
		}
		return nil, err
	}
	return &mailbox, nil
}

// ListMailboxesByUserID 返回指定用户的全部邮箱。
func (s *Store) ListMailboxesByUserID(userID string) ([]domain.Mailbox, error) {
	var mailboxes []domain.Mailbox
	err := s.gormDB.Where("user_id = ?", userID).Order("address asc").Find(&mailboxes).Error
	return mailboxes, err
}

// CountMailboxesByUserID 统计指定用户名下的邮箱数量。
func (s *Store) CountMailboxesByUserID(userID string) (int, error) {
	var count int64
	err := s.gormDB.Model(&domain.Mailbox{}).Where("user_id = ?", userID).Count(&count).Error
	return int(count), err
}

// ListMailboxes 返回全部邮箱。
func (s *Store) ListMailboxes() ([]domain.Mailbox, error) {
	var mailboxes []domain.Mailbox
	err := s.gormDB.Order("address asc").Find(&mailboxes).Error
	return mailboxes, err
}

// ListSyncEligibleMailboxes 返回状态为 registered 的邮箱。
// 缺少账单链接的邮箱也在列表内，由同步任务记为 skipped；
// 按地址升序保证同一轮遍历顺序稳定。
func (s *Store) ListSyncEligibleMailboxes() ([]domain.Mailbox, error) {
	var mailboxes []domain.Mailbox
	err := s.gormDB.
		Where("status = ?", domain.MailboxStatusRegistered).
		Order("address asc").
		Find(&mailboxes).Error
	return mailboxes, err
}

// UpdateMailboxCredit 写入额度字段，幂等。
func (s *Store) UpdateMailboxCredit(address string, balance int, updatedAt time.Time) error {
	res := s.gormDB.Model(&domain.Mailbox{}).
		Where("address = ?", strings.ToLower(address)).
		UpdateColumns(map[string]interface{}{
			"credit_balance":            balance,
			"credit_balance_updated_at": updatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrMailboxNotFound
	}
	return nil
}

// DeleteMailbox 删除邮箱，仅供补偿回滚使用。
func (s *Store) DeleteMailbox(id string) error {
	res := s.gormDB.Delete(&domain.Mailbox{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrMailboxNotFound
	}
	return nil
}

// ========== API Token Repository ==========

// SaveAPIToken 保存令牌。
func (s *Store) SaveAPIToken(token *domain.APIToken) error {
	return s.gormDB.Create(token).Error
}

// GetAPIToken 根据 ID 获取令牌。
func (s *Store) GetAPIToken(id string) (*domain.APIToken, error) {
	var token domain.APIToken
	if err := s.gormDB.First(&token, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrTokenNotFound
		}
		return nil, err
	}
	return &token, nil
}

// GetAPITokenByToken 根据令牌字符串获取令牌。
func (s *Store) GetAPITokenByToken(tokenStr string) (*domain.APIToken, error) {
	var token domain.APIToken
	if err := s.gormDB.First(&token, "token = ?", tokenStr).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, storage.ErrTokenNotFound
		}
		return nil, err
	}
	return &token, nil
}

// ListAPITokens 返回全部令牌，按创建时间升序。
func (s *Store) ListAPITokens() ([]*domain.APIToken, error) {
	var tokens []*domain.APIToken
	err := s.gormDB.Order("created_at asc").Find(&tokens).Error
	return tokens, err
}

// UpdateAPIToken 更新令牌。
func (s *Store) UpdateAPIToken(token *domain.APIToken) error {
	res := s.gormDB.Save(token)
	if res.Error != nil {
		return res.Error
	}
	return nil
}

// TouchAPIToken 原子自增使用计数并刷新最后使用时间。
// 单条 UPDATE 保证每次授权调用都有对应的持久化自增。
func (s *Store) TouchAPIToken(id string, usedAt time.Time) error {
	res := s.gormDB.Model(&domain.APIToken{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"usage_count":  gorm.Expr("usage_count + 1"),
			"last_used_at": usedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrTokenNotFound
	}
	return nil
}
