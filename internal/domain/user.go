package domain

import "time"

// User 表示平台注册用户的业务实体
//
// 配额不变量：任何已持久化的状态都必须满足 UsedQuota <= EmailQuota，
// 超额状态绝不允许落库（由存储层的条件更新保证）。
type User struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email        string     `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"`
	PasswordHash string     `json:"-" gorm:"type:varchar(255)"` // 不返回给前端
	EmailQuota   int        `json:"emailQuota" gorm:"default:0"`
	UsedQuota    int        `json:"usedQuota" gorm:"default:0"`
	IsActive     bool       `json:"isActive" gorm:"default:true"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// HasRemainingQuota 判断用户是否还有可用的邮箱配额
func (u *User) HasRemainingQuota() bool {
	return u.UsedQuota < u.EmailQuota
}

// IsExpired 判断用户账户是否已过期
func (u *User) IsExpired(now time.Time) bool {
	return u.ExpiresAt != nil && now.After(*u.ExpiresAt)
}
