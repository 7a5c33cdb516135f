package domain

import "time"

// APIToken API访问令牌实体
//
// 令牌独立于用户会话，用于授权外部程序化访问。
// 可用条件：未吊销，且（无过期时间 或 过期时间在未来）。
type APIToken struct {
	ID         string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Token      string     `json:"token" gorm:"type:varchar(64);uniqueIndex;not null"` // 不透明令牌字符串
	Label      string     `json:"label" gorm:"type:varchar(100)"`                     // 令牌名称/描述
	UsageCount int64      `json:"usageCount" gorm:"default:0"`
	Revoked    bool       `json:"revoked" gorm:"default:false"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`  // 过期时间（可选）
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"` // 最后使用时间
}

// IsExpired 判断令牌是否已过期
func (t *APIToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// TokenStats 令牌使用统计
type TokenStats struct {
	UsageCount int64      `json:"usageCount"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}
