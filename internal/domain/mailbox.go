package domain

import (
	"time"
)

// MailboxStatus 邮箱状态
type MailboxStatus string

const (
	// MailboxStatusRegistered 归属于注册用户的邮箱，参与额度同步
	MailboxStatusRegistered MailboxStatus = "registered"
	// MailboxStatusAnonymous 游客邮箱，无归属用户
	MailboxStatusAnonymous MailboxStatus = "anonymous"
)

// Mailbox 表示一次性邮箱的业务实体。
//
// 核心服务从不硬删除邮箱，过期清理由外部协作方负责。
// CreditBalance 相关字段仅由额度同步任务写入。
type Mailbox struct {
	ID                     string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Address                string        `json:"address" gorm:"type:varchar(255);uniqueIndex"`
	UserID                 *string       `json:"userId,omitempty" gorm:"type:varchar(36);index"` // 关联的用户ID（游客模式为nil）
	IsPermanent            bool          `json:"isPermanent" gorm:"default:false"`               // 用户名下第一个分配的邮箱
	Status                 MailboxStatus `json:"status" gorm:"type:varchar(20);default:'anonymous';index"`
	ExpiresAt              *time.Time    `json:"expiresAt,omitempty"`
	ViewUsageLink          *string       `json:"viewUsageLink,omitempty" gorm:"type:varchar(512)"` // 外部账单门户的只读视图链接
	CreditBalance          *int          `json:"creditBalance,omitempty"`
	CreditBalanceUpdatedAt *time.Time    `json:"creditBalanceUpdatedAt,omitempty"`
	CreatedAt              time.Time     `json:"createdAt"`
}

// LocalPart 返回邮箱地址 @ 之前的部分
func (m *Mailbox) LocalPart() string {
	for i := 0; i < len(m.Address); i++ {
		if m.Address[i] == '@' {
			return m.Address[:i]
		}
	}
	return m.Address
}

// HasUsageLink 判断邮箱是否带有账单门户链接
func (m *Mailbox) HasUsageLink() bool {
	return m.ViewUsageLink != nil && *m.ViewUsageLink != ""
}
