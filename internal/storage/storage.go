// Package storage 定义存储层的公共接口与哨兵错误。
//
// 所有实现（内存、SQL）返回同一组哨兵错误，
// 服务层与 HTTP 层据此做类型化的错误映射。
package storage

import (
	"errors"

	"tempbox/backend/internal/domain"
)

// Store 存储接口别名，方便上层引用
type Store = domain.Store

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrMailboxNotFound = errors.New("mailbox not found")
	ErrTokenNotFound   = errors.New("api token not found")
	// ErrAddressExists 邮箱地址已被占用，绝不静默覆盖
	ErrAddressExists = errors.New("address already exists")
	ErrEmailExists   = errors.New("email already exists")
	// ErrQuotaCeilingReached 条件自增失败：已用配额达到上限
	ErrQuotaCeilingReached = errors.New("quota ceiling reached")
)
