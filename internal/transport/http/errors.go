package httptransport

import (
	"tempbox/backend/internal/service"
	"tempbox/backend/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// Quota 错误
	service.ErrQuotaExceeded: "邮箱配额已用尽",
	service.ErrUserInactive:  "用户已停用或过期",
	service.ErrPrefixInvalid: "邮箱前缀格式无效",

	// Token 错误
	service.ErrInvalidToken:   "API令牌无效",
	service.ErrTokenExpired:   "API令牌已过期",
	service.ErrTokenExhausted: "API令牌调用次数已达上限",

	// 存储层错误
	storage.ErrUserNotFound:    "用户不存在",
	storage.ErrMailboxNotFound: "邮箱不存在",
	storage.ErrTokenNotFound:   "API令牌不存在",
	storage.ErrAddressExists:   "邮箱地址已被占用",
	storage.ErrEmailExists:     "注册邮箱已存在",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	return err.Error()
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest   = "请求参数格式错误"
	MsgInvalidExpiresIn = "过期时间格式无效"
	MsgInvalidQuota     = "配额数量无效"

	// 认证相关
	MsgAuthRequired     = "需要携带有效的API令牌"
	MsgAutomationDenied = "自动化端点鉴权失败"

	// 邮箱相关
	MsgMailboxCreateFailed = "创建邮箱失败"
	MsgMailboxNotFound     = "邮箱不存在"
	MsgMailboxListFailed   = "获取邮箱列表失败"
	MsgQuotaCheckFailed    = "获取配额信息失败"
	MsgAllocateFailed      = "批量分配邮箱失败"
	MsgCodeFailed          = "获取验证码失败"

	// 令牌相关
	MsgTokenCreateFailed = "创建API令牌失败"
	MsgTokenListFailed   = "获取令牌列表失败"
	MsgTokenNotFound     = "API令牌不存在"
	MsgTokenRevokeFailed = "吊销令牌失败"
	MsgTokenStatsFailed  = "获取令牌统计失败"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
