// Package retry 提供有界重试辅助函数。
//
// 注意：额度同步任务的单邮箱循环刻意不使用重试，
// 以免放大对限速门户的请求压力；同步失败留待下一轮调度。
package retry

import (
	"context"
	"time"
)

// Policy 重试策略：固定尝试次数，线性递增退避。
type Policy struct {
	MaxAttempts int           // 最大尝试次数（含首次），小于1按1处理
	BaseDelay   time.Duration // 首次重试前的等待；第N次重试等待 N*BaseDelay
}

// DefaultPolicy 默认策略：3次尝试，500ms 线性退避
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
	}
}

// Do 按策略执行操作，返回首个成功结果或最后一次错误。
//
// 上下文取消时立即返回 ctx.Err()，不再继续尝试。
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			wait := time.Duration(i) * policy.BaseDelay
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err := op(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return lastErr
}
