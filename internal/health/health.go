// Package health 基于 heptiolabs/healthcheck 暴露存活与就绪探针。
package health

import (
	"context"
	"time"

	"github.com/heptiolabs/healthcheck"

	"tempbox/backend/internal/storage"
	rediscache "tempbox/backend/internal/storage/redis"
)

// checkTimeout 单项就绪检查的超时
const checkTimeout = 2 * time.Second

// NewHandler 创建健康检查处理器。
//
// 存活探针只验证 goroutine 数量没有失控；
// 就绪探针逐项检查存储与缓存依赖，任一失败即 not ready。
func NewHandler(store storage.Store, cache *rediscache.Cache) healthcheck.Handler {
	h := healthcheck.NewHandler()

	h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(200))

	h.AddReadinessCheck("store", func() error {
		return store.Health()
	})

	if cache != nil {
		h.AddReadinessCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
			defer cancel()
			return cache.Health(ctx)
		})
	}

	return h
}
