package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tempbox/backend/internal/domain"
)

// Cache Redis 缓存实现
//
// 缓存两类数据：各邮箱最近一次同步到的额度，以及最近一轮
// 同步任务的汇总结果（供运维端点读取，避免扫库）。
type Cache struct {
	client *redis.Client
}

// NewCache 创建 Redis 缓存实例
func NewCache(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// CacheCreditBalance 缓存单个邮箱的额度
func (c *Cache) CacheCreditBalance(ctx context.Context, address string, balance int, ttl time.Duration) error {
	key := fmt.Sprintf("credit:%s", address)
	return c.client.Set(ctx, key, balance, ttl).Err()
}

// GetCachedCreditBalance 读取缓存的额度，未命中返回 false
func (c *Cache) GetCachedCreditBalance(ctx context.Context, address string) (int, bool, error) {
	key := fmt.Sprintf("credit:%s", address)
	balance, err := c.client.Get(ctx, key).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, false, nil
		}
		return 0, false, err
	}
	return balance, true, nil
}

// CacheSyncSummary 缓存最近一轮同步的汇总结果
func (c *Cache) CacheSyncSummary(ctx context.Context, summary *domain.CreditSyncSummary, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, "creditsync:last_summary", data, ttl).Err()
}

// GetLastSyncSummary 读取最近一轮同步汇总，未命中返回 nil
func (c *Cache) GetLastSyncSummary(ctx context.Context) (*domain.CreditSyncSummary, error) {
	data, err := c.client.Get(ctx, "creditsync:last_summary").Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var summary domain.CreditSyncSummary
	if err := json.Unmarshal([]byte(data), &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Health 检查 Redis 连接
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close 关闭 Redis 连接
func (c *Cache) Close() error {
	return c.client.Close()
}
