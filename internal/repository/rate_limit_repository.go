package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimitRepository 以固定窗口统计请求次数。
type RateLimitRepository interface {
	// Allow 记录一次请求，返回是否放行以及窗口内剩余次数。
	Allow(ctx context.Context, key string) (bool, int, error)
}

type redisRateLimitRepository struct {
	redisClient *redis.Client
	limit       int
	window      time.Duration
}

// NewRateLimitRepository 创建一个新的 RateLimitRepository 实例。
func NewRateLimitRepository(redisClient *redis.Client, limit int, window time.Duration) RateLimitRepository {
	return &redisRateLimitRepository{redisClient: redisClient, limit: limit, window: window}
}

func (r *redisRateLimitRepository) Allow(ctx context.Context, key string) (bool, int, error) {
	bucket := time.Now().UnixNano() / int64(r.window)
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, bucket)

	pipe := r.redisClient.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to count request: %w", err)
	}

	count := int(incr.Val())
	remaining := r.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= r.limit, remaining, nil
}
