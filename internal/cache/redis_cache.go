package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCache 基于Redis的缓存，多实例部署时共享问答结果
// 每次操作带独立的短超时，Redis不可用时问答路径直接回源而不是阻塞
type redisCache struct {
	client     *redis.Client
	defaultTTL time.Duration
	opTimeout  time.Duration
}

// NewRedisCache 创建Redis缓存并验证连接
func NewRedisCache(config Config) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ttl := config.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultConfig().DefaultTTL
	}

	c := &redisCache{
		client:     client,
		defaultTTL: ttl,
		opTimeout:  3 * time.Second,
	}

	ctx, cancel := c.opContext()
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.RedisAddr, err)
	}
	return c, nil
}

func (r *redisCache) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.opTimeout)
}

// Get 获取缓存内容，键不存在不算错误
func (r *redisCache) Get(key string) (string, bool, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set 写入缓存，ttl非正时使用默认过期时间
func (r *redisCache) Set(key string, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	ctx, cancel := r.opContext()
	defer cancel()
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Delete 删除缓存项
func (r *redisCache) Delete(key string) error {
	ctx, cancel := r.opContext()
	defer cancel()
	return r.client.Del(ctx, key).Err()
}

// Clear 清空当前Redis数据库
// 缓存应使用独立的DB编号，否则会连带清掉别的数据
func (r *redisCache) Clear() error {
	ctx, cancel := r.opContext()
	defer cancel()
	return r.client.FlushDB(ctx).Err()
}

func init() {
	RegisterCache("redis", NewRedisCache)
}
