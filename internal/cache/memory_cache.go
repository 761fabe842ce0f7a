package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryCache 进程内缓存，基于go-cache
// 单实例部署的默认选择，进程重启后缓存即失效
type memoryCache struct {
	store      *gocache.Cache
	defaultTTL time.Duration
}

// NewMemoryCache 创建内存缓存
func NewMemoryCache(config Config) (Cache, error) {
	defaults := DefaultConfig()

	ttl := config.DefaultTTL
	if ttl <= 0 {
		ttl = defaults.DefaultTTL
	}
	cleanup := config.CleanupInterval
	if cleanup <= 0 {
		cleanup = defaults.CleanupInterval
	}

	return &memoryCache{
		store:      gocache.New(ttl, cleanup),
		defaultTTL: ttl,
	}, nil
}

// Get 获取缓存内容
func (m *memoryCache) Get(key string) (string, bool, error) {
	value, found := m.store.Get(key)
	if !found {
		return "", false, nil
	}
	// 本实现只写入字符串，类型不符视为未命中
	str, ok := value.(string)
	if !ok {
		return "", false, nil
	}
	return str, true, nil
}

// Set 写入缓存，ttl非正时使用默认过期时间
func (m *memoryCache) Set(key string, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	m.store.Set(key, value, ttl)
	return nil
}

// Delete 删除缓存项
func (m *memoryCache) Delete(key string) error {
	m.store.Delete(key)
	return nil
}

// Clear 清空所有缓存
func (m *memoryCache) Clear() error {
	m.store.Flush()
	return nil
}

func init() {
	RegisterCache("memory", NewMemoryCache)
}
