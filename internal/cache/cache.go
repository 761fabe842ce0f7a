package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Cache 字符串键值缓存
// 问答服务用它缓存序列化后的整条回答
type Cache interface {
	Get(key string) (value string, found bool, err error)
	Set(key string, value string, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Config 缓存配置
type Config struct {
	// Type 实现类型，"memory"或"redis"
	Type string
	// Redis连接参数，仅redis实现使用
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// DefaultTTL 未显式指定时的过期时间
	DefaultTTL time.Duration
	// CleanupInterval 过期项清理间隔，仅内存实现使用
	CleanupInterval time.Duration
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Type:            "memory",
		DefaultTTL:      24 * time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}

// Factory 缓存工厂函数
type Factory func(config Config) (Cache, error)

var registry = make(map[string]Factory)

// RegisterCache 注册缓存实现
func RegisterCache(name string, factory Factory) {
	registry[name] = factory
}

// NewCache 按配置创建缓存，未注册的类型回退到内存实现
func NewCache(config Config) (Cache, error) {
	if factory, ok := registry[config.Type]; ok {
		return factory(config)
	}
	return NewMemoryCache(config)
}

// GenerateCacheKey 用冒号拼接键前缀和各部分
func GenerateCacheKey(prefix string, parts ...string) string {
	if len(parts) == 0 {
		return prefix
	}
	return prefix + ":" + strings.Join(parts, ":")
}

// AnswerKey 生成问答结果的缓存键
// 由归一化后的问题和排序后的文档过滤条件哈希而来
// 同一问题的不同写法只要归一化结果相同就命中同一条缓存
func AnswerKey(normalizedQuestion string, documentIDs []string) string {
	ids := make([]string, len(documentIDs))
	copy(ids, documentIDs)
	sort.Strings(ids)

	h := sha256.New()
	h.Write([]byte(normalizedQuestion))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(ids, ",")))

	return GenerateCacheKey("qa:answer", hex.EncodeToString(h.Sum(nil)[:16]))
}
