package vectordb

import (
	"errors"
	"time"
)

// 常用错误定义
var (
	ErrChunkNotFound    = errors.New("chunk not found")
	ErrEmptyVector      = errors.New("empty vector")
	ErrInvalidID        = errors.New("invalid chunk ID")
	ErrInvalidDimension = errors.New("vector dimension mismatch")
)

// ChunkEntry 向量库中的检索单元
// 每个条目对应一个文本块，ID由分块器确定，写入以ID为键幂等覆盖
type ChunkEntry struct {
	ID         string                 // 稳定块ID
	DocumentID string                 // 来源文档ID
	Position   int                    // 块在文档内的序号
	Pages      []int                  // 覆盖的页码
	Text       string                 // 块文本
	Vector     []float32              // 向量表示
	CreatedAt  time.Time              // 写入时间
	Metadata   map[string]interface{} // 附加元数据（来源名、术语标签等）
}

// DistanceType 向量距离计算方法
type DistanceType string

const (
	// Cosine 余弦相似度
	Cosine DistanceType = "cosine"
	// DotProduct 点积
	DotProduct DistanceType = "dot"
	// Euclidean 欧几里得距离
	Euclidean DistanceType = "l2"
)

// SearchResult 搜索结果
type SearchResult struct {
	Entry    ChunkEntry // 命中的块
	Score    float32    // 相似度得分，范围[0,1]
	Distance float32    // 原始距离
}

// SearchFilter 搜索过滤条件
type SearchFilter struct {
	DocumentIDs []string               // 按来源文档过滤
	Metadata    map[string]interface{} // 按元数据过滤
	MinScore    float32                // 最小相似度分数
	MaxResults  int                    // 最大返回结果数
}

// DefaultSearchFilter 返回默认的搜索过滤器
func DefaultSearchFilter() SearchFilter {
	return SearchFilter{
		MinScore:   0.0,
		MaxResults: 5,
	}
}

// Repository 向量库仓库接口
// 实现被视为最终一致：刚写入的块不保证立刻可检索
type Repository interface {
	// Upsert 写入单个块，同ID重复写入覆盖而不是重复
	Upsert(entry ChunkEntry) error

	// UpsertBatch 批量写入块
	UpsertBatch(entries []ChunkEntry) error

	// Get 按块ID读取
	Get(id string) (ChunkEntry, error)

	// Delete 删除单个块
	Delete(id string) error

	// DeleteByDocumentID 删除指定文档的全部块
	DeleteByDocumentID(documentID string) error

	// Search 相似度搜索，无命中时返回空结果而不是错误
	Search(vector []float32, filter SearchFilter) ([]SearchResult, error)

	// Count 当前块总数
	Count() (int, error)

	// GetDimension 返回向量维数
	GetDimension() int

	// Close 关闭仓库
	Close() error
}

// Config 向量库配置
type Config struct {
	Type              string       // 实现类型，如 "memory", "faiss"
	Path              string       // 索引文件路径
	Dimension         int          // 向量维度
	DistanceType      DistanceType // 距离计算类型
	CreateIfNotExists bool         // 索引文件不存在时是否创建
	InMemory          bool         // 是否仅在内存中运行
}

// Factory 向量库工厂函数类型
type Factory func(config Config) (Repository, error)

// RepositoryRegistry 注册可用的向量库实现
var RepositoryRegistry = map[string]Factory{}

// RegisterRepository 注册向量库工厂函数
func RegisterRepository(name string, factory Factory) {
	RepositoryRegistry[name] = factory
}

// NewRepository 根据配置创建向量库实例
func NewRepository(config Config) (Repository, error) {
	factory, ok := RepositoryRegistry[config.Type]
	if !ok {
		// 默认使用内存实现
		factory = NewMemoryRepository
	}
	return factory(config)
}
