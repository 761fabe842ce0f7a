package agent

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/ayurveda-qa-system/internal/embedding"
	"github.com/fyerfyer/ayurveda-qa-system/internal/textnorm"
	"github.com/fyerfyer/ayurveda-qa-system/internal/vectordb"
)

// QueryNormalizer 查询归一化接口
// 查询侧必须经过与索引侧完全相同的归一化路径，否则语料里已被修正的词形将检索不到
type QueryNormalizer interface {
	NormalizeQuery(query string) string
}

// Retriever 检索代理
// 把用户问题归一化、向量化后从向量库中取回候选块
type Retriever struct {
	normalizer QueryNormalizer
	embedder   embedding.Client
	repo       vectordb.Repository
	topK       int
	minScore   float64
	logger     *logrus.Logger
}

// RetrieverOption 检索代理配置选项
type RetrieverOption func(*Retriever)

// WithTopK 设置返回候选块的数量上限
func WithTopK(k int) RetrieverOption {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithMinScore 设置相似度下限，低于下限的候选被丢弃
func WithMinScore(score float64) RetrieverOption {
	return func(r *Retriever) {
		r.minScore = score
	}
}

// WithRetrieverLogger 设置日志记录器
func WithRetrieverLogger(logger *logrus.Logger) RetrieverOption {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// NewRetriever 创建检索代理
func NewRetriever(normalizer QueryNormalizer, embedder embedding.Client, repo vectordb.Repository, opts ...RetrieverOption) (*Retriever, error) {
	if normalizer == nil {
		return nil, fmt.Errorf("query normalizer is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedding client is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("vector repository is required")
	}

	r := &Retriever{
		normalizer: normalizer,
		embedder:   embedder,
		repo:       repo,
		topK:       10,
		minScore:   0.2,
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Retrieve 检索与问题相关的候选块
// 没有任何候选命中时返回空切片，这不是错误
func (r *Retriever) Retrieve(ctx context.Context, query string, documentIDs []string) ([]vectordb.SearchResult, error) {
	normalized := r.normalizer.NormalizeQuery(query)
	if normalized == "" {
		r.logger.WithField("query", query).Warn("query normalized to empty string")
		return []vectordb.SearchResult{}, nil
	}

	vector, err := r.embedder.Embed(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := r.repo.Search(vector, vectordb.SearchFilter{
		DocumentIDs: documentIDs,
		MinScore:    float32(r.minScore),
		MaxResults:  r.topK,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"query_normalized": normalized,
		"candidates":       len(results),
	}).Debug("retrieval completed")

	return results, nil
}

// NormalizedQuery 返回检索时实际使用的查询文本，供上层记录和调试
func (r *Retriever) NormalizedQuery(query string) string {
	return r.normalizer.NormalizeQuery(query)
}

var _ QueryNormalizer = (*textnorm.Normalizer)(nil)
