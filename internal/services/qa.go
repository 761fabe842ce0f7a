package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/ayurveda-qa-system/internal/agent"
	"github.com/fyerfyer/ayurveda-qa-system/internal/cache"
	"github.com/fyerfyer/ayurveda-qa-system/internal/llm"
)

// QAService 问答服务
// 检索、重排、上下文构建、生成依次执行，证据不足时拒答而不是编造
type QAService struct {
	retriever      *agent.Retriever
	reranker       *agent.Reranker
	contextBuilder *agent.ContextBuilder
	rag            *llm.RAGService
	cache          cache.Cache
	cacheTTL       time.Duration
	timeout        time.Duration
	logger         *logrus.Logger
}

// QAServiceOption 问答服务配置选项
type QAServiceOption func(*QAService)

// WithAnswerCache 设置答案缓存
// 缓存键由归一化后的问题和文档过滤条件决定
func WithAnswerCache(c cache.Cache, ttl time.Duration) QAServiceOption {
	return func(s *QAService) {
		s.cache = c
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithQATimeout 设置单次问答的超时时间
func WithQATimeout(timeout time.Duration) QAServiceOption {
	return func(s *QAService) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithQALogger 设置日志记录器
func WithQALogger(logger *logrus.Logger) QAServiceOption {
	return func(s *QAService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewQAService 创建问答服务
func NewQAService(
	retriever *agent.Retriever,
	reranker *agent.Reranker,
	contextBuilder *agent.ContextBuilder,
	rag *llm.RAGService,
	opts ...QAServiceOption,
) (*QAService, error) {
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if reranker == nil {
		return nil, fmt.Errorf("reranker is required")
	}
	if contextBuilder == nil {
		return nil, fmt.Errorf("context builder is required")
	}
	if rag == nil {
		return nil, fmt.Errorf("rag service is required")
	}

	svc := &QAService{
		retriever:      retriever,
		reranker:       reranker,
		contextBuilder: contextBuilder,
		rag:            rag,
		cacheTTL:       30 * time.Minute,
		timeout:        60 * time.Second,
		logger:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Answer 在全部已索引文档上回答问题
func (s *QAService) Answer(ctx context.Context, question string) (*llm.Answer, error) {
	return s.AnswerWithDocuments(ctx, question, nil)
}

// AnswerWithDocuments 在指定文档范围内回答问题
// documentIDs为空表示不限范围
func (s *QAService) AnswerWithDocuments(ctx context.Context, question string, documentIDs []string) (*llm.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// 查询侧与索引侧走同一套归一化，缓存键也基于归一化结果
	normalized := s.retriever.NormalizedQuery(question)
	cacheKey := cache.AnswerKey(normalized, documentIDs)

	if cached := s.lookupCache(cacheKey); cached != nil {
		s.logger.WithField("cache_key", cacheKey).Debug("Answer cache hit")
		return cached, nil
	}

	start := time.Now()

	results, err := s.retriever.Retrieve(ctx, question, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	ranked := s.reranker.Rerank(normalized, results)
	bundle := s.contextBuilder.Build(ranked)

	answer, err := s.rag.Answer(ctx, question, bundle.Passages)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"retrieved": len(results),
		"ranked":    len(ranked),
		"passages":  len(bundle.Passages),
		"abstained": answer.Abstained,
		"duration":  time.Since(start).String(),
	}).Info("Question answered")

	s.storeCache(cacheKey, answer)
	return answer, nil
}

// lookupCache 查询答案缓存，缓存不可用或内容损坏时按未命中处理
func (s *QAService) lookupCache(key string) *llm.Answer {
	if s.cache == nil {
		return nil
	}

	value, found, err := s.cache.Get(key)
	if err != nil || !found {
		return nil
	}

	var answer llm.Answer
	if err := json.Unmarshal([]byte(value), &answer); err != nil {
		s.logger.WithError(err).WithField("cache_key", key).Warn("Corrupted answer cache entry")
		_ = s.cache.Delete(key)
		return nil
	}
	return &answer
}

// storeCache 写入答案缓存，失败只记日志不影响本次响应
func (s *QAService) storeCache(key string, answer *llm.Answer) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(answer)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to marshal answer for cache")
		return
	}
	if err := s.cache.Set(key, string(data), s.cacheTTL); err != nil {
		s.logger.WithError(err).Warn("Failed to cache answer")
	}
}
