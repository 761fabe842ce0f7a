package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/ayurveda-qa-system/internal/chunker"
	"github.com/fyerfyer/ayurveda-qa-system/internal/embedding"
	"github.com/fyerfyer/ayurveda-qa-system/internal/vectordb"
)

// RetryPolicy 索引阶段的重试策略
// 作为策略对象注入，便于测试时替换为零延迟策略
type RetryPolicy struct {
	MaxAttempts int           // 最大尝试次数，含首次
	BaseDelay   time.Duration // 首次重试前的等待时间
	MaxDelay    time.Duration // 单次等待时间的上限
}

// DefaultRetryPolicy 默认重试策略
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// delayFor 计算第attempt次重试前的等待时间，按指数退避
func (p RetryPolicy) delayFor(attempt int) time.Duration {
	delay := p.BaseDelay << uint(attempt)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// ChunkFailure 单个块的索引失败信息
type ChunkFailure struct {
	ChunkID   string `json:"chunk_id"`
	Reason    string `json:"reason"`
	Transient bool   `json:"transient"`
	Attempts  int    `json:"attempts"`
}

// IndexReport 一次索引运行的结果
// 部分块失败不会使整次运行失败，失败的块记录在Failures中
type IndexReport struct {
	DocumentID string         `json:"document_id"`
	Total      int            `json:"total"`
	Indexed    int            `json:"indexed"`
	Failures   []ChunkFailure `json:"failures,omitempty"`
}

// Complete 是否所有块都已成功写入
func (r *IndexReport) Complete() bool {
	return len(r.Failures) == 0
}

// Indexer 索引管线
// 把分块后的文本向量化并写入向量库，块ID确定所以整次重跑是幂等的
type Indexer struct {
	embedder   embedding.Client
	vectorDB   vectordb.Repository
	retry      RetryPolicy
	maxWorkers int
	logger     *logrus.Logger
}

// IndexerOption 索引管线配置选项
type IndexerOption func(*Indexer)

// WithRetryPolicy 设置重试策略
func WithRetryPolicy(policy RetryPolicy) IndexerOption {
	return func(i *Indexer) {
		if policy.MaxAttempts > 0 {
			i.retry = policy
		}
	}
}

// WithIndexWorkers 设置并行工作线程数
func WithIndexWorkers(n int) IndexerOption {
	return func(i *Indexer) {
		if n > 0 {
			i.maxWorkers = n
		}
	}
}

// WithIndexerLogger 设置日志记录器
func WithIndexerLogger(logger *logrus.Logger) IndexerOption {
	return func(i *Indexer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewIndexer 创建索引管线
func NewIndexer(embedder embedding.Client, vectorDB vectordb.Repository, opts ...IndexerOption) (*Indexer, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedding client is required")
	}
	if vectorDB == nil {
		return nil, fmt.Errorf("vector repository is required")
	}

	idx := &Indexer{
		embedder:   embedder,
		vectorDB:   vectorDB,
		retry:      DefaultRetryPolicy(),
		maxWorkers: 4,
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

// IndexChunks 索引一批文本块
// 工作池并行处理，单块失败不中断其余块，汇总结果由调用方决定如何落库
func (i *Indexer) IndexChunks(ctx context.Context, chunks []chunker.Chunk) (*IndexReport, error) {
	report := &IndexReport{Total: len(chunks)}
	if len(chunks) == 0 {
		return report, nil
	}
	report.DocumentID = chunks[0].DocumentID

	wp := workerpool.New(i.maxWorkers)
	var mu sync.Mutex

	for _, chunk := range chunks {
		chunk := chunk
		wp.Submit(func() {
			failure := i.indexOne(ctx, chunk)

			mu.Lock()
			defer mu.Unlock()
			if failure != nil {
				report.Failures = append(report.Failures, *failure)
			} else {
				report.Indexed++
			}
		})
	}
	wp.StopWait()

	i.logger.WithFields(logrus.Fields{
		"document_id": report.DocumentID,
		"total":       report.Total,
		"indexed":     report.Indexed,
		"failed":      len(report.Failures),
	}).Info("index run finished")

	return report, nil
}

// indexOne 索引单个块，瞬时错误按策略重试
func (i *Indexer) indexOne(ctx context.Context, chunk chunker.Chunk) *ChunkFailure {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt < i.retry.MaxAttempts; attempt++ {
		attempts = attempt + 1

		if attempt > 0 {
			select {
			case <-ctx.Done():
				return &ChunkFailure{
					ChunkID:   chunk.ID,
					Reason:    ctx.Err().Error(),
					Transient: true,
					Attempts:  attempts,
				}
			case <-time.After(i.retry.delayFor(attempt - 1)):
			}
		}

		lastErr = i.embedAndStore(ctx, chunk)
		if lastErr == nil {
			return nil
		}

		// 永久性错误重试也不会成功
		if !embedding.IsTransient(lastErr) {
			break
		}

		i.logger.WithFields(logrus.Fields{
			"chunk_id": chunk.ID,
			"attempt":  attempts,
			"error":    lastErr.Error(),
		}).Warn("transient indexing error, will retry")
	}

	return &ChunkFailure{
		ChunkID:   chunk.ID,
		Reason:    lastErr.Error(),
		Transient: embedding.IsTransient(lastErr),
		Attempts:  attempts,
	}
}

// embedAndStore 向量化并写入向量库
func (i *Indexer) embedAndStore(ctx context.Context, chunk chunker.Chunk) error {
	vector, err := i.embedder.Embed(ctx, chunk.Text)
	if err != nil {
		return err
	}

	return i.vectorDB.Upsert(vectordb.ChunkEntry{
		ID:         chunk.ID,
		DocumentID: chunk.DocumentID,
		Position:   chunk.Index,
		Pages:      chunk.Pages,
		Text:       chunk.Text,
		Vector:     vector,
		Metadata: map[string]interface{}{
			"start": chunk.Start,
			"end":   chunk.End,
		},
	})
}
