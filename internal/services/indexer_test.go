package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/ayurveda-qa-system/internal/chunker"
	"github.com/fyerfyer/ayurveda-qa-system/internal/embedding"
	"github.com/fyerfyer/ayurveda-qa-system/internal/vectordb"
)

// newTestVectorDB 创建内存向量库
func newTestVectorDB(t *testing.T, dimension int) vectordb.Repository {
	t.Helper()

	repo, err := vectordb.NewMemoryRepository(vectordb.Config{
		Dimension:    dimension,
		DistanceType: vectordb.Cosine,
	})
	require.NoError(t, err, "应该能创建内存向量库")
	t.Cleanup(func() { repo.Close() })
	return repo
}

// newLocalEmbedder 创建确定性的本地嵌入器
func newLocalEmbedder(t *testing.T, dimension int) embedding.Client {
	t.Helper()

	client, err := embedding.NewLocalClient(embedding.WithDimensions(dimension))
	require.NoError(t, err)
	return client
}

// zeroDelayPolicy 测试用零延迟重试策略
func zeroDelayPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Microsecond,
		MaxDelay:    time.Millisecond,
	}
}

// makeChunks 生成测试用的块序列
func makeChunks(docID string, texts ...string) []chunker.Chunk {
	chunks := make([]chunker.Chunk, 0, len(texts))
	offset := 0
	for i, text := range texts {
		end := offset + len([]rune(text))
		chunks = append(chunks, chunker.Chunk{
			ID:         chunker.ChunkID(docID, offset, end),
			DocumentID: docID,
			Index:      i,
			Text:       text,
			Start:      offset,
			End:        end,
			Pages:      []int{1},
		})
		offset = end
	}
	return chunks
}

// scriptedEmbedder 可编排失败行为的嵌入器
// failures记录每条文本剩余的失败次数，归零后转为成功
type scriptedEmbedder struct {
	inner    embedding.Client
	mu       sync.Mutex
	failures map[string]int
	failErr  error
	calls    map[string]int
}

func newScriptedEmbedder(t *testing.T, failures map[string]int, failErr error) *scriptedEmbedder {
	t.Helper()
	return &scriptedEmbedder{
		inner:    newLocalEmbedder(t, 32),
		failures: failures,
		failErr:  failErr,
		calls:    make(map[string]int),
	}
}

func (s *scriptedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	s.calls[text]++
	remaining := s.failures[text]
	if remaining > 0 {
		s.failures[text] = remaining - 1
		s.mu.Unlock()
		return nil, s.failErr
	}
	s.mu.Unlock()
	return s.inner.Embed(ctx, text)
}

func (s *scriptedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		result[i] = vec
	}
	return result, nil
}

func (s *scriptedEmbedder) Name() string {
	return "scripted"
}

func (s *scriptedEmbedder) callCount(text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[text]
}

// TestIndexerAllSuccess 测试全部块成功索引
func TestIndexerAllSuccess(t *testing.T) {
	vectorDB := newTestVectorDB(t, 32)
	indexer, err := NewIndexer(newLocalEmbedder(t, 32), vectorDB)
	require.NoError(t, err)

	chunks := makeChunks("doc-1", "Vāta governs movement.", "Pitta governs digestion.", "Kapha governs structure.")
	report, err := indexer.IndexChunks(context.Background(), chunks)
	require.NoError(t, err)

	assert.Equal(t, "doc-1", report.DocumentID)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Indexed)
	assert.True(t, report.Complete())

	count, err := vectorDB.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

// TestIndexerTransientRetry 测试瞬时错误的重试
func TestIndexerTransientRetry(t *testing.T) {
	vectorDB := newTestVectorDB(t, 32)

	// 前两次调用失败，第三次成功
	embedder := newScriptedEmbedder(t,
		map[string]int{"flaky chunk text": 2},
		embedding.NewEmbeddingError(embedding.ErrCodeServerError, embedding.ErrMsgServerError))

	indexer, err := NewIndexer(embedder, vectorDB, WithRetryPolicy(zeroDelayPolicy(3)))
	require.NoError(t, err)

	report, err := indexer.IndexChunks(context.Background(), makeChunks("doc-1", "flaky chunk text"))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Indexed)
	assert.True(t, report.Complete(), "瞬时错误在重试预算内恢复后不应留下失败记录")
	assert.Equal(t, 3, embedder.callCount("flaky chunk text"))
}

// TestIndexerPermanentErrorNoRetry 测试永久性错误不重试
func TestIndexerPermanentErrorNoRetry(t *testing.T) {
	vectorDB := newTestVectorDB(t, 32)

	embedder := newScriptedEmbedder(t,
		map[string]int{"bad chunk": 100},
		embedding.NewEmbeddingError(embedding.ErrCodeInvalidRequest, embedding.ErrMsgInvalidRequest))

	indexer, err := NewIndexer(embedder, vectorDB, WithRetryPolicy(zeroDelayPolicy(3)))
	require.NoError(t, err)

	report, err := indexer.IndexChunks(context.Background(), makeChunks("doc-1", "bad chunk"))
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	failure := report.Failures[0]
	assert.False(t, failure.Transient)
	assert.Equal(t, 1, failure.Attempts, "永久性错误不应该消耗额外的重试")
	assert.Equal(t, 1, embedder.callCount("bad chunk"))
}

// TestIndexerRetryBudgetExhausted 测试重试预算耗尽
func TestIndexerRetryBudgetExhausted(t *testing.T) {
	vectorDB := newTestVectorDB(t, 32)

	embedder := newScriptedEmbedder(t,
		map[string]int{"always failing": 100},
		embedding.NewEmbeddingError(embedding.ErrCodeRateLimited, embedding.ErrMsgRateLimited))

	indexer, err := NewIndexer(embedder, vectorDB, WithRetryPolicy(zeroDelayPolicy(2)))
	require.NoError(t, err)

	report, err := indexer.IndexChunks(context.Background(), makeChunks("doc-1", "always failing"))
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	failure := report.Failures[0]
	assert.True(t, failure.Transient)
	assert.Equal(t, 2, failure.Attempts)
	assert.Contains(t, failure.Reason, "rate limit")
}

// TestIndexerPartialFailure 测试部分块失败不影响其余块
func TestIndexerPartialFailure(t *testing.T) {
	vectorDB := newTestVectorDB(t, 32)

	embedder := newScriptedEmbedder(t,
		map[string]int{"broken middle chunk": 100},
		embedding.NewEmbeddingError(embedding.ErrCodeServerError, embedding.ErrMsgServerError))

	indexer, err := NewIndexer(embedder, vectorDB, WithRetryPolicy(zeroDelayPolicy(2)), WithIndexWorkers(2))
	require.NoError(t, err)

	chunks := makeChunks("doc-1", "first good chunk", "broken middle chunk", "last good chunk")
	report, err := indexer.IndexChunks(context.Background(), chunks)
	require.NoError(t, err, "部分失败不应该使整次运行报错")

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Indexed)
	require.Len(t, report.Failures, 1)
	assert.False(t, report.Complete())

	count, err := vectorDB.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count, "成功的块应该已写入向量库")
}

// TestIndexerIdempotentRerun 测试重跑的幂等性
func TestIndexerIdempotentRerun(t *testing.T) {
	vectorDB := newTestVectorDB(t, 32)
	indexer, err := NewIndexer(newLocalEmbedder(t, 32), vectorDB)
	require.NoError(t, err)

	chunks := makeChunks("doc-1", "stable chunk one", "stable chunk two")

	for run := 0; run < 3; run++ {
		report, err := indexer.IndexChunks(context.Background(), chunks)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Indexed, fmt.Sprintf("第%d次重跑", run+1))

		count, err := vectorDB.Count()
		require.NoError(t, err)
		assert.Equal(t, 2, count, "块ID确定，重跑不应该产生重复条目")
	}
}

// TestIndexerEmptyInput 测试空输入
func TestIndexerEmptyInput(t *testing.T) {
	indexer, err := NewIndexer(newLocalEmbedder(t, 32), newTestVectorDB(t, 32))
	require.NoError(t, err)

	report, err := indexer.IndexChunks(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
	assert.True(t, report.Complete())
}

// TestIndexerValidation 测试依赖校验
func TestIndexerValidation(t *testing.T) {
	_, err := NewIndexer(nil, newTestVectorDB(t, 32))
	assert.Error(t, err)

	_, err = NewIndexer(newLocalEmbedder(t, 32), nil)
	assert.Error(t, err)
}

// TestRetryPolicyDelay 测试退避延迟计算
func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}

	assert.Equal(t, 100*time.Millisecond, policy.delayFor(0))
	assert.Equal(t, 200*time.Millisecond, policy.delayFor(1))
	assert.Equal(t, 300*time.Millisecond, policy.delayFor(2), "延迟应该封顶在MaxDelay")
	assert.Equal(t, 300*time.Millisecond, policy.delayFor(3))
}
