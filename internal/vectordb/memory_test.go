package vectordb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRepository 创建测试用内存仓库
func newTestRepository(t *testing.T) Repository {
	t.Helper()
	repo, err := NewMemoryRepository(Config{
		Type:         "memory",
		Dimension:    4,
		DistanceType: Cosine,
	})
	require.NoError(t, err, "应该能创建内存仓库")
	return repo
}

// testEntry 构造测试条目
func testEntry(id, docID string, vector []float32) ChunkEntry {
	return ChunkEntry{
		ID:         id,
		DocumentID: docID,
		Text:       "chunk " + id,
		Vector:     vector,
	}
}

// TestUpsertIdempotence 测试同ID重复写入的幂等性
func TestUpsertIdempotence(t *testing.T) {
	repo := newTestRepository(t)

	entry := testEntry("chunk-1", "doc-1", []float32{1, 0, 0, 0})
	require.NoError(t, repo.Upsert(entry))

	// 重复写入同一ID不能产生重复条目
	entry.Text = "updated text"
	require.NoError(t, repo.Upsert(entry))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count, "同ID重复写入后应该只有一条记录")

	got, err := repo.Get("chunk-1")
	require.NoError(t, err)
	assert.Equal(t, "updated text", got.Text, "覆盖写入应该保留最新内容")

	t.Run("batch upsert also idempotent", func(t *testing.T) {
		entries := []ChunkEntry{
			testEntry("chunk-1", "doc-1", []float32{0, 1, 0, 0}),
			testEntry("chunk-2", "doc-1", []float32{0, 0, 1, 0}),
		}
		require.NoError(t, repo.UpsertBatch(entries))

		count, err := repo.Count()
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

// TestSearchBasics 测试相似度搜索
func TestSearchBasics(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.UpsertBatch([]ChunkEntry{
		testEntry("chunk-1", "doc-1", []float32{1, 0, 0, 0}),
		testEntry("chunk-2", "doc-1", []float32{0, 1, 0, 0}),
		testEntry("chunk-3", "doc-2", []float32{0.9, 0.1, 0, 0}),
	}))

	t.Run("ordered by similarity", func(t *testing.T) {
		results, err := repo.Search([]float32{1, 0, 0, 0}, SearchFilter{MaxResults: 3})
		require.NoError(t, err)
		require.NotEmpty(t, results)

		assert.Equal(t, "chunk-1", results[0].Entry.ID, "最相似的块应该排第一")
		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score, "结果应该按分数降序")
		}
	})

	t.Run("min score floor returns empty not error", func(t *testing.T) {
		results, err := repo.Search([]float32{0, 0, 0, 1}, SearchFilter{MinScore: 0.99, MaxResults: 5})
		require.NoError(t, err, "无命中必须不是错误")
		assert.Empty(t, results, "低于相似度下限的结果应该被过滤")
	})

	t.Run("document id filter", func(t *testing.T) {
		results, err := repo.Search([]float32{1, 0, 0, 0}, SearchFilter{
			DocumentIDs: []string{"doc-2"},
			MaxResults:  5,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "chunk-3", results[0].Entry.ID)
	})

	t.Run("max results respected", func(t *testing.T) {
		results, err := repo.Search([]float32{1, 0, 0, 0}, SearchFilter{MaxResults: 2})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(results), 2)
	})

	t.Run("dimension mismatch rejected", func(t *testing.T) {
		_, err := repo.Search([]float32{1, 0}, SearchFilter{MaxResults: 5})
		assert.Error(t, err, "维度不匹配应该返回错误")
	})
}

// TestDeleteOperations 测试删除操作
func TestDeleteOperations(t *testing.T) {
	repo := newTestRepository(t)

	require.NoError(t, repo.UpsertBatch([]ChunkEntry{
		testEntry("chunk-1", "doc-1", []float32{1, 0, 0, 0}),
		testEntry("chunk-2", "doc-1", []float32{0, 1, 0, 0}),
		testEntry("chunk-3", "doc-2", []float32{0, 0, 1, 0}),
	}))

	t.Run("delete single chunk", func(t *testing.T) {
		require.NoError(t, repo.Delete("chunk-3"))

		_, err := repo.Get("chunk-3")
		assert.ErrorIs(t, err, ErrChunkNotFound)
	})

	t.Run("delete by document id", func(t *testing.T) {
		require.NoError(t, repo.DeleteByDocumentID("doc-1"))

		count, err := repo.Count()
		require.NoError(t, err)
		assert.Equal(t, 0, count, "文档的全部块都应该被删除")
	})

	t.Run("delete missing document is no-op", func(t *testing.T) {
		assert.NoError(t, repo.DeleteByDocumentID("doc-404"))
	})

	t.Run("delete missing chunk returns not found", func(t *testing.T) {
		assert.ErrorIs(t, repo.Delete("chunk-404"), ErrChunkNotFound)
	})
}

// TestUpsertValidation 测试写入校验
func TestUpsertValidation(t *testing.T) {
	repo := newTestRepository(t)

	t.Run("empty id rejected", func(t *testing.T) {
		err := repo.Upsert(testEntry("", "doc-1", []float32{1, 0, 0, 0}))
		assert.ErrorIs(t, err, ErrInvalidID)
	})

	t.Run("empty vector rejected", func(t *testing.T) {
		err := repo.Upsert(testEntry("chunk-1", "doc-1", nil))
		assert.ErrorIs(t, err, ErrEmptyVector)
	})

	t.Run("wrong dimension rejected", func(t *testing.T) {
		err := repo.Upsert(testEntry("chunk-1", "doc-1", []float32{1, 0}))
		assert.Error(t, err)
	})
}

// TestSortSearchResultsStability 测试结果排序的稳定性
func TestSortSearchResultsStability(t *testing.T) {
	results := []SearchResult{
		{Entry: ChunkEntry{ID: "a"}, Score: 0.5},
		{Entry: ChunkEntry{ID: "b"}, Score: 0.9},
		{Entry: ChunkEntry{ID: "c"}, Score: 0.5},
		{Entry: ChunkEntry{ID: "d"}, Score: 0.7},
	}

	SortSearchResults(results)

	assert.Equal(t, "b", results[0].Entry.ID)
	assert.Equal(t, "d", results[1].Entry.ID)
	assert.Equal(t, "a", results[2].Entry.ID, "同分结果必须保持输入顺序")
	assert.Equal(t, "c", results[3].Entry.ID, "同分结果必须保持输入顺序")
}

// TestDistanceHelpers 测试距离与评分换算
func TestDistanceHelpers(t *testing.T) {
	t.Run("cosine distance", func(t *testing.T) {
		d, err := ComputeDistance([]float32{1, 0}, []float32{1, 0}, Cosine)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, d, 1e-6, "同向向量的余弦距离应该为0")

		d, err = ComputeDistance([]float32{1, 0}, []float32{0, 1}, Cosine)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, d, 1e-6, "正交向量的余弦距离应该为1")
	})

	t.Run("distance to score", func(t *testing.T) {
		assert.InDelta(t, 1.0, DistanceToScore(0, Cosine), 1e-6)
		assert.InDelta(t, 0.0, DistanceToScore(1, Cosine), 1e-6)
	})

	t.Run("mismatched dimensions", func(t *testing.T) {
		_, err := ComputeDistance([]float32{1}, []float32{1, 2}, Cosine)
		assert.Error(t, err)
	})
}
