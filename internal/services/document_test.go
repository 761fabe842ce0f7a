package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/ayurveda-qa-system/internal/chunker"
	"github.com/fyerfyer/ayurveda-qa-system/internal/embedding"
	"github.com/fyerfyer/ayurveda-qa-system/internal/models"
	"github.com/fyerfyer/ayurveda-qa-system/internal/repository"
	"github.com/fyerfyer/ayurveda-qa-system/internal/textnorm"
	"github.com/fyerfyer/ayurveda-qa-system/internal/vectordb"
	"github.com/fyerfyer/ayurveda-qa-system/pkg/storage"
	"github.com/fyerfyer/ayurveda-qa-system/pkg/taskqueue"
)

// memStorage 内存存储实现，测试用
type memStorage struct {
	mu    sync.Mutex
	files map[string][]byte
	names map[string]string
	seq   int
}

func newMemStorage() *memStorage {
	return &memStorage{
		files: make(map[string][]byte),
		names: make(map[string]string),
	}
}

func (m *memStorage) Save(reader io.Reader, filename string) (storage.FileInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return storage.FileInfo{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("file-%04d", m.seq)
	m.files[id] = data
	m.names[id] = filename

	return storage.FileInfo{
		ID:   id,
		Name: filename,
		Size: int64(len(data)),
		Path: "mem://" + id,
	}, nil
}

func (m *memStorage) Get(id string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", id)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, id)
	delete(m.names, id)
	return nil
}

func (m *memStorage) List() ([]storage.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]storage.FileInfo, 0, len(m.files))
	for id, data := range m.files {
		infos = append(infos, storage.FileInfo{ID: id, Name: m.names[id], Size: int64(len(data))})
	}
	return infos, nil
}

func (m *memStorage) Exists(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[id]
	return ok, nil
}

// newTestNormalizer 从小词典构建完整的归一化器
func newTestNormalizer(t *testing.T) *textnorm.Normalizer {
	t.Helper()

	sanskritLexicon := textnorm.NewLexicon(map[string]int{
		"vāta":  100,
		"pitta": 90,
		"kapha": 80,
		"doṣa":  70,
		"agni":  50,
	})
	englishLexicon := textnorm.NewLexicon(map[string]int{
		"the":       1000,
		"body":      500,
		"health":    300,
		"balance":   200,
		"balances":  150,
		"digestion": 150,
		"energy":    100,
		"governs":   80,
		"movement":  80,
		"what":      400,
		"of":        900,
		"depends":   60,
		"on":        700,
		"and":       800,
	})

	classifier, err := textnorm.NewClassifierFromLexicons(sanskritLexicon, englishLexicon)
	require.NoError(t, err)

	sanskrit, err := textnorm.NewSanskritCorrector(sanskritLexicon, textnorm.DefaultSanskritCorrectorConfig())
	require.NoError(t, err)
	english, err := textnorm.NewEnglishCorrector(englishLexicon, textnorm.DefaultEnglishCorrectorConfig())
	require.NoError(t, err)

	normalizer, err := textnorm.NewNormalizer(classifier, sanskrit, english)
	require.NoError(t, err)
	return normalizer
}

// testPipeline 一套可独立组装的处理管线依赖
type testPipeline struct {
	storage   *memStorage
	repo      repository.DocumentRepository
	statusMgr *DocumentStatusManager
	vectorDB  vectordb.Repository
	service   *DocumentService
}

// newTestPipeline 组装文档服务及其依赖
// embedder为nil时使用确定性的本地嵌入器
func newTestPipeline(t *testing.T, embedder embedding.Client) *testPipeline {
	t.Helper()

	if embedder == nil {
		embedder = newLocalEmbedder(t, 32)
	}

	store := newMemStorage()
	repo := newTestRepo(t)
	statusMgr := NewDocumentStatusManager(repo, quietLogger())
	vectorDB := newTestVectorDB(t, 32)

	chunk, err := chunker.New(chunker.Config{MaxChunkChars: 80, MinChunkChars: 1, OverlapChars: 20})
	require.NoError(t, err)

	indexer, err := NewIndexer(embedder, vectorDB,
		WithRetryPolicy(zeroDelayPolicy(2)),
		WithIndexerLogger(quietLogger()))
	require.NoError(t, err)

	service, err := NewDocumentService(
		store, newTestNormalizer(t), chunk, indexer, vectorDB, repo, statusMgr,
		WithDocumentLogger(quietLogger()))
	require.NoError(t, err)

	return &testPipeline{
		storage:   store,
		repo:      repo,
		statusMgr: statusMgr,
		vectorDB:  vectorDB,
		service:   service,
	}
}

const testDocumentText = "Vaata governs movement of the body. " +
	"The helth of digestion depends on agni. " +
	"Pitta governs digestion and energy of the body."

// TestUploadDocumentSyncPipeline 测试同步处理的完整管线
func TestUploadDocumentSyncPipeline(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	doc, err := p.service.UploadDocument(ctx, strings.NewReader(testDocumentText), "charaka.txt")
	require.NoError(t, err)
	require.NotNil(t, doc)

	t.Run("document completed", func(t *testing.T) {
		assert.Equal(t, models.DocStatusCompleted, doc.Status)
		assert.Equal(t, models.StageCompleted, doc.CurrentStage)
		assert.Equal(t, 1, doc.PageCount)
		assert.Greater(t, doc.ChunkCount, 1, "文本超过单块上限，应该产生多个块")
		assert.Zero(t, doc.FailedChunks)
	})

	t.Run("chunks mirrored and indexed", func(t *testing.T) {
		segments, err := p.repo.GetChunks(doc.ID)
		require.NoError(t, err)
		require.Len(t, segments, doc.ChunkCount)
		for _, seg := range segments {
			assert.True(t, seg.Indexed, "成功索引的块应该被标记")
		}

		count, err := p.vectorDB.Count()
		require.NoError(t, err)
		assert.Equal(t, doc.ChunkCount, count)
	})

	t.Run("corrections persisted", func(t *testing.T) {
		records, err := p.service.GetCorrections(ctx, doc.ID)
		require.NoError(t, err)
		require.NotEmpty(t, records)

		var vaata bool
		for _, r := range records {
			if r.Surface == "Vaata" {
				vaata = true
				assert.Equal(t, "Vāta", r.Corrected)
				assert.Equal(t, 1, r.Distance)
			}
		}
		assert.True(t, vaata, "纠错日志中应该有Vaata的记录")
		assert.Equal(t, len(records), doc.Corrections)
	})

	t.Run("entities recorded", func(t *testing.T) {
		assert.NotEmpty(t, doc.Entities, "应该记录识别出的术语")
		assert.Contains(t, string(doc.Entities), "agni")
	})
}

// TestUploadDocumentUnsupportedType 测试不支持的文件类型
func TestUploadDocumentUnsupportedType(t *testing.T) {
	p := newTestPipeline(t, nil)

	_, err := p.service.UploadDocument(context.Background(), strings.NewReader("data"), "scan.docx")
	require.Error(t, err)

	files, listErr := p.storage.List()
	require.NoError(t, listErr)
	assert.Empty(t, files, "被拒绝的上传不应该留下文件")
}

// TestProcessDocumentPartialFailure 测试部分块索引失败
func TestProcessDocumentPartialFailure(t *testing.T) {
	// 所有嵌入调用都失败，整批块都进失败记录
	failErr := embedding.NewEmbeddingError(embedding.ErrCodeServerError, embedding.ErrMsgServerError)
	p := newTestPipeline(t, &failingEmbedder{err: failErr})
	ctx := context.Background()

	doc, err := p.service.UploadDocument(ctx, strings.NewReader(testDocumentText), "charaka.txt")
	require.NoError(t, err, "索引失败不应该使整次处理报错")

	assert.Equal(t, models.DocStatusPartial, doc.Status)
	assert.Equal(t, doc.ChunkCount, doc.FailedChunks)

	failures, err := p.repo.ListIndexFailures(doc.ID)
	require.NoError(t, err)
	require.Len(t, failures, doc.ChunkCount)
	for _, f := range failures {
		assert.True(t, f.Transient)
		assert.Equal(t, 2, f.Attempts)
	}
}

// failingEmbedder 总是失败的嵌入器
type failingEmbedder struct {
	err error
}

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, f.err
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, f.err
}

func (f *failingEmbedder) Name() string { return "failing" }

// TestRetryFailedChunks 测试失败块的重试恢复
func TestRetryFailedChunks(t *testing.T) {
	failErr := embedding.NewEmbeddingError(embedding.ErrCodeServerError, embedding.ErrMsgServerError)
	p := newTestPipeline(t, &failingEmbedder{err: failErr})
	ctx := context.Background()

	doc, err := p.service.UploadDocument(ctx, strings.NewReader(testDocumentText), "charaka.txt")
	require.NoError(t, err)
	require.Equal(t, models.DocStatusPartial, doc.Status)

	// 换成可用的嵌入器重建服务，共享仓储和向量库
	chunk, err := chunker.New(chunker.Config{MaxChunkChars: 80, MinChunkChars: 1, OverlapChars: 20})
	require.NoError(t, err)
	healthyIndexer, err := NewIndexer(newLocalEmbedder(t, 32), p.vectorDB, WithIndexerLogger(quietLogger()))
	require.NoError(t, err)
	healthyService, err := NewDocumentService(
		p.storage, newTestNormalizer(t), chunk, healthyIndexer, p.vectorDB, p.repo, p.statusMgr,
		WithDocumentLogger(quietLogger()))
	require.NoError(t, err)

	report, err := healthyService.RetryFailedChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ChunkCount, report.Indexed)
	assert.True(t, report.Complete())

	remaining, err := p.repo.ListIndexFailures(doc.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining, "重试成功后失败记录应该被解决")

	updated, err := healthyService.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusCompleted, updated.Status)
	assert.Zero(t, updated.FailedChunks)

	count, err := p.vectorDB.Count()
	require.NoError(t, err)
	assert.Equal(t, doc.ChunkCount, count)
}

// TestDeleteDocument 测试删除文档的级联清理
func TestDeleteDocument(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	doc, err := p.service.UploadDocument(ctx, strings.NewReader(testDocumentText), "charaka.txt")
	require.NoError(t, err)

	require.NoError(t, p.service.DeleteDocument(ctx, doc.ID))

	_, err = p.service.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)

	count, err := p.vectorDB.Count()
	require.NoError(t, err)
	assert.Zero(t, count, "向量库中的块应该被清除")

	exists, err := p.storage.Exists(doc.ID)
	require.NoError(t, err)
	assert.False(t, exists, "存储层的原始文件应该被清除")
}

// TestUpdateDocumentTags 测试标签更新
func TestUpdateDocumentTags(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	doc, err := p.service.UploadDocument(ctx, strings.NewReader(testDocumentText), "charaka.txt")
	require.NoError(t, err)

	require.NoError(t, p.service.UpdateDocumentTags(ctx, doc.ID, []string{"ayurveda", "dosha"}))

	updated, err := p.service.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "ayurveda,dosha", updated.Tags)
}

// recordingQueue 只记录入队调用的假队列
type recordingQueue struct {
	mu       sync.Mutex
	enqueued []taskqueue.TaskType
	payloads []interface{}
}

func (q *recordingQueue) Enqueue(ctx context.Context, taskType taskqueue.TaskType, documentID string, payload interface{}) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, taskType)
	q.payloads = append(q.payloads, payload)
	return fmt.Sprintf("task-%d", len(q.enqueued)), nil
}

func (q *recordingQueue) EnqueueIn(ctx context.Context, taskType taskqueue.TaskType, documentID string, payload interface{}, delay time.Duration) (string, error) {
	return q.Enqueue(ctx, taskType, documentID, payload)
}

func (q *recordingQueue) GetTask(ctx context.Context, taskID string) (*taskqueue.Task, error) {
	return nil, taskqueue.ErrTaskNotFound
}

func (q *recordingQueue) GetTasksByDocument(ctx context.Context, documentID string) ([]*taskqueue.Task, error) {
	return nil, nil
}

func (q *recordingQueue) WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*taskqueue.Task, error) {
	return nil, taskqueue.ErrTaskNotFound
}

func (q *recordingQueue) DeleteTask(ctx context.Context, taskID string) error { return nil }

func (q *recordingQueue) UpdateTaskStatus(ctx context.Context, taskID string, status taskqueue.TaskStatus, result interface{}, errorMsg string) error {
	return nil
}

func (q *recordingQueue) Close() error { return nil }

// TestUploadDocumentAsync 测试配置队列后上传只入队
func TestUploadDocumentAsync(t *testing.T) {
	queue := &recordingQueue{}

	store := newMemStorage()
	repo := newTestRepo(t)
	statusMgr := NewDocumentStatusManager(repo, quietLogger())
	vectorDB := newTestVectorDB(t, 32)
	chunk, err := chunker.New(chunker.DefaultConfig())
	require.NoError(t, err)
	indexer, err := NewIndexer(newLocalEmbedder(t, 32), vectorDB)
	require.NoError(t, err)

	service, err := NewDocumentService(
		store, newTestNormalizer(t), chunk, indexer, vectorDB, repo, statusMgr,
		WithTaskQueue(queue), WithDocumentLogger(quietLogger()))
	require.NoError(t, err)

	doc, err := service.UploadDocument(context.Background(), strings.NewReader(testDocumentText), "charaka.txt")
	require.NoError(t, err)

	assert.Equal(t, models.DocStatusUploaded, doc.Status, "异步模式下上传不应该立即处理")
	assert.NotEmpty(t, doc.TaskID)

	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, taskqueue.TaskProcessDocument, queue.enqueued[0])

	payload, ok := queue.payloads[0].(taskqueue.ProcessDocumentPayload)
	require.True(t, ok)
	assert.Equal(t, doc.ID, payload.DocumentID)

	count, err := vectorDB.Count()
	require.NoError(t, err)
	assert.Zero(t, count, "入队后向量库不应该有数据")
}
