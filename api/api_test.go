package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fyerfyer/ayurveda-qa-system/api/model"
	"github.com/fyerfyer/ayurveda-qa-system/internal/agent"
	"github.com/fyerfyer/ayurveda-qa-system/internal/cache"
	"github.com/fyerfyer/ayurveda-qa-system/internal/chunker"
	"github.com/fyerfyer/ayurveda-qa-system/internal/embedding"
	"github.com/fyerfyer/ayurveda-qa-system/internal/llm"
	"github.com/fyerfyer/ayurveda-qa-system/internal/models"
	"github.com/fyerfyer/ayurveda-qa-system/internal/repository"
	"github.com/fyerfyer/ayurveda-qa-system/internal/services"
	"github.com/fyerfyer/ayurveda-qa-system/internal/textnorm"
	"github.com/fyerfyer/ayurveda-qa-system/pkg/storage"
	"github.com/fyerfyer/ayurveda-qa-system/internal/vectordb"
)

// memStorage 内存存储实现，测试用
type memStorage struct {
	mu    sync.Mutex
	files map[string][]byte
	seq   int
}

func newMemStorage() *memStorage {
	return &memStorage{files: make(map[string][]byte)}
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
	return storage.FileInfo{ID: id, Name: filename, Size: int64(len(data)), Path: "mem://" + id}, nil
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
	return nil
}

func (m *memStorage) List() ([]storage.FileInfo, error) { return nil, nil }

func (m *memStorage) Exists(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[id]
	return ok, nil
}

// fakeLLM 返回固定回复的大模型客户端
type fakeLLM struct {
	reply string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, options ...llm.GenerateOption) (*llm.Response, error) {
	return &llm.Response{Text: f.reply, ModelName: "fake"}, nil
}

func (f *fakeLLM) Name() string { return "fake" }

// envelope 统一响应的解码结构
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	TraceID string          `json:"trace_id"`
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestNormalizer(t *testing.T) *textnorm.Normalizer {
	t.Helper()

	sanskritLexicon := textnorm.NewLexicon(map[string]int{
		"vāta":  100,
		"pitta": 90,
		"kapha": 80,
		"agni":  50,
	})
	englishLexicon := textnorm.NewLexicon(map[string]int{
		"the": 1000, "body": 500, "health": 300, "digestion": 150,
		"energy": 100, "governs": 80, "movement": 80, "what": 400,
		"of": 900, "depends": 60, "on": 700, "and": 800,
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

// newTestRouter 组装内存版的完整服务栈并返回路由
func newTestRouter(t *testing.T, llmReply string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Document{},
		&models.ChunkSegment{},
		&models.CorrectionRecord{},
		&models.IndexFailure{},
	))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	repo := repository.NewDocumentRepositoryWithDB(db)
	statusMgr := services.NewDocumentStatusManager(repo, quietLogger())

	embedder, err := embedding.NewLocalClient(embedding.WithDimensions(32))
	require.NoError(t, err)

	vectorDB, err := vectordb.NewMemoryRepository(vectordb.Config{
		Dimension:    32,
		DistanceType: vectordb.Cosine,
	})
	require.NoError(t, err)
	t.Cleanup(func() { vectorDB.Close() })

	chunk, err := chunker.New(chunker.Config{MaxChunkChars: 80, MinChunkChars: 1, OverlapChars: 20})
	require.NoError(t, err)

	indexer, err := services.NewIndexer(embedder, vectorDB, services.WithIndexerLogger(quietLogger()))
	require.NoError(t, err)

	normalizer := newTestNormalizer(t)
	docService, err := services.NewDocumentService(
		newMemStorage(), normalizer, chunk, indexer, vectorDB, repo, statusMgr,
		services.WithDocumentLogger(quietLogger()))
	require.NoError(t, err)

	retriever, err := agent.NewRetriever(normalizer, embedder, vectorDB,
		agent.WithTopK(5), agent.WithMinScore(0.05), agent.WithRetrieverLogger(quietLogger()))
	require.NoError(t, err)

	answerCache, err := cache.NewCache(cache.Config{Type: "memory"})
	require.NoError(t, err)

	qaService, err := services.NewQAService(
		retriever,
		agent.NewReranker(),
		agent.NewContextBuilder(),
		llm.NewRAG(&fakeLLM{reply: llmReply}),
		services.WithAnswerCache(answerCache, time.Minute),
		services.WithQALogger(quietLogger()))
	require.NoError(t, err)

	return SetupRouter(RouterConfig{
		DocumentService: docService,
		QAService:       qaService,
	})
}

// uploadDocument 通过multipart接口上传文档并返回文档ID
func uploadDocument(t *testing.T, router *gin.Engine, filename, content string) string {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	var upload model.DocumentUploadResponse
	require.NoError(t, json.Unmarshal(env.Data, &upload))
	require.NotEmpty(t, upload.DocumentID)
	return upload.DocumentID
}

const testDocumentText = "Vaata governs movement of the body. " +
	"The helth of digestion depends on agni. " +
	"Pitta governs digestion and energy of the body."

// TestDocumentAPI 测试文档管理接口
func TestDocumentAPI(t *testing.T) {
	router := newTestRouter(t, "unused")
	docID := uploadDocument(t, router, "charaka.txt", testDocumentText)

	t.Run("get document status", func(t *testing.T) {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/documents/"+docID, nil))
		require.Equal(t, http.StatusOK, resp.Code)

		var env envelope
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
		var info model.DocumentInfo
		require.NoError(t, json.Unmarshal(env.Data, &info))

		assert.Equal(t, "completed", info.Status)
		assert.Equal(t, "txt", info.FileType)
		assert.Greater(t, info.ChunkCount, 1)
		assert.Zero(t, info.FailedChunks)
		assert.Contains(t, info.Entities, "agni")
	})

	t.Run("list documents", func(t *testing.T) {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/documents?page=1&page_size=10", nil))
		require.Equal(t, http.StatusOK, resp.Code)

		var env envelope
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
		var list model.DocumentListResponse
		require.NoError(t, json.Unmarshal(env.Data, &list))

		assert.Equal(t, int64(1), list.Total)
		require.Len(t, list.Documents, 1)
		assert.Equal(t, docID, list.Documents[0].DocumentID)
	})

	t.Run("corrections logged", func(t *testing.T) {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/documents/"+docID+"/corrections", nil))
		require.Equal(t, http.StatusOK, resp.Code)

		var env envelope
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
		var corrections model.CorrectionListResponse
		require.NoError(t, json.Unmarshal(env.Data, &corrections))

		found := false
		for _, c := range corrections.Corrections {
			if c.Surface == "Vaata" {
				found = true
				assert.Equal(t, "Vāta", c.Corrected)
				assert.Equal(t, 1, c.Distance)
			}
		}
		assert.True(t, found, "纠错日志应该包含Vaata的修正记录")
	})

	t.Run("update tags", func(t *testing.T) {
		body := strings.NewReader(`{"tags":["ayurveda","dosha"]}`)
		req := httptest.NewRequest(http.MethodPut, "/api/documents/"+docID+"/tags", body)
		req.Header.Set("Content-Type", "application/json")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		require.Equal(t, http.StatusOK, resp.Code)

		resp = httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/documents/"+docID, nil))
		var env envelope
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
		var info model.DocumentInfo
		require.NoError(t, json.Unmarshal(env.Data, &info))
		assert.Equal(t, []string{"ayurveda", "dosha"}, info.Tags)
	})

	t.Run("delete document", func(t *testing.T) {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/api/documents/"+docID, nil))
		require.Equal(t, http.StatusOK, resp.Code)

		resp = httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/documents/"+docID, nil))
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

// TestDocumentAPIValidation 测试文档接口的参数校验
func TestDocumentAPIValidation(t *testing.T) {
	router := newTestRouter(t, "unused")

	t.Run("missing file rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/documents", nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("unsupported file type rejected", func(t *testing.T) {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		part, err := writer.CreateFormFile("file", "scan.docx")
		require.NoError(t, err)
		_, err = part.Write([]byte("binary"))
		require.NoError(t, err)
		require.NoError(t, writer.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/documents", &body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("unknown document returns 404", func(t *testing.T) {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/documents/missing", nil))
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

// TestQAAPI 测试问答接口
func TestQAAPI(t *testing.T) {
	router := newTestRouter(t, "Vāta governs movement in the body.【1】")
	uploadDocument(t, router, "charaka.txt", testDocumentText)

	t.Run("answer with citations", func(t *testing.T) {
		body := strings.NewReader(`{"question":"What governs movement of the body?"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/qa", body)
		req.Header.Set("Content-Type", "application/json")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

		var env envelope
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
		var qa model.QAResponse
		require.NoError(t, json.Unmarshal(env.Data, &qa))

		assert.False(t, qa.Abstained)
		assert.Contains(t, qa.Answer, "Vāta")
		require.NotEmpty(t, qa.Citations)
		for _, c := range qa.Citations {
			assert.NotEmpty(t, c.ChunkID)
			assert.NotEmpty(t, c.DocumentID)
		}
	})

	t.Run("filtered scope abstains", func(t *testing.T) {
		body := strings.NewReader(`{"question":"What governs movement?","document_ids":["doc-none"]}`)
		req := httptest.NewRequest(http.MethodPost, "/api/qa", body)
		req.Header.Set("Content-Type", "application/json")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		require.Equal(t, http.StatusOK, resp.Code, "拒答不是错误，状态码应该是200")

		var env envelope
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
		var qa model.QAResponse
		require.NoError(t, json.Unmarshal(env.Data, &qa))

		assert.True(t, qa.Abstained)
		assert.Empty(t, qa.Citations)
		assert.NotEmpty(t, qa.Reason)
	})

	t.Run("missing question rejected", func(t *testing.T) {
		body := strings.NewReader(`{}`)
		req := httptest.NewRequest(http.MethodPost, "/api/qa", body)
		req.Header.Set("Content-Type", "application/json")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

// TestHealthAndTraceID 测试健康检查和追踪ID透传
func TestHealthAndTraceID(t *testing.T) {
	router := newTestRouter(t, "unused")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "trace-123", resp.Header().Get("X-Trace-ID"))
}
