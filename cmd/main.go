package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fyerfyer/ayurveda-qa-system/api"
	appconfig "github.com/fyerfyer/ayurveda-qa-system/config"
	"github.com/fyerfyer/ayurveda-qa-system/internal/agent"
	"github.com/fyerfyer/ayurveda-qa-system/internal/cache"
	"github.com/fyerfyer/ayurveda-qa-system/internal/chunker"
	"github.com/fyerfyer/ayurveda-qa-system/internal/database"
	"github.com/fyerfyer/ayurveda-qa-system/internal/embedding"
	"github.com/fyerfyer/ayurveda-qa-system/internal/llm"
	"github.com/fyerfyer/ayurveda-qa-system/internal/repository"
	"github.com/fyerfyer/ayurveda-qa-system/internal/services"
	"github.com/fyerfyer/ayurveda-qa-system/internal/textnorm"
	"github.com/fyerfyer/ayurveda-qa-system/internal/vectordb"
	"github.com/fyerfyer/ayurveda-qa-system/pkg/storage"
	"github.com/fyerfyer/ayurveda-qa-system/pkg/taskqueue"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)
	logger.Info("Starting Ayurveda QA system...")

	gin.SetMode(cfg.Server.Mode)

	if err := database.Setup(&database.Config{
		Type: cfg.Database.Type,
		DSN:  cfg.Database.DSN,
	}, logger); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	fileStorage, err := setupStorage(cfg.Storage)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	vectorDB, err := setupVectorDB(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize vector database: %v", err)
	}
	defer vectorDB.Close()

	embedder, err := setupEmbedding(cfg.Embed)
	if err != nil {
		logger.Fatalf("Failed to initialize embedding client: %v", err)
	}

	llmClient, err := llm.NewClient(cfg.LLM.Provider,
		llm.WithAPIKey(cfg.LLM.APIKey),
		llm.WithModel(cfg.LLM.Model),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTemperature(cfg.LLM.Temperature),
	)
	if err != nil {
		logger.Fatalf("Failed to initialize LLM client: %v", err)
	}

	normalizer, err := setupNormalizer(cfg.Lexicon)
	if err != nil {
		logger.Fatalf("Failed to initialize text normalizer: %v", err)
	}

	textChunker, err := chunker.New(chunker.Config{
		MaxChunkChars: cfg.Chunker.MaxChunkChars,
		MinChunkChars: cfg.Chunker.MinChunkChars,
		OverlapChars:  cfg.Chunker.OverlapChars,
	})
	if err != nil {
		logger.Fatalf("Failed to initialize chunker: %v", err)
	}

	indexer, err := services.NewIndexer(embedder, vectorDB,
		services.WithIndexWorkers(cfg.Indexer.Workers),
		services.WithRetryPolicy(services.RetryPolicy{
			MaxAttempts: cfg.Indexer.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Indexer.BaseDelayMS) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Indexer.MaxDelayMS) * time.Millisecond,
		}),
		services.WithIndexerLogger(logger),
	)
	if err != nil {
		logger.Fatalf("Failed to initialize indexer: %v", err)
	}

	repo := repository.NewDocumentRepositoryWithDB(database.MustDB())
	statusMgr := services.NewDocumentStatusManager(repo, logger)

	var queue taskqueue.Queue
	if cfg.Queue.Enable {
		queue, err = taskqueue.NewQueue(cfg.Queue.Type, &taskqueue.Config{
			RedisAddr:     cfg.Queue.RedisAddr,
			RedisPassword: cfg.Queue.RedisPassword,
			RedisDB:       cfg.Queue.RedisDB,
			Concurrency:   cfg.Queue.Concurrency,
			RetryLimit:    cfg.Queue.RetryLimit,
			RetryDelay:    time.Duration(cfg.Queue.RetryDelay) * time.Second,
		})
		if err != nil {
			logger.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer queue.Close()
	}

	docOptions := []services.DocumentServiceOption{
		services.WithDocumentLogger(logger),
	}
	if queue != nil {
		docOptions = append(docOptions, services.WithTaskQueue(queue))
		logger.Info("Document processing will run through the task queue")
	}

	docService, err := services.NewDocumentService(
		fileStorage, normalizer, textChunker, indexer, vectorDB, repo, statusMgr,
		docOptions...)
	if err != nil {
		logger.Fatalf("Failed to initialize document service: %v", err)
	}

	retriever, err := agent.NewRetriever(normalizer, embedder, vectorDB,
		agent.WithTopK(cfg.Search.TopK),
		agent.WithMinScore(cfg.Search.MinScore),
		agent.WithRetrieverLogger(logger),
	)
	if err != nil {
		logger.Fatalf("Failed to initialize retriever: %v", err)
	}

	ragService := llm.NewRAG(llmClient,
		llm.WithRAGMaxTokens(cfg.LLM.MaxTokens),
		llm.WithRAGTemperature(cfg.LLM.Temperature),
		llm.WithMinEvidenceChars(cfg.LLM.MinEvidenceChars),
	)

	qaOptions := []services.QAServiceOption{
		services.WithQALogger(logger),
	}
	if cfg.Cache.Enable {
		answerCache, err := cache.NewCache(cache.Config{
			Type:          cfg.Cache.Type,
			RedisAddr:     cfg.Cache.Address,
			RedisPassword: cfg.Cache.Password,
			RedisDB:       cfg.Cache.DB,
			DefaultTTL:    time.Duration(cfg.Cache.TTL) * time.Second,
		})
		if err != nil {
			logger.Fatalf("Failed to initialize cache: %v", err)
		}
		qaOptions = append(qaOptions,
			services.WithAnswerCache(answerCache, time.Duration(cfg.Cache.TTL)*time.Second))
	}

	qaService, err := services.NewQAService(
		retriever,
		agent.NewReranker(agent.WithKeep(cfg.Search.RerankKeep)),
		agent.NewContextBuilder(agent.WithMaxChars(cfg.Search.MaxContextChars)),
		ragService,
		qaOptions...)
	if err != nil {
		logger.Fatalf("Failed to initialize QA service: %v", err)
	}

	// 队列模式下启动工作者消费文档处理任务
	var worker taskqueue.Worker
	if queue != nil {
		worker = setupWorker(queue, docService, logger)
		if worker != nil {
			defer worker.Stop()
		}
	}

	router := api.SetupRouter(api.RouterConfig{
		DocumentService: docService,
		QAService:       qaService,
		Queue:           queue,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Infof("Server is listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// setupLogger 初始化日志系统
// 配置了日志文件时同时输出到文件和标准输出，文件按大小轮转
func setupLogger(cfg appconfig.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, rotator))
	}

	return logger
}

// setupStorage 初始化原始文件存储
func setupStorage(cfg appconfig.StorageConfig) (storage.Storage, error) {
	switch cfg.Type {
	case "minio":
		return storage.NewMinioStorage(storage.MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
		})
	default:
		return storage.NewLocalStorage(storage.LocalConfig{Path: cfg.Path})
	}
}

// setupVectorDB 初始化向量库
// faiss初始化失败时回退到内存实现，便于没有本地faiss库的环境起服务
func setupVectorDB(cfg *appconfig.Config, logger *logrus.Logger) (vectordb.Repository, error) {
	vdbConfig := vectordb.Config{
		Type:              cfg.VectorDB.Type,
		Path:              cfg.VectorDB.Path,
		Dimension:         cfg.Embed.Dimensions,
		DistanceType:      parseDistance(cfg.VectorDB.Distance),
		CreateIfNotExists: true,
	}

	repo, err := vectordb.NewRepository(vdbConfig)
	if err != nil && cfg.VectorDB.Type == "faiss" {
		logger.Warnf("Failed to initialize faiss vector database: %v, falling back to memory", err)
		vdbConfig.Type = "memory"
		return vectordb.NewRepository(vdbConfig)
	}
	return repo, err
}

// parseDistance 解析距离度量配置
func parseDistance(name string) vectordb.DistanceType {
	switch name {
	case "l2":
		return vectordb.Euclidean
	case "dot":
		return vectordb.DotProduct
	default:
		return vectordb.Cosine
	}
}

// setupEmbedding 初始化嵌入客户端
func setupEmbedding(cfg appconfig.EmbedConfig) (embedding.Client, error) {
	return embedding.NewClient(cfg.Provider,
		embedding.WithAPIKey(cfg.APIKey),
		embedding.WithModel(cfg.Model),
		embedding.WithDimensions(cfg.Dimensions),
		embedding.WithBatchSize(cfg.BatchSize),
	)
}

// setupNormalizer 加载词典并组装文本归一化器
func setupNormalizer(cfg appconfig.LexiconConfig) (*textnorm.Normalizer, error) {
	sanskritLexicon, err := textnorm.LoadLexicon(cfg.SanskritPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load sanskrit lexicon: %w", err)
	}
	englishLexicon, err := textnorm.LoadLexicon(cfg.EnglishPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load english lexicon: %w", err)
	}

	classifier, err := textnorm.NewClassifierFromLexicons(sanskritLexicon, englishLexicon)
	if err != nil {
		return nil, err
	}
	sanskrit, err := textnorm.NewSanskritCorrector(sanskritLexicon, textnorm.DefaultSanskritCorrectorConfig())
	if err != nil {
		return nil, err
	}
	english, err := textnorm.NewEnglishCorrector(englishLexicon, textnorm.DefaultEnglishCorrectorConfig())
	if err != nil {
		return nil, err
	}

	return textnorm.NewNormalizer(classifier, sanskrit, english)
}

// setupWorker 启动任务队列工作者
func setupWorker(queue taskqueue.Queue, docService *services.DocumentService, logger *logrus.Logger) taskqueue.Worker {
	redisQueue, ok := queue.(*taskqueue.RedisQueue)
	if !ok {
		logger.Warn("Task queue implementation does not support workers")
		return nil
	}

	handler := taskqueue.NewDocumentTaskHandler(docService,
		func(ctx context.Context, documentID string) error {
			_, err := docService.RetryFailedChunks(ctx, documentID)
			return err
		}, logger)

	worker := taskqueue.NewRedisWorker(redisQueue, nil)
	for _, taskType := range handler.GetTaskTypes() {
		worker.RegisterHandler(taskType, handler)
	}

	if err := worker.Start(); err != nil {
		logger.Fatalf("Failed to start task queue worker: %v", err)
	}
	logger.Info("Task queue worker started")
	return worker
}
