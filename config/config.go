package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	VectorDB  VectorDBConfig  `mapstructure:"vectordb"`
	Embed     EmbedConfig     `mapstructure:"embed"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Lexicon   LexiconConfig   `mapstructure:"lexicon"`
	Chunker   ChunkerConfig   `mapstructure:"chunker"`
	Indexer   IndexerConfig   `mapstructure:"indexer"`
	Search    SearchConfig    `mapstructure:"search"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Queue     QueueConfig     `mapstructure:"queue"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
	Mode string `mapstructure:"mode" validate:"oneof=debug release test"`
}

// LogConfig 日志配置
// File非空时日志写入文件并按大小轮转
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// StorageConfig 原始文件存储配置
type StorageConfig struct {
	Type      string `mapstructure:"type" validate:"oneof=local minio"`
	Path      string `mapstructure:"path"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// DatabaseConfig 元数据数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type" validate:"oneof=sqlite"`
	DSN  string `mapstructure:"dsn" validate:"required"`
}

// VectorDBConfig 向量库配置
type VectorDBConfig struct {
	Type     string `mapstructure:"type" validate:"oneof=memory faiss"`
	Path     string `mapstructure:"path"`
	Distance string `mapstructure:"distance" validate:"oneof=cosine l2 dot"`
}

// EmbedConfig 嵌入模型配置
type EmbedConfig struct {
	Provider   string `mapstructure:"provider" validate:"oneof=tongyi local"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions" validate:"min=1"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	Provider         string  `mapstructure:"provider" validate:"oneof=tongyi"`
	Model            string  `mapstructure:"model"`
	APIKey           string  `mapstructure:"api_key"`
	MaxTokens        int     `mapstructure:"max_tokens"`
	Temperature      float32 `mapstructure:"temperature"`
	MinEvidenceChars int     `mapstructure:"min_evidence_chars"`
}

// LexiconConfig 词典配置
// 梵文和英文词典分开维护，文件格式为每行"词<TAB>词频"
type LexiconConfig struct {
	SanskritPath string `mapstructure:"sanskrit_path" validate:"required"`
	EnglishPath  string `mapstructure:"english_path" validate:"required"`
}

// ChunkerConfig 分块配置
type ChunkerConfig struct {
	MaxChunkChars int `mapstructure:"max_chunk_chars" validate:"min=1"`
	MinChunkChars int `mapstructure:"min_chunk_chars"`
	OverlapChars  int `mapstructure:"overlap_chars"`
}

// IndexerConfig 索引管线配置
type IndexerConfig struct {
	Workers     int `mapstructure:"workers" validate:"min=1"`
	MaxAttempts int `mapstructure:"max_attempts" validate:"min=1"`
	BaseDelayMS int `mapstructure:"base_delay_ms"`
	MaxDelayMS  int `mapstructure:"max_delay_ms"`
}

// SearchConfig 检索配置
type SearchConfig struct {
	TopK            int     `mapstructure:"top_k" validate:"min=1"`
	MinScore        float64 `mapstructure:"min_score"`
	RerankKeep      int     `mapstructure:"rerank_keep"`
	MaxContextChars int     `mapstructure:"max_context_chars" validate:"min=1"`
}

// CacheConfig 答案缓存配置
type CacheConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Type     string `mapstructure:"type" validate:"oneof=memory redis"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTL      int    `mapstructure:"ttl"`
}

// QueueConfig 异步任务队列配置
type QueueConfig struct {
	Enable        bool   `mapstructure:"enable"`
	Type          string `mapstructure:"type" validate:"oneof=redis"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Concurrency   int    `mapstructure:"concurrency"`
	RetryLimit    int    `mapstructure:"retry_limit"`
	RetryDelay    int    `mapstructure:"retry_delay"`
}

// Load 从文件和环境变量加载配置
// .env文件先于配置文件加载，环境变量AYURQA_前缀可以覆盖任何配置项
func Load(configPath string) (*Config, error) {
	// .env不存在时静默跳过
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	v.SetEnvPrefix("AYURQA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置的合法性
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Storage.Type == "minio" && cfg.Storage.Endpoint == "" {
		return fmt.Errorf("invalid configuration: storage.endpoint is required for minio storage")
	}
	if cfg.Embed.Provider == "tongyi" && cfg.Embed.APIKey == "" {
		return fmt.Errorf("invalid configuration: embed.api_key is required for tongyi provider")
	}
	if cfg.Chunker.OverlapChars >= cfg.Chunker.MaxChunkChars {
		return fmt.Errorf("invalid configuration: chunker.overlap_chars must be smaller than max_chunk_chars")
	}
	return nil
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./data/files")
	v.SetDefault("storage.bucket", "ayurveda-qa")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "./data/ayurveda-qa.db")

	v.SetDefault("vectordb.type", "faiss")
	v.SetDefault("vectordb.path", "./data/vectordb/index.faiss")
	v.SetDefault("vectordb.distance", "cosine")

	v.SetDefault("embed.provider", "tongyi")
	v.SetDefault("embed.model", "text-embedding-v1")
	v.SetDefault("embed.dimensions", 1536)
	v.SetDefault("embed.batch_size", 16)

	v.SetDefault("llm.provider", "tongyi")
	v.SetDefault("llm.model", "qwen-turbo")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.min_evidence_chars", 40)

	v.SetDefault("lexicon.sanskrit_path", "./data/lexicon/sanskrit.tsv")
	v.SetDefault("lexicon.english_path", "./data/lexicon/english.tsv")

	v.SetDefault("chunker.max_chunk_chars", 1200)
	v.SetDefault("chunker.min_chunk_chars", 200)
	v.SetDefault("chunker.overlap_chars", 200)

	v.SetDefault("indexer.workers", 4)
	v.SetDefault("indexer.max_attempts", 3)
	v.SetDefault("indexer.base_delay_ms", 500)
	v.SetDefault("indexer.max_delay_ms", 5000)

	v.SetDefault("search.top_k", 8)
	v.SetDefault("search.min_score", 0.3)
	v.SetDefault("search.rerank_keep", 5)
	v.SetDefault("search.max_context_chars", 6000)

	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", 1800)

	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.type", "redis")
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.retry_limit", 3)
	v.SetDefault("queue.retry_delay", 60)
}
