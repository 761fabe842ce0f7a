package llm

import (
	"context"
	"time"
)

// Client 大语言模型客户端接口
type Client interface {
	// Generate 根据提示词生成文本
	Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error)

	// Name 返回模型名称
	Name() string
}

// Config 客户端配置
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// DefaultConfig 返回默认客户端配置
func DefaultConfig() *Config {
	return &Config{
		Model:       ModelQwenTurbo,
		Timeout:     60 * time.Second,
		MaxRetries:  3,
		MaxTokens:   1024,
		Temperature: 0.7,
		TopP:        0.9,
	}
}

// Option 客户端配置选项
type Option func(*Config)

// WithAPIKey 设置API密钥
func WithAPIKey(apiKey string) Option {
	return func(c *Config) { c.APIKey = apiKey }
}

// WithBaseURL 覆盖API端点，留空时由具体实现决定
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithModel 设置模型名称
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithTimeout 设置单次请求超时
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.Timeout = timeout }
}

// WithMaxRetries 设置请求失败后的最大重试次数
func WithMaxRetries(retries int) Option {
	return func(c *Config) { c.MaxRetries = retries }
}

// WithMaxTokens 设置生成Token数上限
func WithMaxTokens(tokens int) Option {
	return func(c *Config) { c.MaxTokens = tokens }
}

// WithTemperature 设置采样温度
func WithTemperature(temp float32) Option {
	return func(c *Config) { c.Temperature = temp }
}

// WithTopP 设置核采样阈值
func WithTopP(topP float32) Option {
	return func(c *Config) { c.TopP = topP }
}

// NewConfig 应用选项生成配置
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// GenerateOptions 单次生成请求的参数覆盖
// 指针为nil表示沿用客户端级别的配置
type GenerateOptions struct {
	MaxTokens   *int
	Temperature *float32
	TopP        *float32
	TopK        *int
}

// GenerateOption 单次生成请求的选项
type GenerateOption func(*GenerateOptions)

// WithGenerateMaxTokens 覆盖本次请求的Token数上限
func WithGenerateMaxTokens(tokens int) GenerateOption {
	return func(o *GenerateOptions) { o.MaxTokens = &tokens }
}

// WithGenerateTemperature 覆盖本次请求的采样温度
func WithGenerateTemperature(temp float32) GenerateOption {
	return func(o *GenerateOptions) { o.Temperature = &temp }
}

// WithGenerateTopP 覆盖本次请求的核采样阈值
func WithGenerateTopP(topP float32) GenerateOption {
	return func(o *GenerateOptions) { o.TopP = &topP }
}

// WithGenerateTopK 覆盖本次请求的候选集大小
func WithGenerateTopK(topK int) GenerateOption {
	return func(o *GenerateOptions) { o.TopK = &topK }
}

// Factory 客户端工厂函数
type Factory func(opts ...Option) (Client, error)

var clientFactories = make(map[string]Factory)

// RegisterClient 注册客户端实现
func RegisterClient(name string, factory Factory) {
	clientFactories[name] = factory
}

// NewClient 按注册名创建客户端
func NewClient(name string, opts ...Option) (Client, error) {
	factory, ok := clientFactories[name]
	if !ok {
		return nil, NewLLMErrorf(ErrCodeInvalidRequest, "llm client type not registered: %s", name)
	}
	return factory(opts...)
}
