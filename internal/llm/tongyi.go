package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// 通义千问文本生成API端点
const defaultTongyiEndpoint = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"

// TongyiClient 通义千问客户端
type TongyiClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	maxRetries int
	defaults   GenerateOptions
}

// NewTongyiClient 创建通义千问客户端
func NewTongyiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, "api key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultTongyiEndpoint
	}

	c := &TongyiClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
	}
	if cfg.MaxTokens > 0 {
		v := cfg.MaxTokens
		c.defaults.MaxTokens = &v
	}
	if cfg.Temperature > 0 {
		v := cfg.Temperature
		c.defaults.Temperature = &v
	}
	if cfg.TopP > 0 {
		v := cfg.TopP
		c.defaults.TopP = &v
	}
	return c, nil
}

// Name 返回模型名称
func (c *TongyiClient) Name() string {
	return c.model
}

// Generate 根据提示词生成文本
func (c *TongyiClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if prompt == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "prompt cannot be empty")
	}

	opts := c.defaults
	for _, opt := range options {
		opt(&opts)
	}

	req := &TongyiRequest{
		Model: c.model,
		Input: &TongyiRequestInput{
			Messages: []Message{{Role: RoleUser, Content: prompt}},
		},
		Parameters: &TongyiParameters{
			ResultFormat: "message",
			MaxTokens:    opts.MaxTokens,
			Temperature:  opts.Temperature,
			TopP:         opts.TopP,
			TopK:         opts.TopK,
		},
	}

	resp, err := c.call(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.toResponse(resp)
}

// call 发送请求并解析响应
// 5xx按指数退避重试，每次重试重建http.Request避免复用已消费的Body
func (c *TongyiClient) call(ctx context.Context, req *TongyiRequest) (*TongyiResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, NewLLMErrorf(ErrCodeInvalidRequest, "failed to marshal request: %v", err)
	}

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, NewLLMError(ErrCodeTimeout, ctx.Err().Error())
			case <-time.After(time.Duration(1<<attempt) * 100 * time.Millisecond):
			}
		}

		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
		if reqErr != nil {
			return nil, NewLLMErrorf(ErrCodeInvalidRequest, "failed to create request: %v", reqErr)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Accept", "application/json")

		resp, lastErr = c.httpClient.Do(httpReq)
		if lastErr == nil && resp.StatusCode < 500 {
			break
		}
		if lastErr == nil {
			resp.Body.Close()
			lastErr = fmt.Errorf("server returned status %d", resp.StatusCode)
			resp = nil
		}
	}

	if resp == nil {
		return nil, NewLLMErrorf(ErrCodeNetworkError, "request failed: %v", lastErr)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewLLMErrorf(ErrCodeServerError, "failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp.StatusCode, body)
	}

	var tongyiResp TongyiResponse
	if err := json.Unmarshal(body, &tongyiResp); err != nil {
		return nil, NewLLMErrorf(ErrCodeServerError, "failed to parse response: %v", err)
	}
	if tongyiResp.Code != "" {
		return nil, NewLLMErrorf(ErrCodeServerError, "API error: %s (%s)", tongyiResp.Message, tongyiResp.Code)
	}
	return &tongyiResp, nil
}

// apiError 把非200响应转换为带错误码的LLMError
func (c *TongyiClient) apiError(status int, body []byte) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return NewLLMErrorf(ErrCodeServerError, "API error: %s (%s)", errResp.Message, errResp.Code)
	}
	if status == http.StatusTooManyRequests {
		return NewLLMError(ErrCodeRateLimited, "rate limit exceeded")
	}
	return NewLLMErrorf(ErrCodeServerError, "API error (status %d): %s", status, string(body))
}

// toResponse 把通义响应转换为统一响应结构
func (c *TongyiClient) toResponse(resp *TongyiResponse) (*Response, error) {
	result := &Response{
		ModelName:  c.model,
		TokenCount: resp.Usage.TotalTokens,
		FinishTime: time.Now(),
	}

	switch {
	case resp.Output.Text != nil:
		result.Text = *resp.Output.Text
	case len(resp.Output.Choices) > 0:
		result.Text = resp.Output.Choices[0].Message.Content
	default:
		return nil, NewLLMError(ErrCodeServerError, "empty response from API")
	}
	return result, nil
}

func init() {
	RegisterClient("tongyi", NewTongyiClient)
}
