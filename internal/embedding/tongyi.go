package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DashScope文本嵌入API端点
const defaultDashScopeEndpoint = "https://dashscope.aliyuncs.com/api/v1/services/embeddings/text-embedding/text-embedding"

const defaultTongyiModel = "text-embedding-v1"

// v3模型支持的输出维度
var v3Dimensions = map[int]bool{
	64: true, 128: true, 256: true, 512: true, 768: true, 1024: true,
}

// TongyiClient 通义DashScope嵌入客户端
type TongyiClient struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
	maxRetries int
	dimensions int
}

// NewTongyiClient 创建DashScope嵌入客户端
func NewTongyiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = defaultDashScopeEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = defaultTongyiModel
	}
	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 1024
	}

	return &TongyiClient{
		apiKey:     cfg.APIKey,
		endpoint:   endpoint,
		model:      model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		dimensions: dimensions,
	}, nil
}

// Name 返回模型名称
func (c *TongyiClient) Name() string {
	return c.model
}

// batchLimit 单次请求允许的最大文本数，按模型代际区分
func (c *TongyiClient) batchLimit() int {
	if c.isV3Model() {
		return 10
	}
	return 25
}

func (c *TongyiClient) isV3Model() bool {
	return c.model == "text-embedding-v3"
}

// Embed 生成单条文本的向量
func (c *TongyiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, NewEmbeddingError(ErrCodeServerError, "no embedding vectors returned")
	}
	return vectors[0], nil
}

// dashScopeRequest DashScope嵌入请求体
type dashScopeRequest struct {
	Model string `json:"model"`
	Input struct {
		Texts []string `json:"texts"`
	} `json:"input"`
	Parameters *dashScopeParameters `json:"parameters,omitempty"`
}

type dashScopeParameters struct {
	Dimension  int    `json:"dimension,omitempty"`
	OutputType string `json:"output_type,omitempty"`
}

// dashScopeResponse DashScope嵌入响应体
type dashScopeResponse struct {
	StatusCode int    `json:"status_code,omitempty"`
	RequestID  string `json:"request_id"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	Output     struct {
		Embeddings []struct {
			Embedding []float32 `json:"embedding"`
			TextIndex int       `json:"text_index"`
		} `json:"embeddings"`
	} `json:"output"`
}

// EmbedBatch 批量生成文本向量，结果顺序与输入一致
func (c *TongyiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if limit := c.batchLimit(); len(texts) > limit {
		return nil, NewEmbeddingErrorf(ErrCodeInvalidRequest,
			"model %s supports at most %d texts per batch, got %d", c.model, limit, len(texts))
	}

	req := dashScopeRequest{Model: c.model}
	req.Input.Texts = texts

	if c.isV3Model() {
		params := &dashScopeParameters{OutputType: "dense"}
		if c.dimensions != 1024 {
			if !v3Dimensions[c.dimensions] {
				return nil, NewEmbeddingErrorf(ErrCodeInvalidRequest, "invalid dimension: %d", c.dimensions)
			}
			params.Dimension = c.dimensions
		}
		req.Parameters = params
	}

	var resp dashScopeResponse
	if err := c.post(ctx, req, &resp); err != nil {
		return nil, err
	}

	if resp.StatusCode != 0 && resp.StatusCode != http.StatusOK {
		return nil, NewEmbeddingErrorf(ErrCodeServerError, "API error: %s (%s)", resp.Message, resp.Code)
	}
	if len(resp.Output.Embeddings) == 0 {
		return nil, NewEmbeddingError(ErrCodeServerError, "no embeddings returned")
	}

	result := make([][]float32, len(texts))
	for _, emb := range resp.Output.Embeddings {
		if emb.TextIndex < 0 || emb.TextIndex >= len(texts) {
			continue
		}
		result[emb.TextIndex] = emb.Embedding
	}
	return result, nil
}

// post 发送请求并解析JSON响应
// 5xx按指数退避重试，每次重试重建http.Request避免复用已消费的Body
func (c *TongyiClient) post(ctx context.Context, reqData interface{}, respObj interface{}) error {
	payload, err := json.Marshal(reqData)
	if err != nil {
		return NewEmbeddingErrorf(ErrCodeInvalidRequest, "failed to marshal request: %v", err)
	}

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return NewEmbeddingError(ErrCodeTimeout, ctx.Err().Error())
			case <-time.After(time.Duration(1<<attempt) * 100 * time.Millisecond):
			}
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if reqErr != nil {
			return NewEmbeddingErrorf(ErrCodeInvalidRequest, "failed to create request: %v", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, lastErr = c.httpClient.Do(req)
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
		return NewEmbeddingErrorf(ErrCodeNetworkError, "request failed: %v", lastErr)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewEmbeddingErrorf(ErrCodeServerError, "failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil {
			if errResp.Error != "" {
				return NewEmbeddingError(ErrCodeServerError, errResp.Error)
			}
			if errResp.Message != "" {
				return NewEmbeddingError(ErrCodeServerError, errResp.Message)
			}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return NewEmbeddingError(ErrCodeRateLimited, ErrMsgRateLimited)
		}
		return NewEmbeddingErrorf(ErrCodeServerError, "API error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, respObj); err != nil {
		return NewEmbeddingErrorf(ErrCodeServerError, "failed to parse response: %v", err)
	}
	return nil
}

func init() {
	RegisterClient("tongyi", NewTongyiClient)
}
