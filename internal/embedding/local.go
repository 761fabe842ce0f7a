package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"unicode"
)

// LocalClient 本地确定性嵌入客户端
// 基于词元哈希的特征向量，不依赖外部服务，用于开发环境和测试
// 同一文本总是产出同一向量，且向量已做L2归一化
type LocalClient struct {
	dimensions int
}

// NewLocalClient 创建本地嵌入客户端
func NewLocalClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = 1024
	}

	return &LocalClient{dimensions: dimensions}, nil
}

// Name 返回模型名称
func (c *LocalClient) Name() string {
	return "local-hash"
}

// Embed 生成单条文本的向量表示
func (c *LocalClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, NewEmbeddingError(ErrCodeTimeout, err.Error())
	}
	return c.hashEmbed(text), nil
}

// EmbedBatch 批量生成文本的向量表示
func (c *LocalClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	result := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, NewEmbeddingError(ErrCodeTimeout, err.Error())
		}
		if text == "" {
			result[i] = nil
			continue
		}
		result[i] = c.hashEmbed(text)
	}
	return result, nil
}

// hashEmbed 把文本的词元哈希散布到固定维度的向量上
func (c *LocalClient) hashEmbed(text string) []float32 {
	vec := make([]float32, c.dimensions)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for _, token := range tokens {
		sum := sha256.Sum256([]byte(token))
		// 每个词元贡献4个带符号的特征位置
		for i := 0; i < 4; i++ {
			slot := binary.BigEndian.Uint32(sum[i*8:i*8+4]) % uint32(c.dimensions)
			sign := float32(1)
			if sum[i*8+4]&1 == 1 {
				sign = -1
			}
			vec[slot] += sign
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}

	return vec
}

func init() {
	RegisterClient("local", NewLocalClient)
}
