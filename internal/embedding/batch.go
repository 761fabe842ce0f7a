package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
)

// BatchEmbedder 并行批量嵌入器
// 把大量分块文本切成小批次后用工作池并行嵌入，输出向量与输入文本按下标一一对应
type BatchEmbedder struct {
	client     Client
	batchSize  int
	maxWorkers int
}

// NewBatchEmbedder 创建批量嵌入器
func NewBatchEmbedder(client Client, batchSize int, maxWorkers int) *BatchEmbedder {
	if batchSize <= 0 {
		batchSize = 16
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	return &BatchEmbedder{
		client:     client,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
	}
}

// EmbedAll 嵌入全部文本
// 空文本不发送给嵌入服务，对应位置返回nil向量
func (b *BatchEmbedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// 记录非空文本及其原始下标
	nonEmpty := make([]string, 0, len(texts))
	originalIdx := make([]int, 0, len(texts))
	for i, text := range texts {
		if text != "" {
			nonEmpty = append(nonEmpty, text)
			originalIdx = append(originalIdx, i)
		}
	}

	results := make([][]float32, len(texts))
	if len(nonEmpty) == 0 {
		return results, nil
	}

	batches := splitIntoBatches(nonEmpty, b.batchSize)
	batchVectors := make([][][]float32, len(batches))

	wp := workerpool.New(b.maxWorkers)
	var mu sync.Mutex
	var firstErr error

	for i, batch := range batches {
		i, batch := i, batch
		wp.Submit(func() {
			select {
			case <-ctx.Done():
				mu.Lock()
				if firstErr == nil {
					firstErr = ctx.Err()
				}
				mu.Unlock()
				return
			default:
			}

			vectors, err := b.client.EmbedBatch(ctx, batch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("embed batch %d: %w", i, err)
				}
				return
			}
			batchVectors[i] = vectors
		})
	}
	wp.StopWait()

	if firstErr != nil {
		return nil, firstErr
	}

	// 按批次顺序展开并映射回原始下标
	pos := 0
	for _, vectors := range batchVectors {
		for _, v := range vectors {
			if pos < len(originalIdx) {
				results[originalIdx[pos]] = v
			}
			pos++
		}
	}

	return results, nil
}

// splitIntoBatches 把文本切分成固定大小的批次
func splitIntoBatches(texts []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = 1
	}

	batches := make([][]string, 0, (len(texts)+batchSize-1)/batchSize)
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}
	return batches
}
