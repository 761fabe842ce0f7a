package vectordb

import (
	"fmt"
	"math"
	"sort"
)

// ComputeDistance 计算两个向量的距离
func ComputeDistance(v1, v2 []float32, distType DistanceType) (float32, error) {
	if len(v1) != len(v2) {
		return 0, fmt.Errorf("vector dimensions do not match: %d vs %d", len(v1), len(v2))
	}

	switch distType {
	case Cosine:
		return cosineDistance(v1, v2), nil
	case DotProduct:
		return dotProduct(v1, v2), nil
	case Euclidean:
		return euclideanDistance(v1, v2), nil
	}
	return 0, fmt.Errorf("unsupported distance type: %s", distType)
}

// cosineDistance 余弦距离，即1减余弦相似度
func cosineDistance(v1, v2 []float32) float32 {
	norm1, norm2 := vectorNorm(v1), vectorNorm(v2)
	if norm1 == 0 || norm2 == 0 {
		return 1.0
	}

	similarity := dotProduct(v1, v2) / (norm1 * norm2)
	// 浮点误差可能让相似度略超1
	if similarity > 1.0 {
		similarity = 1.0
	}
	return 1.0 - similarity
}

func dotProduct(v1, v2 []float32) float32 {
	var dot float32
	for i := range v1 {
		dot += v1[i] * v2[i]
	}
	return dot
}

func euclideanDistance(v1, v2 []float32) float32 {
	var sum float32
	for i := range v1 {
		d := v1[i] - v2[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

// vectorNorm 向量的L2范数
func vectorNorm(v []float32) float32 {
	var sum float32
	for _, val := range v {
		sum += val * val
	}
	return float32(math.Sqrt(float64(sum)))
}

// normalizeVector 把向量归一化为单位长度，零向量原样返回
func normalizeVector(v []float32) []float32 {
	norm := vectorNorm(v)
	if norm == 0 {
		return v
	}
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}

// matchDocumentID 检查条目是否命中文档ID过滤，空过滤匹配一切
func matchDocumentID(entry ChunkEntry, documentIDs []string) bool {
	if len(documentIDs) == 0 {
		return true
	}
	for _, id := range documentIDs {
		if entry.DocumentID == id {
			return true
		}
	}
	return false
}

// matchMetadata 检查条目元数据是否满足所有过滤键值
func matchMetadata(entryMeta map[string]interface{}, filterMeta map[string]interface{}) bool {
	for key, want := range filterMeta {
		got, ok := entryMeta[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// SortSearchResults 按评分降序稳定排序，同分结果保持输入顺序
func SortSearchResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// DistanceToScore 把距离映射到[0,1]区间的评分，分数越高越相似
func DistanceToScore(distance float32, distType DistanceType) float32 {
	switch distType {
	case Cosine:
		return 1 - distance
	case DotProduct:
		// 归一化向量的点积落在[-1,1]
		return (distance + 1) / 2
	case Euclidean:
		return float32(math.Exp(-float64(distance)))
	}
	return 0
}

// ValidateVector 校验向量非空且维度符合预期
func ValidateVector(vector []float32, expectedDim int) error {
	if len(vector) == 0 {
		return ErrEmptyVector
	}
	if expectedDim > 0 && len(vector) != expectedDim {
		return fmt.Errorf("vector dimension mismatch: expected %d, got %d", expectedDim, len(vector))
	}
	return nil
}
