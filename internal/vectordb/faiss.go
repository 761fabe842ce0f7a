//go:build cgo

package vectordb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DataIntelligenceCrew/go-faiss"
)

// FaissRepository 基于Faiss的向量仓库实现
// 平坦索引只支持追加，同ID覆盖通过追加新位置并废弃旧位置实现，
// 旧位置不再映射到任何块ID，搜索时被跳过，对外仍是每ID一条
type FaissRepository struct {
	mu             sync.RWMutex
	index          faiss.Index
	entries        map[string]ChunkEntry
	docToIDs       map[string][]string
	idToPosition   map[string]int
	posToID        map[int]string
	indexPath      string
	metaPath       string
	dimension      int
	distanceType   DistanceType
	saveOnClose    bool
	autoSave       bool
	autoSaveCount  int
	operationCount int
}

// NewFaissRepository 创建新的Faiss向量仓库
func NewFaissRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	if config.Path != "" && !config.InMemory {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %v", err)
		}
	}

	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}

	indexPath := config.Path
	metaPath := ""
	if indexPath != "" {
		metaPath = indexPath + ".meta.json"
	}

	repo := &FaissRepository{
		entries:       make(map[string]ChunkEntry),
		docToIDs:      make(map[string][]string),
		idToPosition:  make(map[string]int),
		posToID:       make(map[int]string),
		indexPath:     indexPath,
		metaPath:      metaPath,
		dimension:     config.Dimension,
		distanceType:  distType,
		saveOnClose:   true,
		autoSave:      true,
		autoSaveCount: 100,
	}

	var index faiss.Index
	var err error

	if indexPath != "" && !config.InMemory && fileExists(indexPath) {
		index, err = faiss.ReadIndex(indexPath, 0)
		if err != nil {
			if config.CreateIfNotExists {
				index, err = createFaissIndex(config.Dimension, distType)
				if err != nil {
					return nil, fmt.Errorf("failed to create Faiss index: %v", err)
				}
			} else {
				return nil, fmt.Errorf("failed to read index file: %v", err)
			}
		} else {
			if err := repo.loadMetadata(metaPath); err != nil {
				return nil, fmt.Errorf("failed to load index metadata: %v", err)
			}
		}
	} else {
		index, err = createFaissIndex(config.Dimension, distType)
		if err != nil {
			return nil, fmt.Errorf("failed to create Faiss index: %v", err)
		}
	}

	repo.index = index
	return repo, nil
}

// createFaissIndex 创建Faiss索引
func createFaissIndex(dimension int, distType DistanceType) (faiss.Index, error) {
	var metric int
	switch distType {
	case Cosine, DotProduct:
		metric = faiss.MetricInnerProduct
	case Euclidean:
		metric = faiss.MetricL2
	default:
		metric = faiss.MetricL2
	}
	return faiss.NewIndexFlat(dimension, metric)
}

// Upsert 写入单个块，同ID覆盖
func (r *FaissRepository) Upsert(entry ChunkEntry) error {
	if entry.ID == "" {
		return ErrInvalidID
	}
	if err := ValidateVector(entry.Vector, r.dimension); err != nil {
		return err
	}
	if r.distanceType == Cosine {
		entry.Vector = normalizeVector(entry.Vector)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Metadata == nil {
		entry.Metadata = make(map[string]interface{})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.appendVector(entry); err != nil {
		return err
	}

	r.operationCount++
	return r.maybeAutoSave()
}

// UpsertBatch 批量写入块
func (r *FaissRepository) UpsertBatch(entries []ChunkEntry) error {
	if len(entries) == 0 {
		return nil
	}

	prepared := make([]ChunkEntry, len(entries))
	for i := range entries {
		prepared[i] = entries[i]
		if prepared[i].ID == "" {
			return ErrInvalidID
		}
		if err := ValidateVector(prepared[i].Vector, r.dimension); err != nil {
			return fmt.Errorf("invalid vector for chunk %s: %v", prepared[i].ID, err)
		}
		if r.distanceType == Cosine {
			prepared[i].Vector = normalizeVector(prepared[i].Vector)
		}
		if prepared[i].CreatedAt.IsZero() {
			prepared[i].CreatedAt = time.Now()
		}
		if prepared[i].Metadata == nil {
			prepared[i].Metadata = make(map[string]interface{})
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range prepared {
		if err := r.appendVector(entry); err != nil {
			return err
		}
	}

	r.operationCount += len(prepared)
	return r.maybeAutoSave()
}

// appendVector 追加向量并更新映射，调用方需持有写锁
func (r *FaissRepository) appendVector(entry ChunkEntry) error {
	nextPos := int(r.index.Ntotal())
	if err := r.index.Add(entry.Vector); err != nil {
		return fmt.Errorf("failed to add vector to index: %v", err)
	}

	if old, exists := r.entries[entry.ID]; exists {
		// 覆盖：废弃旧位置，文档索引按需迁移
		delete(r.posToID, r.idToPosition[entry.ID])
		if old.DocumentID != entry.DocumentID {
			r.removeFromDocIndex(old.DocumentID, entry.ID)
			r.docToIDs[entry.DocumentID] = append(r.docToIDs[entry.DocumentID], entry.ID)
		}
	} else {
		r.docToIDs[entry.DocumentID] = append(r.docToIDs[entry.DocumentID], entry.ID)
	}

	r.entries[entry.ID] = entry
	r.idToPosition[entry.ID] = nextPos
	r.posToID[nextPos] = entry.ID
	return nil
}

// removeFromDocIndex 从文档索引中移除块ID，调用方需持有写锁
func (r *FaissRepository) removeFromDocIndex(documentID, id string) {
	ids, ok := r.docToIDs[documentID]
	if !ok {
		return
	}
	updated := make([]string, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			updated = append(updated, existing)
		}
	}
	if len(updated) == 0 {
		delete(r.docToIDs, documentID)
	} else {
		r.docToIDs[documentID] = updated
	}
}

// maybeAutoSave 达到操作阈值时落盘，调用方需持有写锁
func (r *FaissRepository) maybeAutoSave() error {
	if r.autoSave && r.operationCount >= r.autoSaveCount {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("auto-save failed: %v", err)
		}
		r.operationCount = 0
	}
	return nil
}

// Get 按块ID读取
func (r *FaissRepository) Get(id string) (ChunkEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, exists := r.entries[id]
	if !exists {
		return ChunkEntry{}, ErrChunkNotFound
	}
	return entry, nil
}

// Delete 删除单个块
func (r *FaissRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, exists := r.entries[id]
	if !exists {
		return ErrChunkNotFound
	}
	delete(r.entries, id)
	delete(r.posToID, r.idToPosition[id])
	delete(r.idToPosition, id)
	r.removeFromDocIndex(entry.DocumentID, id)
	r.operationCount++
	return nil
}

// DeleteByDocumentID 删除指定文档的全部块
func (r *FaissRepository) DeleteByDocumentID(documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids, exists := r.docToIDs[documentID]
	if !exists {
		return nil
	}
	for _, id := range ids {
		delete(r.entries, id)
		delete(r.posToID, r.idToPosition[id])
		delete(r.idToPosition, id)
	}
	delete(r.docToIDs, documentID)
	r.operationCount += len(ids)
	return nil
}

// Search 相似度搜索
func (r *FaissRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if r.distanceType == Cosine {
		vector = normalizeVector(vector)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.entries) == 0 {
		return []SearchResult{}, nil
	}

	k := filter.MaxResults
	if k <= 0 {
		k = 10
	}

	// 废弃位置和被过滤条目会被跳过，多召回一些再截断
	queryLimit := k * 4
	total := int(r.index.Ntotal())
	if queryLimit > total {
		queryLimit = total
	}
	if queryLimit == 0 {
		return []SearchResult{}, nil
	}

	distances, indices, err := r.index.Search(vector, int64(queryLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %v", err)
	}

	var results []SearchResult
	for i := 0; i < len(indices); i++ {
		idx := indices[i]
		if idx < 0 {
			continue
		}

		id, found := r.posToID[int(idx)]
		if !found {
			continue
		}
		entry, exists := r.entries[id]
		if !exists {
			continue
		}

		if !matchDocumentID(entry, filter.DocumentIDs) {
			continue
		}
		if !matchMetadata(entry.Metadata, filter.Metadata) {
			continue
		}

		dist := distances[i]
		score := DistanceToScore(dist, r.distanceType)
		if score < filter.MinScore {
			continue
		}

		results = append(results, SearchResult{
			Entry:    entry,
			Score:    score,
			Distance: dist,
		})
		if len(results) >= k {
			break
		}
	}

	SortSearchResults(results)
	return results, nil
}

// Count 当前块总数
func (r *FaissRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries), nil
}

// GetDimension 返回向量维数
func (r *FaissRepository) GetDimension() int {
	return r.dimension
}

// Close 关闭仓库
func (r *FaissRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveOnClose && r.indexPath != "" {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("failed to save index on close: %v", err)
		}
	}
	return nil
}

// faissMetadata 随索引一起持久化的映射数据
type faissMetadata struct {
	Entries        map[string]ChunkEntry `json:"entries"`
	DocToIDs       map[string][]string   `json:"doc_to_ids"`
	IDToPosition   map[string]int        `json:"id_to_position"`
	OperationCount int                   `json:"operation_count"`
}

// saveIndex 保存索引和映射数据到文件
func (r *FaissRepository) saveIndex() error {
	if r.indexPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.indexPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %v", err)
	}
	if err := faiss.WriteIndex(r.index, r.indexPath); err != nil {
		return fmt.Errorf("failed to write index to file: %v", err)
	}
	return r.saveMetadata()
}

// saveMetadata 保存映射数据到文件
func (r *FaissRepository) saveMetadata() error {
	if r.metaPath == "" {
		return nil
	}

	metadata := faissMetadata{
		Entries:        r.entries,
		DocToIDs:       r.docToIDs,
		IDToPosition:   r.idToPosition,
		OperationCount: r.operationCount,
	}

	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %v", err)
	}
	if err := os.WriteFile(r.metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %v", err)
	}
	return nil
}

// loadMetadata 从文件加载映射数据
func (r *FaissRepository) loadMetadata(path string) error {
	if path == "" || !fileExists(path) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read metadata file: %v", err)
	}

	var metadata faissMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %v", err)
	}

	if metadata.Entries != nil {
		r.entries = metadata.Entries
	}
	if metadata.DocToIDs != nil {
		r.docToIDs = metadata.DocToIDs
	}
	if metadata.IDToPosition != nil {
		r.idToPosition = metadata.IDToPosition
	}
	r.operationCount = metadata.OperationCount

	r.posToID = make(map[int]string, len(r.idToPosition))
	for id, pos := range r.idToPosition {
		r.posToID[pos] = id
	}
	return nil
}

// fileExists 检查文件是否存在
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func init() {
	RegisterRepository("faiss", NewFaissRepository)
}
