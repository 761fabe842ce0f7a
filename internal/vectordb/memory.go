package vectordb

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

// MemoryRepository 内存向量仓库实现
// 用于开发和测试环境，所有写入立即可见（强于最终一致的最低要求）
type MemoryRepository struct {
	mu        sync.RWMutex
	dimension int
	distType  DistanceType
	entries   map[string]ChunkEntry // 块ID -> 条目
	docToIDs  map[string][]string   // 文档ID -> 块ID列表
}

// NewMemoryRepository 创建内存向量仓库
func NewMemoryRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	distType := config.DistanceType
	if distType != Cosine && distType != DotProduct && distType != Euclidean {
		distType = Cosine
	}

	return &MemoryRepository{
		dimension: config.Dimension,
		distType:  distType,
		entries:   make(map[string]ChunkEntry),
		docToIDs:  make(map[string][]string),
	}, nil
}

// Upsert 写入单个块，同ID覆盖
func (r *MemoryRepository) Upsert(entry ChunkEntry) error {
	if err := r.prepare(&entry); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.store(entry)
	return nil
}

// UpsertBatch 批量写入块
func (r *MemoryRepository) UpsertBatch(entries []ChunkEntry) error {
	if len(entries) == 0 {
		return nil
	}

	prepared := make([]ChunkEntry, len(entries))
	for i := range entries {
		prepared[i] = entries[i]
		if err := r.prepare(&prepared[i]); err != nil {
			return fmt.Errorf("invalid entry %s: %w", entries[i].ID, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range prepared {
		r.store(entry)
	}
	return nil
}

// prepare 校验并补全条目，余弦距离下预归一化向量
func (r *MemoryRepository) prepare(entry *ChunkEntry) error {
	if entry.ID == "" {
		return ErrInvalidID
	}
	if err := ValidateVector(entry.Vector, r.dimension); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Metadata == nil {
		entry.Metadata = make(map[string]interface{})
	}
	if r.distType == Cosine {
		entry.Vector = normalizeVector(entry.Vector)
	}
	return nil
}

// store 落库并维护文档索引，调用方需持有写锁
// 同ID重复写入只替换内容，文档索引不会出现重复项
func (r *MemoryRepository) store(entry ChunkEntry) {
	if old, exists := r.entries[entry.ID]; exists {
		if old.DocumentID != entry.DocumentID {
			r.removeFromDocIndex(old.DocumentID, entry.ID)
			r.docToIDs[entry.DocumentID] = append(r.docToIDs[entry.DocumentID], entry.ID)
		}
	} else {
		r.docToIDs[entry.DocumentID] = append(r.docToIDs[entry.DocumentID], entry.ID)
	}
	r.entries[entry.ID] = entry
}

// removeFromDocIndex 从文档索引中移除块ID，调用方需持有写锁
func (r *MemoryRepository) removeFromDocIndex(documentID, id string) {
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

// Get 按块ID读取
func (r *MemoryRepository) Get(id string) (ChunkEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[id]
	if !exists {
		return ChunkEntry{}, ErrChunkNotFound
	}
	return entry, nil
}

// Delete 删除单个块
func (r *MemoryRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[id]
	if !exists {
		return ErrChunkNotFound
	}

	delete(r.entries, id)
	r.removeFromDocIndex(entry.DocumentID, id)
	return nil
}

// DeleteByDocumentID 删除指定文档的全部块
func (r *MemoryRepository) DeleteByDocumentID(documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, exists := r.docToIDs[documentID]
	if !exists {
		return nil
	}

	for _, id := range ids {
		delete(r.entries, id)
	}
	delete(r.docToIDs, documentID)
	return nil
}

// Search 相似度搜索
// 大结果集并行计算距离，无命中时返回空切片
func (r *MemoryRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if r.distType == Cosine {
		vector = normalizeVector(vector)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []ChunkEntry
	if len(filter.DocumentIDs) > 0 {
		for _, docID := range filter.DocumentIDs {
			for _, id := range r.docToIDs[docID] {
				if entry, exists := r.entries[id]; exists && matchMetadata(entry.Metadata, filter.Metadata) {
					candidates = append(candidates, entry)
				}
			}
		}
	} else {
		candidates = make([]ChunkEntry, 0, len(r.entries))
		for _, entry := range r.entries {
			if matchMetadata(entry.Metadata, filter.Metadata) {
				candidates = append(candidates, entry)
			}
		}
	}

	if len(candidates) == 0 {
		return []SearchResult{}, nil
	}

	threads := runtime.NumCPU() * 4 / 5
	if threads < 1 {
		threads = 1
	}
	if len(candidates) < 100 || threads == 1 {
		return r.serialSearch(vector, candidates, filter)
	}
	return r.parallelSearch(vector, candidates, filter, threads)
}

// serialSearch 串行搜索实现
func (r *MemoryRepository) serialSearch(vector []float32, candidates []ChunkEntry, filter SearchFilter) ([]SearchResult, error) {
	results := make([]SearchResult, 0, len(candidates))

	for _, entry := range candidates {
		dist, err := ComputeDistance(vector, entry.Vector, r.distType)
		if err != nil {
			return nil, fmt.Errorf("error computing distance: %v", err)
		}

		score := DistanceToScore(dist, r.distType)
		if score >= filter.MinScore {
			results = append(results, SearchResult{
				Entry:    entry,
				Score:    score,
				Distance: dist,
			})
		}
	}

	SortSearchResults(results)

	if filter.MaxResults > 0 && len(results) > filter.MaxResults {
		results = results[:filter.MaxResults]
	}
	return results, nil
}

// parallelSearch 并行搜索实现
func (r *MemoryRepository) parallelSearch(vector []float32, candidates []ChunkEntry, filter SearchFilter, threads int) ([]SearchResult, error) {
	perThread := (len(candidates) + threads - 1) / threads

	resultsChan := make(chan []SearchResult, threads)
	errorsChan := make(chan error, threads)
	launched := 0

	for i := 0; i < threads; i++ {
		start := i * perThread
		end := start + perThread
		if end > len(candidates) {
			end = len(candidates)
		}
		if start >= end {
			continue
		}
		launched++

		go func(part []ChunkEntry) {
			partial := make([]SearchResult, 0, len(part))
			for _, entry := range part {
				dist, err := ComputeDistance(vector, entry.Vector, r.distType)
				if err != nil {
					errorsChan <- fmt.Errorf("error computing distance: %v", err)
					return
				}

				score := DistanceToScore(dist, r.distType)
				if score >= filter.MinScore {
					partial = append(partial, SearchResult{
						Entry:    entry,
						Score:    score,
						Distance: dist,
					})
				}
			}
			resultsChan <- partial
		}(candidates[start:end])
	}

	var all []SearchResult
	for i := 0; i < launched; i++ {
		select {
		case err := <-errorsChan:
			return nil, err
		case partial := <-resultsChan:
			all = append(all, partial...)
		}
	}

	SortSearchResults(all)

	if filter.MaxResults > 0 && len(all) > filter.MaxResults {
		all = all[:filter.MaxResults]
	}
	return all, nil
}

// Count 当前块总数
func (r *MemoryRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries), nil
}

// GetDimension 返回向量维数
func (r *MemoryRepository) GetDimension() int {
	return r.dimension
}

// Close 关闭仓库，内存实现为空操作
func (r *MemoryRepository) Close() error {
	return nil
}

func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
