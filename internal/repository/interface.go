package repository

import "github.com/fyerfyer/ayurveda-qa-system/internal/models"

// DocumentRepository 文档仓储接口
// 负责文档元数据、分块镜像、纠错日志和索引失败记录的存储与检索
type DocumentRepository interface {
	// Create 创建文档记录
	Create(doc *models.Document) error

	// Update 更新文档记录
	Update(doc *models.Document) error

	// GetByID 根据ID获取文档
	GetByID(id string) (*models.Document, error)

	// List 列出文档列表，支持分页和筛选
	List(offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error)

	// Delete 删除文档及其关联的分块、纠错日志和失败记录
	Delete(id string) error

	// UpdateStatus 更新文档状态
	UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error

	// UpdateStage 更新文档当前处理阶段
	UpdateStage(id string, stage models.ProcessStage) error

	// SaveChunks 批量保存分块镜像记录
	SaveChunks(chunks []*models.ChunkSegment) error

	// GetChunks 获取文档的所有分块，按序号排序
	GetChunks(docID string) ([]*models.ChunkSegment, error)

	// CountChunks 统计文档的分块数量
	CountChunks(docID string) (int, error)

	// DeleteChunks 删除文档的所有分块
	DeleteChunks(docID string) error

	// MarkChunkIndexed 标记某个块已写入向量库
	MarkChunkIndexed(chunkID string) error

	// SaveCorrections 批量追加纠错日志，日志只增不改
	SaveCorrections(records []*models.CorrectionRecord) error

	// GetCorrections 获取文档的纠错日志
	GetCorrections(docID string) ([]*models.CorrectionRecord, error)

	// SaveIndexFailure 记录一次索引失败
	SaveIndexFailure(failure *models.IndexFailure) error

	// ListIndexFailures 列出文档未解决的索引失败记录
	ListIndexFailures(docID string) ([]*models.IndexFailure, error)

	// ResolveIndexFailures 标记某个块的失败记录已解决
	ResolveIndexFailures(chunkID string) error
}
