package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fyerfyer/ayurveda-qa-system/internal/database"
	"github.com/fyerfyer/ayurveda-qa-system/internal/models"
)

// docRepository 文档仓储实现
type docRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建文档仓储实例
func NewDocumentRepository() DocumentRepository {
	return &docRepository{db: database.MustDB()}
}

// NewDocumentRepositoryWithDB 使用指定的数据库连接创建文档仓储实例
func NewDocumentRepositoryWithDB(db *gorm.DB) DocumentRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &docRepository{db: db}
}

// Create 创建文档记录
func (r *docRepository) Create(doc *models.Document) error {
	if doc.ID == "" {
		return errors.New("document ID cannot be empty")
	}
	return r.db.Create(doc).Error
}

// Update 更新文档记录
func (r *docRepository) Update(doc *models.Document) error {
	if doc.ID == "" {
		return errors.New("document ID cannot be empty")
	}
	return r.db.Save(doc).Error
}

// GetByID 根据ID获取文档
func (r *docRepository) GetByID(id string) (*models.Document, error) {
	var doc models.Document
	err := r.db.Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
		}
		return nil, err
	}
	return &doc, nil
}

// List 列出文档列表，支持分页和筛选
func (r *docRepository) List(offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	var docs []*models.Document
	var total int64

	query := r.db.Model(&models.Document{})

	if filters != nil {
		if status, ok := filters["status"]; ok {
			statusStr := fmt.Sprintf("%v", status)
			if statusStr != "" {
				query = query.Where("status = ?", statusStr)
			}
		}

		if tags, ok := filters["tags"].(string); ok && tags != "" {
			query = query.Where("tags LIKE ?", "%"+tags+"%")
		}

		if startTime, ok := filters["start_time"].(string); ok && startTime != "" {
			query = query.Where("uploaded_at >= ?", startTime)
		}

		if endTime, ok := filters["end_time"].(string); ok && endTime != "" {
			query = query.Where("uploaded_at <= ?", endTime)
		}

		if fileName, ok := filters["file_name"].(string); ok && fileName != "" {
			query = query.Where("file_name LIKE ?", "%"+fileName+"%")
		}
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("uploaded_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&docs).Error
	if err != nil {
		return nil, 0, err
	}

	return docs, total, nil
}

// Delete 删除文档及其关联记录
func (r *docRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&models.ChunkSegment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", id).Delete(&models.CorrectionRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", id).Delete(&models.IndexFailure{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Document{}).Error
	})
}

// UpdateStatus 更新文档状态
func (r *docRepository) UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}

	if errorMsg != "" {
		updates["error"] = errorMsg
	}

	// 到达终态时记录处理完成时间
	switch status {
	case models.DocStatusCompleted, models.DocStatusPartial, models.DocStatusFailed:
		now := time.Now()
		updates["processed_at"] = &now
	}

	return r.db.Model(&models.Document{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateStage 更新文档当前处理阶段
func (r *docRepository) UpdateStage(id string, stage models.ProcessStage) error {
	return r.db.Model(&models.Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"current_stage": stage,
			"updated_at":    time.Now(),
		}).Error
}

// SaveChunks 批量保存分块镜像记录
func (r *docRepository) SaveChunks(chunks []*models.ChunkSegment) error {
	if len(chunks) == 0 {
		return nil
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(chunks, 100).Error
	})
}

// GetChunks 获取文档的所有分块
func (r *docRepository) GetChunks(docID string) ([]*models.ChunkSegment, error) {
	var chunks []*models.ChunkSegment
	err := r.db.Where("document_id = ?", docID).
		Order("position ASC").
		Find(&chunks).Error
	return chunks, err
}

// CountChunks 统计文档的分块数量
func (r *docRepository) CountChunks(docID string) (int, error) {
	var count int64
	err := r.db.Model(&models.ChunkSegment{}).
		Where("document_id = ?", docID).
		Count(&count).Error
	return int(count), err
}

// DeleteChunks 删除文档的所有分块
func (r *docRepository) DeleteChunks(docID string) error {
	return r.db.Where("document_id = ?", docID).
		Delete(&models.ChunkSegment{}).Error
}

// MarkChunkIndexed 标记某个块已写入向量库
func (r *docRepository) MarkChunkIndexed(chunkID string) error {
	return r.db.Model(&models.ChunkSegment{}).
		Where("chunk_id = ?", chunkID).
		Updates(map[string]interface{}{
			"indexed":    true,
			"updated_at": time.Now(),
		}).Error
}

// SaveCorrections 批量追加纠错日志
func (r *docRepository) SaveCorrections(records []*models.CorrectionRecord) error {
	if len(records) == 0 {
		return nil
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(records, 200).Error
	})
}

// GetCorrections 获取文档的纠错日志
func (r *docRepository) GetCorrections(docID string) ([]*models.CorrectionRecord, error) {
	var records []*models.CorrectionRecord
	err := r.db.Where("document_id = ?", docID).
		Order("id ASC").
		Find(&records).Error
	return records, err
}

// SaveIndexFailure 记录一次索引失败
func (r *docRepository) SaveIndexFailure(failure *models.IndexFailure) error {
	return r.db.Create(failure).Error
}

// ListIndexFailures 列出文档未解决的索引失败记录
func (r *docRepository) ListIndexFailures(docID string) ([]*models.IndexFailure, error) {
	var failures []*models.IndexFailure
	err := r.db.Where("document_id = ? AND resolved_at IS NULL", docID).
		Order("id ASC").
		Find(&failures).Error
	return failures, err
}

// ResolveIndexFailures 标记某个块的失败记录已解决
func (r *docRepository) ResolveIndexFailures(chunkID string) error {
	now := time.Now()
	return r.db.Model(&models.IndexFailure{}).
		Where("chunk_id = ? AND resolved_at IS NULL", chunkID).
		Update("resolved_at", &now).Error
}
