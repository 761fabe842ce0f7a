package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/fyerfyer/ayurveda-qa-system/internal/chunker"
	"github.com/fyerfyer/ayurveda-qa-system/internal/document"
	"github.com/fyerfyer/ayurveda-qa-system/internal/models"
	"github.com/fyerfyer/ayurveda-qa-system/internal/repository"
	"github.com/fyerfyer/ayurveda-qa-system/internal/textnorm"
	"github.com/fyerfyer/ayurveda-qa-system/internal/vectordb"
	"github.com/fyerfyer/ayurveda-qa-system/pkg/storage"
	"github.com/fyerfyer/ayurveda-qa-system/pkg/taskqueue"
)

// DocumentService 文档服务
// 串联上传、解析、归一化、分块、索引的完整处理管线
type DocumentService struct {
	storage    storage.Storage
	normalizer *textnorm.Normalizer
	chunker    *chunker.Chunker
	indexer    *Indexer
	vectorDB   vectordb.Repository
	repo       repository.DocumentRepository
	statusMgr  *DocumentStatusManager
	queue      taskqueue.Queue // 可选，非nil时上传后异步处理
	logger     *logrus.Logger
}

// DocumentServiceOption 文档服务配置选项
type DocumentServiceOption func(*DocumentService)

// WithTaskQueue 设置异步任务队列
// 设置后上传接口只入队，由队列工作者调用ProcessDocument
func WithTaskQueue(queue taskqueue.Queue) DocumentServiceOption {
	return func(s *DocumentService) {
		s.queue = queue
	}
}

// WithDocumentLogger 设置日志记录器
func WithDocumentLogger(logger *logrus.Logger) DocumentServiceOption {
	return func(s *DocumentService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewDocumentService 创建文档服务
func NewDocumentService(
	store storage.Storage,
	normalizer *textnorm.Normalizer,
	chunk *chunker.Chunker,
	indexer *Indexer,
	vectorDB vectordb.Repository,
	repo repository.DocumentRepository,
	statusMgr *DocumentStatusManager,
	opts ...DocumentServiceOption,
) (*DocumentService, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if normalizer == nil {
		return nil, fmt.Errorf("normalizer is required")
	}
	if chunk == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if indexer == nil {
		return nil, fmt.Errorf("indexer is required")
	}
	if vectorDB == nil {
		return nil, fmt.Errorf("vector repository is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("document repository is required")
	}
	if statusMgr == nil {
		return nil, fmt.Errorf("status manager is required")
	}

	svc := &DocumentService{
		storage:    store,
		normalizer: normalizer,
		chunker:    chunk,
		indexer:    indexer,
		vectorDB:   vectorDB,
		repo:       repo,
		statusMgr:  statusMgr,
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// UploadDocument 上传文档
// 校验文件类型后写入存储层并创建文档记录
// 配置了任务队列时入队异步处理，否则同步处理
func (s *DocumentService) UploadDocument(ctx context.Context, reader io.Reader, filename string) (*models.Document, error) {
	if _, err := document.ParserFactory(filename); err != nil {
		return nil, err
	}

	info, err := s.storage.Save(reader, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	docID := info.ID
	if err := s.statusMgr.MarkAsUploaded(ctx, docID, filename, info.Path, info.Size); err != nil {
		// 存储层的文件不再有记录指向，回收
		_ = s.storage.Delete(docID)
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"doc_id":   docID,
		"filename": filename,
		"size":     info.Size,
	}).Info("Document uploaded")

	if s.queue != nil {
		taskID, err := s.queue.Enqueue(ctx, taskqueue.TaskProcessDocument, docID, taskqueue.ProcessDocumentPayload{
			DocumentID: docID,
			FileName:   filename,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to enqueue processing task: %w", err)
		}

		doc, err := s.statusMgr.GetDocument(ctx, docID)
		if err != nil {
			return nil, err
		}
		doc.TaskID = taskID
		if err := s.repo.Update(doc); err != nil {
			return nil, err
		}
		return doc, nil
	}

	if err := s.ProcessDocument(ctx, docID); err != nil {
		return nil, err
	}
	return s.statusMgr.GetDocument(ctx, docID)
}

// ProcessDocument 执行完整的文档处理管线
// 解析、归一化、分块、索引，中间产物落库，块ID确定所以重跑是幂等的
func (s *DocumentService) ProcessDocument(ctx context.Context, docID string) error {
	doc, err := s.statusMgr.GetDocument(ctx, docID)
	if err != nil {
		return err
	}

	if err := s.statusMgr.MarkAsProcessing(ctx, docID); err != nil {
		return err
	}

	start := time.Now()

	normDoc, err := s.parseAndNormalize(ctx, doc)
	if err != nil {
		return s.failDocument(ctx, docID, err)
	}

	chunks, err := s.chunkDocument(ctx, normDoc)
	if err != nil {
		return s.failDocument(ctx, docID, err)
	}

	report, err := s.indexChunks(ctx, docID, chunks)
	if err != nil {
		return s.failDocument(ctx, docID, err)
	}

	if err := s.statusMgr.MarkAsCompleted(ctx, docID, len(chunks), len(report.Failures), len(normDoc.Log)); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"doc_id":      docID,
		"chunks":      len(chunks),
		"failed":      len(report.Failures),
		"corrections": len(normDoc.Log),
		"duration":    time.Since(start).String(),
	}).Info("Document processing finished")

	return nil
}

// parseAndNormalize 解析原始文件并做文本归一化
func (s *DocumentService) parseAndNormalize(ctx context.Context, doc *models.Document) (*textnorm.NormalizedDocument, error) {
	if err := s.statusMgr.UpdateStage(ctx, doc.ID, models.StageParsing); err != nil {
		return nil, err
	}

	parser, err := document.ParserFactory(doc.FileName)
	if err != nil {
		return nil, err
	}

	reader, err := s.storage.Get(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored file: %w", err)
	}
	defer reader.Close()

	pages, err := parser.ParseReader(reader, doc.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	if err := s.statusMgr.UpdateStage(ctx, doc.ID, models.StageNormalizing); err != nil {
		return nil, err
	}

	normDoc, err := s.normalizer.NormalizeDocument(doc.ID, pages)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize document: %w", err)
	}

	if err := s.saveNormalizationResults(doc, normDoc, len(pages)); err != nil {
		return nil, err
	}

	return normDoc, nil
}

// saveNormalizationResults 持久化归一化阶段的产物
// 纠错日志只追加，重新处理时旧日志保留
func (s *DocumentService) saveNormalizationResults(doc *models.Document, normDoc *textnorm.NormalizedDocument, pageCount int) error {
	records := make([]*models.CorrectionRecord, 0, len(normDoc.Log))
	for _, entry := range normDoc.Log {
		records = append(records, &models.CorrectionRecord{
			DocumentID: doc.ID,
			Page:       entry.Page,
			Surface:    entry.Token,
			Corrected:  entry.Corrected,
			Label:      string(entry.Label),
			Action:     string(entry.Action),
			Distance:   entry.Distance,
			Confidence: entry.Confidence,
		})
	}
	if err := s.repo.SaveCorrections(records); err != nil {
		return fmt.Errorf("failed to save correction log: %w", err)
	}

	doc.PageCount = pageCount
	if len(normDoc.Entities) > 0 {
		data, err := json.Marshal(normDoc.Entities)
		if err != nil {
			return fmt.Errorf("failed to marshal entities: %w", err)
		}
		doc.Entities = datatypes.JSON(data)
	}
	return s.repo.Update(doc)
}

// chunkDocument 把归一化后的文档切成带重叠的块并落库镜像
func (s *DocumentService) chunkDocument(ctx context.Context, normDoc *textnorm.NormalizedDocument) ([]chunker.Chunk, error) {
	if err := s.statusMgr.UpdateStage(ctx, normDoc.DocumentID, models.StageChunking); err != nil {
		return nil, err
	}

	chunks, err := s.chunker.ChunkDocument(normDoc)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk document: %w", err)
	}

	// 重新处理时块ID可能变化，先清掉旧镜像
	if err := s.repo.DeleteChunks(normDoc.DocumentID); err != nil {
		return nil, fmt.Errorf("failed to clear old chunks: %w", err)
	}

	segments := make([]*models.ChunkSegment, 0, len(chunks))
	for _, c := range chunks {
		pages, err := json.Marshal(c.Pages)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal chunk pages: %w", err)
		}
		segments = append(segments, &models.ChunkSegment{
			DocumentID: c.DocumentID,
			ChunkID:    c.ID,
			Position:   c.Index,
			StartRune:  c.Start,
			EndRune:    c.End,
			Pages:      datatypes.JSON(pages),
			Text:       c.Text,
		})
	}
	if err := s.repo.SaveChunks(segments); err != nil {
		return nil, fmt.Errorf("failed to save chunks: %w", err)
	}

	return chunks, nil
}

// indexChunks 向量化并写入向量库，失败的块记录下来供重试
func (s *DocumentService) indexChunks(ctx context.Context, docID string, chunks []chunker.Chunk) (*IndexReport, error) {
	if err := s.statusMgr.UpdateStage(ctx, docID, models.StageIndexing); err != nil {
		return nil, err
	}

	report, err := s.indexer.IndexChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	failed := make(map[string]bool, len(report.Failures))
	for _, f := range report.Failures {
		failed[f.ChunkID] = true
		saveErr := s.repo.SaveIndexFailure(&models.IndexFailure{
			DocumentID: docID,
			ChunkID:    f.ChunkID,
			Reason:     f.Reason,
			Transient:  f.Transient,
			Attempts:   f.Attempts,
		})
		if saveErr != nil {
			s.logger.WithError(saveErr).WithField("chunk_id", f.ChunkID).Error("Failed to record index failure")
		}
	}

	for _, c := range chunks {
		if failed[c.ID] {
			continue
		}
		if err := s.repo.MarkChunkIndexed(c.ID); err != nil {
			s.logger.WithError(err).WithField("chunk_id", c.ID).Error("Failed to mark chunk indexed")
		}
	}

	return report, nil
}

// RetryFailedChunks 重试文档中索引失败的块
// 只重放失败的块，成功的块保持不动
func (s *DocumentService) RetryFailedChunks(ctx context.Context, docID string) (*IndexReport, error) {
	failures, err := s.repo.ListIndexFailures(docID)
	if err != nil {
		return nil, err
	}
	if len(failures) == 0 {
		return &IndexReport{DocumentID: docID}, nil
	}

	segments, err := s.repo.GetChunks(docID)
	if err != nil {
		return nil, err
	}
	segByID := make(map[string]*models.ChunkSegment, len(segments))
	for _, seg := range segments {
		segByID[seg.ChunkID] = seg
	}

	var chunks []chunker.Chunk
	for _, f := range failures {
		seg, ok := segByID[f.ChunkID]
		if !ok {
			continue
		}
		var pages []int
		if len(seg.Pages) > 0 {
			if err := json.Unmarshal(seg.Pages, &pages); err != nil {
				return nil, fmt.Errorf("failed to unmarshal chunk pages: %w", err)
			}
		}
		chunks = append(chunks, chunker.Chunk{
			ID:         seg.ChunkID,
			DocumentID: seg.DocumentID,
			Index:      seg.Position,
			Text:       seg.Text,
			Start:      seg.StartRune,
			End:        seg.EndRune,
			Pages:      pages,
		})
	}

	report, err := s.indexer.IndexChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	failed := make(map[string]bool, len(report.Failures))
	for _, f := range report.Failures {
		failed[f.ChunkID] = true
	}
	for _, c := range chunks {
		if failed[c.ID] {
			continue
		}
		if err := s.repo.ResolveIndexFailures(c.ID); err != nil {
			s.logger.WithError(err).WithField("chunk_id", c.ID).Error("Failed to resolve index failure")
		}
		if err := s.repo.MarkChunkIndexed(c.ID); err != nil {
			s.logger.WithError(err).WithField("chunk_id", c.ID).Error("Failed to mark chunk indexed")
		}
	}

	if err := s.refreshCompletionStatus(ctx, docID); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to refresh document status after retry")
	}

	return report, nil
}

// refreshCompletionStatus 重试后按剩余失败数刷新文档状态
func (s *DocumentService) refreshCompletionStatus(ctx context.Context, docID string) error {
	remaining, err := s.repo.ListIndexFailures(docID)
	if err != nil {
		return err
	}
	total, err := s.repo.CountChunks(docID)
	if err != nil {
		return err
	}

	doc, err := s.statusMgr.GetDocument(ctx, docID)
	if err != nil {
		return err
	}

	if err := s.statusMgr.MarkAsProcessing(ctx, docID); err != nil {
		return err
	}
	return s.statusMgr.MarkAsCompleted(ctx, docID, total, len(remaining), doc.Corrections)
}

// GetDocument 获取文档信息
func (s *DocumentService) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	return s.statusMgr.GetDocument(ctx, docID)
}

// ListDocuments 获取文档列表
func (s *DocumentService) ListDocuments(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	return s.statusMgr.ListDocuments(ctx, offset, limit, filters)
}

// GetCorrections 获取文档的纠错日志
func (s *DocumentService) GetCorrections(ctx context.Context, docID string) ([]*models.CorrectionRecord, error) {
	if _, err := s.statusMgr.GetDocument(ctx, docID); err != nil {
		return nil, err
	}
	return s.repo.GetCorrections(docID)
}

// UpdateDocumentTags 更新文档标签
func (s *DocumentService) UpdateDocumentTags(ctx context.Context, docID string, tags []string) error {
	doc, err := s.statusMgr.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	doc.Tags = strings.Join(tags, ",")
	return s.repo.Update(doc)
}

// DeleteDocument 删除文档及其所有衍生数据
// 先清向量库再清存储层和关系库
func (s *DocumentService) DeleteDocument(ctx context.Context, docID string) error {
	if _, err := s.statusMgr.GetDocument(ctx, docID); err != nil {
		return err
	}

	if err := s.vectorDB.DeleteByDocumentID(docID); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}

	if err := s.storage.Delete(docID); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to delete stored file")
	}

	if err := s.statusMgr.DeleteDocument(ctx, docID); err != nil {
		return err
	}

	s.logger.WithField("doc_id", docID).Info("Document deleted")
	return nil
}

// failDocument 标记文档处理失败并返回原始错误
func (s *DocumentService) failDocument(ctx context.Context, docID string, cause error) error {
	if err := s.statusMgr.MarkAsFailed(ctx, docID, cause.Error()); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Error("Failed to mark document as failed")
	}
	return cause
}
