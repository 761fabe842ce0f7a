package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentStatus 文档处理状态类型
type DocumentStatus string

const (
	// DocStatusUploaded 文档已上传，等待处理
	DocStatusUploaded DocumentStatus = "uploaded"
	// DocStatusProcessing 文档处理中
	DocStatusProcessing DocumentStatus = "processing"
	// DocStatusCompleted 文档处理完成
	DocStatusCompleted DocumentStatus = "completed"
	// DocStatusPartial 文档处理完成但有部分块索引失败
	DocStatusPartial DocumentStatus = "partial"
	// DocStatusFailed 文档处理失败
	DocStatusFailed DocumentStatus = "failed"
)

// ProcessStage 文档处理阶段
type ProcessStage string

const (
	// StageParsing 解析阶段
	StageParsing ProcessStage = "parsing"
	// StageNormalizing 文本归一化与纠错阶段
	StageNormalizing ProcessStage = "normalizing"
	// StageChunking 分块阶段
	StageChunking ProcessStage = "chunking"
	// StageIndexing 向量化与入库阶段
	StageIndexing ProcessStage = "indexing"
	// StageCompleted 处理完成
	StageCompleted ProcessStage = "completed"
)

// Document 文档数据模型
// 记录一篇OCR文档从上传到索引完成的全生命周期状态
type Document struct {
	ID           string         `gorm:"primaryKey"`         // 文档ID，主键
	FileName     string         `gorm:"not null"`           // 文件名
	FileType     string         `gorm:"not null"`           // 文件类型
	FilePath     string         `gorm:"not null"`           // 原始文件在存储层的路径
	FileSize     int64          `gorm:"not null"`           // 文件大小（字节）
	Status       DocumentStatus `gorm:"not null;index"`     // 处理状态
	CurrentStage ProcessStage   `gorm:"size:20"`            // 当前处理阶段
	UploadedAt   time.Time      `gorm:"not null;index"`     // 上传时间
	ProcessedAt  *time.Time     `gorm:"index"`              // 处理完成时间
	UpdatedAt    time.Time      `gorm:"not null;index"`     // 更新时间
	Error        string         `gorm:"type:text"`          // 错误信息
	PageCount    int            `gorm:"not null;default:0"` // 页数
	ChunkCount   int            `gorm:"not null;default:0"` // 分块数量
	FailedChunks int            `gorm:"not null;default:0"` // 索引失败的块数量
	Corrections  int            `gorm:"not null;default:0"` // 归一化阶段的纠错条数
	Entities     datatypes.JSON `gorm:"type:json"`          // 识别出的领域实体列表
	Tags         string         `gorm:"type:varchar(255)"`  // 标签，逗号分隔
	Metadata     datatypes.JSON `gorm:"type:json"`          // 元数据，JSON格式
	TaskID       string         `gorm:"size:50;index"`      // 当前关联的异步任务ID
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (d *Document) BeforeCreate(tx *gorm.DB) (err error) {
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now()
	}
	d.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (d *Document) BeforeUpdate(tx *gorm.DB) (err error) {
	d.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (Document) TableName() string {
	return "documents"
}

// ChunkSegment 分块数据模型
// 在关系库中镜像向量库里的块，便于审计和重建索引
type ChunkSegment struct {
	ID         uint           `gorm:"primaryKey;autoIncrement"` // 主键ID
	DocumentID string         `gorm:"not null;index"`           // 所属文档ID
	ChunkID    string         `gorm:"not null;uniqueIndex"`     // 块ID，与向量库中一致
	Position   int            `gorm:"not null"`                 // 块在文档中的序号
	StartRune  int            `gorm:"not null"`                 // 起始位置（按字符计）
	EndRune    int            `gorm:"not null"`                 // 结束位置（按字符计）
	Pages      datatypes.JSON `gorm:"type:json"`                // 覆盖的页码列表
	Text       string         `gorm:"type:text;not null"`       // 块文本内容
	Indexed    bool           `gorm:"not null;default:false"`   // 是否已写入向量库
	CreatedAt  time.Time      `gorm:"not null"`                 // 创建时间
	UpdatedAt  time.Time      `gorm:"not null"`                 // 更新时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (cs *ChunkSegment) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	cs.CreatedAt = now
	cs.UpdatedAt = now
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (cs *ChunkSegment) BeforeUpdate(tx *gorm.DB) (err error) {
	cs.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (ChunkSegment) TableName() string {
	return "chunk_segments"
}

// CorrectionRecord 纠错日志数据模型
// 归一化阶段对每个被纠正或丢弃的词元追加一条记录，只增不改
type CorrectionRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"` // 主键ID
	DocumentID string    `gorm:"not null;index"`           // 所属文档ID
	Page       int       `gorm:"not null"`                 // 页码
	Surface    string    `gorm:"not null;size:128"`        // 原始词元
	Corrected  string    `gorm:"size:128"`                 // 纠正后的词元，丢弃时为空
	Label      string    `gorm:"not null;size:16"`         // 判定的文种标签
	Action     string    `gorm:"not null;size:16"`         // corrected或discarded
	Distance   int       `gorm:"not null;default:0"`       // 编辑距离
	Confidence float64   `gorm:"not null;default:0"`       // 分类置信度
	CreatedAt  time.Time `gorm:"not null"`                 // 创建时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (cr *CorrectionRecord) BeforeCreate(tx *gorm.DB) (err error) {
	if cr.CreatedAt.IsZero() {
		cr.CreatedAt = time.Now()
	}
	return nil
}

// TableName 明确指定表名
func (CorrectionRecord) TableName() string {
	return "correction_records"
}

// IndexFailure 索引失败记录
// 索引管线容忍部分块失败，失败的块记录在这里供重试
type IndexFailure struct {
	ID         uint       `gorm:"primaryKey;autoIncrement"` // 主键ID
	DocumentID string     `gorm:"not null;index"`           // 所属文档ID
	ChunkID    string     `gorm:"not null;index"`           // 失败的块ID
	Reason     string     `gorm:"type:text"`                // 失败原因
	Transient  bool       `gorm:"not null;default:false"`   // 是否为瞬时错误
	Attempts   int        `gorm:"not null;default:0"`       // 已尝试次数
	CreatedAt  time.Time  `gorm:"not null"`                 // 创建时间
	ResolvedAt *time.Time `gorm:""`                         // 重试成功的时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (f *IndexFailure) BeforeCreate(tx *gorm.DB) (err error) {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	return nil
}

// TableName 明确指定表名
func (IndexFailure) TableName() string {
	return "index_failures"
}
