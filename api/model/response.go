package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/fyerfyer/ayurveda-qa-system/internal/llm"
	"github.com/fyerfyer/ayurveda-qa-system/internal/models"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}, traceID string) Response {
	return Response{
		Code:    200,
		Message: "success",
		Data:    data,
		TraceID: traceID,
	}
}

// NewErrorResponse 创建失败响应
func NewErrorResponse(code int, message string, traceID string) Response {
	return Response{
		Code:    code,
		Message: message,
		TraceID: traceID,
	}
}

// DocumentUploadResponse 文档上传响应
type DocumentUploadResponse struct {
	DocumentID string `json:"document_id"`
	FileName   string `json:"file_name"`
	Status     string `json:"status"`
	TaskID     string `json:"task_id,omitempty"`
}

// DocumentInfo 文档概要信息
type DocumentInfo struct {
	DocumentID   string     `json:"document_id"`
	FileName     string     `json:"file_name"`
	FileType     string     `json:"file_type"`
	FileSize     int64      `json:"file_size"`
	Status       string     `json:"status"`
	CurrentStage string     `json:"current_stage,omitempty"`
	PageCount    int        `json:"page_count"`
	ChunkCount   int        `json:"chunk_count"`
	FailedChunks int        `json:"failed_chunks"`
	Corrections  int        `json:"corrections"`
	Entities     []string   `json:"entities,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Error        string     `json:"error,omitempty"`
	UploadedAt   time.Time  `json:"uploaded_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

// DocumentListResponse 文档列表响应
type DocumentListResponse struct {
	Total     int64           `json:"total"`
	Page      int             `json:"page"`
	PageSize  int             `json:"page_size"`
	Documents []*DocumentInfo `json:"documents"`
}

// CorrectionInfo 纠错记录信息
type CorrectionInfo struct {
	Page       int     `json:"page"`
	Surface    string  `json:"surface"`
	Corrected  string  `json:"corrected,omitempty"`
	Label      string  `json:"label"`
	Action     string  `json:"action"`
	Distance   int     `json:"distance"`
	Confidence float64 `json:"confidence"`
}

// CorrectionListResponse 纠错日志响应
type CorrectionListResponse struct {
	DocumentID  string            `json:"document_id"`
	Total       int               `json:"total"`
	Corrections []*CorrectionInfo `json:"corrections"`
}

// RetryResponse 索引重试响应
type RetryResponse struct {
	DocumentID string `json:"document_id"`
	Retried    int    `json:"retried"`
	Indexed    int    `json:"indexed"`
	Failed     int    `json:"failed"`
}

// CitationInfo 回答引用信息
type CitationInfo struct {
	Index      int    `json:"index"`
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Snippet    string `json:"snippet,omitempty"`
}

// QAResponse 问答响应
type QAResponse struct {
	Question  string          `json:"question"`
	Answer    string          `json:"answer"`
	Abstained bool            `json:"abstained"`
	Reason    string          `json:"reason,omitempty"`
	Citations []*CitationInfo `json:"citations"`
	ModelName string          `json:"model_name,omitempty"`
}

// ConvertToDocumentInfo 把文档模型转换为响应结构
func ConvertToDocumentInfo(doc *models.Document) *DocumentInfo {
	info := &DocumentInfo{
		DocumentID:   doc.ID,
		FileName:     doc.FileName,
		FileType:     doc.FileType,
		FileSize:     doc.FileSize,
		Status:       string(doc.Status),
		CurrentStage: string(doc.CurrentStage),
		PageCount:    doc.PageCount,
		ChunkCount:   doc.ChunkCount,
		FailedChunks: doc.FailedChunks,
		Corrections:  doc.Corrections,
		Error:        doc.Error,
		UploadedAt:   doc.UploadedAt,
		ProcessedAt:  doc.ProcessedAt,
	}

	if len(doc.Entities) > 0 {
		var entities []string
		if err := json.Unmarshal(doc.Entities, &entities); err == nil {
			info.Entities = entities
		}
	}
	if doc.Tags != "" {
		info.Tags = strings.Split(doc.Tags, ",")
	}
	return info
}

// ConvertToCorrectionInfo 把纠错记录转换为响应结构
func ConvertToCorrectionInfo(record *models.CorrectionRecord) *CorrectionInfo {
	return &CorrectionInfo{
		Page:       record.Page,
		Surface:    record.Surface,
		Corrected:  record.Corrected,
		Label:      record.Label,
		Action:     record.Action,
		Distance:   record.Distance,
		Confidence: record.Confidence,
	}
}

// ConvertToQAResponse 把回答转换为响应结构
// 拒答的回答引用保持为空列表而不是null
func ConvertToQAResponse(question string, answer *llm.Answer) *QAResponse {
	resp := &QAResponse{
		Question:  question,
		Answer:    answer.Text,
		Abstained: answer.Abstained,
		Reason:    answer.Reason,
		Citations: make([]*CitationInfo, 0, len(answer.Citations)),
		ModelName: answer.ModelName,
	}
	for _, c := range answer.Citations {
		resp.Citations = append(resp.Citations, &CitationInfo{
			Index:      c.Index,
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Snippet:    c.Snippet,
		})
	}
	return resp
}
