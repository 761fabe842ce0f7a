package models

import "errors"

// 仓库层和服务层共用的哨兵错误
// API层据此映射HTTP状态码
var (
	ErrDocumentNotFound      = errors.New("document not found")
	ErrInvalidDocumentStatus = errors.New("invalid document status")
	ErrChunkSegmentNotFound  = errors.New("chunk segment not found")
)
