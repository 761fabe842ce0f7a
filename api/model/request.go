package model

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// GetPage 返回页码，未指定时默认第1页
func (r *PaginationRequest) GetPage() int {
	if r.Page <= 0 {
		return 1
	}
	return r.Page
}

// GetPageSize 返回每页数量，未指定时默认10条
func (r *PaginationRequest) GetPageSize() int {
	if r.PageSize <= 0 {
		return 10
	}
	return r.PageSize
}

// DocumentListRequest 文档列表请求
type DocumentListRequest struct {
	PaginationRequest
	Status string `form:"status" binding:"omitempty,oneof=uploaded processing completed partial failed"`
}

// DocumentIDRequest 文档ID路径参数
type DocumentIDRequest struct {
	ID string `uri:"id" binding:"required"`
}

// UpdateTagsRequest 更新文档标签请求
type UpdateTagsRequest struct {
	Tags []string `json:"tags" binding:"required"`
}

// QARequest 问答请求
// DocumentIDs为空时在全部文档范围内检索
type QARequest struct {
	Question    string   `json:"question" binding:"required"`
	DocumentIDs []string `json:"document_ids"`
}

// TaskIDRequest 任务ID路径参数
type TaskIDRequest struct {
	ID string `uri:"id" binding:"required"`
}
