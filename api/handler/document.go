package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fyerfyer/ayurveda-qa-system/api/middleware"
	"github.com/fyerfyer/ayurveda-qa-system/api/model"
	"github.com/fyerfyer/ayurveda-qa-system/internal/services"
)

// DocumentHandler 文档管理接口
type DocumentHandler struct {
	docService *services.DocumentService
}

// NewDocumentHandler 创建文档处理器
func NewDocumentHandler(docService *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// Upload 上传文档并触发处理管线
// POST /api/documents
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		middleware.HandleError(c, middleware.NewValidationError("file is required", err.Error()))
		return
	}

	src, err := file.Open()
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("failed to open uploaded file", err.Error()))
		return
	}
	defer src.Close()

	doc, err := h.docService.UploadDocument(c.Request.Context(), src, file.Filename)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	if tags := c.PostForm("tags"); tags != "" {
		tagList := strings.Split(tags, ",")
		if err := h.docService.UpdateDocumentTags(c.Request.Context(), doc.ID, tagList); err != nil {
			middleware.HandleError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(&model.DocumentUploadResponse{
		DocumentID: doc.ID,
		FileName:   doc.FileName,
		Status:     string(doc.Status),
		TaskID:     doc.TaskID,
	}, c.GetString(middleware.TraceIDKey)))
}

// Get 查询单个文档的处理状态
// GET /api/documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid document id", err.Error()))
		return
	}

	doc, err := h.docService.GetDocument(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(
		model.ConvertToDocumentInfo(doc), c.GetString(middleware.TraceIDKey)))
}

// List 分页查询文档列表
// GET /api/documents?page=1&page_size=10&status=completed
func (h *DocumentHandler) List(c *gin.Context) {
	var req model.DocumentListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid list parameters", err.Error()))
		return
	}

	filters := make(map[string]interface{})
	if req.Status != "" {
		filters["status"] = req.Status
	}

	offset := (req.GetPage() - 1) * req.GetPageSize()
	docs, total, err := h.docService.ListDocuments(c.Request.Context(), offset, req.GetPageSize(), filters)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	infos := make([]*model.DocumentInfo, 0, len(docs))
	for _, doc := range docs {
		infos = append(infos, model.ConvertToDocumentInfo(doc))
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(&model.DocumentListResponse{
		Total:     total,
		Page:      req.GetPage(),
		PageSize:  req.GetPageSize(),
		Documents: infos,
	}, c.GetString(middleware.TraceIDKey)))
}

// Corrections 查询文档归一化阶段的纠错日志
// GET /api/documents/:id/corrections
func (h *DocumentHandler) Corrections(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid document id", err.Error()))
		return
	}

	records, err := h.docService.GetCorrections(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	infos := make([]*model.CorrectionInfo, 0, len(records))
	for _, record := range records {
		infos = append(infos, model.ConvertToCorrectionInfo(record))
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(&model.CorrectionListResponse{
		DocumentID:  req.ID,
		Total:       len(infos),
		Corrections: infos,
	}, c.GetString(middleware.TraceIDKey)))
}

// Retry 重新索引失败的块
// POST /api/documents/:id/retry
func (h *DocumentHandler) Retry(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid document id", err.Error()))
		return
	}

	report, err := h.docService.RetryFailedChunks(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(&model.RetryResponse{
		DocumentID: req.ID,
		Retried:    report.Total,
		Indexed:    report.Indexed,
		Failed:     len(report.Failures),
	}, c.GetString(middleware.TraceIDKey)))
}

// UpdateTags 更新文档标签
// PUT /api/documents/:id/tags
func (h *DocumentHandler) UpdateTags(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid document id", err.Error()))
		return
	}

	var body model.UpdateTagsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid tags payload", err.Error()))
		return
	}

	if err := h.docService.UpdateDocumentTags(c.Request.Context(), req.ID, body.Tags); err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(nil, c.GetString(middleware.TraceIDKey)))
}

// Delete 删除文档及其全部派生数据
// DELETE /api/documents/:id
func (h *DocumentHandler) Delete(c *gin.Context) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid document id", err.Error()))
		return
	}

	if err := h.docService.DeleteDocument(c.Request.Context(), req.ID); err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(nil, c.GetString(middleware.TraceIDKey)))
}
