package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fyerfyer/ayurveda-qa-system/api/middleware"
	"github.com/fyerfyer/ayurveda-qa-system/api/model"
	"github.com/fyerfyer/ayurveda-qa-system/internal/services"
)

// QAHandler 问答接口
type QAHandler struct {
	qaService *services.QAService
}

// NewQAHandler 创建问答处理器
func NewQAHandler(qaService *services.QAService) *QAHandler {
	return &QAHandler{qaService: qaService}
}

// Ask 基于已索引文档回答问题
// POST /api/qa
// 证据不足时返回abstained为true的回答，HTTP状态码仍是200
func (h *QAHandler) Ask(c *gin.Context) {
	var req model.QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("question is required", err.Error()))
		return
	}

	answer, err := h.qaService.AnswerWithDocuments(c.Request.Context(), req.Question, req.DocumentIDs)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(
		model.ConvertToQAResponse(req.Question, answer), c.GetString(middleware.TraceIDKey)))
}
