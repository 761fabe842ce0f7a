package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fyerfyer/ayurveda-qa-system/api/handler"
	"github.com/fyerfyer/ayurveda-qa-system/api/middleware"
	"github.com/fyerfyer/ayurveda-qa-system/internal/services"
	"github.com/fyerfyer/ayurveda-qa-system/pkg/taskqueue"
)

// RouterConfig 路由依赖配置
// Queue为nil时不注册任务查询路由
type RouterConfig struct {
	DocumentService *services.DocumentService
	QAService       *services.QAService
	Queue           taskqueue.Queue
}

// SetupRouter 创建并配置HTTP路由
func SetupRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()

	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	router.Use(Cors())

	docHandler := handler.NewDocumentHandler(cfg.DocumentService)
	qaHandler := handler.NewQAHandler(cfg.QAService)

	apiGroup := router.Group("/api")

	documents := apiGroup.Group("/documents")
	{
		documents.POST("", docHandler.Upload)
		documents.GET("", docHandler.List)
		documents.GET("/:id", docHandler.Get)
		documents.GET("/:id/corrections", docHandler.Corrections)
		documents.POST("/:id/retry", docHandler.Retry)
		documents.PUT("/:id/tags", docHandler.UpdateTags)
		documents.DELETE("/:id", docHandler.Delete)
	}

	apiGroup.POST("/qa", qaHandler.Ask)

	if cfg.Queue != nil {
		taskHandler := handler.NewTaskHandler(cfg.Queue)
		apiGroup.GET("/tasks/:id", taskHandler.Get)
		documents.GET("/:id/tasks", taskHandler.ListByDocument)
	}

	apiGroup.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}

// Cors 跨域中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Trace-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
