package api

import (
	"github.com/gin-gonic/gin"

	"github.com/LENAX/frame-scheduler/pkg/api/handler"
	"github.com/LENAX/frame-scheduler/pkg/api/middleware"
	"github.com/LENAX/frame-scheduler/pkg/core/engine"
)

// SetupRouter 设置路由
func SetupRouter(eng *engine.Engine, version string) *gin.Engine {
	// 设置gin模式
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.SetHTMLTemplate(handler.IndexTemplates)

	// 全局中间件
	logger := eng.Logger().Named("api")
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS())

	// 创建handlers
	healthHandler := handler.NewHealthHandler(eng, version)
	cycleHandler := handler.NewCycleHandler(eng)
	graphHandler := handler.NewGraphHandler(eng)
	taskHandler := handler.NewTaskHandler(eng)
	indexHandler := handler.NewIndexHandler(eng, version)
	streamHandler := handler.NewStreamHandler(eng)

	// 调试首页与健康检查路由（不带前缀）
	router.GET("/", indexHandler.Index)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		// 周期轨迹路由
		cycles := v1.Group("/cycles")
		{
			cycles.GET("", cycleHandler.List)
			cycles.GET("/:id", cycleHandler.Get)
		}

		v1.GET("/graph", graphHandler.Get)
		v1.GET("/tasks", taskHandler.List)
		v1.GET("/stats", healthHandler.Stats)
		v1.GET("/stream", streamHandler.Stream)
	}

	return router
}
