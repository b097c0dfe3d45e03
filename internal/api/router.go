package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/secaudit/secaudit-go/internal/api/handlers"
	"github.com/secaudit/secaudit-go/internal/config"
	"github.com/secaudit/secaudit-go/internal/middleware"
	"github.com/secaudit/secaudit-go/internal/workspace"
	"github.com/sirupsen/logrus"
)

// SetupRouter 注册全部路由，version 由健康检查返回
func SetupRouter(cfg *config.Config, logger *logrus.Logger, version string, registry *workspace.Registry, hub *handlers.EventHub, promMetrics *middleware.PrometheusMetrics, monitor *middleware.ServiceMonitor) *gin.Engine {
	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	// Prometheus 监控中间件
	if promMetrics != nil {
		r.Use(promMetrics.HTTPMiddleware())
		r.GET("/metrics/prometheus", promMetrics.Handler())
	}

	auth := middleware.AuthMiddleware(cfg.Server.AuthToken)
	requireWorkspace := handlers.RequireWorkspace(registry)

	workspaceHandler := handlers.NewWorkspaceHandler(registry, logger)
	analyzerHandler := handlers.NewAnalyzerHandler(logger, cfg.Analyzer.StagingDir, cfg.Server.MaxUploadMB)
	componentHandler := handlers.NewComponentHandler(logger)

	// 状态事件推送
	if hub != nil {
		r.GET("/ws/workspaces/:id", auth, requireWorkspace, hub.HandleWebSocket)
	}

	v1 := r.Group("/api")
	{
		// 健康检查（无需认证）
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":     "ok",
				"version":    version,
				"workspaces": registry.Count(),
			})
		})

		secured := v1.Group("", auth)

		if monitor != nil {
			secured.GET("/metrics/service", monitor.StatsEndpoint())
		}

		secured.POST("/workspaces", workspaceHandler.Create)
		secured.DELETE("/workspaces/:id", workspaceHandler.Delete)

		ws := secured.Group("/workspaces/:id", requireWorkspace)
		{
			// 分析编排器
			ws.GET("/analyzer", analyzerHandler.Snapshot)
			ws.PUT("/analyzer/mode", analyzerHandler.SetMode)
			ws.POST("/analyzer/code", analyzerHandler.AnalyzeCode)
			ws.POST("/analyzer/file", analyzerHandler.UploadFile)
			ws.DELETE("/analyzer/file", analyzerHandler.ClearFile)
			ws.DELETE("/analyzer/error", analyzerHandler.DismissError)
			ws.DELETE("/analyzer/report", analyzerHandler.ClearReport)
			ws.GET("/analyzer/report.md", analyzerHandler.ExportReport)
			ws.GET("/analyzer/hex", analyzerHandler.HexRows)
			ws.PUT("/analyzer/files/active", analyzerHandler.SelectVirtualFile)
			ws.PUT("/analyzer/files/content", analyzerHandler.EditVirtualFile)
			ws.POST("/analyzer/patch", analyzerHandler.ApplyPatch)
			ws.GET("/analyzer/mod", analyzerHandler.ModPackage)

			// 安全对话
			ws.GET("/chat", componentHandler.Transcript)
			ws.POST("/chat", componentHandler.SendMessage)

			// Frida 脚本
			ws.GET("/frida", componentHandler.FridaState)
			ws.POST("/frida", componentHandler.GenerateScript)

			// 界面截图审计
			ws.GET("/vision", componentHandler.VisionState)
			ws.POST("/vision", componentHandler.SetImage)
			ws.POST("/vision/analyze", componentHandler.AnalyzeImage)
		}
	}

	return r
}

// LoggerMiddleware 日志中间件
func LoggerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		method := c.Request.Method
		path := c.Request.URL.Path

		logger.WithFields(logrus.Fields{
			"status":  statusCode,
			"method":  method,
			"path":    path,
			"latency": latency.Milliseconds(),
		}).Info("HTTP Request")
	}
}

// CORSMiddleware CORS 中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
