package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/secaudit/secaudit-go/internal/events"
	"github.com/sirupsen/logrus"
)

// PrometheusMetrics Prometheus 指标收集器
// 同时实现 ai.Observer 与 events.Notifier
type PrometheusMetrics struct {
	logger *logrus.Logger

	// HTTP 请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 模型网关指标
	modelRequestsTotal   *prometheus.CounterVec
	modelRequestDuration *prometheus.HistogramVec

	// 业务指标
	reportsTotal     *prometheus.CounterVec
	uploadsCompleted prometheus.Counter
	workspacesActive prometheus.Gauge
	wsClients        prometheus.Gauge
	stagedBytes      prometheus.Gauge

	// 系统指标
	memoryUsage     prometheus.Gauge
	goroutinesCount prometheus.Gauge
	gcCount         prometheus.Gauge
}

// NewPrometheusMetrics 创建 Prometheus 指标收集器
func NewPrometheusMetrics(logger *logrus.Logger, namespace string) *PrometheusMetrics {
	if namespace == "" {
		namespace = "secaudit"
	}

	pm := &PrometheusMetrics{
		logger: logger,

		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latencies in seconds",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"method", "path"},
		),

		modelRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_requests_total",
				Help:      "Total number of model gateway requests",
			},
			[]string{"operation", "status"}, // operation: generate/chat, status: success/failure
		),
		modelRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "model_request_duration_seconds",
				Help:      "Model gateway request latencies in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"operation"},
		),

		reportsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reports_total",
				Help:      "Total number of non-empty reports produced",
			},
			[]string{"component"},
		),
		uploadsCompleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_completed_total",
				Help:      "Total number of upload simulations that reached 100%",
			},
		),
		workspacesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workspaces_active",
				Help:      "Number of live workspaces",
			},
		),
		wsClients: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_clients",
				Help:      "Number of connected websocket clients",
			},
		),

		stagedBytes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "staged_upload_bytes",
				Help:      "Bytes held in the upload staging directory",
			},
		),

		memoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage in bytes",
			},
		),
		goroutinesCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "goroutines_count",
				Help:      "Current number of goroutines",
			},
		),
		gcCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "gc_count",
				Help:      "Number of completed GC cycles",
			},
		),
	}

	logger.Info("Prometheus metrics initialized")
	return pm
}

// HTTPMiddleware HTTP 请求监控中间件
func (pm *PrometheusMetrics) HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		pm.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		pm.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

// Handler 返回 Prometheus HTTP Handler
func (pm *PrometheusMetrics) Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// ObserveModelRequest 记录一次模型请求
func (pm *PrometheusMetrics) ObserveModelRequest(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	pm.modelRequestsTotal.WithLabelValues(operation, status).Inc()
	pm.modelRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Notify 根据组件事件更新业务指标
func (pm *PrometheusMetrics) Notify(e events.Event) {
	switch e.Kind {
	case events.KindReport:
		if report, ok := e.Payload.(string); ok && report != "" {
			pm.reportsTotal.WithLabelValues(e.Component).Inc()
		}
	case events.KindProgress:
		if progress, ok := e.Payload.(float64); ok && progress >= 100 {
			pm.uploadsCompleted.Inc()
		}
	}
}

// SetWorkspaces 更新工作区数量
func (pm *PrometheusMetrics) SetWorkspaces(count int) {
	pm.workspacesActive.Set(float64(count))
}

// SetWebsocketClients 更新 websocket 连接数
func (pm *PrometheusMetrics) SetWebsocketClients(count int) {
	pm.wsClients.Set(float64(count))
}

// UpdateServiceStats 写入一次服务采样
func (pm *PrometheusMetrics) UpdateServiceStats(stats ServiceStats) {
	pm.stagedBytes.Set(float64(stats.StagedBytes))
	pm.memoryUsage.Set(float64(stats.Alloc))
	pm.goroutinesCount.Set(float64(stats.Goroutines))
	pm.gcCount.Set(float64(stats.NumGC))
}
