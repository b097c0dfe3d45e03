// Package app 组装服务依赖并运行 HTTP 服务
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/secaudit/secaudit-go/internal/ai"
	"github.com/secaudit/secaudit-go/internal/api"
	"github.com/secaudit/secaudit-go/internal/api/handlers"
	"github.com/secaudit/secaudit-go/internal/clock"
	"github.com/secaudit/secaudit-go/internal/config"
	"github.com/secaudit/secaudit-go/internal/events"
	"github.com/secaudit/secaudit-go/internal/middleware"
	"github.com/secaudit/secaudit-go/internal/queue"
	"github.com/secaudit/secaudit-go/internal/repository"
	"github.com/secaudit/secaudit-go/internal/upload"
	"github.com/secaudit/secaudit-go/internal/watcher"
	"github.com/secaudit/secaudit-go/internal/workspace"
	"github.com/sirupsen/logrus"
)

// Version 服务版本
var Version = "1.0.0"

// Limits 上传模拟参数
func Limits(cfg config.AnalyzerConfig) upload.Limits {
	return upload.Limits{
		MinMs:  float64(cfg.UploadMinMs),
		MaxMs:  float64(cfg.UploadMaxMs),
		TickMs: float64(cfg.UploadTickMs),
	}
}

// Run 启动服务直到 ctx 结束，然后优雅关闭
func Run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	// 数据库（报告持久化），InitDB 内完成迁移
	db, err := repository.InitDB(&cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()
	reports := repository.NewReportRepository(db)

	if err := os.MkdirAll(cfg.Analyzer.StagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	// 模型网关
	client, err := ai.NewClient(ctx, &cfg.AI, logger)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}
	defer client.Close()

	// 监控
	promMetrics := middleware.NewPrometheusMetrics(logger, "secaudit")
	client.SetObserver(promMetrics)

	// 事件扇出：websocket、指标、消息队列
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	hub := handlers.NewEventHub(logger)
	hub.OnClientsChange(promMetrics.SetWebsocketClients)
	hub.Start(bgCtx)

	notifiers := events.Multi{hub, promMetrics}

	var producer *queue.Producer
	if cfg.RabbitMQ.Enabled {
		mq, err := queue.NewRabbitMQ(&cfg.RabbitMQ, logger)
		if err != nil {
			logger.WithError(err).Warn("RabbitMQ unavailable, report publishing disabled")
		} else {
			defer mq.Close()
			mq.StartConnectionWatcher()
			producer = queue.NewProducer(mq, 0, logger)
			go producer.Run(bgCtx)
			notifiers = append(notifiers, producer)
		}
	}

	registry := workspace.NewRegistry(client, logger, workspace.Options{
		Scheduler:  clock.Real{},
		Store:      reports,
		Notifier:   notifiers,
		Limits:     Limits(cfg.Analyzer),
		PatchDelay: time.Duration(cfg.Analyzer.PatchDelayMs) * time.Millisecond,
		Max:        cfg.Server.MaxWorkspaces,
		OnChange:   promMetrics.SetWorkspaces,
	})

	// 暂存上传超过所有工作区满额上传之和时告警
	maxStaged := (cfg.Server.MaxUploadMB << 20) * int64(cfg.Server.MaxWorkspaces)
	monitor := middleware.NewServiceMonitor(logger, 30*time.Second, cfg.Analyzer.StagingDir, registry.Count, maxStaged)
	monitor.OnUpdate(promMetrics.UpdateServiceStats)
	monitor.Start()
	defer monitor.Stop()

	// 投递目录
	if cfg.Watcher.Enabled {
		fw, err := watcher.NewFileWatcher(cfg.Watcher.Dir, cfg.Watcher.Pattern, workspace.InboxHandler(registry), logger)
		if err != nil {
			return fmt.Errorf("failed to create file watcher: %w", err)
		}
		defer fw.Stop()
		if err := fw.Start(bgCtx); err != nil {
			return fmt.Errorf("failed to start file watcher: %w", err)
		}
	}

	router := api.SetupRouter(cfg, logger, Version, registry, hub, promMetrics, monitor)
	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    5 * time.Minute, // 大文件上传
		WriteTimeout:   5 * time.Minute, // 模型请求可能较慢
		MaxHeaderBytes: 1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP server listening on :%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP server shutdown error: %v", err)
	}

	cancelBg()
	if producer != nil {
		producer.Wait()
	}

	logger.Info("Server stopped")
	return nil
}
