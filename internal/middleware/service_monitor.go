package middleware

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// highAllocMB 超过后告警
const highAllocMB = 1536

// ServiceStats 服务运行统计
type ServiceStats struct {
	Workspaces  int       `json:"workspaces"`   // 活跃工作区
	StagedFiles int       `json:"staged_files"` // 暂存目录中的上传文件
	StagedBytes int64     `json:"staged_bytes"` // 暂存上传总字节
	Alloc       uint64    `json:"alloc"`        // 当前分配的内存 (字节)
	AllocMB     uint64    `json:"alloc_mb"`
	Goroutines  int       `json:"goroutines"`
	NumGC       uint32    `json:"num_gc"`
	SampledAt   time.Time `json:"sampled_at"`
}

// ServiceMonitor 定期采样工作区与暂存上传占用
type ServiceMonitor struct {
	logger     *logrus.Logger
	stagingDir string
	workspaces func() int
	maxStaged  int64

	mutex    sync.RWMutex
	stats    ServiceStats
	stopOnce sync.Once
	stopChan chan struct{}
	interval time.Duration
	onUpdate func(ServiceStats)
}

// NewServiceMonitor 创建监控器
// workspaces 返回当前工作区数量；maxStaged 为暂存字节告警阈值，0 表示不告警
func NewServiceMonitor(logger *logrus.Logger, interval time.Duration, stagingDir string, workspaces func() int, maxStaged int64) *ServiceMonitor {
	return &ServiceMonitor{
		logger:     logger,
		stagingDir: stagingDir,
		workspaces: workspaces,
		maxStaged:  maxStaged,
		stopChan:   make(chan struct{}),
		interval:   interval,
	}
}

// OnUpdate 每次采样后回调（如写入 Prometheus）
func (m *ServiceMonitor) OnUpdate(f func(ServiceStats)) {
	m.onUpdate = f
}

// Start 启动采样循环
func (m *ServiceMonitor) Start() {
	go m.monitor()
}

// Stop 停止采样
func (m *ServiceMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *ServiceMonitor) monitor() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.Sample()
		}
	}
}

// Sample 立即采样一次并返回结果
func (m *ServiceMonitor) Sample() ServiceStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := ServiceStats{
		Alloc:      ms.Alloc,
		AllocMB:    ms.Alloc / 1024 / 1024,
		Goroutines: runtime.NumGoroutine(),
		NumGC:      ms.NumGC,
		SampledAt:  time.Now(),
	}
	if m.workspaces != nil {
		s.Workspaces = m.workspaces()
	}
	s.StagedFiles, s.StagedBytes = m.stagedUsage()

	m.mutex.Lock()
	m.stats = s
	m.mutex.Unlock()

	m.logStats(s)
	if m.onUpdate != nil {
		m.onUpdate(s)
	}
	return s
}

// stagedUsage 统计暂存目录下的文件数与字节数
func (m *ServiceMonitor) stagedUsage() (int, int64) {
	if m.stagingDir == "" {
		return 0, 0
	}
	var (
		count int
		total int64
	)
	err := filepath.WalkDir(m.stagingDir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			// 上传完成后文件随时可能被清理
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		count++
		total += info.Size()
		return nil
	})
	if err != nil {
		m.logger.WithError(err).WithField("dir", m.stagingDir).Warn("Failed to measure staging directory")
	}
	return count, total
}

func (m *ServiceMonitor) logStats(s ServiceStats) {
	m.logger.WithFields(logrus.Fields{
		"workspaces":   s.Workspaces,
		"staged_files": s.StagedFiles,
		"staged_bytes": s.StagedBytes,
		"alloc_mb":     s.AllocMB,
		"goroutines":   s.Goroutines,
	}).Debug("Service stats")

	if s.AllocMB > highAllocMB {
		m.logger.WithField("alloc_mb", s.AllocMB).Warn("High memory usage detected")
	}
	if m.maxStaged > 0 && s.StagedBytes > m.maxStaged {
		m.logger.WithFields(logrus.Fields{
			"staged_bytes": s.StagedBytes,
			"limit":        m.maxStaged,
		}).Warn("Staged uploads exceed limit")
	}
}

// GetStats 最近一次采样结果
func (m *ServiceMonitor) GetStats() ServiceStats {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.stats
}

// StatsEndpoint 返回最近一次采样
func (m *ServiceMonitor) StatsEndpoint() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{
			"service": m.GetStats(),
		})
	}
}
