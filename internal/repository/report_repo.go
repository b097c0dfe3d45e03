package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/secaudit/secaudit-go/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReportStore 报告持久化键值存储
type ReportStore interface {
	// Get 读取报告，不存在时返回空串
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, content string) error
	Delete(ctx context.Context, key string) error
}

type reportRepo struct {
	db *gorm.DB
}

// NewReportRepository 创建 gorm 报告存储
func NewReportRepository(db *gorm.DB) ReportStore {
	return &reportRepo{db: db}
}

func (r *reportRepo) Get(ctx context.Context, key string) (string, error) {
	var entry domain.ReportEntry
	err := r.db.WithContext(ctx).Where("report_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return entry.Content, nil
}

// Set 插入或覆盖报告
func (r *reportRepo) Set(ctx context.Context, key, content string) error {
	entry := &domain.ReportEntry{
		Key:       key,
		Content:   content,
		UpdatedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "report_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
		}).
		Create(entry).Error
}

func (r *reportRepo) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where("report_key = ?", key).Delete(&domain.ReportEntry{}).Error
}

// MemoryReportStore 进程内报告存储（CLI 与测试使用）
type MemoryReportStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryReportStore 创建内存存储
func NewMemoryReportStore() *MemoryReportStore {
	return &MemoryReportStore{entries: make(map[string]string)}
}

func (m *MemoryReportStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[key], nil
}

func (m *MemoryReportStore) Set(_ context.Context, key, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = content
	return nil
}

func (m *MemoryReportStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Has 键是否存在
func (m *MemoryReportStore) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[key]
	return ok
}
