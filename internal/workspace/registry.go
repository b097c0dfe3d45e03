// Package workspace 工作区注册表：每个浏览器页面一个工作区，持有四个组件
package workspace

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/secaudit/secaudit-go/internal/ai"
	"github.com/secaudit/secaudit-go/internal/analyzer"
	"github.com/secaudit/secaudit-go/internal/chat"
	"github.com/secaudit/secaudit-go/internal/clock"
	"github.com/secaudit/secaudit-go/internal/events"
	"github.com/secaudit/secaudit-go/internal/frida"
	"github.com/secaudit/secaudit-go/internal/repository"
	"github.com/secaudit/secaudit-go/internal/upload"
	"github.com/secaudit/secaudit-go/internal/vision"
	"github.com/sirupsen/logrus"
)

// InboxID 投递目录使用的固定工作区
const InboxID = "inbox"

var (
	ErrNotFound = errors.New("workspace: not found")
	ErrLimit    = errors.New("workspace: limit reached")
)

// Workspace 一组相互独立的组件
type Workspace struct {
	ID        string
	CreatedAt time.Time

	Analyzer *analyzer.Orchestrator
	Chat     *chat.Manager
	Frida    *frida.Generator
	Vision   *vision.Analyzer
}

// Options 注册表参数
type Options struct {
	Scheduler  clock.Scheduler
	Store      repository.ReportStore
	Notifier   events.Notifier
	Limits     upload.Limits
	PatchDelay time.Duration
	Max        int // <=0 不限制
	// OnChange 工作区数量变化回调
	OnChange func(count int)
}

// Registry 工作区注册表
type Registry struct {
	gw     ai.Gateway
	logger *logrus.Logger
	opts   Options

	mu         sync.RWMutex
	workspaces map[string]*Workspace
}

// NewRegistry 创建注册表，所有组件共享同一个模型网关
func NewRegistry(gw ai.Gateway, logger *logrus.Logger, opts Options) *Registry {
	if opts.Notifier == nil {
		opts.Notifier = events.Nop{}
	}
	return &Registry{
		gw:         gw,
		logger:     logger,
		opts:       opts,
		workspaces: make(map[string]*Workspace),
	}
}

// Create 新建工作区
func (r *Registry) Create() (*Workspace, error) {
	return r.create(uuid.New().String())
}

// Ensure 获取指定 ID 的工作区，不存在时创建
func (r *Registry) Ensure(id string) (*Workspace, error) {
	if ws, err := r.Get(id); err == nil {
		return ws, nil
	}
	return r.create(id)
}

func (r *Registry) create(id string) (*Workspace, error) {
	r.mu.Lock()
	if ws, ok := r.workspaces[id]; ok {
		r.mu.Unlock()
		return ws, nil
	}
	if r.opts.Max > 0 && len(r.workspaces) >= r.opts.Max {
		r.mu.Unlock()
		return nil, ErrLimit
	}
	ws := r.build(id)
	r.workspaces[id] = ws
	count := len(r.workspaces)
	r.mu.Unlock()

	r.logger.WithField("workspace", id).Info("Workspace created")
	r.changed(count)
	return ws, nil
}

func (r *Registry) build(id string) *Workspace {
	n := r.opts.Notifier
	return &Workspace{
		ID:        id,
		CreatedAt: time.Now(),
		Analyzer: analyzer.New(r.gw, r.logger, analyzer.Options{
			Workspace:  id,
			Scheduler:  r.opts.Scheduler,
			Store:      r.opts.Store,
			Notifier:   n,
			Limits:     r.opts.Limits,
			PatchDelay: r.opts.PatchDelay,
		}),
		Chat:   chat.New(r.gw, r.logger, id, n),
		Frida:  frida.NewGenerator(r.gw, r.logger, id, n),
		Vision: vision.New(r.gw, r.logger, id, n),
	}
}

// Get 查询工作区
func (r *Registry) Get(id string) (*Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ws, ok := r.workspaces[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ws, nil
}

// Delete 移除工作区并放弃其进行中的上传，报告保留在存储中
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	ws, ok := r.workspaces[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.workspaces, id)
	count := len(r.workspaces)
	r.mu.Unlock()

	ws.Analyzer.Close()
	r.logger.WithField("workspace", id).Info("Workspace deleted")
	r.changed(count)
	return nil
}

// Count 工作区数量
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workspaces)
}

func (r *Registry) changed(count int) {
	if r.opts.OnChange != nil {
		r.opts.OnChange(count)
	}
}
