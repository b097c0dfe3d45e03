// Package analyzer 代码/文件安全分析编排
//
// 一个文件分析周期：
//
//	idle -> probing -> [error | uploading(0..100) -> analyzing -> done]
//
// 上传进度为模拟值，由 clock.Scheduler 驱动；每个周期持有一个代号(generation)，
// 清除文件或重新上传后，旧周期的定时器与远程结果一律丢弃。
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/secaudit/secaudit-go/internal/ai"
	"github.com/secaudit/secaudit-go/internal/clock"
	"github.com/secaudit/secaudit-go/internal/domain"
	"github.com/secaudit/secaudit-go/internal/events"
	"github.com/secaudit/secaudit-go/internal/hexview"
	"github.com/secaudit/secaudit-go/internal/repository"
	"github.com/secaudit/secaudit-go/internal/upload"
	"github.com/sirupsen/logrus"
)

// Component 事件中的组件名
const Component = "analyzer"

// 文本文件暂存上限
const maxTextBytes = 8 << 20

var (
	ErrEmptyCode          = errors.New("analyzer: code is empty")
	ErrUnknownMode        = errors.New("analyzer: unknown input mode")
	ErrBusy               = errors.New("analyzer: a request is already in flight")
	ErrUnreadableFile     = errors.New("analyzer: file is unreadable")
	ErrNoActiveFile       = errors.New("analyzer: no active virtual file")
	ErrUnknownVirtualFile = errors.New("analyzer: virtual file not found")
	ErrNoPatch            = errors.New("analyzer: no patch has been applied")
	ErrNoReport           = errors.New("analyzer: report is empty")
)

// Mode 输入模式
type Mode string

const (
	ModeCode Mode = "code"
	ModeFile Mode = "file"
)

// Phase 文件分析周期阶段
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseProbing   Phase = "probing"
	PhaseUploading Phase = "uploading"
	PhaseAnalyzing Phase = "analyzing"
	PhaseDone      Phase = "done"
	PhaseError     Phase = "error"
)

// Options 编排器依赖与参数
type Options struct {
	Workspace  string
	Scheduler  clock.Scheduler        // 默认 clock.Real
	Store      repository.ReportStore // 为空时不持久化
	Notifier   events.Notifier
	Limits     upload.Limits
	PatchDelay time.Duration // 模拟重新编译耗时
}

// Snapshot 渲染用的状态副本
type Snapshot struct {
	Mode         Mode                 `json:"mode"`
	Code         string               `json:"code"`
	Phase        Phase                `json:"phase"`
	File         *FileInfo            `json:"file,omitempty"`
	Progress     float64              `json:"progress"`
	FileError    string               `json:"file_error,omitempty"`
	Report       string               `json:"report"`
	Loading      bool                 `json:"loading"`
	Files        []domain.VirtualFile `json:"files"`
	ActivePath   string               `json:"active_path,omitempty"`
	HexSize      int                  `json:"hex_size"`
	PatchSuccess bool                 `json:"patch_success"`
}

// Orchestrator 分析编排器
type Orchestrator struct {
	gw         ai.Gateway
	logger     *logrus.Logger
	sched      clock.Scheduler
	store      repository.ReportStore
	emitter    events.Emitter
	limits     upload.Limits
	patchDelay time.Duration
	storeKey   string

	mu           sync.Mutex
	mode         Mode
	code         string
	phase        Phase
	file         *FileInfo
	source       Source
	progress     float64
	fileError    string
	report       string
	loading      bool
	files        []domain.VirtualFile
	active       string
	hex          []byte
	patchSuccess bool

	gen        uint64
	sim        *upload.Simulation
	timer      clock.Timer
	patchTimer clock.Timer
	cycleCtx   context.Context
	cancel     context.CancelFunc // 取消进行中的远程调用
}

// ReportKey 工作区报告的存储键
func ReportKey(workspace string) string {
	if workspace == "" {
		return "analyzer.report"
	}
	return "analyzer.report/" + workspace
}

// New 创建编排器，并从存储恢复上一次的报告
func New(gw ai.Gateway, logger *logrus.Logger, opts Options) *Orchestrator {
	if opts.Scheduler == nil {
		opts.Scheduler = clock.Real{}
	}
	if opts.Limits == (upload.Limits{}) {
		opts.Limits = upload.DefaultLimits()
	}
	if opts.PatchDelay <= 0 {
		opts.PatchDelay = 2 * time.Second
	}

	a := &Orchestrator{
		gw:         gw,
		logger:     logger,
		sched:      opts.Scheduler,
		store:      opts.Store,
		emitter:    events.Emitter{Workspace: opts.Workspace, Component: Component, Notifier: opts.Notifier},
		limits:     opts.Limits,
		patchDelay: opts.PatchDelay,
		storeKey:   ReportKey(opts.Workspace),
		mode:       ModeCode,
		phase:      PhaseIdle,
		cycleCtx:   context.Background(),
	}

	if a.store != nil {
		report, err := a.store.Get(context.Background(), a.storeKey)
		if err != nil {
			logger.WithError(err).WithField("key", a.storeKey).Warn("Failed to restore last report")
		}
		a.report = report
	}
	return a
}

// Snapshot 当前状态副本
func (a *Orchestrator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{
		Mode:         a.mode,
		Code:         a.code,
		Phase:        a.phase,
		Progress:     a.progress,
		FileError:    a.fileError,
		Report:       a.report,
		Loading:      a.loading,
		Files:        append([]domain.VirtualFile{}, a.files...),
		ActivePath:   a.active,
		HexSize:      len(a.hex),
		PatchSuccess: a.patchSuccess,
	}
	if a.file != nil {
		info := *a.file
		s.File = &info
	}
	return s
}

// HexRows 十六进制视图
func (a *Orchestrator) HexRows() []hexview.Row {
	a.mu.Lock()
	defer a.mu.Unlock()
	return hexview.Rows(a.hex)
}

// SetMode 切换输入模式
func (a *Orchestrator) SetMode(mode Mode) error {
	if mode != ModeCode && mode != ModeFile {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	a.mu.Lock()
	a.mode = mode
	a.mu.Unlock()
	a.changed(false)
	return nil
}

// SetCode 更新粘贴的代码
func (a *Orchestrator) SetCode(code string) {
	a.mu.Lock()
	a.code = code
	a.mu.Unlock()
	a.changed(false)
}

// busyLocked 远程调用进行中，或文件周期尚未结束
func (a *Orchestrator) busyLocked() bool {
	if a.loading {
		return true
	}
	switch a.phase {
	case PhaseProbing, PhaseUploading, PhaseAnalyzing:
		return true
	}
	return false
}

// AnalyzeCode 审计粘贴的代码，阻塞直到远程调用结束
func (a *Orchestrator) AnalyzeCode(ctx context.Context) error {
	a.mu.Lock()
	code := a.code
	if strings.TrimSpace(code) == "" {
		a.mu.Unlock()
		return ErrEmptyCode
	}
	if a.busyLocked() {
		a.mu.Unlock()
		return ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.cancel = cancel
	a.loading = true
	a.setReportLocked("")
	gen := a.gen
	a.mu.Unlock()
	a.changed(true)

	text, err := a.gw.Generate(ctx, ai.TextPart(BuildCodePrompt(code)))
	report := text
	if err != nil {
		a.logger.WithError(err).WithField("workspace", a.emitter.Workspace).Error("Code analysis failed")
		report = CodeErrorReport
	} else if report == "" {
		report = FallbackReport
	}

	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return nil
	}
	a.setReportLocked(report)
	a.loading = false
	a.mu.Unlock()
	a.changed(true)
	return nil
}

// SelectFile 开始新的文件分析周期
// 探测失败时进入 error 阶段并返回 ErrUnreadableFile，不会发起远程调用
func (a *Orchestrator) SelectFile(ctx context.Context, src Source) error {
	info := infoOf(src)

	a.mu.Lock()
	a.resetCycleLocked()
	a.file = &info
	a.source = src
	a.progress = 0
	a.fileError = ""
	a.loading = false
	a.patchSuccess = false
	a.files = nil
	a.active = ""
	a.hex = nil
	a.phase = PhaseProbing
	a.setReportLocked("")
	gen := a.gen
	a.mu.Unlock()
	a.changed(true)

	probeErr := probe(src)

	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return nil
	}
	if probeErr != nil {
		a.phase = PhaseError
		a.fileError = ProbeError
		a.file = nil
		a.source = nil
		a.mu.Unlock()

		a.logger.WithError(probeErr).WithField("file", info.Name).Error("File probe failed")
		a.changed(false)
		return fmt.Errorf("%w: %v", ErrUnreadableFile, probeErr)
	}

	plan := upload.NewPlan(info.Size, a.limits)
	a.sim = upload.NewSimulation(plan)
	a.phase = PhaseUploading
	a.cycleCtx = context.WithoutCancel(ctx)
	a.timer = a.sched.AfterFunc(plan.Interval(), func() { a.tick(gen) })
	a.mu.Unlock()

	a.logger.WithFields(logrus.Fields{
		"workspace": a.emitter.Workspace,
		"file":      info.Name,
		"size":      info.Size,
		"ticks":     plan.Ticks(),
	}).Info("File upload simulation started")
	a.changed(false)
	return nil
}

func (a *Orchestrator) tick(gen uint64) {
	a.mu.Lock()
	if gen != a.gen || a.sim == nil {
		a.mu.Unlock()
		return
	}
	progress, done := a.sim.Tick()
	a.progress = progress
	if !done {
		a.timer = a.sched.AfterFunc(a.sim.Plan().Interval(), func() { a.tick(gen) })
		a.mu.Unlock()
		a.emitter.Emit(events.KindProgress, progress)
		return
	}

	a.timer = nil
	a.phase = PhaseAnalyzing
	a.loading = true
	src := a.source
	ctx, cancel := context.WithCancel(a.cycleCtx)
	defer cancel()
	a.cancel = cancel
	a.mu.Unlock()

	a.emitter.Emit(events.KindProgress, progress)
	a.changed(false)
	a.analyzeFile(ctx, gen, src)
}

func (a *Orchestrator) analyzeFile(ctx context.Context, gen uint64, src Source) {
	info := infoOf(src)
	log := a.logger.WithFields(logrus.Fields{"workspace": a.emitter.Workspace, "file": info.Name})

	text, err := a.gw.Generate(ctx, ai.TextPart(BuildFilePrompt(info)))
	report := text
	if err != nil {
		log.WithError(err).Error("File metadata analysis failed")
		report = FileErrorReport
	} else if report == "" {
		report = FallbackReport
	}

	// 仅依据声明的扩展名分支，不嗅探内容
	ext := Extension(info.Name)
	var (
		files   []domain.VirtualFile
		hex     []byte
		readErr error
	)
	switch {
	case archiveExts[ext]:
		files = MockFiles()
	case binaryExts[ext]:
		hex, readErr = readPrefix(src, hexview.MaxBytes)
	default:
		var content []byte
		content, readErr = readPrefix(src, maxTextBytes)
		if readErr == nil {
			files = []domain.VirtualFile{domain.NewVirtualFile(info.Name, string(content))}
		}
	}
	if readErr != nil {
		log.WithError(readErr).Warn("Failed to stage file content")
	}

	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		log.Debug("Discarding result of abandoned cycle")
		return
	}
	a.setReportLocked(report)
	a.files = files
	a.active = ""
	if len(files) > 0 {
		a.active = files[0].Path
	}
	a.hex = hex
	a.loading = false
	a.phase = PhaseDone
	a.mu.Unlock()

	log.Info("File analysis finished")
	a.changed(true)
}

// DismissError 关闭文件错误提示
func (a *Orchestrator) DismissError() {
	a.mu.Lock()
	a.fileError = ""
	if a.phase == PhaseError {
		a.phase = PhaseIdle
	}
	a.mu.Unlock()
	a.changed(false)
}

// ClearFile 清除文件及其派生的全部状态，放弃进行中的周期
func (a *Orchestrator) ClearFile() {
	a.mu.Lock()
	a.resetCycleLocked()
	a.file = nil
	a.source = nil
	a.progress = 0
	a.fileError = ""
	a.files = nil
	a.active = ""
	a.hex = nil
	a.loading = false
	a.patchSuccess = false
	a.phase = PhaseIdle
	a.setReportLocked("")
	a.mu.Unlock()
	a.changed(true)
}

// ClearReport 清除报告、补丁标记与十六进制缓冲，不影响文件状态
func (a *Orchestrator) ClearReport() {
	a.mu.Lock()
	a.setReportLocked("")
	a.patchSuccess = false
	a.hex = nil
	a.mu.Unlock()
	a.changed(true)
}

// ExportReport 导出 Markdown 报告
func (a *Orchestrator) ExportReport() (string, []byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.report == "" {
		return "", nil, ErrNoReport
	}
	return ExportFilename, []byte(a.report), nil
}

// SelectVirtualFile 切换当前编辑的虚拟文件
func (a *Orchestrator) SelectVirtualFile(filePath string) error {
	a.mu.Lock()
	if a.indexLocked(filePath) < 0 {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownVirtualFile, filePath)
	}
	a.active = filePath
	a.mu.Unlock()
	a.changed(false)
	return nil
}

// EditVirtualFile 修改当前虚拟文件内容，OriginalContent 与其他文件保持不变
func (a *Orchestrator) EditVirtualFile(content string) error {
	a.mu.Lock()
	i := a.indexLocked(a.active)
	if i < 0 {
		a.mu.Unlock()
		return ErrNoActiveFile
	}
	a.files[i].Content = content
	a.mu.Unlock()
	a.changed(false)
	return nil
}

func (a *Orchestrator) indexLocked(filePath string) int {
	if filePath == "" {
		return -1
	}
	for i := range a.files {
		if a.files[i].Path == filePath {
			return i
		}
	}
	return -1
}

// ApplyPatch 模拟重新编译，延迟后请求模型解释修改内容
func (a *Orchestrator) ApplyPatch(ctx context.Context) error {
	a.mu.Lock()
	if a.busyLocked() {
		a.mu.Unlock()
		return ErrBusy
	}
	i := a.indexLocked(a.active)
	if i < 0 {
		a.mu.Unlock()
		return ErrNoActiveFile
	}
	file := a.files[i]
	name := ""
	if a.file != nil {
		name = a.file.Name
	}
	a.loading = true
	a.patchSuccess = false
	gen := a.gen
	bg := context.WithoutCancel(ctx)
	a.patchTimer = a.sched.AfterFunc(a.patchDelay, func() { a.runPatch(bg, gen, file, name) })
	a.mu.Unlock()

	a.changed(false)
	return nil
}

func (a *Orchestrator) runPatch(ctx context.Context, gen uint64, file domain.VirtualFile, name string) {
	log := a.logger.WithFields(logrus.Fields{"workspace": a.emitter.Workspace, "path": file.Path})

	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.cancel = cancel
	a.mu.Unlock()

	text, err := a.gw.Generate(ctx, ai.TextPart(BuildPatchPrompt(file)))

	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	a.patchTimer = nil
	if err != nil {
		log.WithError(err).Error("Patch explanation failed")
		a.setReportLocked(PatchErrorReport)
		a.patchSuccess = false
	} else {
		if text == "" {
			text = FallbackReport
		}
		a.setReportLocked(PatchReport(file.Path, name, text))
		a.patchSuccess = true
	}
	a.loading = false
	a.mu.Unlock()
	a.changed(true)
}

// ModPackage 下载修改后的占位包，仅在补丁成功后可用
func (a *Orchestrator) ModPackage() (string, []byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.patchSuccess {
		return "", nil, ErrNoPatch
	}
	name := ""
	if a.file != nil {
		name = a.file.Name
	}
	return ModPackageName(name), []byte(ModPlaceholder), nil
}

// Close 放弃进行中的周期，保留已持久化的报告
func (a *Orchestrator) Close() {
	a.mu.Lock()
	a.resetCycleLocked()
	a.loading = false
	a.mu.Unlock()
}

// resetCycleLocked 停止定时器并使进行中的回调失效
func (a *Orchestrator) resetCycleLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	if a.patchTimer != nil {
		a.patchTimer.Stop()
		a.patchTimer = nil
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.sim = nil
	a.gen++
}

// setReportLocked 写入报告并同步到存储：非空写入，空值删除
func (a *Orchestrator) setReportLocked(report string) {
	a.report = report
	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	if report == "" {
		err = a.store.Delete(ctx, a.storeKey)
	} else {
		err = a.store.Set(ctx, a.storeKey, report)
	}
	if err != nil {
		a.logger.WithError(err).WithField("key", a.storeKey).Warn("Failed to persist report")
	}
}

func (a *Orchestrator) changed(reportChanged bool) {
	snap := a.Snapshot()
	a.emitter.Emit(events.KindState, snap)
	if reportChanged {
		a.emitter.Emit(events.KindReport, snap.Report)
	}
}
