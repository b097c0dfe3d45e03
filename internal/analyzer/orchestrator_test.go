package analyzer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/secaudit/secaudit-go/internal/ai"
	"github.com/secaudit/secaudit-go/internal/ai/aitest"
	"github.com/secaudit/secaudit-go/internal/clock"
	"github.com/secaudit/secaudit-go/internal/events"
	"github.com/secaudit/secaudit-go/internal/repository"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	a        *Orchestrator
	gw       *aitest.MockGateway
	clk      *clock.Manual
	store    *repository.MemoryReportStore
	progress []float64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		gw:    new(aitest.MockGateway),
		clk:   clock.NewManual(),
		store: repository.NewMemoryReportStore(),
	}
	sink := events.NotifierFunc(func(e events.Event) {
		if e.Kind == events.KindProgress {
			f.progress = append(f.progress, e.Payload.(float64))
		}
	})
	f.a = New(f.gw, logger, Options{
		Workspace:  "ws",
		Scheduler:  f.clk,
		Store:      f.store,
		Notifier:   sink,
		PatchDelay: 2 * time.Second,
	})
	return f
}

type brokenSource struct{}

func (brokenSource) Name() string     { return "broken.apk" }
func (brokenSource) Size() int64      { return 10 }
func (brokenSource) MIMEType() string { return "" }
func (brokenSource) Open() (io.ReadCloser, error) {
	return nil, errors.New("permission denied")
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("corrupted") }

type corruptSource struct{ brokenSource }

func (corruptSource) Open() (io.ReadCloser, error) { return io.NopCloser(failingReader{}), nil }

// TestAnalyzeCode_Success 测试代码审计成功
func TestAnalyzeCode_Success(t *testing.T) {
	f := newFixture(t)
	f.gw.On("Generate", aitest.PromptContains("Código:\n<manifest/>")).Return("OK", nil).Once()

	f.a.SetCode("<manifest/>")
	require.NoError(t, f.a.AnalyzeCode(context.Background()))

	s := f.a.Snapshot()
	assert.Equal(t, "OK", s.Report)
	assert.False(t, s.Loading)
	stored, _ := f.store.Get(context.Background(), ReportKey("ws"))
	assert.Equal(t, "OK", stored)
	f.gw.AssertExpectations(t)
}

// TestAnalyzeCode_Failure 测试远程失败写入固定错误文案
func TestAnalyzeCode_Failure(t *testing.T) {
	f := newFixture(t)
	f.gw.On("Generate", mock.Anything).Return("", errors.New("quota exceeded")).Once()

	f.a.SetCode("class A {}")
	require.NoError(t, f.a.AnalyzeCode(context.Background()))

	s := f.a.Snapshot()
	assert.Equal(t, CodeErrorReport, s.Report)
	assert.False(t, s.Loading)
}

func TestAnalyzeCode_EmptyResponse(t *testing.T) {
	f := newFixture(t)
	f.gw.On("Generate", mock.Anything).Return("", nil).Once()

	f.a.SetCode("x")
	require.NoError(t, f.a.AnalyzeCode(context.Background()))
	assert.Equal(t, FallbackReport, f.a.Snapshot().Report)
}

func TestAnalyzeCode_Blank(t *testing.T) {
	f := newFixture(t)
	f.a.SetCode("  \n\t ")

	err := f.a.AnalyzeCode(context.Background())
	assert.ErrorIs(t, err, ErrEmptyCode)
	assert.False(t, f.a.Snapshot().Loading)
	f.gw.AssertNotCalled(t, "Generate", mock.Anything)
}

// TestSelectFile_Archive 测试 APK 上传全流程
func TestSelectFile_Archive(t *testing.T) {
	f := newFixture(t)
	f.gw.On("Generate", mock.MatchedBy(func(parts []ai.Part) bool {
		p := parts[0].Text
		return strings.Contains(p, "- Nome: Game.APK") &&
			strings.Contains(p, "- Extensão: .apk") &&
			strings.Contains(p, "- Tamanho: 0.00 MB") &&
			strings.Contains(p, "- Tipo MIME: application/vnd.android.package-archive")
	})).Return("## Plano", nil).Once()

	src := &BytesSource{FileName: "Game.APK", MIME: "application/vnd.android.package-archive", Data: []byte("PK\x03\x04rest")}
	require.NoError(t, f.a.SelectFile(context.Background(), src))

	s := f.a.Snapshot()
	assert.Equal(t, PhaseUploading, s.Phase)
	require.NotNil(t, s.File)
	assert.Equal(t, "Game.APK", s.File.Name)

	f.clk.RunAll()

	require.Len(t, f.progress, 20)
	for i := 1; i < len(f.progress); i++ {
		assert.GreaterOrEqual(t, f.progress[i], f.progress[i-1])
	}
	assert.Equal(t, 100.0, f.progress[len(f.progress)-1])

	s = f.a.Snapshot()
	assert.Equal(t, PhaseDone, s.Phase)
	assert.Equal(t, "## Plano", s.Report)
	assert.False(t, s.Loading)
	require.Len(t, s.Files, 3)
	assert.Equal(t, "java/com/target/app/Constants.java", s.Files[0].Path)
	assert.Equal(t, "smali/com/target/app/MainActivity.smali", s.Files[1].Path)
	assert.Equal(t, "res/values/strings.xml", s.Files[2].Path)
	for _, vf := range s.Files {
		assert.Equal(t, vf.OriginalContent, vf.Content)
	}
	assert.Equal(t, s.Files[0].Path, s.ActivePath)
	assert.Zero(t, s.HexSize)
	f.gw.AssertExpectations(t)
}

func TestSelectFile_Binary(t *testing.T) {
	f := newFixture(t)
	f.gw.On("Generate", mock.Anything).Return("plano", nil).Once()

	data := bytes.Repeat([]byte{0x7F, 'E', 'L', 'F'}, 2000)
	require.NoError(t, f.a.SelectFile(context.Background(), &BytesSource{FileName: "libil2cpp.so", Data: data}))
	f.clk.RunAll()

	s := f.a.Snapshot()
	assert.Empty(t, s.Files)
	assert.Equal(t, "", s.ActivePath)
	assert.Equal(t, 4096, s.HexSize)
	rows := f.a.HexRows()
	assert.Len(t, rows, 256)
	assert.Equal(t, "7F 45 4C 46 7F 45 4C 46 7F 45 4C 46 7F 45 4C 46", rows[0].Hex)
}

func TestSelectFile_Text(t *testing.T) {
	f := newFixture(t)
	f.gw.On("Generate", aitest.PromptContains("Tipo MIME: Desconhecido")).Return("plano", nil).Once()

	require.NoError(t, f.a.SelectFile(context.Background(), &BytesSource{FileName: "Player.cs", Data: []byte("int health = 100;")}))
	f.clk.RunAll()

	s := f.a.Snapshot()
	require.Len(t, s.Files, 1)
	assert.Equal(t, "Player.cs", s.Files[0].Path)
	assert.Equal(t, "int health = 100;", s.Files[0].Content)
	assert.Equal(t, "csharp", s.Files[0].Language)
	assert.Equal(t, "Player.cs", s.ActivePath)
}

func TestSelectFile_AnalysisFailure(t *testing.T) {
	f := newFixture(t)
	f.gw.On("Generate", mock.Anything).Return("", errors.New("503")).Once()

	require.NoError(t, f.a.SelectFile(context.Background(), &BytesSource{FileName: "a.zip", Data: []byte("PK")}))
	f.clk.RunAll()

	s := f.a.Snapshot()
	assert.Equal(t, FileErrorReport, s.Report)
	assert.Equal(t, PhaseDone, s.Phase)
	assert.False(t, s.Loading)
}

// TestSelectFile_ProbeFailure 测试探测失败不会发起远程调用
func TestSelectFile_ProbeFailure(t *testing.T) {
	for _, src := range []Source{brokenSource{}, corruptSource{}} {
		f := newFixture(t)

		err := f.a.SelectFile(context.Background(), src)
		assert.ErrorIs(t, err, ErrUnreadableFile)

		s := f.a.Snapshot()
		assert.Equal(t, PhaseError, s.Phase)
		assert.Equal(t, ProbeError, s.FileError)
		assert.Nil(t, s.File)
		assert.Zero(t, f.clk.Pending())

		f.a.DismissError()
		s = f.a.Snapshot()
		assert.Equal(t, "", s.FileError)
		assert.Equal(t, PhaseIdle, s.Phase)
		f.gw.AssertNotCalled(t, "Generate", mock.Anything)
	}
}

func TestSelectFile_ShortFileIsReadable(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.a.SelectFile(context.Background(), &BytesSource{FileName: "empty.txt"}))
	assert.Equal(t, PhaseUploading, f.a.Snapshot().Phase)
}

// TestClearFile_AbandonsUpload 测试清除后旧定时器不再生效
func TestClearFile_AbandonsUpload(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.a.SelectFile(context.Background(), &BytesSource{FileName: "a.apk", Data: []byte("PK")}))
	f.clk.Advance(500 * time.Millisecond)

	f.a.ClearFile()
	f.clk.RunAll()

	s := f.a.Snapshot()
	assert.Nil(t, s.File)
	assert.Zero(t, s.Progress)
	assert.Equal(t, "", s.Report)
	assert.Equal(t, "", s.FileError)
	assert.Empty(t, s.Files)
	assert.Zero(t, s.HexSize)
	assert.False(t, s.Loading)
	assert.False(t, f.store.Has(ReportKey("ws")))
	f.gw.AssertNotCalled(t, "Generate", mock.Anything)
}

func TestClearFile_AfterDone(t *testing.T) {
	f := newFixture(t)
	f.gw.On("Generate", mock.Anything).Return("plano", nil).Once()
	require.NoError(t, f.a.SelectFile(context.Background(), &BytesSource{FileName: "lib.so", Data: []byte{1, 2, 3, 4}}))
	f.clk.RunAll()
	require.Equal(t, 4, f.a.Snapshot().HexSize)

	f.a.ClearFile()
	s := f.a.Snapshot()
	assert.Zero(t, s.HexSize)
	assert.Equal(t, "", s.Report)
	assert.Equal(t, PhaseIdle, s.Phase)
}

func TestSelectFile_ReplacesPreviousCycle(t *testing.T) {
	f := newFixture(t)
	f.gw.On("Generate", aitest.PromptContains("Nome: second.txt")).Return("segundo", nil).Once()

	require.NoError(t, f.a.SelectFile(context.Background(), &BytesSource{FileName: "first.txt", Data: []byte("1")}))
	f.clk.Advance(300 * time.Millisecond)
	require.NoError(t, f.a.SelectFile(context.Background(), &BytesSource{FileName: "second.txt", Data: []byte("2")}))
	f.clk.RunAll()

	s := f.a.Snapshot()
	assert.Equal(t, "segundo", s.Report)
	assert.Equal(t, "second.txt", s.File.Name)
	f.gw.AssertExpectations(t)
}

func loadArchive(t *testing.T, f *fixture) {
	t.Helper()
	f.gw.On("Generate", aitest.PromptContains("Metadados do Arquivo")).Return("plano", nil).Once()
	require.NoError(t, f.a.SelectFile(context.Background(), &BytesSource{FileName: "game.apk", Data: []byte("PK")}))
	f.clk.RunAll()
}

// TestEditVirtualFile_OnlyActive 测试编辑只影响当前文件
func TestEditVirtualFile_OnlyActive(t *testing.T) {
	f := newFixture(t)
	loadArchive(t, f)
	before := f.a.Snapshot().Files

	require.NoError(t, f.a.SelectVirtualFile("smali/com/target/app/MainActivity.smali"))
	require.NoError(t, f.a.EditVirtualFile("const/4 v0, 0x1"))

	after := f.a.Snapshot().Files
	assert.Equal(t, before[0], after[0])
	assert.Equal(t, before[2], after[2])
	assert.Equal(t, "const/4 v0, 0x1", after[1].Content)
	assert.Equal(t, before[1].OriginalContent, after[1].OriginalContent)

	// 模板不受编辑影响
	assert.Equal(t, mockFiles[1].OriginalContent, mockFiles[1].Content)

	assert.ErrorIs(t, f.a.SelectVirtualFile("nope"), ErrUnknownVirtualFile)
}

func TestEditVirtualFile_NoActive(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.a.EditVirtualFile("x"), ErrNoActiveFile)
	assert.ErrorIs(t, f.a.ApplyPatch(context.Background()), ErrNoActiveFile)
}

// TestApplyPatch 测试补丁模拟与修改包下载
func TestApplyPatch(t *testing.T) {
	f := newFixture(t)
	loadArchive(t, f)

	_, _, err := f.a.ModPackage()
	assert.ErrorIs(t, err, ErrNoPatch)

	require.NoError(t, f.a.EditVirtualFile("API_KEY = \"\""))
	f.gw.On("Generate", mock.MatchedBy(func(parts []ai.Part) bool {
		p := parts[0].Text
		return strings.Contains(p, "Conteúdo original:") && strings.Contains(p, "API_KEY = \"\"")
	})).Return("A chave foi removida.", nil).Once()

	require.NoError(t, f.a.ApplyPatch(context.Background()))
	assert.True(t, f.a.Snapshot().Loading)
	assert.ErrorIs(t, f.a.ApplyPatch(context.Background()), ErrBusy)

	// 重新编译延迟未到，只有上传分析那一次调用
	f.clk.Advance(1 * time.Second)
	f.gw.AssertNumberOfCalls(t, "Generate", 1)
	f.clk.Advance(1 * time.Second)

	s := f.a.Snapshot()
	assert.False(t, s.Loading)
	assert.True(t, s.PatchSuccess)
	assert.Contains(t, s.Report, "apktool b")
	assert.Contains(t, s.Report, "apksigner")
	assert.Contains(t, s.Report, "A chave foi removida.")

	name, body, err := f.a.ModPackage()
	require.NoError(t, err)
	assert.Equal(t, "game_mod.apk", name)
	assert.Equal(t, ModPlaceholder, string(body))
}

func TestApplyPatch_Failure(t *testing.T) {
	f := newFixture(t)
	loadArchive(t, f)
	f.gw.On("Generate", aitest.PromptContains("Conteúdo modificado")).Return("", errors.New("timeout")).Once()

	require.NoError(t, f.a.ApplyPatch(context.Background()))
	f.clk.RunAll()

	s := f.a.Snapshot()
	assert.Equal(t, PatchErrorReport, s.Report)
	assert.False(t, s.PatchSuccess)
	assert.False(t, s.Loading)
}

func TestClearReport(t *testing.T) {
	f := newFixture(t)
	f.gw.On("Generate", mock.Anything).Return("plano", nil).Once()
	require.NoError(t, f.a.SelectFile(context.Background(), &BytesSource{FileName: "x.bin", Data: []byte{0, 1}}))
	f.clk.RunAll()

	f.a.ClearReport()
	s := f.a.Snapshot()
	assert.Equal(t, "", s.Report)
	assert.Zero(t, s.HexSize)
	assert.NotNil(t, s.File, "clearing the report keeps the file")
	assert.False(t, f.store.Has(ReportKey("ws")))
}

func TestExportReport(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.a.ExportReport()
	assert.ErrorIs(t, err, ErrNoReport)

	f.gw.On("Generate", mock.Anything).Return("# Relatório", nil).Once()
	f.a.SetCode("x")
	require.NoError(t, f.a.AnalyzeCode(context.Background()))

	name, body, err := f.a.ExportReport()
	require.NoError(t, err)
	assert.Equal(t, "relatorio_seguranca.md", name)
	assert.Equal(t, "# Relatório", string(body))
}

func TestNew_RestoresReport(t *testing.T) {
	store := repository.NewMemoryReportStore()
	require.NoError(t, store.Set(context.Background(), ReportKey("ws"), "anterior"))

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	a := New(new(aitest.MockGateway), logger, Options{Workspace: "ws", Store: store, Scheduler: clock.NewManual()})
	assert.Equal(t, "anterior", a.Snapshot().Report)
}

func TestSetMode(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, ModeCode, f.a.Snapshot().Mode)
	require.NoError(t, f.a.SetMode(ModeFile))
	assert.Equal(t, ModeFile, f.a.Snapshot().Mode)
	assert.ErrorIs(t, f.a.SetMode("zip"), ErrUnknownMode)
}

func TestClose_AbandonsCycle(t *testing.T) {
	f := newFixture(t)
	f.gw.On("Generate", mock.Anything).Return("OK", nil).Once()
	f.a.SetCode("x")
	require.NoError(t, f.a.AnalyzeCode(context.Background()))

	require.NoError(t, f.a.SelectFile(context.Background(), &BytesSource{FileName: "b.txt", Data: []byte("b")}))
	f.a.Close()
	f.clk.RunAll()

	f.gw.AssertNumberOfCalls(t, "Generate", 1)
	assert.False(t, f.a.Snapshot().Loading)
}

// TestBusy_DuringFileCycle 文件周期未结束时拒绝代码审计与补丁
func TestBusy_DuringFileCycle(t *testing.T) {
	cases := []struct {
		name string
		run  func(f *fixture) error
	}{
		{"analyze code", func(f *fixture) error {
			f.a.SetCode("<manifest/>")
			return f.a.AnalyzeCode(context.Background())
		}},
		{"apply patch", func(f *fixture) error {
			return f.a.ApplyPatch(context.Background())
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			loadArchive(t, f)
			f.gw.On("Generate", aitest.PromptContains("Nome: next.txt")).Return("novo", nil).Once()

			require.NoError(t, f.a.SelectFile(context.Background(), &BytesSource{FileName: "next.txt", Data: []byte("n")}))
			assert.ErrorIs(t, tc.run(f), ErrBusy)

			f.clk.RunAll()
			s := f.a.Snapshot()
			assert.Equal(t, PhaseDone, s.Phase)
			assert.False(t, s.Loading)
			assert.False(t, s.PatchSuccess)
			assert.Equal(t, "novo", s.Report)
			require.Len(t, s.Files, 1)
			assert.Equal(t, "next.txt", s.ActivePath)
			f.gw.AssertNumberOfCalls(t, "Generate", 2)
		})
	}
}

// TestSelectFile_DropsPreviousFiles 新周期开始即清空上一轮的虚拟文件
func TestSelectFile_DropsPreviousFiles(t *testing.T) {
	f := newFixture(t)
	loadArchive(t, f)
	require.NotEmpty(t, f.a.Snapshot().Files)

	require.NoError(t, f.a.SelectFile(context.Background(), &BytesSource{FileName: "next.txt", Data: []byte("n")}))
	s := f.a.Snapshot()
	assert.Empty(t, s.Files)
	assert.Empty(t, s.ActivePath)
	assert.Zero(t, s.HexSize)
	assert.ErrorIs(t, f.a.EditVirtualFile("x"), ErrNoActiveFile)
}

// TestApplyPatch_DiscardedByNewCycle 补丁延迟期间换文件，旧补丁不再生效
func TestApplyPatch_DiscardedByNewCycle(t *testing.T) {
	f := newFixture(t)
	loadArchive(t, f)
	f.gw.On("Generate", aitest.PromptContains("Nome: next.txt")).Return("novo", nil).Once()

	require.NoError(t, f.a.ApplyPatch(context.Background()))
	require.NoError(t, f.a.SelectFile(context.Background(), &BytesSource{FileName: "next.txt", Data: []byte("n")}))
	f.clk.RunAll()

	s := f.a.Snapshot()
	assert.False(t, s.PatchSuccess)
	assert.False(t, s.Loading)
	assert.Equal(t, "novo", s.Report)
	f.gw.AssertNotCalled(t, "Generate", aitest.PromptContains("Conteúdo original:"))
	_, _, err := f.a.ModPackage()
	assert.ErrorIs(t, err, ErrNoPatch)
}

// blockingGateway 代码审计请求阻塞直到 ctx 取消，其余请求交给 Mock
type blockingGateway struct {
	aitest.MockGateway
	started chan struct{}
	err     chan error
}

func (g *blockingGateway) Generate(ctx context.Context, parts ...ai.Part) (string, error) {
	if strings.Contains(parts[0].Text, "Código:") {
		close(g.started)
		<-ctx.Done()
		g.err <- ctx.Err()
		return "antigo", nil
	}
	return g.MockGateway.Generate(ctx, parts...)
}

// TestSelectFile_CancelsCodeAudit 新周期取消进行中的代码审计并丢弃其结果
func TestSelectFile_CancelsCodeAudit(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	gw := &blockingGateway{started: make(chan struct{}), err: make(chan error, 1)}
	gw.On("Generate", aitest.PromptContains("Nome: next.txt")).Return("novo", nil).Once()
	clk := clock.NewManual()
	a := New(gw, logger, Options{Workspace: "ws", Scheduler: clk, Store: repository.NewMemoryReportStore()})

	a.SetCode("<manifest/>")
	done := make(chan error, 1)
	go func() { done <- a.AnalyzeCode(context.Background()) }()
	<-gw.started

	require.NoError(t, a.SelectFile(context.Background(), &BytesSource{FileName: "next.txt", Data: []byte("n")}))
	select {
	case err := <-gw.err:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("code audit context was not cancelled")
	}
	require.NoError(t, <-done)

	s := a.Snapshot()
	assert.NotEqual(t, "antigo", s.Report)
	assert.Equal(t, PhaseUploading, s.Phase)

	clk.RunAll()
	s = a.Snapshot()
	assert.Equal(t, "novo", s.Report)
	assert.False(t, s.Loading)
	gw.AssertExpectations(t)
}

// TestSetCode_Emits 修改代码即推送状态
func TestSetCode_Emits(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	var kinds []events.Kind
	sink := events.NotifierFunc(func(e events.Event) { kinds = append(kinds, e.Kind) })
	a := New(new(aitest.MockGateway), logger, Options{Workspace: "ws", Scheduler: clock.NewManual(), Notifier: sink})

	a.SetCode("<manifest/>")
	assert.Equal(t, []events.Kind{events.KindState}, kinds)
	assert.Equal(t, "<manifest/>", a.Snapshot().Code)
}

// TestSelectFile_BareExtensionName 无点文件名整体作为扩展名
func TestSelectFile_BareExtensionName(t *testing.T) {
	f := newFixture(t)
	f.gw.On("Generate", aitest.PromptContains("- Extensão: .apk")).Return("plano", nil).Once()

	require.NoError(t, f.a.SelectFile(context.Background(), &BytesSource{FileName: "apk", Data: []byte("PK")}))
	f.clk.RunAll()

	s := f.a.Snapshot()
	require.Len(t, s.Files, 3)
	assert.Equal(t, "java/com/target/app/Constants.java", s.ActivePath)
	f.gw.AssertExpectations(t)
}
