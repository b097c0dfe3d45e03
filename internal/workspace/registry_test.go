package workspace

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/secaudit/secaudit-go/internal/ai/aitest"
	"github.com/secaudit/secaudit-go/internal/analyzer"
	"github.com/secaudit/secaudit-go/internal/chat"
	"github.com/secaudit/secaudit-go/internal/clock"
	"github.com/secaudit/secaudit-go/internal/repository"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, opts Options) (*Registry, *aitest.MockGateway) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	gw := new(aitest.MockGateway)
	gw.On("NewSession", chat.SystemInstruction).Return(new(aitest.MockSession))
	if opts.Scheduler == nil {
		opts.Scheduler = clock.NewManual()
	}
	return NewRegistry(gw, logger, opts), gw
}

func TestRegistry_CreateGetDelete(t *testing.T) {
	var counts []int
	r, _ := newRegistry(t, Options{OnChange: func(n int) { counts = append(counts, n) }})

	ws, err := r.Create()
	require.NoError(t, err)
	assert.Len(t, ws.ID, 36)
	assert.NotNil(t, ws.Analyzer)
	assert.NotNil(t, ws.Chat)
	assert.NotNil(t, ws.Frida)
	assert.NotNil(t, ws.Vision)

	got, err := r.Get(ws.ID)
	require.NoError(t, err)
	assert.Same(t, ws, got)
	assert.Equal(t, 1, r.Count())

	require.NoError(t, r.Delete(ws.ID))
	_, err = r.Get(ws.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.Delete(ws.ID), ErrNotFound)
	assert.Equal(t, []int{1, 0}, counts)
}

func TestRegistry_Limit(t *testing.T) {
	r, _ := newRegistry(t, Options{Max: 1})
	_, err := r.Create()
	require.NoError(t, err)
	_, err = r.Create()
	assert.ErrorIs(t, err, ErrLimit)
}

// TestRegistry_EnsureRestoresReport 测试同一工作区 ID 重建后恢复报告
func TestRegistry_EnsureRestoresReport(t *testing.T) {
	store := repository.NewMemoryReportStore()
	r, gw := newRegistry(t, Options{Store: store})
	gw.On("Generate", mock.Anything).Return("relatório", nil).Once()

	ws, err := r.Ensure(InboxID)
	require.NoError(t, err)
	again, err := r.Ensure(InboxID)
	require.NoError(t, err)
	assert.Same(t, ws, again)

	ws.Analyzer.SetCode("x")
	require.NoError(t, ws.Analyzer.AnalyzeCode(context.Background()))
	require.NoError(t, r.Delete(InboxID))

	restored, err := r.Ensure(InboxID)
	require.NoError(t, err)
	assert.Equal(t, "relatório", restored.Analyzer.Snapshot().Report)
	assert.True(t, store.Has(analyzer.ReportKey(InboxID)))
}

func TestRegistry_WorkspacesAreIndependent(t *testing.T) {
	r, gw := newRegistry(t, Options{})
	gw.On("Generate", mock.Anything).Return("A", nil).Once()

	a, _ := r.Create()
	b, _ := r.Create()
	a.Analyzer.SetCode("x")
	require.NoError(t, a.Analyzer.AnalyzeCode(context.Background()))

	assert.Equal(t, "A", a.Analyzer.Snapshot().Report)
	assert.Equal(t, "", b.Analyzer.Snapshot().Report)
}

func TestInboxHandler(t *testing.T) {
	clk := clock.NewManual()
	r, gw := newRegistry(t, Options{Scheduler: clk})
	gw.On("Generate", aitest.PromptContains("Nome: drop.apk")).Return("plano", nil).Once()

	path := filepath.Join(t.TempDir(), "drop.apk")
	require.NoError(t, os.WriteFile(path, []byte("PK\x03\x04"), 0644))

	require.NoError(t, InboxHandler(r)(context.Background(), path))
	clk.RunAll()

	ws, err := r.Get(InboxID)
	require.NoError(t, err)
	s := ws.Analyzer.Snapshot()
	assert.Equal(t, analyzer.ModeFile, s.Mode)
	assert.Equal(t, analyzer.PhaseDone, s.Phase)
	assert.Equal(t, "plano", s.Report)
	assert.Len(t, s.Files, 3)
	gw.AssertExpectations(t)
}

func TestInboxHandler_MissingFile(t *testing.T) {
	r, _ := newRegistry(t, Options{})
	err := InboxHandler(r)(context.Background(), filepath.Join(t.TempDir(), "gone.apk"))
	assert.Error(t, err)
}
