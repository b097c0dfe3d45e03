package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/secaudit/secaudit-go/internal/analyzer"
	"github.com/sirupsen/logrus"
)

// AnalyzerHandler 分析编排器接口
type AnalyzerHandler struct {
	logger     *logrus.Logger
	stagingDir string
	maxUpload  int64 // 字节
}

// NewAnalyzerHandler 创建处理器，上传文件暂存在 stagingDir/<workspace>/ 下
func NewAnalyzerHandler(logger *logrus.Logger, stagingDir string, maxUploadMB int64) *AnalyzerHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 500
	}
	return &AnalyzerHandler{
		logger:     logger,
		stagingDir: stagingDir,
		maxUpload:  maxUploadMB * 1024 * 1024,
	}
}

// ModeRequest 切换模式
type ModeRequest struct {
	Mode analyzer.Mode `json:"mode" binding:"required"`
}

// CodeRequest 代码审计
type CodeRequest struct {
	Code string `json:"code"`
}

// ActiveFileRequest 切换虚拟文件
type ActiveFileRequest struct {
	Path string `json:"path" binding:"required"`
}

// ContentRequest 编辑虚拟文件
type ContentRequest struct {
	Content string `json:"content"`
}

// Snapshot 获取状态
func (h *AnalyzerHandler) Snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, currentWorkspace(c).Analyzer.Snapshot())
}

// SetMode 切换输入模式
func (h *AnalyzerHandler) SetMode(c *gin.Context) {
	var req ModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Modo inválido"})
		return
	}
	a := currentWorkspace(c).Analyzer
	if err := a.SetMode(req.Mode); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Modo inválido"})
		return
	}
	c.JSON(http.StatusOK, a.Snapshot())
}

// AnalyzeCode 提交代码审计，等待模型返回
func (h *AnalyzerHandler) AnalyzeCode(c *gin.Context) {
	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Requisição inválida"})
		return
	}

	a := currentWorkspace(c).Analyzer
	a.SetCode(req.Code)
	if err := a.AnalyzeCode(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a.Snapshot())
}

// UploadFile 接收 multipart "file"，暂存后开始分析周期
func (h *AnalyzerHandler) UploadFile(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		h.logger.WithError(err).Warn("Failed to get uploaded file")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nenhum arquivo enviado"})
		return
	}

	if file.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("Arquivo excede o limite de %d MB", h.maxUpload/(1024*1024)),
		})
		return
	}

	ws := currentWorkspace(c)
	dir := filepath.Join(h.stagingDir, ws.ID)
	// 新上传替换上一次的暂存文件
	if err := os.RemoveAll(dir); err != nil {
		h.logger.WithError(err).Warn("Failed to clean staging directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		h.logger.WithError(err).Error("Failed to create staging directory")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Falha ao preparar o upload"})
		return
	}

	destPath := filepath.Join(dir, uuid.New().String()+"-"+filepath.Base(file.Filename))
	if err := saveUpload(file, destPath); err != nil {
		h.logger.WithError(err).Error("Failed to stage uploaded file")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Falha ao salvar o arquivo"})
		return
	}

	src, err := analyzer.NewFileSource(destPath, filepath.Base(file.Filename), file.Header.Get("Content-Type"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Falha ao salvar o arquivo"})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"workspace": ws.ID,
		"file":      src.Name(),
		"size":      src.Size(),
	}).Info("File staged for analysis")

	a := ws.Analyzer
	if err := a.SelectFile(c.Request.Context(), src); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": analyzer.ProbeError, "state": a.Snapshot()})
		return
	}
	c.JSON(http.StatusAccepted, a.Snapshot())
}

func saveUpload(file *multipart.FileHeader, destPath string) error {
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// ClearFile 移除文件及派生状态
func (h *AnalyzerHandler) ClearFile(c *gin.Context) {
	ws := currentWorkspace(c)
	ws.Analyzer.ClearFile()
	if err := os.RemoveAll(filepath.Join(h.stagingDir, ws.ID)); err != nil {
		h.logger.WithError(err).Warn("Failed to clean staging directory")
	}
	c.JSON(http.StatusOK, ws.Analyzer.Snapshot())
}

// DismissError 关闭文件错误提示
func (h *AnalyzerHandler) DismissError(c *gin.Context) {
	a := currentWorkspace(c).Analyzer
	a.DismissError()
	c.JSON(http.StatusOK, a.Snapshot())
}

// ClearReport 清除报告
func (h *AnalyzerHandler) ClearReport(c *gin.Context) {
	a := currentWorkspace(c).Analyzer
	a.ClearReport()
	c.JSON(http.StatusOK, a.Snapshot())
}

// ExportReport 下载 Markdown 报告
func (h *AnalyzerHandler) ExportReport(c *gin.Context) {
	name, body, err := currentWorkspace(c).Analyzer.ExportReport()
	if err != nil {
		respondError(c, err)
		return
	}
	attachment(c, name, "text/markdown; charset=utf-8", body)
}

// HexRows 十六进制视图
func (h *AnalyzerHandler) HexRows(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rows": currentWorkspace(c).Analyzer.HexRows()})
}

// SelectVirtualFile 切换当前虚拟文件
func (h *AnalyzerHandler) SelectVirtualFile(c *gin.Context) {
	var req ActiveFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Caminho obrigatório"})
		return
	}
	a := currentWorkspace(c).Analyzer
	if err := a.SelectVirtualFile(req.Path); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a.Snapshot())
}

// EditVirtualFile 编辑当前虚拟文件
func (h *AnalyzerHandler) EditVirtualFile(c *gin.Context) {
	var req ContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Requisição inválida"})
		return
	}
	a := currentWorkspace(c).Analyzer
	if err := a.EditVirtualFile(req.Content); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a.Snapshot())
}

// ApplyPatch 开始补丁模拟
func (h *AnalyzerHandler) ApplyPatch(c *gin.Context) {
	a := currentWorkspace(c).Analyzer
	if err := a.ApplyPatch(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, a.Snapshot())
}

// ModPackage 下载修改后的占位包
func (h *AnalyzerHandler) ModPackage(c *gin.Context) {
	name, body, err := currentWorkspace(c).Analyzer.ModPackage()
	if err != nil {
		respondError(c, err)
		return
	}
	attachment(c, name, "application/vnd.android.package-archive", body)
}

func attachment(c *gin.Context, name, contentType string, body []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, contentType, body)
}

// respondError 本地校验错误映射为 HTTP 状态
func respondError(c *gin.Context, err error) {
	status := http.StatusBadRequest
	msg := err.Error()
	switch {
	case errors.Is(err, analyzer.ErrEmptyCode):
		msg = "Cole algum código para analisar"
	case errors.Is(err, analyzer.ErrNoActiveFile):
		msg = "Nenhum arquivo ativo"
	case errors.Is(err, analyzer.ErrUnknownVirtualFile):
		status, msg = http.StatusNotFound, "Arquivo não encontrado"
	case errors.Is(err, analyzer.ErrNoPatch):
		status, msg = http.StatusConflict, "Nenhum patch aplicado"
	case errors.Is(err, analyzer.ErrNoReport):
		status, msg = http.StatusNotFound, "Nenhum relatório disponível"
	case isBusy(err):
		status, msg = http.StatusConflict, "Aguarde a requisição em andamento"
	}
	c.JSON(status, gin.H{"error": msg})
}
