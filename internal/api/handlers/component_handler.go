package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/secaudit/secaudit-go/internal/analyzer"
	"github.com/secaudit/secaudit-go/internal/chat"
	"github.com/secaudit/secaudit-go/internal/domain"
	"github.com/secaudit/secaudit-go/internal/frida"
	"github.com/secaudit/secaudit-go/internal/vision"
	"github.com/sirupsen/logrus"
)

// maxImageBytes 图片上传上限
const maxImageBytes = 20 << 20

func isBusy(err error) bool {
	return errors.Is(err, analyzer.ErrBusy) ||
		errors.Is(err, chat.ErrBusy) ||
		errors.Is(err, frida.ErrBusy) ||
		errors.Is(err, vision.ErrBusy)
}

// ComponentHandler 对话、脚本生成、图片审计
type ComponentHandler struct {
	logger *logrus.Logger
}

// NewComponentHandler 创建处理器
func NewComponentHandler(logger *logrus.Logger) *ComponentHandler {
	return &ComponentHandler{logger: logger}
}

// ChatRequest 用户消息
type ChatRequest struct {
	Text string `json:"text"`
}

// ChatResponse 对话记录
type ChatResponse struct {
	Messages []domain.Message `json:"messages"`
	Loading  bool             `json:"loading"`
}

// ImageRequest data URL 形式的图片
type ImageRequest struct {
	DataURL string `json:"data_url" binding:"required"`
}

// Transcript 获取对话记录
func (h *ComponentHandler) Transcript(c *gin.Context) {
	m := currentWorkspace(c).Chat
	c.JSON(http.StatusOK, ChatResponse{Messages: m.Transcript(), Loading: m.Loading()})
}

// SendMessage 发送消息，等待回复后返回完整记录
func (h *ComponentHandler) SendMessage(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Requisição inválida"})
		return
	}

	m := currentWorkspace(c).Chat
	if err := m.Send(c.Request.Context(), req.Text); err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Mensagem vazia"})
		case errors.Is(err, chat.ErrSessionNotReady):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Sessão de chat indisponível"})
		case isBusy(err):
			c.JSON(http.StatusConflict, gin.H{"error": "Aguarde a resposta anterior"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, ChatResponse{Messages: m.Transcript(), Loading: m.Loading()})
}

// FridaState 获取生成器状态
func (h *ComponentHandler) FridaState(c *gin.Context) {
	c.JSON(http.StatusOK, currentWorkspace(c).Frida.State())
}

// GenerateScript 生成 Frida 脚本
func (h *ComponentHandler) GenerateScript(c *gin.Context) {
	var req domain.HookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Requisição inválida"})
		return
	}

	g := currentWorkspace(c).Frida
	if _, err := g.Generate(c.Request.Context(), req); err != nil {
		switch {
		case errors.Is(err, frida.ErrUnknownCategory):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Tipo de hook inválido"})
		case errors.Is(err, frida.ErrCustomTargetRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Informe a classe e o método alvo"})
		case isBusy(err):
			c.JSON(http.StatusConflict, gin.H{"error": "Aguarde a geração em andamento"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, g.State())
}

// VisionState 获取图片审计状态
func (h *ComponentHandler) VisionState(c *gin.Context) {
	c.JSON(http.StatusOK, currentWorkspace(c).Vision.State())
}

// SetImage 接收 multipart "image" 或 JSON {data_url}
func (h *ComponentHandler) SetImage(c *gin.Context) {
	v := currentWorkspace(c).Vision

	var err error
	if file, ferr := c.FormFile("image"); ferr == nil {
		if file.Size > maxImageBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Imagem muito grande"})
			return
		}
		var data []byte
		data, err = readUpload(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Falha ao ler a imagem"})
			return
		}
		err = v.SetImageBytes(data, file.Header.Get("Content-Type"))
	} else {
		var req ImageRequest
		if berr := c.ShouldBindJSON(&req); berr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Nenhuma imagem enviada"})
			return
		}
		err = v.SetImage(req.DataURL)
	}

	if err != nil {
		h.logger.WithError(err).Warn("Rejected image")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Imagem inválida"})
		return
	}
	c.JSON(http.StatusOK, v.State())
}

// AnalyzeImage 执行图片审计
func (h *ComponentHandler) AnalyzeImage(c *gin.Context) {
	v := currentWorkspace(c).Vision
	if err := v.Analyze(c.Request.Context()); err != nil {
		switch {
		case errors.Is(err, vision.ErrNoImage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Nenhuma imagem selecionada"})
		case isBusy(err):
			c.JSON(http.StatusConflict, gin.H{"error": "Aguarde a análise em andamento"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, v.State())
}

func readUpload(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxImageBytes))
}
