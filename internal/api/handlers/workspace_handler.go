package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/secaudit/secaudit-go/internal/workspace"
	"github.com/sirupsen/logrus"
)

const workspaceKey = "workspace"

// WorkspaceHandler 工作区管理
type WorkspaceHandler struct {
	registry *workspace.Registry
	logger   *logrus.Logger
}

// NewWorkspaceHandler 创建工作区处理器
func NewWorkspaceHandler(registry *workspace.Registry, logger *logrus.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{registry: registry, logger: logger}
}

// CreateWorkspaceRequest 创建请求；携带 id 时复用或重建该工作区（页面刷新后恢复）
type CreateWorkspaceRequest struct {
	ID string `json:"id"`
}

// WorkspaceResponse 工作区信息
type WorkspaceResponse struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
}

// Create 创建工作区
func (h *WorkspaceHandler) Create(c *gin.Context) {
	var req CreateWorkspaceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Requisição inválida"})
			return
		}
	}

	var (
		ws  *workspace.Workspace
		err error
	)
	if req.ID != "" {
		ws, err = h.registry.Ensure(req.ID)
	} else {
		ws, err = h.registry.Create()
	}
	if errors.Is(err, workspace.ErrLimit) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Limite de workspaces atingido"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to create workspace")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Falha ao criar workspace"})
		return
	}

	c.JSON(http.StatusCreated, WorkspaceResponse{ID: ws.ID, CreatedAt: ws.CreatedAt.Unix()})
}

// Delete 删除工作区
func (h *WorkspaceHandler) Delete(c *gin.Context) {
	if err := h.registry.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Workspace não encontrado"})
		return
	}
	c.Status(http.StatusNoContent)
}

// RequireWorkspace 解析 :id 并把工作区放入上下文
func RequireWorkspace(registry *workspace.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := registry.Get(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Workspace não encontrado"})
			c.Abort()
			return
		}
		c.Set(workspaceKey, ws)
		c.Next()
	}
}

func currentWorkspace(c *gin.Context) *workspace.Workspace {
	return c.MustGet(workspaceKey).(*workspace.Workspace)
}
