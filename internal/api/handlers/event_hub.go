package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/secaudit/secaudit-go/internal/events"
	"github.com/sirupsen/logrus"
)

const writeWait = 5 * time.Second

// EventHub 把组件事件推送给订阅同一工作区的 websocket 客户端
type EventHub struct {
	logger      *logrus.Logger
	upgrader    websocket.Upgrader
	clients     map[string]map[*websocket.Conn]struct{}
	clientMutex sync.RWMutex
	broadcast   chan events.Event
	onCount     func(int)
}

// NewEventHub 创建事件推送中心
func NewEventHub(logger *logrus.Logger) *EventHub {
	return &EventHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 认证由 token 中间件负责
			},
		},
		clients:   make(map[string]map[*websocket.Conn]struct{}),
		broadcast: make(chan events.Event, 256),
	}
}

// OnClientsChange 连接数变化回调
func (h *EventHub) OnClientsChange(fn func(int)) {
	h.onCount = fn
}

// Start 启动广播服务，ctx 结束时断开所有客户端
func (h *EventHub) Start(ctx context.Context) {
	go h.runBroadcaster(ctx)
}

func (h *EventHub) runBroadcaster(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case e := <-h.broadcast:
			h.deliver(e)
		}
	}
}

func (h *EventHub) deliver(e events.Event) {
	h.clientMutex.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients[e.Workspace]))
	for conn := range h.clients[e.Workspace] {
		conns = append(conns, conn)
	}
	h.clientMutex.RUnlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(e); err != nil {
			h.logger.WithError(err).Warn("Failed to write to WebSocket client")
			conn.Close()
			h.remove(e.Workspace, conn)
		}
	}
}

// Notify 非阻塞投递，队列满时丢弃
func (h *EventHub) Notify(e events.Event) {
	select {
	case h.broadcast <- e:
	default:
		h.logger.WithFields(logrus.Fields{
			"workspace": e.Workspace,
			"component": e.Component,
			"kind":      e.Kind,
		}).Warn("Broadcast channel is full, dropping event")
	}
}

// HandleWebSocket 订阅 :id 工作区的事件
func (h *EventHub) HandleWebSocket(c *gin.Context) {
	workspaceID := c.Param("id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}
	defer conn.Close()

	h.add(workspaceID, conn)
	h.logger.WithField("workspace", workspaceID).Info("WebSocket client connected")

	// 客户端不发送业务消息，读循环只用于感知断开
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).Warn("WebSocket error")
			}
			break
		}
	}

	h.remove(workspaceID, conn)
	h.logger.WithField("workspace", workspaceID).Info("WebSocket client disconnected")
}

// Count 当前连接数
func (h *EventHub) Count() int {
	h.clientMutex.RLock()
	defer h.clientMutex.RUnlock()
	return h.countLocked()
}

func (h *EventHub) countLocked() int {
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

func (h *EventHub) add(workspaceID string, conn *websocket.Conn) {
	h.clientMutex.Lock()
	set, ok := h.clients[workspaceID]
	if !ok {
		set = make(map[*websocket.Conn]struct{})
		h.clients[workspaceID] = set
	}
	set[conn] = struct{}{}
	n := h.countLocked()
	h.clientMutex.Unlock()
	h.changed(n)
}

func (h *EventHub) remove(workspaceID string, conn *websocket.Conn) {
	h.clientMutex.Lock()
	set, ok := h.clients[workspaceID]
	if !ok {
		h.clientMutex.Unlock()
		return
	}
	if _, ok := set[conn]; !ok {
		h.clientMutex.Unlock()
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.clients, workspaceID)
	}
	n := h.countLocked()
	h.clientMutex.Unlock()
	h.changed(n)
}

func (h *EventHub) closeAll() {
	h.clientMutex.Lock()
	for _, set := range h.clients {
		for conn := range set {
			conn.Close()
		}
	}
	h.clients = make(map[string]map[*websocket.Conn]struct{})
	h.clientMutex.Unlock()
	h.changed(0)
}

func (h *EventHub) changed(n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
}
