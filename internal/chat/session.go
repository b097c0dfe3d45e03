// Package chat 多轮安全对话
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/secaudit/secaudit-go/internal/ai"
	"github.com/secaudit/secaudit-go/internal/domain"
	"github.com/secaudit/secaudit-go/internal/events"
	"github.com/sirupsen/logrus"
)

// Component 事件中的组件名
const Component = "chat"

const (
	SystemInstruction = "Você é um especialista em segurança mobile (Android). Ajude o usuário a proteger seus aplicativos, entender engenharia reversa defensiva, criar scripts Frida para testes de penetração autorizados e implementar proteções como R8, SafetyNet/Play Integrity. Responda sempre em Português do Brasil."
	Greeting          = "Olá! Sou seu Assistente de Segurança Android. Como posso ajudar a proteger seu aplicativo hoje? Posso ajudar com ofuscação, detecção de root, ou scripts Frida defensivos."
	ErrorReply        = "Erro de comunicação com a IA."
)

var (
	ErrEmptyMessage    = errors.New("chat: message is empty")
	ErrSessionNotReady = errors.New("chat: session is not initialized")
	ErrBusy            = errors.New("chat: a reply is still pending")
)

// Manager 会话管理，消息严格按调用顺序追加
type Manager struct {
	session ai.Session
	logger  *logrus.Logger
	emitter events.Emitter

	mu         sync.Mutex
	transcript []domain.Message
	loading    bool
}

// New 创建会话并写入欢迎语
func New(gw ai.Gateway, logger *logrus.Logger, workspace string, notifier events.Notifier) *Manager {
	return &Manager{
		session:    gw.NewSession(SystemInstruction),
		logger:     logger,
		emitter:    events.Emitter{Workspace: workspace, Component: Component, Notifier: notifier},
		transcript: []domain.Message{{Role: domain.RoleModel, Text: Greeting}},
	}
}

// Send 发送一轮消息并等待回复
// 空白输入直接拒绝，不追加消息也不切换 loading
func (m *Manager) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return ErrSessionNotReady
	}
	if m.loading {
		m.mu.Unlock()
		return ErrBusy
	}
	user := domain.Message{Role: domain.RoleUser, Text: text}
	m.transcript = append(m.transcript, user)
	m.loading = true
	session := m.session
	m.mu.Unlock()
	m.emitter.Emit(events.KindMessage, user)

	reply, err := session.Send(ctx, text)
	if err != nil {
		m.logger.WithError(err).WithField("workspace", m.emitter.Workspace).Error("Chat turn failed")
		reply = ErrorReply
	}

	model := domain.Message{Role: domain.RoleModel, Text: reply}
	m.mu.Lock()
	m.transcript = append(m.transcript, model)
	m.loading = false
	m.mu.Unlock()
	m.emitter.Emit(events.KindMessage, model)
	return nil
}

// Transcript 对话记录副本
func (m *Manager) Transcript() []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Message(nil), m.transcript...)
}

// Loading 是否在等待回复
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}
