// Package frida Frida 注入脚本生成
package frida

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/secaudit/secaudit-go/internal/ai"
	"github.com/secaudit/secaudit-go/internal/domain"
	"github.com/secaudit/secaudit-go/internal/events"
	"github.com/sirupsen/logrus"
)

// Component 事件中的组件名
const Component = "frida"

// ErrorScript 生成失败时的输出
const ErrorScript = "// Erro ao gerar o script. Verifique sua conexão ou tente novamente."

var (
	ErrCustomTargetRequired = errors.New("frida: custom hook requires class and method")
	ErrUnknownCategory      = errors.New("frida: unknown hook type")
	ErrBusy                 = errors.New("frida: generation already in flight")
)

// ParseHookCategory 解析注入类型
func ParseHookCategory(s string) (domain.HookCategory, error) {
	c := domain.HookCategory(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// Validate 本地校验，失败时不会发起远程调用
func Validate(req domain.HookRequest) error {
	if !req.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, req.Category)
	}
	if !req.Submittable() {
		return ErrCustomTargetRequired
	}
	return nil
}

// State 生成器状态
type State struct {
	Request domain.HookRequest `json:"request"`
	Script  string             `json:"script"`
	Loading bool               `json:"loading"`
}

// Generator 脚本生成器
type Generator struct {
	gw      ai.Gateway
	logger  *logrus.Logger
	emitter events.Emitter

	mu      sync.Mutex
	request domain.HookRequest
	script  string
	loading bool
}

// NewGenerator 创建生成器
func NewGenerator(gw ai.Gateway, logger *logrus.Logger, workspace string, notifier events.Notifier) *Generator {
	return &Generator{
		gw:      gw,
		logger:  logger,
		emitter: events.Emitter{Workspace: workspace, Component: Component, Notifier: notifier},
		request: domain.HookRequest{Category: domain.HookRootBypass},
	}
}

// Generate 生成脚本，返回提取后的代码
func (g *Generator) Generate(ctx context.Context, req domain.HookRequest) (string, error) {
	if err := Validate(req); err != nil {
		return "", err
	}

	g.mu.Lock()
	if g.loading {
		g.mu.Unlock()
		return "", ErrBusy
	}
	g.request = req
	g.script = ""
	g.loading = true
	g.mu.Unlock()
	g.publish()

	text, err := g.gw.Generate(ctx, ai.TextPart(BuildPrompt(req)))
	script := ExtractCodeBlock(text)
	if err != nil {
		g.logger.WithError(err).WithFields(logrus.Fields{
			"workspace": g.emitter.Workspace,
			"hook_type": req.Category,
		}).Error("Script generation failed")
		script = ErrorScript
	}

	g.mu.Lock()
	g.script = script
	g.loading = false
	g.mu.Unlock()
	g.publish()
	return script, nil
}

// State 当前状态
func (g *Generator) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{Request: g.request, Script: g.script, Loading: g.loading}
}

func (g *Generator) publish() {
	g.emitter.Emit(events.KindState, g.State())
}
