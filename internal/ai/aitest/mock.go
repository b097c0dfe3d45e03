// Package aitest 模型网关测试替身
package aitest

import (
	"context"
	"strings"

	"github.com/secaudit/secaudit-go/internal/ai"
	"github.com/stretchr/testify/mock"
)

// MockGateway Mock 模型网关
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Generate(ctx context.Context, parts ...ai.Part) (string, error) {
	args := m.Called(parts)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) NewSession(systemInstruction string) ai.Session {
	args := m.Called(systemInstruction)
	if s, ok := args.Get(0).(ai.Session); ok {
		return s
	}
	return nil
}

// MockSession Mock 会话
type MockSession struct {
	mock.Mock
}

func (m *MockSession) Send(ctx context.Context, text string) (string, error) {
	args := m.Called(text)
	return args.String(0), args.Error(1)
}

// PromptContains 匹配第一个文本片段包含 substr 的请求
func PromptContains(substr string) interface{} {
	return mock.MatchedBy(func(parts []ai.Part) bool {
		for _, p := range parts {
			if !p.IsInline() {
				return strings.Contains(p.Text, substr)
			}
		}
		return false
	})
}
