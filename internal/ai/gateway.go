package ai

import (
	"context"
	"errors"
	"time"
)

// ErrMissingAPIKey 未配置模型凭据
var ErrMissingAPIKey = errors.New("ai: GEMINI_API_KEY is not set")

// Part 多模态请求的一个片段：文本或内联数据
type Part struct {
	Text     string
	MIMEType string
	Data     []byte
}

// TextPart 构造文本片段
func TextPart(text string) Part {
	return Part{Text: text}
}

// InlinePart 构造内联数据片段（如截图）
func InlinePart(mimeType string, data []byte) Part {
	return Part{MIMEType: mimeType, Data: data}
}

// IsInline 是否为内联数据片段
func (p Part) IsInline() bool {
	return p.Data != nil
}

// Gateway 模型网关
// 所有分析、对话与脚本生成都委托给它
type Gateway interface {
	// Generate 单次生成，返回响应文本
	Generate(ctx context.Context, parts ...Part) (string, error)

	// NewSession 创建带系统指令的多轮会话
	NewSession(systemInstruction string) Session
}

// Session 多轮会话句柄
type Session interface {
	Send(ctx context.Context, text string) (string, error)
}

// Observer 请求观察者（用于指标采集）
type Observer interface {
	ObserveModelRequest(operation string, duration time.Duration, err error)
}
