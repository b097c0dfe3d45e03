// Package events 组件状态变更通知
package events

import "time"

// Kind 事件类型
type Kind string

const (
	KindState    Kind = "state"    // 组件状态快照
	KindProgress Kind = "progress" // 上传模拟进度
	KindReport   Kind = "report"   // 报告/输出文本更新
	KindMessage  Kind = "message"  // 对话消息追加
)

// Event 状态变更事件
type Event struct {
	Workspace string      `json:"workspace"`
	Component string      `json:"component"`
	Kind      Kind        `json:"kind"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Notifier 事件接收方，实现不得阻塞调用方
type Notifier interface {
	Notify(Event)
}

// NotifierFunc 函数适配
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// Nop 丢弃所有事件
type Nop struct{}

func (Nop) Notify(Event) {}

// Multi 扇出到多个接收方
type Multi []Notifier

func (m Multi) Notify(e Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(e)
		}
	}
}

// Emitter 绑定工作区与组件的事件发送器
type Emitter struct {
	Workspace string
	Component string
	Notifier  Notifier
}

// Emit 发送事件
func (e Emitter) Emit(kind Kind, payload interface{}) {
	if e.Notifier == nil {
		return
	}
	e.Notifier.Notify(Event{
		Workspace: e.Workspace,
		Component: e.Component,
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	})
}
