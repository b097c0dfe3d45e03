// Package clock 提供定时回调抽象，测试中可用虚拟时间驱动
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer 可取消的定时回调
type Timer interface {
	Stop() bool
}

// Scheduler 定时回调调度器
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Real 基于 time.AfterFunc 的调度器
type Real struct{}

// AfterFunc 到期后在独立 goroutine 中执行 f
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Manual 手动推进的虚拟时钟
// Advance 在调用方 goroutine 中同步执行到期回调
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	seq     uint64
	pending []*manualTimer
}

// NewManual 创建虚拟时钟
func NewManual() *Manual {
	return &Manual{}
}

type manualTimer struct {
	clock   *Manual
	due     time.Duration
	seq     uint64
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	for i, p := range t.clock.pending {
		if p == t {
			t.clock.pending = append(t.clock.pending[:i], t.clock.pending[i+1:]...)
			t.stopped = true
			return true
		}
	}
	return false
}

// AfterFunc 登记回调
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d < 0 {
		d = 0
	}
	m.seq++
	t := &manualTimer{clock: m, due: m.now + d, seq: m.seq, f: f}
	m.pending = append(m.pending, t)
	return t
}

// Now 当前虚拟时间（相对起点）
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending 尚未触发的回调数量
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Advance 推进虚拟时间 d，按到期顺序执行回调
// 回调中新登记且仍在窗口内的回调同样会被执行
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.popDue(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.due
		m.mu.Unlock()

		next.f()
	}
}

// RunAll 持续推进直到没有待触发回调
func (m *Manual) RunAll() {
	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.mu.Unlock()
			return
		}
		sort.Slice(m.pending, m.less)
		d := m.pending[0].due - m.now
		m.mu.Unlock()

		m.Advance(d)
	}
}

func (m *Manual) less(i, j int) bool {
	if m.pending[i].due == m.pending[j].due {
		return m.pending[i].seq < m.pending[j].seq
	}
	return m.pending[i].due < m.pending[j].due
}

// popDue 取出最早到期且不晚于 target 的回调，调用方持锁
func (m *Manual) popDue(target time.Duration) *manualTimer {
	if len(m.pending) == 0 {
		return nil
	}
	sort.Slice(m.pending, m.less)
	first := m.pending[0]
	if first.due > target {
		return nil
	}
	m.pending = m.pending[1:]
	return first
}
