// Package upload 模拟上传/处理进度
//
// 进度与实际传输字节无关，仅按文件大小推导出固定时长，
// 相同大小的文件总是得到相同的步数，便于测试。
package upload

import (
	"math"
	"time"
)

// Limits 模拟时长参数（毫秒）
type Limits struct {
	MinMs  float64
	MaxMs  float64
	TickMs float64
}

// DefaultLimits 1s ~ 5s，每 50ms 推进一次
func DefaultLimits() Limits {
	return Limits{MinMs: 1000, MaxMs: 5000, TickMs: 50}
}

func (l Limits) normalized() Limits {
	d := DefaultLimits()
	if l.MinMs <= 0 {
		l.MinMs = d.MinMs
	}
	if l.MaxMs < l.MinMs {
		l.MaxMs = l.MinMs
	}
	if l.TickMs <= 0 {
		l.TickMs = d.TickMs
	}
	return l
}

// Plan 一次模拟的时间计划
type Plan struct {
	DurationMs float64
	TickMs     float64
	Steps      float64 // DurationMs / TickMs，可能为小数
}

// NewPlan 时长 = clamp(size / 1_000_000, min, max)
func NewPlan(size int64, limits Limits) Plan {
	limits = limits.normalized()
	duration := math.Min(math.Max(float64(size)/1_000_000, limits.MinMs), limits.MaxMs)
	return Plan{
		DurationMs: duration,
		TickMs:     limits.TickMs,
		Steps:      duration / limits.TickMs,
	}
}

// Ticks 达到 100% 所需的推进次数
func (p Plan) Ticks() int {
	return int(math.Ceil(p.Steps))
}

// Interval 每次推进的间隔
func (p Plan) Interval() time.Duration {
	return time.Duration(p.TickMs * float64(time.Millisecond))
}

// Duration 总时长
func (p Plan) Duration() time.Duration {
	return time.Duration(p.DurationMs * float64(time.Millisecond))
}

// Simulation 进度状态，进度单调不减且最终恰为 100
type Simulation struct {
	plan     Plan
	step     int
	progress float64
}

// NewSimulation 创建模拟
func NewSimulation(plan Plan) *Simulation {
	return &Simulation{plan: plan}
}

// Plan 返回时间计划
func (s *Simulation) Plan() Plan {
	return s.plan
}

// Progress 当前进度 0..100
func (s *Simulation) Progress() float64 {
	return s.progress
}

// Done 是否已完成
func (s *Simulation) Done() bool {
	return float64(s.step) >= s.plan.Steps
}

// Tick 推进一步，返回新进度与是否完成
func (s *Simulation) Tick() (float64, bool) {
	if s.Done() {
		return s.progress, true
	}

	s.step++
	progress := math.Min(float64(s.step)/s.plan.Steps*100, 100)
	done := s.Done()
	if done {
		progress = 100
	}
	if progress > s.progress {
		s.progress = progress
	}
	return s.progress, done
}
