// Package trace 记录每个周期的任务执行时间线，周期结束后对外暴露只读的执行轨迹
package trace

import "time"

// EventKind 事件类型
type EventKind string

const (
	// EventTaskStarted 任务开始执行
	EventTaskStarted EventKind = "task.started"
	// EventTaskFinished 任务结束（包括失败、超时、跳过、取消）
	EventTaskFinished EventKind = "task.finished"
)

// Event 执行器发出的单个事件（对外导出）
type Event struct {
	Kind   EventKind
	Stage  string
	TaskID string
	Worker int
	At     time.Time
	Status string
	Error  string
}

// Sink 事件接收方接口（对外导出）
// Record不能阻塞、不能panic、不返回错误，调用方可以假设它是空操作
type Sink interface {
	Record(event Event)
}

// NopSink 丢弃所有事件
type NopSink struct{}

func (NopSink) Record(Event) {}

// SafeRecord 记录事件，吞掉Sink内部的panic
func SafeRecord(s Sink, event Event) {
	if s == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	s.Record(event)
}
