package trace

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultBufferSize 默认事件缓冲区大小
const DefaultBufferSize = 1024

var (
	// ErrRecorderActive 上一个周期尚未Finish
	ErrRecorderActive = errors.New("记录器已有进行中的周期")
	// ErrRecorderIdle 没有进行中的周期
	ErrRecorderIdle = errors.New("记录器没有进行中的周期")
)

// RecorderOption 记录器选项
type RecorderOption func(*Recorder)

// WithBufferSize 事件缓冲区大小，<=0时使用默认值
func WithBufferSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.bufferSize = n
		}
	}
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// Recorder 调试轨迹记录器（对外导出）
// Record只做一次非阻塞的channel发送，由后台goroutine汇总；缓冲区满时丢弃事件并标记轨迹不完整
type Recorder struct {
	mu         sync.RWMutex
	bufferSize int
	logger     *zap.Logger
	active     *session
}

type session struct {
	trace   *ExecutionTrace
	events  chan Event
	done    chan struct{}
	dropped atomic.Int64
}

// NewRecorder 创建记录器（对外导出）
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{bufferSize: DefaultBufferSize, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Begin 开始记录一个周期
func (r *Recorder) Begin(cycleID string, frame uint64, shapes []GraphShape) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return ErrRecorderActive
	}
	s := &session{
		trace: &ExecutionTrace{
			CycleID:   cycleID,
			Frame:     frame,
			StartedAt: time.Now(),
			Stages:    append([]GraphShape(nil), shapes...),
			Spans:     make([]Span, 0),
		},
		events: make(chan Event, r.bufferSize),
		done:   make(chan struct{}),
	}
	r.active = s
	go s.drain()
	return nil
}

// Record 记录事件（实现Sink接口），永不阻塞
func (r *Recorder) Record(event Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.active
	if s == nil {
		return
	}
	select {
	case s.events <- event:
	default:
		s.dropped.Add(1)
	}
}

// Finish 结束当前周期并返回最终轨迹（对外导出）
func (r *Recorder) Finish() (*ExecutionTrace, error) {
	r.mu.Lock()
	s := r.active
	if s == nil {
		r.mu.Unlock()
		return nil, ErrRecorderIdle
	}
	r.active = nil
	close(s.events)
	r.mu.Unlock()

	<-s.done
	t := s.trace
	t.EndedAt = time.Now()
	t.Dropped = s.dropped.Load()
	if t.Dropped > 0 {
		t.Incomplete = true
		r.logger.Warn("⚠️ 执行轨迹不完整",
			zap.String("cycle", t.CycleID),
			zap.Int64("dropped", t.Dropped))
	}
	sortSpans(t.Spans)
	return t, nil
}

// Active 是否有进行中的周期
func (r *Recorder) Active() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active != nil
}

func (s *session) drain() {
	defer close(s.done)
	open := make(map[string]int)
	key := func(e Event) string { return e.Stage + "/" + e.TaskID }

	for e := range s.events {
		switch e.Kind {
		case EventTaskStarted:
			open[key(e)] = len(s.trace.Spans)
			s.trace.Spans = append(s.trace.Spans, Span{
				Stage:  e.Stage,
				TaskID: e.TaskID,
				Worker: e.Worker,
				Start:  e.At,
				Status: e.Status,
			})
		case EventTaskFinished:
			if i, ok := open[key(e)]; ok {
				delete(open, key(e))
				sp := &s.trace.Spans[i]
				sp.End = e.At
				sp.Status = e.Status
				sp.Error = e.Error
				continue
			}
			// 未开始即结束（跳过、取消），或开始事件已被丢弃
			s.trace.Spans = append(s.trace.Spans, Span{
				Stage:  e.Stage,
				TaskID: e.TaskID,
				Worker: e.Worker,
				Start:  e.At,
				End:    e.At,
				Status: e.Status,
				Error:  e.Error,
			})
		}
	}
}
