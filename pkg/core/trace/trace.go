package trace

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/LENAX/frame-scheduler/pkg/core/dag"
)

// ErrTraceOverflow 记录器缓冲区溢出，轨迹不完整；不影响调度正确性
var ErrTraceOverflow = errors.New("执行轨迹缓冲区溢出")

// Span 单个任务的执行区间（对外导出）
type Span struct {
	Stage  string    `json:"stage"`
	TaskID string    `json:"task_id"`
	Worker int       `json:"worker"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Status string    `json:"status"`
	Error  string    `json:"error,omitempty"`
}

// Duration 执行耗时，未结束时为0
func (s Span) Duration() time.Duration {
	if s.End.IsZero() || s.Start.IsZero() {
		return 0
	}
	return s.End.Sub(s.Start)
}

// ShapeEdge 图形状中的边
type ShapeEdge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Kind     string `json:"kind"`
	Resource string `json:"resource,omitempty"`
}

// GraphShape 依赖图形状，供外部调试查看器渲染
type GraphShape struct {
	Stage string      `json:"stage"`
	Nodes []string    `json:"nodes"`
	Edges []ShapeEdge `json:"edges"`
}

// ShapeOf 从依赖图提取形状
func ShapeOf(g *dag.Graph) GraphShape {
	shape := GraphShape{Stage: g.Stage(), Nodes: g.IDs(), Edges: make([]ShapeEdge, 0)}
	for _, e := range g.Edges() {
		shape.Edges = append(shape.Edges, ShapeEdge{
			From:     g.Node(e.From).ID(),
			To:       g.Node(e.To).ID(),
			Kind:     string(e.Kind),
			Resource: string(e.Resource),
		})
	}
	return shape
}

// ExecutionTrace 一个周期的执行轨迹（对外导出）
// Finish之后不可变；Incomplete为true时表示有事件因溢出被丢弃
type ExecutionTrace struct {
	CycleID    string       `json:"cycle_id"`
	Frame      uint64       `json:"frame"`
	StartedAt  time.Time    `json:"started_at"`
	EndedAt    time.Time    `json:"ended_at"`
	Stages     []GraphShape `json:"stages"`
	Spans      []Span       `json:"spans"`
	Incomplete bool         `json:"incomplete"`
	Dropped    int64        `json:"dropped"`
}

// Err 轨迹不完整时返回ErrTraceOverflow
func (t *ExecutionTrace) Err() error {
	if t == nil || !t.Incomplete {
		return nil
	}
	return fmt.Errorf("%w: 丢弃 %d 个事件", ErrTraceOverflow, t.Dropped)
}

// Duration 周期耗时
func (t *ExecutionTrace) Duration() time.Duration {
	return t.EndedAt.Sub(t.StartedAt)
}

// Span 按任务ID查找执行区间
func (t *ExecutionTrace) Span(taskID string) (Span, bool) {
	for _, s := range t.Spans {
		if s.TaskID == taskID {
			return s, true
		}
	}
	return Span{}, false
}

// Order 按开始时间返回任务ID；开始时间相同时按ID
func (t *ExecutionTrace) Order() []string {
	spans := append([]Span(nil), t.Spans...)
	sortSpans(spans)
	ids := make([]string, len(spans))
	for i, s := range spans {
		ids[i] = s.TaskID
	}
	return ids
}

// Overlaps 判断两个任务的执行区间是否重叠
func (t *ExecutionTrace) Overlaps(a, b string) bool {
	sa, ok1 := t.Span(a)
	sb, ok2 := t.Span(b)
	if !ok1 || !ok2 || sa.End.IsZero() || sb.End.IsZero() {
		return false
	}
	return sa.Start.Before(sb.End) && sb.Start.Before(sa.End)
}

// Count 按状态统计任务数量
func (t *ExecutionTrace) Count(status string) int {
	n := 0
	for _, s := range t.Spans {
		if s.Status == status {
			n++
		}
	}
	return n
}

// TaskCount 轨迹中的任务总数（来自图形状）
func (t *ExecutionTrace) TaskCount() int {
	n := 0
	for _, st := range t.Stages {
		n += len(st.Nodes)
	}
	return n
}

func sortSpans(spans []Span) {
	sort.SliceStable(spans, func(i, j int) bool {
		if !spans[i].Start.Equal(spans[j].Start) {
			return spans[i].Start.Before(spans[j].Start)
		}
		return spans[i].TaskID < spans[j].TaskID
	})
}
