package executor

import (
	"errors"
	"fmt"
	"time"
)

// Status 任务在一个周期内的状态（对外导出）
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// IsFailure 是否计为执行失败
func (s Status) IsFailure() bool {
	return s == StatusFailed || s == StatusTimeout
}

var (
	// ErrTaskExecution 任务执行失败（单任务隔离，不影响兄弟任务）
	ErrTaskExecution = errors.New("任务执行失败")
	// ErrTaskTimeout 任务执行超时
	ErrTaskTimeout = errors.New("任务执行超时")
	// ErrDependencyFailed 上游任务失败，任务被跳过
	ErrDependencyFailed = errors.New("上游任务失败")
	// ErrExecutorClosed 执行器已关闭
	ErrExecutorClosed = errors.New("执行器已关闭")
	// ErrStalled 调度停滞：没有运行中的任务却仍有未完成任务
	ErrStalled = errors.New("调度停滞")
)

// TaskError 单任务执行失败（对外导出）
// 同时匹配ErrTaskExecution与底层错误；Panic非nil时表示任务体panic
type TaskError struct {
	Stage  string
	TaskID string
	Err    error
	Panic  interface{}
	Stack  []byte
}

func (e *TaskError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("%s: 阶段=%s, 任务=%s, panic=%v", ErrTaskExecution, e.Stage, e.TaskID, e.Panic)
	}
	return fmt.Sprintf("%s: 阶段=%s, 任务=%s, 错误=%v", ErrTaskExecution, e.Stage, e.TaskID, e.Err)
}

func (e *TaskError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTaskExecution}
	}
	return []error{ErrTaskExecution, e.Err}
}

// TaskResult Task执行结果（对外导出）
type TaskResult struct {
	TaskID string
	Stage  string
	Status Status
	Err    error
	Worker int // 0表示未派发到worker
	Start  time.Time
	End    time.Time
}

// Duration 执行时长
func (r TaskResult) Duration() time.Duration {
	if r.Start.IsZero() || r.End.IsZero() {
		return 0
	}
	return r.End.Sub(r.Start)
}

// CycleResult 单个图（阶段）的执行结果（对外导出）
type CycleResult struct {
	Stage          string
	Results        []TaskResult // 与图的节点下标一一对应
	MaxConcurrency int
	StartedAt      time.Time
	EndedAt        time.Time
}

// Result 按任务ID查找结果
func (c *CycleResult) Result(taskID string) (TaskResult, bool) {
	for _, r := range c.Results {
		if r.TaskID == taskID {
			return r, true
		}
	}
	return TaskResult{}, false
}

// Failures 失败或超时的任务
func (c *CycleResult) Failures() []TaskResult {
	var out []TaskResult
	for _, r := range c.Results {
		if r.Status.IsFailure() {
			out = append(out, r)
		}
	}
	return out
}

// Count 按状态统计
func (c *CycleResult) Count(status Status) int {
	n := 0
	for _, r := range c.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Err 合并所有任务错误，没有失败时为nil
func (c *CycleResult) Err() error {
	var errs []error
	for _, r := range c.Failures() {
		errs = append(errs, r.Err)
	}
	return errors.Join(errs...)
}

// PoolStats 执行器统计（对外导出）
type PoolStats struct {
	Workers   int   `json:"workers"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cycles    int64 `json:"cycles"`
	Running   bool  `json:"running"`
}
