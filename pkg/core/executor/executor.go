// Package executor 在固定大小的worker池上执行依赖图，派发前做资源冲突准入检查
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/LENAX/frame-scheduler/pkg/core/dag"
	"github.com/LENAX/frame-scheduler/pkg/core/resource"
	"github.com/LENAX/frame-scheduler/pkg/core/task"
	"github.com/LENAX/frame-scheduler/pkg/core/trace"
)

const maxWorkers = 1024 // worker数量上限

// Env 单次执行的周期环境（对外导出）
type Env struct {
	CycleID string
	Frame   uint64
	Delta   time.Duration
	Bank    *resource.Bank
	Sink    trace.Sink
}

// Option 执行器选项
type Option func(*Executor)

// WithDefaultTimeout 任务未设置超时时使用的默认超时，0表示不限制
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Executor) { e.defaultTimeout = d }
}

// WithSkipDependentsOnFailure 任务失败后跳过其所有下游任务
// 默认下游任务照常执行，失败只被记录
func WithSkipDependentsOnFailure() Option {
	return func(e *Executor) { e.skipDependents = true }
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// Executor 执行器（对外导出）
// Run在调用方goroutine中做协调（就绪队列、入度、锁表），任务体在worker goroutine中运行到结束
type Executor struct {
	workers        int
	defaultTimeout time.Duration
	skipDependents bool
	logger         *zap.Logger

	jobs  chan job
	wg    sync.WaitGroup
	runMu sync.Mutex

	mu     sync.RWMutex
	closed bool

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	cycles    atomic.Int64
}

type job struct {
	index   int
	stage   string
	task    task.Task
	env     Env
	parent  context.Context
	timeout time.Duration
	done    chan<- completion
}

type completion struct {
	index  int
	worker int
	status Status
	err    error
	start  time.Time
	end    time.Time
}

// NewExecutor 创建执行器并启动worker（对外导出）
// workers<=0时使用CPU核数
func NewExecutor(workers int, opts ...Option) (*Executor, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > maxWorkers {
		return nil, fmt.Errorf("worker数量不能超过 %d", maxWorkers)
	}

	e := &Executor{
		workers: workers,
		logger:  zap.NewNop(),
		jobs:    make(chan job, workers),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.wg.Add(workers)
	for i := 1; i <= workers; i++ {
		go e.worker(i)
	}
	e.logger.Info("✅ 执行器已启动", zap.Int("workers", workers))
	return e, nil
}

// Workers worker数量
func (e *Executor) Workers() int { return e.workers }

// Stats 执行器统计
func (e *Executor) Stats() PoolStats {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	return PoolStats{
		Workers:   e.workers,
		Active:    e.active.Load(),
		Completed: e.completed.Load(),
		Failed:    e.failed.Load(),
		Cycles:    e.cycles.Load(),
		Running:   !closed,
	}
}

// Shutdown 关闭执行器，等待进行中的Run与所有worker退出
func (e *Executor) Shutdown() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.runMu.Lock()
	close(e.jobs)
	e.runMu.Unlock()
	e.wg.Wait()

	e.logger.Info("✅ 执行器已关闭")
	return nil
}

// Run 执行依赖图（对外导出）
// 就绪队列以入度为0的节点初始化；只有当没有运行中的任务持有冲突锁时才派发任务，
// 被锁挡住的任务留在队列原位等待。任务失败只记录，不中止兄弟任务，也不重试。
// ctx取消后尚未派发的任务标记为Cancelled，已派发的任务运行到结束，此时同时返回ctx.Err()。
func (e *Executor) Run(ctx context.Context, g *dag.Graph, env Env) (*CycleResult, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, ErrExecutorClosed
	}

	e.runMu.Lock()
	defer e.runMu.Unlock()
	e.mu.RLock()
	closed = e.closed
	e.mu.RUnlock()
	if closed {
		return nil, ErrExecutorClosed
	}

	if env.Sink == nil {
		env.Sink = trace.NopSink{}
	}
	if env.Bank == nil {
		env.Bank = resource.NewBank()
	}
	e.cycles.Add(1)

	r := newRun(e, ctx, g, env)
	return r.execute()
}

// run 单次执行的协调状态，只在协调goroutine中访问
type run struct {
	e        *Executor
	ctx      context.Context
	g        *dag.Graph
	env      Env
	result   *CycleResult
	inDegree []int
	accesses [][]resource.Access
	poisoned []bool
	ready    []int
	locks    *resource.LockTable
	doneCh   chan completion
	running  int
	pending  int
}

func newRun(e *Executor, ctx context.Context, g *dag.Graph, env Env) *run {
	n := g.Len()
	r := &run{
		e:        e,
		ctx:      ctx,
		g:        g,
		env:      env,
		inDegree: g.InDegrees(),
		accesses: make([][]resource.Access, n),
		poisoned: make([]bool, n),
		locks:    resource.NewLockTable(),
		doneCh:   make(chan completion, n),
		pending:  n,
		result: &CycleResult{
			Stage:     g.Stage(),
			Results:   make([]TaskResult, n),
			StartedAt: time.Now(),
		},
	}
	for i := 0; i < n; i++ {
		t := g.Task(i)
		r.accesses[i] = task.AccessesOf(t)
		r.result.Results[i] = TaskResult{TaskID: t.ID(), Stage: g.Stage(), Status: StatusPending}
		if r.inDegree[i] == 0 {
			r.ready = append(r.ready, i)
		}
	}
	return r
}

func (r *run) execute() (*CycleResult, error) {
	logger := r.e.logger.With(zap.String("cycle", r.env.CycleID), zap.String("stage", r.g.Stage()))
	logger.Debug("🚀 开始执行", zap.Int("tasks", r.g.Len()))

	ctxDone := r.ctx.Done()
	cancelled := false
	for r.pending > 0 {
		if !cancelled && r.ctx.Err() != nil {
			cancelled = true
			ctxDone = nil
			logger.Warn("⚠️ 周期被取消，未派发的任务将被标记为取消", zap.Int("ready", len(r.ready)))
		}
		r.dispatch(cancelled)
		if r.pending == 0 {
			break
		}
		if r.running == 0 {
			r.result.EndedAt = time.Now()
			return r.result, fmt.Errorf("%w: 剩余 %d 个任务", ErrStalled, r.pending)
		}

		select {
		case c := <-r.doneCh:
			r.complete(c)
		case <-ctxDone:
			// 下一轮循环处理取消
			ctxDone = nil
		}
	}

	r.result.EndedAt = time.Now()
	logger.Debug("🏁 执行结束",
		zap.Int("success", r.result.Count(StatusSuccess)),
		zap.Int("failed", len(r.result.Failures())),
		zap.Int("max_concurrency", r.result.MaxConcurrency),
		zap.Duration("duration", r.result.EndedAt.Sub(r.result.StartedAt)))

	if cancelled {
		return r.result, r.ctx.Err()
	}
	return r.result, nil
}

// dispatch 按队列顺序派发所有可派发的就绪任务
func (r *run) dispatch(cancelled bool) {
	for progress := true; progress; {
		progress = false
		queue := r.ready
		r.ready = nil
		var kept []int
		for _, i := range queue {
			switch {
			case cancelled:
				r.finalize(i, StatusCancelled, r.ctx.Err())
				progress = true
			case r.poisoned[i]:
				r.finalize(i, StatusSkipped, ErrDependencyFailed)
				progress = true
			case r.running < r.e.workers && r.locks.CanAcquire(r.accesses[i]):
				r.locks.Acquire(r.accesses[i])
				r.start(i)
				progress = true
			default:
				kept = append(kept, i)
			}
		}
		// 被挡住的任务保持原顺序排在新就绪任务之前
		r.ready = append(kept, r.ready...)
	}
}

func (r *run) start(i int) {
	r.running++
	if r.running > r.result.MaxConcurrency {
		r.result.MaxConcurrency = r.running
	}
	t := r.g.Task(i)
	timeout := task.TimeoutOf(t)
	if timeout <= 0 {
		timeout = r.e.defaultTimeout
	}
	r.result.Results[i].Status = StatusRunning
	r.e.jobs <- job{
		index:   i,
		stage:   r.g.Stage(),
		task:    t,
		env:     r.env,
		parent:  context.WithoutCancel(r.ctx),
		timeout: timeout,
		done:    r.doneCh,
	}
}

func (r *run) complete(c completion) {
	r.running--
	r.locks.Release(r.accesses[c.index])

	res := &r.result.Results[c.index]
	res.Worker = c.worker
	res.Start = c.start
	res.End = c.end
	r.finalize(c.index, c.status, c.err)
}

// finalize 记录任务最终状态并递减下游入度
func (r *run) finalize(i int, status Status, err error) {
	res := &r.result.Results[i]
	res.Status = status
	if status.IsFailure() {
		res.Err = err
	} else if status == StatusSkipped || status == StatusCancelled {
		res.Err = err
		now := time.Now()
		res.Start, res.End = now, now
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		trace.SafeRecord(r.env.Sink, trace.Event{
			Kind:   trace.EventTaskFinished,
			Stage:  r.g.Stage(),
			TaskID: res.TaskID,
			At:     now,
			Status: string(status),
			Error:  msg,
		})
	}
	r.pending--

	poison := r.e.skipDependents && (status.IsFailure() || status == StatusSkipped)
	for _, child := range r.g.Successors(i) {
		if poison {
			r.poisoned[child] = true
		}
		r.inDegree[child]--
		if r.inDegree[child] == 0 {
			r.ready = append(r.ready, child)
		}
	}
}

func (e *Executor) worker(id int) {
	defer e.wg.Done()
	for j := range e.jobs {
		j.done <- e.runJob(id, j)
	}
}

// runJob 在worker中执行任务体，捕获错误与panic
func (e *Executor) runJob(worker int, j job) completion {
	e.active.Add(1)
	defer e.active.Add(-1)

	taskID := j.task.ID()
	parent := j.parent
	cancel := context.CancelFunc(func() {})
	if j.timeout > 0 {
		parent, cancel = context.WithTimeout(parent, j.timeout)
	}
	defer cancel()

	logger := e.logger.With(zap.String("stage", j.stage))
	tctx := task.NewContext(parent, j.task, j.env.CycleID, j.env.Frame, j.env.Delta, j.env.Bank, logger)

	start := time.Now()
	trace.SafeRecord(j.env.Sink, trace.Event{
		Kind:   trace.EventTaskStarted,
		Stage:  j.stage,
		TaskID: taskID,
		Worker: worker,
		At:     start,
		Status: string(StatusRunning),
	})

	var (
		runErr     error
		recovered  interface{}
		stackTrace []byte
	)
	func() {
		defer func() {
			if p := recover(); p != nil {
				recovered = p
				stackTrace = debug.Stack()
			}
		}()
		runErr = j.task.Run(tctx)
	}()
	end := time.Now()

	c := completion{index: j.index, worker: worker, status: StatusSuccess, start: start, end: end}
	switch {
	case recovered != nil:
		c.status = StatusFailed
		c.err = &TaskError{Stage: j.stage, TaskID: taskID, Panic: recovered, Stack: stackTrace}
	case j.timeout > 0 && end.Sub(start) > j.timeout:
		c.status = StatusTimeout
		cause := fmt.Errorf("%w: 超过 %s", ErrTaskTimeout, j.timeout)
		if runErr != nil && !errors.Is(runErr, context.DeadlineExceeded) {
			cause = errors.Join(cause, runErr)
		}
		c.err = &TaskError{Stage: j.stage, TaskID: taskID, Err: cause}
	case runErr != nil:
		c.status = StatusFailed
		c.err = &TaskError{Stage: j.stage, TaskID: taskID, Err: runErr}
	}

	if c.status.IsFailure() {
		e.failed.Add(1)
		logger.Warn("❌ [任务失败]", zap.String("task", taskID), zap.String("status", string(c.status)), zap.Error(c.err))
	}
	e.completed.Add(1)

	msg := ""
	if c.err != nil {
		msg = c.err.Error()
	}
	trace.SafeRecord(j.env.Sink, trace.Event{
		Kind:   trace.EventTaskFinished,
		Stage:  j.stage,
		TaskID: taskID,
		Worker: worker,
		At:     end,
		Status: string(c.status),
		Error:  msg,
	})
	return c
}
