package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/frame-scheduler/pkg/core/dag"
	"github.com/LENAX/frame-scheduler/pkg/core/resource"
	"github.com/LENAX/frame-scheduler/pkg/core/task"
	"github.com/LENAX/frame-scheduler/pkg/core/trace"
)

func newExecutor(t *testing.T, workers int, opts ...Option) *Executor {
	t.Helper()
	e, err := NewExecutor(workers, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown() })
	return e
}

func build(t *testing.T, tasks ...task.Task) *dag.Graph {
	t.Helper()
	g, err := dag.Build(task.NewSnapshot(tasks...))
	require.NoError(t, err)
	return g
}

func TestNewExecutor_Limits(t *testing.T) {
	_, err := NewExecutor(maxWorkers + 1)
	assert.Error(t, err)

	e, err := NewExecutor(0)
	require.NoError(t, err)
	assert.Greater(t, e.Workers(), 0)
	require.NoError(t, e.Shutdown())
	require.NoError(t, e.Shutdown(), "重复关闭无副作用")

	_, err = e.Run(context.Background(), build(t), Env{})
	assert.True(t, errors.Is(err, ErrExecutorClosed))
}

func TestRun_RespectsEdges(t *testing.T) {
	e := newExecutor(t, 4)

	var mu sync.Mutex
	var order []string
	record := func(ctx *task.Context) error {
		mu.Lock()
		order = append(order, ctx.TaskID)
		mu.Unlock()
		return nil
	}
	g := build(t,
		task.New("c", record, task.After("b")),
		task.New("b", record, task.After("a")),
		task.New("a", record),
	)

	res, err := e.Run(context.Background(), g, Env{CycleID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 3, res.Count(StatusSuccess))
	assert.NoError(t, res.Err())
	assert.Equal(t, 1, res.MaxConcurrency)
}

func TestRun_IndependentTasksRunConcurrently(t *testing.T) {
	e := newExecutor(t, 3)

	var arrived sync.WaitGroup
	arrived.Add(3)
	barrier := func(ctx *task.Context) error {
		arrived.Done()
		done := make(chan struct{})
		go func() { arrived.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("其他任务没有并发执行")
		}
	}
	g := build(t,
		task.New("a", barrier, task.Reads("shared")),
		task.New("b", barrier, task.Reads("shared")),
		task.New("c", barrier, task.Writes("own")),
	)

	res, err := e.Run(context.Background(), g, Env{})
	require.NoError(t, err)
	assert.NoError(t, res.Err())
	assert.Equal(t, 3, res.MaxConcurrency)
}

func TestRun_PoolSizeBoundsConcurrency(t *testing.T) {
	e := newExecutor(t, 2)

	var inside, peak atomic.Int64
	body := func(ctx *task.Context) error {
		n := inside.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inside.Add(-1)
		return nil
	}
	var tasks []task.Task
	for _, id := range []string{"t1", "t2", "t3", "t4", "t5", "t6"} {
		tasks = append(tasks, task.New(id, body))
	}

	res, err := e.Run(context.Background(), build(t, tasks...), Env{})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int64(2))
	assert.LessOrEqual(t, res.MaxConcurrency, 2)
	assert.Equal(t, 6, res.Count(StatusSuccess))
}

// aliasTask 构建图时不声明资源，执行时才暴露写访问，模拟声明之外的运行时资源别名
type aliasTask struct {
	id    string
	calls atomic.Int64
	body  task.Func
}

func (a *aliasTask) ID() string { return a.id }
func (a *aliasTask) Dependencies() []string { return nil }
func (a *aliasTask) Run(ctx *task.Context) error {
	return a.body(ctx)
}
func (a *aliasTask) Resources() []resource.Access {
	if a.calls.Add(1) == 1 {
		return nil
	}
	return []resource.Access{resource.WriteOf("aliased")}
}

func TestRun_AdmissionCheckSerializesConflicts(t *testing.T) {
	e := newExecutor(t, 4)

	var inside, overlaps atomic.Int64
	body := func(ctx *task.Context) error {
		if inside.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(10 * time.Millisecond)
		inside.Add(-1)
		return nil
	}
	a := &aliasTask{id: "a", body: body}
	b := &aliasTask{id: "b", body: body}
	g := build(t, a, b)
	require.Empty(t, g.Edges(), "图中没有边")

	rec := trace.NewRecorder()
	require.NoError(t, rec.Begin("alias", 0, nil))
	res, err := e.Run(context.Background(), g, Env{Sink: rec})
	require.NoError(t, err)
	tr, err := rec.Finish()
	require.NoError(t, err)

	assert.Equal(t, int64(0), overlaps.Load())
	assert.False(t, tr.Overlaps("a", "b"))
	assert.Equal(t, 1, res.MaxConcurrency)
}

func TestRun_FailureIsolated(t *testing.T) {
	e := newExecutor(t, 2)

	var ran atomic.Int64
	ok := func(ctx *task.Context) error { ran.Add(1); return nil }
	g := build(t,
		task.New("bad", task.FailJob, task.WithParams(map[string]string{"message": "boom"})),
		task.New("sibling", ok),
		task.New("child", ok, task.After("bad")),
	)

	res, err := e.Run(context.Background(), g, Env{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), ran.Load(), "兄弟与下游任务照常执行")

	failures := res.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "bad", failures[0].TaskID)

	cycleErr := res.Err()
	assert.True(t, errors.Is(cycleErr, ErrTaskExecution))
	assert.True(t, errors.Is(cycleErr, task.ErrJobFailed))
	var taskErr *TaskError
	require.True(t, errors.As(cycleErr, &taskErr))
	assert.Equal(t, "bad", taskErr.TaskID)
}

func TestRun_SkipDependentsOnFailure(t *testing.T) {
	e := newExecutor(t, 2, WithSkipDependentsOnFailure())

	g := build(t,
		task.New("bad", task.FailJob),
		task.New("child", task.NoopJob, task.After("bad")),
		task.New("grandchild", task.NoopJob, task.After("child")),
		task.New("other", task.NoopJob),
	)
	res, err := e.Run(context.Background(), g, Env{})
	require.NoError(t, err)

	for _, id := range []string{"child", "grandchild"} {
		r, ok := res.Result(id)
		require.True(t, ok)
		assert.Equal(t, StatusSkipped, r.Status, id)
		assert.True(t, errors.Is(r.Err, ErrDependencyFailed))
	}
	other, _ := res.Result("other")
	assert.Equal(t, StatusSuccess, other.Status)
	assert.Len(t, res.Failures(), 1, "跳过不计为失败")
}

func TestRun_PanicCaptured(t *testing.T) {
	e := newExecutor(t, 1)
	g := build(t,
		task.New("panicky", func(ctx *task.Context) error { panic("kaboom") }),
		task.New("after", task.NoopJob, task.After("panicky")),
	)
	res, err := e.Run(context.Background(), g, Env{})
	require.NoError(t, err)

	r, _ := res.Result("panicky")
	assert.Equal(t, StatusFailed, r.Status)
	var taskErr *TaskError
	require.True(t, errors.As(r.Err, &taskErr))
	assert.Equal(t, "kaboom", taskErr.Panic)
	assert.NotEmpty(t, taskErr.Stack)

	after, _ := res.Result("after")
	assert.Equal(t, StatusSuccess, after.Status, "worker在panic后继续可用")
}

func TestRun_Timeout(t *testing.T) {
	e := newExecutor(t, 1, WithDefaultTimeout(time.Second))
	slow := func(ctx *task.Context) error {
		time.Sleep(30 * time.Millisecond)
		return nil
	}
	g := build(t,
		task.New("slow", slow, task.WithTimeout(5*time.Millisecond)),
		task.New("fast", task.NoopJob),
	)
	res, err := e.Run(context.Background(), g, Env{})
	require.NoError(t, err)

	r, _ := res.Result("slow")
	assert.Equal(t, StatusTimeout, r.Status)
	assert.True(t, errors.Is(r.Err, ErrTaskTimeout))
	fast, _ := res.Result("fast")
	assert.Equal(t, StatusSuccess, fast.Status)
}

func TestRun_CancelledBeforeDispatch(t *testing.T) {
	e := newExecutor(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int64
	body := func(*task.Context) error { ran.Add(1); return nil }
	g := build(t, task.New("a", body), task.New("b", body, task.After("a")))

	res, err := e.Run(ctx, g, Env{})
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, res)
	assert.Equal(t, int64(0), ran.Load())
	assert.Equal(t, 2, res.Count(StatusCancelled))
}

func TestRun_CancelDuringCycle(t *testing.T) {
	e := newExecutor(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var innerCancelled atomic.Bool
	first := func(tctx *task.Context) error {
		cancel()
		// 已派发的任务体看不到周期取消
		innerCancelled.Store(tctx.Err() != nil)
		return nil
	}
	g := build(t,
		task.New("first", first),
		task.New("second", task.NoopJob, task.After("first")),
	)
	res, err := e.Run(ctx, g, Env{})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, innerCancelled.Load())

	r, _ := res.Result("first")
	assert.Equal(t, StatusSuccess, r.Status)
	r, _ = res.Result("second")
	assert.Equal(t, StatusCancelled, r.Status)
}

func TestRun_EmitsTraceEvents(t *testing.T) {
	e := newExecutor(t, 2)
	bank := resource.NewBank()
	bank.Insert("score", 0)

	rec := trace.NewRecorder()
	require.NoError(t, rec.Begin("traced", 7, nil))
	g := build(t,
		task.New("inc1", task.IncrementJob, task.Writes("score")),
		task.New("inc2", task.IncrementJob, task.Writes("score")),
	)
	res, err := e.Run(context.Background(), g, Env{CycleID: "traced", Frame: 7, Bank: bank, Sink: rec})
	require.NoError(t, err)
	tr, err := rec.Finish()
	require.NoError(t, err)

	score, _ := resource.Get[int](bank, "score")
	assert.Equal(t, 2, score)
	assert.Equal(t, []string{"inc1", "inc2"}, tr.Order())
	for _, sp := range tr.Spans {
		assert.Equal(t, string(StatusSuccess), sp.Status)
		assert.Greater(t, sp.Worker, 0)
		r, _ := res.Result(sp.TaskID)
		assert.Equal(t, r.Worker, sp.Worker)
	}

	stats := e.Stats()
	assert.Equal(t, 2, stats.Workers)
	assert.Equal(t, int64(2), stats.Completed)
	assert.True(t, stats.Running)
}

func TestRun_EmptyGraph(t *testing.T) {
	e := newExecutor(t, 1)
	res, err := e.Run(context.Background(), build(t), Env{})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.NoError(t, res.Err())
}
