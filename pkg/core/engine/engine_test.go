package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalstorage "github.com/LENAX/frame-scheduler/internal/storage"
	"github.com/LENAX/frame-scheduler/pkg/config"
	"github.com/LENAX/frame-scheduler/pkg/core/dag"
	"github.com/LENAX/frame-scheduler/pkg/core/executor"
	"github.com/LENAX/frame-scheduler/pkg/core/task"
	"github.com/LENAX/frame-scheduler/pkg/core/trace"
)

func testConfig() *config.EngineConfig {
	cfg := config.DefaultConfig()
	cfg.FrameScheduler.Execution.Workers = 4
	cfg.FrameScheduler.Trace.Bus = false
	return cfg
}

func newEngine(t *testing.T, cfg *config.EngineConfig) *Engine {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	eng, err := NewEngine(cfg, nil, nil, nil)
	require.NoError(t, err)
	t.Cleanup(eng.Stop)
	return eng
}

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) job(ctx *task.Context) error {
	j.mu.Lock()
	j.entries = append(j.entries, ctx.TaskID)
	j.mu.Unlock()
	return nil
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func TestRunCycle_StagesRunInOrder(t *testing.T) {
	eng := newEngine(t, nil)
	j := &journal{}

	require.NoError(t, eng.Register(task.New("draw", j.job, task.InStage("render"))))
	require.NoError(t, eng.Register(task.New("move", j.job, task.InStage("update"))))
	require.NoError(t, eng.Register(task.New("collide", j.job, task.InStage("update"), task.After("move"))))
	require.NoError(t, eng.Register(task.New("read-input", j.job, task.InStage("input"))))
	require.NoError(t, eng.SetStageOrder("input", "update", "render"))

	report, err := eng.RunCycle(context.Background())
	require.NoError(t, err)
	require.NoError(t, report.Err())

	assert.Equal(t, []string{"read-input", "move", "collide", "draw"}, j.list())
	require.Len(t, report.Stages, 3)
	assert.Equal(t, "input", report.Stages[0].Stage)
	assert.Equal(t, "render", report.Stages[2].Stage)
	assert.Equal(t, 4, report.TaskCount())
}

func TestRunCycle_UnlistedStagesRunLast(t *testing.T) {
	eng := newEngine(t, nil)
	j := &journal{}
	require.NoError(t, eng.Register(task.New("late", j.job, task.InStage("cleanup"))))
	require.NoError(t, eng.Register(task.New("first", j.job, task.InStage("update"))))
	require.NoError(t, eng.SetStageOrder("update"))

	_, err := eng.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "late"}, j.list())

	assert.True(t, errors.Is(eng.SetStageOrder("a", "a"), ErrInvalidStageOrder))
	assert.True(t, errors.Is(eng.SetStageOrder(""), ErrInvalidStageOrder))
}

func TestRunCycle_CrossStageDependencies(t *testing.T) {
	eng := newEngine(t, nil)
	j := &journal{}
	require.NoError(t, eng.SetStageOrder("update", "render"))
	require.NoError(t, eng.Register(task.New("draw", j.job, task.InStage("render"), task.After("physics"))))
	require.NoError(t, eng.Register(task.New("physics", j.job, task.InStage("update"))))

	_, err := eng.RunCycle(context.Background())
	require.NoError(t, err, "依赖之前阶段的任务视为已满足")

	// 依赖之后阶段的任务无法满足
	require.NoError(t, eng.Register(task.New("predict", j.job, task.InStage("update"), task.After("draw"))))
	_, err = eng.RunCycle(context.Background())
	var unknown *dag.UnknownDependencyError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "predict", unknown.TaskID)
}

func TestRunCycle_CycleAbortsWholeFrame(t *testing.T) {
	eng := newEngine(t, nil)
	j := &journal{}
	require.NoError(t, eng.SetStageOrder("update", "render"))
	require.NoError(t, eng.Register(task.New("ok", j.job, task.InStage("update"))))
	require.NoError(t, eng.Register(task.New("a", j.job, task.InStage("render"), task.After("b"))))
	require.NoError(t, eng.Register(task.New("b", j.job, task.InStage("render"), task.After("a"))))

	report, err := eng.RunCycle(context.Background())
	assert.Nil(t, report)
	require.True(t, errors.Is(err, dag.ErrCyclicDependency))
	var cyc *dag.CyclicDependencyError
	require.True(t, errors.As(err, &cyc))
	assert.Equal(t, "render", cyc.Stage)

	assert.Empty(t, j.list(), "构建失败时不执行任何任务")
	stats := eng.Stats()
	assert.Equal(t, uint64(1), stats.AbortedCycles)
	assert.Equal(t, uint64(0), stats.Cycles)
	assert.Equal(t, uint64(0), stats.Frame, "放弃的周期不推进帧")

	_, err = eng.Plan()
	assert.True(t, errors.Is(err, dag.ErrCyclicDependency))
}

func TestRunCycle_OneShotTasksAreCleared(t *testing.T) {
	eng := newEngine(t, nil)
	j := &journal{}
	require.NoError(t, eng.Register(task.New("every-frame", j.job)))
	require.NoError(t, eng.Register(task.New("spawn", j.job, task.OneShot())))

	report, err := eng.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"spawn"}, report.Removed)

	_, err = eng.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"every-frame", "spawn", "every-frame"}, j.list())
	assert.Len(t, eng.Tasks(), 1)
}

func TestRunCycle_FailuresDoNotAbortCycle(t *testing.T) {
	eng := newEngine(t, nil)
	require.NoError(t, eng.Register(task.New("bad", task.FailJob)))
	require.NoError(t, eng.Register(task.New("good", task.NoopJob)))

	report, err := eng.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Failures(), 1)
	assert.True(t, errors.Is(report.Err(), executor.ErrTaskExecution))
	assert.Equal(t, uint64(1), eng.Stats().FailedCycles)
}

func TestRun_FrameLoopUpdatesTime(t *testing.T) {
	cfg := testConfig()
	cfg.FrameScheduler.Loop.FrameInterval = 2 * time.Millisecond
	eng := newEngine(t, cfg)

	var frames []FrameTime
	var mu sync.Mutex
	observe := func(ctx *task.Context) error {
		return task.Read(ctx, TimeResource, func(ft FrameTime) {
			mu.Lock()
			frames = append(frames, ft)
			mu.Unlock()
		})
	}
	require.NoError(t, eng.Register(task.New("clock", observe, task.Reads(TimeResource))))

	require.NoError(t, eng.Run(context.Background(), 3))

	require.Len(t, frames, 3)
	for i, ft := range frames {
		assert.Equal(t, uint64(i), ft.Frame)
	}
	assert.Equal(t, time.Duration(0), frames[0].Delta)
	assert.Greater(t, frames[2].Delta, time.Duration(0))
	assert.Equal(t, frames[1].Delta+frames[2].Delta, frames[2].Elapsed)
	assert.Equal(t, uint64(3), eng.Stats().Frame)
}

func TestRun_StopsOnCancel(t *testing.T) {
	eng := newEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	var count int
	require.NoError(t, eng.Register(task.New("tick", func(*task.Context) error {
		count++
		if count == 5 {
			cancel()
		}
		return nil
	})))

	err := eng.Run(ctx, 0)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 5, count)
}

func TestRunCycle_PublishesTrace(t *testing.T) {
	cfg := testConfig()
	cfg.FrameScheduler.Trace.Keep = 2
	bus := trace.NewBus(nil)
	eng, err := NewEngine(cfg, nil, bus, nil)
	require.NoError(t, err)
	defer eng.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, eng.Register(task.New("w1", task.IncrementJob, task.Writes("score"))))
	require.NoError(t, eng.Register(task.New("w2", task.IncrementJob, task.Writes("score"))))
	eng.Bank().Insert("score", 0)

	report, err := eng.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report.Trace)
	assert.Equal(t, report.CycleID, report.Trace.CycleID)
	assert.Equal(t, []string{"w1", "w2"}, report.Trace.Order())
	assert.False(t, report.Trace.Overlaps("w1", "w2"))
	require.Len(t, report.Trace.Stages, 1)
	require.Len(t, report.Trace.Stages[0].Edges, 1)
	assert.Equal(t, "conflict", report.Trace.Stages[0].Edges[0].Kind)

	latest, ok := eng.Ring().Latest()
	require.True(t, ok)
	assert.Equal(t, report.CycleID, latest.CycleID)

	select {
	case got := <-stream:
		assert.Equal(t, report.CycleID, got.CycleID)
		assert.Len(t, got.Spans, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("没有收到总线上的轨迹")
	}
}

func TestRunCycle_TraceDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.FrameScheduler.Trace.Enabled = false
	eng := newEngine(t, cfg)
	require.NoError(t, eng.Register(task.New("a", task.NoopJob)))

	report, err := eng.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Nil(t, report.Trace)
	assert.Equal(t, 0, eng.Ring().Len())
}

func TestRunCycle_PersistsAndPrunesTraces(t *testing.T) {
	cfg := testConfig()
	cfg.FrameScheduler.Trace.Persist = true
	cfg.FrameScheduler.Trace.Retention = time.Nanosecond
	repo, err := internalstorage.NewTraceRepository("sqlite", ":memory:", internalstorage.PoolOptions{})
	require.NoError(t, err)

	eng, err := NewEngine(cfg, nil, nil, repo)
	require.NoError(t, err)
	defer eng.Stop()
	require.NotNil(t, eng.Retention())
	require.NoError(t, eng.Start(context.Background()))
	assert.True(t, eng.Running())

	require.NoError(t, eng.Register(task.New("a", task.NoopJob)))
	report, err := eng.RunCycle(context.Background())
	require.NoError(t, err)

	stored, err := repo.GetByCycleID(context.Background(), report.CycleID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, stored.Order())

	time.Sleep(time.Millisecond)
	n, err := eng.Retention().Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, deleted := eng.Retention().LastRun()
	assert.Equal(t, int64(1), deleted)
}

func TestStop_ClosesExecutor(t *testing.T) {
	eng, err := NewEngine(testConfig(), nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))
	eng.Stop()
	eng.Stop()

	_, err = eng.RunCycle(context.Background())
	assert.True(t, errors.Is(err, executor.ErrExecutorClosed))
	assert.True(t, errors.Is(eng.Start(context.Background()), executor.ErrExecutorClosed))
	assert.False(t, eng.Running())
}

const builderManifest = `
stages: ["update", "render"]
resources:
  score: 10
tasks:
  - id: bump
    job: double
    stage: update
    writes: [score]
  - id: show
    job: noop
    stage: render
    reads: [score]
`

func TestEngineBuilder(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "tasks.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(builderManifest), 0644))

	double := func(ctx *task.Context) error {
		return task.Write(ctx, "score", func(v int) int { return v * 2 })
	}
	j := &journal{}
	eng, err := NewEngineBuilder("").
		WithConfig(testConfig()).
		WithJob("double", double).
		WithResource("bonus", 1).
		WithTask(task.New("prepare", j.job, task.InStage("update"))).
		WithManifest(manifestPath).
		Build()
	require.NoError(t, err)
	defer eng.Stop()

	assert.Equal(t, []string{"update", "render"}, eng.StageOrder())
	ids := make([]string, 0)
	for _, tk := range eng.Tasks() {
		ids = append(ids, tk.ID())
	}
	assert.Equal(t, []string{"prepare", "bump", "show"}, ids)

	report, err := eng.RunCycle(context.Background())
	require.NoError(t, err)
	require.NoError(t, report.Err())

	v, err := eng.Bank().Get("score")
	require.NoError(t, err)
	assert.Equal(t, 20, v)
	assert.True(t, eng.Bank().Has("bonus"))
}

func TestEngineBuilder_Errors(t *testing.T) {
	_, err := NewEngineBuilder("").WithJob("", nil).Build()
	assert.Error(t, err)

	_, err = NewEngineBuilder("").WithConfig(testConfig()).WithManifest("/nonexistent/tasks.yaml").Build()
	assert.Error(t, err)

	_, err = NewEngineBuilder("").
		WithConfig(testConfig()).
		WithTask(task.New("a", task.NoopJob)).
		WithTask(task.New("a", task.NoopJob)).
		Build()
	assert.True(t, errors.Is(err, task.ErrDuplicateTask))

	bad := testConfig()
	bad.FrameScheduler.Execution.Workers = 0
	_, err = NewEngineBuilder("").WithConfig(bad).Build()
	assert.Error(t, err)
}

func TestRunCycle_CancelledOneShotTasksAreKept(t *testing.T) {
	eng := newEngine(t, nil)
	j := &journal{}
	require.NoError(t, eng.Register(task.New("spawn", j.job, task.OneShot())))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := eng.RunCycle(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, report)
	res, ok := report.Stages[0].Result("spawn")
	require.True(t, ok)
	assert.Equal(t, executor.StatusCancelled, res.Status)
	assert.Empty(t, report.Removed, "未派发的一次性任务保留到下一周期")
	assert.Empty(t, j.list())

	report, err = eng.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"spawn"}, report.Removed)
	assert.Equal(t, []string{"spawn"}, j.list())
	assert.Empty(t, eng.Tasks())
}

func TestStop_RunCycleDoesNotAdvance(t *testing.T) {
	eng, err := NewEngine(testConfig(), nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, eng.Register(task.New("tick", task.NoopJob)))
	_, err = eng.RunCycle(context.Background())
	require.NoError(t, err)
	before := eng.Stats()

	eng.Stop()
	report, err := eng.RunCycle(context.Background())
	assert.Nil(t, report)
	assert.True(t, errors.Is(err, executor.ErrExecutorClosed))

	after := eng.Stats()
	assert.Equal(t, before.Cycles, after.Cycles)
	assert.Equal(t, before.Frame, after.Frame)
	assert.Equal(t, before.LastCycleID, after.LastCycleID)
}

func TestApplyManifest_DuplicateLeavesEngineUnchanged(t *testing.T) {
	eng := newEngine(t, nil)
	require.NoError(t, eng.Register(task.New("show", task.NoopJob, task.InStage("render"))))
	require.NoError(t, eng.SetStageOrder("render"))

	m, err := config.ParseManifest([]byte(builderManifest), "tasks.yaml")
	require.NoError(t, err)
	jobs := task.NewDefaultJobRegistry()
	require.NoError(t, jobs.RegisterJob("double", task.NoopJob))

	err = eng.ApplyManifest(m, jobs)
	assert.True(t, errors.Is(err, task.ErrDuplicateTask))

	ids := make([]string, 0)
	for _, tk := range eng.Tasks() {
		ids = append(ids, tk.ID())
	}
	assert.Equal(t, []string{"show"}, ids)
	assert.Equal(t, []string{"render"}, eng.StageOrder())
	assert.False(t, eng.Bank().Has("score"))
}

// A写R1、B读R1、C写R2：B总在A结束之后开始，C不受约束
func TestRunCycle_ConflictOrderAcrossRepeatedRuns(t *testing.T) {
	eng := newEngine(t, nil)
	eng.Bank().Insert("r1", 0)
	eng.Bank().Insert("r2", 0)
	require.NoError(t, eng.Register(task.New("a", task.IncrementJob, task.Writes("r1"))))
	require.NoError(t, eng.Register(task.New("b", func(ctx *task.Context) error {
		return task.Read(ctx, "r1", func(int) {})
	}, task.Reads("r1"))))
	require.NoError(t, eng.Register(task.New("c", task.IncrementJob, task.Writes("r2"))))

	for i := 0; i < 20; i++ {
		report, err := eng.RunCycle(context.Background())
		require.NoError(t, err)
		require.NoError(t, report.Err())
		tr := report.Trace
		require.NotNil(t, tr)

		order := tr.Order()
		require.Len(t, order, 3)
		posA, posB := -1, -1
		for k, id := range order {
			switch id {
			case "a":
				posA = k
			case "b":
				posB = k
			}
		}
		assert.Less(t, posA, posB, "第%d次: %v", i, order)
		assert.False(t, tr.Overlaps("a", "b"))

		sa, _ := tr.Span("a")
		sb, _ := tr.Span("b")
		assert.False(t, sb.Start.Before(sa.End), "b在a结束前开始")
	}

	v, err := eng.Bank().Get("r1")
	require.NoError(t, err)
	assert.Equal(t, 20, v)
}

func TestRunCycle_MutualDependencyAcrossStages(t *testing.T) {
	eng := newEngine(t, nil)
	require.NoError(t, eng.SetStageOrder("update", "render"))
	require.NoError(t, eng.Register(task.New("x", task.NoopJob, task.InStage("update"), task.After("y"))))
	require.NoError(t, eng.Register(task.New("y", task.NoopJob, task.InStage("render"), task.After("x"))))

	_, err := eng.Plan()
	var unknown *dag.UnknownDependencyError
	require.True(t, errors.As(err, &unknown), "跨阶段的互相依赖按未知依赖报告")
	assert.Equal(t, "x", unknown.TaskID)
	assert.Equal(t, "y", unknown.Dependency)
	assert.False(t, errors.Is(err, dag.ErrCyclicDependency))
}
