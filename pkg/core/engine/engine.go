package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LENAX/frame-scheduler/pkg/config"
	"github.com/LENAX/frame-scheduler/pkg/core/dag"
	"github.com/LENAX/frame-scheduler/pkg/core/executor"
	"github.com/LENAX/frame-scheduler/pkg/core/resource"
	"github.com/LENAX/frame-scheduler/pkg/core/task"
	"github.com/LENAX/frame-scheduler/pkg/core/trace"
	"github.com/LENAX/frame-scheduler/pkg/storage"
)

// TimeResource 帧时间资源ID，每帧开始前由引擎写入FrameTime
const TimeResource resource.ID = "time"

// persistTimeout 单条轨迹持久化的超时时间
const persistTimeout = 5 * time.Second

// ErrInvalidStageOrder 阶段顺序无效
var ErrInvalidStageOrder = errors.New("阶段顺序无效")

// FrameTime 帧时间（对外导出）
type FrameTime struct {
	Frame   uint64        `json:"frame"`
	Delta   time.Duration `json:"delta"`
	Elapsed time.Duration `json:"elapsed"`
}

// CycleReport 单个周期的执行报告（对外导出）
type CycleReport struct {
	CycleID   string
	Frame     uint64
	StartedAt time.Time
	EndedAt   time.Time
	Stages    []*executor.CycleResult
	Trace     *trace.ExecutionTrace // 未启用轨迹记录时为nil
	Removed   []string              // 周期结束后注销的一次性任务
}

// Failures 所有阶段中失败或超时的任务
func (r *CycleReport) Failures() []executor.TaskResult {
	var out []executor.TaskResult
	for _, st := range r.Stages {
		out = append(out, st.Failures()...)
	}
	return out
}

// Err 合并所有阶段的任务错误
func (r *CycleReport) Err() error {
	var errs []error
	for _, st := range r.Stages {
		if err := st.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TaskCount 本周期执行的任务总数
func (r *CycleReport) TaskCount() int {
	n := 0
	for _, st := range r.Stages {
		n += len(st.Results)
	}
	return n
}

// Stats 引擎统计（对外导出）
type Stats struct {
	Running       bool               `json:"running"`
	Tasks         int                `json:"tasks"`
	Cycles        uint64             `json:"cycles"`
	FailedCycles  uint64             `json:"failed_cycles"`
	AbortedCycles uint64             `json:"aborted_cycles"`
	Frame         uint64             `json:"frame"`
	LastCycleID   string             `json:"last_cycle_id"`
	Pool          executor.PoolStats `json:"pool"`
}

// Engine 调度引擎（对外导出）
// 显式持有注册表、执行器、资源库与轨迹记录器，不依赖任何全局状态
type Engine struct {
	cfg      *config.EngineConfig
	logger   *zap.Logger
	registry *task.Registry
	jobs     *task.JobRegistry
	bank     *resource.Bank
	executor *executor.Executor
	recorder *trace.Recorder // 未启用轨迹记录时为nil
	ring     *trace.Ring
	bus      *trace.Bus
	repo     storage.TraceRepository

	retention *RetentionScheduler

	cycleMu sync.Mutex // 同一时刻只运行一个周期

	mu          sync.RWMutex
	stageOrder  []string
	running     bool
	stopped     bool
	frame       uint64
	elapsed     time.Duration
	lastCycleAt time.Time
	stats       Stats
}

// NewEngine 创建Engine实例（对外导出的工厂方法）
// bus与repo可为nil；cfg为nil时使用默认配置
func NewEngine(cfg *config.EngineConfig, logger *zap.Logger, bus *trace.Bus, repo storage.TraceRepository) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fs := cfg.FrameScheduler

	opts := []executor.Option{
		executor.WithLogger(logger),
		executor.WithDefaultTimeout(fs.Execution.DefaultTaskTimeout),
	}
	if fs.Execution.SkipDependentsOnFailure {
		opts = append(opts, executor.WithSkipDependentsOnFailure())
	}
	exec, err := executor.NewExecutor(fs.Execution.Workers, opts...)
	if err != nil {
		return nil, err
	}

	eng := &Engine{
		cfg:      cfg,
		logger:   logger,
		registry: task.NewRegistry(),
		jobs:     task.NewDefaultJobRegistry(),
		bank:     resource.NewBank(),
		executor: exec,
		ring:     trace.NewRing(fs.Trace.Keep),
		bus:      bus,
		repo:     repo,
	}
	if fs.Trace.Enabled {
		eng.recorder = trace.NewRecorder(
			trace.WithBufferSize(fs.Trace.BufferSize),
			trace.WithLogger(logger),
		)
	}
	if len(fs.Loop.Stages) > 0 {
		if err := eng.SetStageOrder(fs.Loop.Stages...); err != nil {
			_ = exec.Shutdown()
			return nil, err
		}
	}
	if repo != nil && fs.Trace.Persist {
		eng.retention = NewRetentionScheduler(repo, fs.Trace.Retention, logger)
		if err := eng.retention.Schedule(fs.Trace.RetentionCron); err != nil {
			_ = exec.Shutdown()
			return nil, err
		}
	}
	return eng, nil
}

// Config 引擎配置
func (e *Engine) Config() *config.EngineConfig { return e.cfg }

// Logger 引擎日志
func (e *Engine) Logger() *zap.Logger { return e.logger }

// Bank 资源库
func (e *Engine) Bank() *resource.Bank { return e.bank }

// Jobs Job注册表
func (e *Engine) Jobs() *task.JobRegistry { return e.jobs }

// Ring 最近的执行轨迹
func (e *Engine) Ring() *trace.Ring { return e.ring }

// Bus 轨迹事件总线，未启用时为nil
func (e *Engine) Bus() *trace.Bus { return e.bus }

// Repository 轨迹持久化，未启用时为nil
func (e *Engine) Repository() storage.TraceRepository { return e.repo }

// Retention 轨迹清理器，未启用持久化时为nil
func (e *Engine) Retention() *RetentionScheduler { return e.retention }

// Register 注册任务（对外导出）
func (e *Engine) Register(t task.Task) error {
	id, err := e.registry.Register(t)
	if err != nil {
		return err
	}
	e.logger.Debug("📝 已注册任务", zap.String("task", id), zap.String("stage", task.StageOf(t)))
	return nil
}

// Unregister 注销任务（对外导出）
func (e *Engine) Unregister(id string) error {
	return e.registry.Unregister(id)
}

// Tasks 按注册顺序返回当前任务
func (e *Engine) Tasks() []task.Task {
	return e.registry.Snapshot().Tasks()
}

// SetStageOrder 设置阶段执行顺序（对外导出）
// 未列出的阶段按首次出现的顺序排在最后。每个阶段单独建图，任务只能依赖更早阶段的任务；
// 两个任务跨阶段互相依赖时，后一阶段的依赖被视为已满足，前一阶段的依赖报告为UnknownDependencyError而非循环依赖
func (e *Engine) SetStageOrder(stages ...string) error {
	if err := validateStageOrder(stages); err != nil {
		return err
	}
	e.mu.Lock()
	e.stageOrder = append([]string(nil), stages...)
	e.mu.Unlock()
	return nil
}

func validateStageOrder(stages []string) error {
	seen := make(map[string]bool, len(stages))
	for _, st := range stages {
		if st == "" {
			return fmt.Errorf("%w: 阶段名称不能为空", ErrInvalidStageOrder)
		}
		if seen[st] {
			return fmt.Errorf("%w: 重复的阶段 %s", ErrInvalidStageOrder, st)
		}
		seen[st] = true
	}
	return nil
}

// StageOrder 当前阶段顺序
func (e *Engine) StageOrder() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.stageOrder...)
}

// stagesFor 快照中需要执行的阶段，按配置顺序排列
func (e *Engine) stagesFor(snap task.Snapshot) []string {
	present := snap.Stages()
	has := make(map[string]bool, len(present))
	for _, st := range present {
		has[st] = true
	}

	var out []string
	listed := make(map[string]bool)
	for _, st := range e.StageOrder() {
		listed[st] = true
		if has[st] {
			out = append(out, st)
		}
	}
	for _, st := range present {
		if !listed[st] {
			out = append(out, st)
		}
	}
	return out
}

// Plan 只构建各阶段的依赖图，不执行（对外导出）
func (e *Engine) Plan() ([]*dag.Graph, error) {
	return e.plan(e.registry.Snapshot())
}

func (e *Engine) plan(snap task.Snapshot) ([]*dag.Graph, error) {
	var (
		graphs  []*dag.Graph
		earlier []string
	)
	for _, stage := range e.stagesFor(snap) {
		sub := snap.ByStage(stage)
		g, err := dag.Build(sub, dag.WithStage(stage), dag.WithExternal(earlier...))
		if err != nil {
			return nil, fmt.Errorf("构建阶段 %s 的依赖图失败: %w", stage, err)
		}
		graphs = append(graphs, g)
		earlier = append(earlier, sub.IDs()...)
	}
	return graphs, nil
}

// Start 启动引擎后台组件（对外导出）
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return executor.ErrExecutorClosed
	}
	if e.running {
		return nil
	}
	if e.retention != nil {
		e.retention.Start()
	}
	e.running = true
	e.logger.Info("✅ 帧调度引擎已启动",
		zap.String("instance", e.cfg.FrameScheduler.General.InstanceName),
		zap.Int("workers", e.executor.Workers()))
	return nil
}

// Running 引擎是否已启动
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Stop 停止引擎并释放资源（对外导出）
// 等待进行中的周期结束；之后RunCycle返回ErrExecutorClosed
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.running = false
	e.mu.Unlock()

	if e.retention != nil {
		e.retention.Stop()
	}
	_ = e.executor.Shutdown()
	if e.bus != nil {
		if err := e.bus.Close(); err != nil {
			e.logger.Warn("⚠️ 关闭轨迹总线失败", zap.Error(err))
		}
	}
	if e.repo != nil {
		if err := e.repo.Close(); err != nil {
			e.logger.Warn("⚠️ 关闭轨迹存储失败", zap.Error(err))
		}
	}
	e.logger.Info("✅ 帧调度引擎已停止")
}

// Stats 引擎统计
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	s := e.stats
	s.Running = e.running
	s.Frame = e.frame
	e.mu.RUnlock()
	s.Tasks = e.registry.Len()
	s.Pool = e.executor.Stats()
	return s
}

// advance 推进帧时间并写入time资源
func (e *Engine) advance(now time.Time) FrameTime {
	e.mu.Lock()
	var delta time.Duration
	if !e.lastCycleAt.IsZero() {
		delta = now.Sub(e.lastCycleAt)
	}
	e.lastCycleAt = now
	e.elapsed += delta
	ft := FrameTime{Frame: e.frame, Delta: delta, Elapsed: e.elapsed}
	e.frame++
	e.mu.Unlock()

	if !e.bank.Has(TimeResource) {
		e.bank.Insert(TimeResource, ft)
	} else {
		_ = e.bank.Write(TimeResource, func(interface{}) interface{} { return ft })
	}
	return ft
}

// RunCycle 执行一个周期（对外导出）
// 1. 对注册表做快照并构建所有阶段的依赖图，任一阶段失败则整个周期放弃，不执行任何任务
// 2. 按阶段顺序执行
// 3. 生成轨迹并发布到Ring、总线与持久化存储
// 4. 注销本周期内的一次性任务
// 任务失败不算周期错误，通过CycleReport.Err获取；ctx取消时返回ctx.Err()；引擎已停止时返回ErrExecutorClosed
func (e *Engine) RunCycle(ctx context.Context) (*CycleReport, error) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	e.mu.RLock()
	stopped := e.stopped
	e.mu.RUnlock()
	if stopped {
		return nil, executor.ErrExecutorClosed
	}

	snap := e.registry.Snapshot()
	graphs, err := e.plan(snap)
	if err != nil {
		e.mu.Lock()
		e.stats.AbortedCycles++
		e.mu.Unlock()
		e.logger.Error("❌ 依赖图构建失败，放弃本周期", zap.Error(err))
		return nil, err
	}

	ft := e.advance(time.Now())
	report := &CycleReport{
		CycleID:   uuid.NewString(),
		Frame:     ft.Frame,
		StartedAt: time.Now(),
	}

	var sink trace.Sink
	if e.recorder != nil {
		shapes := make([]trace.GraphShape, 0, len(graphs))
		for _, g := range graphs {
			shapes = append(shapes, trace.ShapeOf(g))
		}
		if err := e.recorder.Begin(report.CycleID, ft.Frame, shapes); err != nil {
			e.logger.Warn("⚠️ 无法开始记录执行轨迹", zap.Error(err))
		} else {
			sink = e.recorder
		}
	}

	env := executor.Env{
		CycleID: report.CycleID,
		Frame:   ft.Frame,
		Delta:   ft.Delta,
		Bank:    e.bank,
		Sink:    sink,
	}
	var runErr error
	for _, g := range graphs {
		res, err := e.executor.Run(ctx, g, env)
		if res != nil {
			report.Stages = append(report.Stages, res)
		}
		if err != nil {
			runErr = err
			if errors.Is(err, executor.ErrExecutorClosed) {
				break
			}
		}
	}
	report.EndedAt = time.Now()

	if sink != nil {
		tr, err := e.recorder.Finish()
		if err != nil {
			e.logger.Warn("⚠️ 结束执行轨迹失败", zap.Error(err))
		} else {
			report.Trace = tr
			e.publish(ctx, tr)
		}
	}

	report.Removed = e.registry.ClearOneShot(report.executed(snap))

	failures := len(report.Failures())
	e.mu.Lock()
	e.stats.Cycles++
	e.stats.LastCycleID = report.CycleID
	if failures > 0 {
		e.stats.FailedCycles++
	}
	e.mu.Unlock()

	fields := []zap.Field{
		zap.String("cycle", report.CycleID),
		zap.Uint64("frame", ft.Frame),
		zap.Int("tasks", report.TaskCount()),
		zap.Int("failed", failures),
		zap.Duration("duration", report.EndedAt.Sub(report.StartedAt)),
	}
	if failures > 0 {
		e.logger.Warn("⚠️ 周期完成，存在失败任务", fields...)
	} else {
		e.logger.Debug("✅ 周期完成", fields...)
	}
	return report, runErr
}

// executed 快照中本周期实际派发过的任务；被取消或未轮到执行的任务不算
func (r *CycleReport) executed(snap task.Snapshot) task.Snapshot {
	ran := make(map[string]bool)
	for _, st := range r.Stages {
		for _, res := range st.Results {
			if res.Status != executor.StatusCancelled && res.Status != executor.StatusPending {
				ran[res.TaskID] = true
			}
		}
	}
	var tasks []task.Task
	for _, t := range snap.Tasks() {
		if ran[t.ID()] {
			tasks = append(tasks, t)
		}
	}
	return task.NewSnapshot(tasks...)
}

// publish 分发已完成的轨迹
func (e *Engine) publish(ctx context.Context, tr *trace.ExecutionTrace) {
	e.ring.Push(tr)
	if e.bus != nil {
		if err := e.bus.Publish(tr); err != nil {
			e.logger.Warn("⚠️ 发布执行轨迹失败", zap.String("cycle", tr.CycleID), zap.Error(err))
		}
	}
	if e.repo != nil && e.cfg.FrameScheduler.Trace.Persist {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		if err := e.repo.Save(saveCtx, tr); err != nil {
			e.logger.Error("❌ 持久化执行轨迹失败", zap.String("cycle", tr.CycleID), zap.Error(err))
		}
	}
}

// Run 帧循环（对外导出）
// 每帧执行一个周期；frames为0时一直运行到ctx取消。配置了frame_interval时按固定间隔推进。
// 依赖图构建失败或执行器关闭时返回错误，任务失败不会中断循环
func (e *Engine) Run(ctx context.Context, frames uint64) error {
	interval := e.cfg.FrameScheduler.Loop.FrameInterval
	var ticker *time.Ticker
	if interval > 0 {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	e.logger.Info("🚀 帧循环开始", zap.Uint64("frames", frames), zap.Duration("interval", interval))
	for n := uint64(0); frames == 0 || n < frames; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := e.RunCycle(ctx); err != nil {
			return err
		}
		if ticker != nil && (frames == 0 || n+1 < frames) {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	e.logger.Info("✅ 帧循环结束", zap.Uint64("frames", frames))
	return nil
}

// ApplyManifest 把任务清单应用到引擎（对外导出）
// 按清单顺序注册任务、设置阶段顺序、写入资源初值；jobs为nil时使用引擎的Job注册表。
// 任一任务注册失败时撤销本次已注册的任务，阶段顺序与资源保持不变
func (e *Engine) ApplyManifest(m *config.Manifest, jobs *task.JobRegistry) error {
	if jobs == nil {
		jobs = e.jobs
	}
	tasks, err := m.BuildTasks(jobs)
	if err != nil {
		return err
	}
	if len(m.Stages) > 0 {
		if err := validateStageOrder(m.Stages); err != nil {
			return err
		}
	}
	for _, t := range tasks {
		if _, exists := e.registry.Get(t.ID()); exists {
			return fmt.Errorf("注册清单任务失败: %w: %s", task.ErrDuplicateTask, t.ID())
		}
	}

	added := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if err := e.Register(t); err != nil {
			for _, id := range added {
				_ = e.registry.Unregister(id)
			}
			return fmt.Errorf("注册清单任务失败: %w", err)
		}
		added = append(added, t.ID())
	}

	if len(m.Stages) > 0 {
		e.mu.Lock()
		e.stageOrder = append([]string(nil), m.Stages...)
		e.mu.Unlock()
	}
	for id, v := range m.InitialResources() {
		e.bank.Insert(id, v)
	}
	e.logger.Info("📝 已应用任务清单", zap.Int("tasks", len(tasks)), zap.Int("resources", len(m.Resources)))
	return nil
}
