package engine

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	internalstorage "github.com/LENAX/frame-scheduler/internal/storage"
	"github.com/LENAX/frame-scheduler/pkg/config"
	"github.com/LENAX/frame-scheduler/pkg/core/resource"
	"github.com/LENAX/frame-scheduler/pkg/core/task"
	"github.com/LENAX/frame-scheduler/pkg/core/trace"
	"github.com/LENAX/frame-scheduler/pkg/logger"
	"github.com/LENAX/frame-scheduler/pkg/storage"
)

// EngineBuilder 引擎构建器（链式调用）
type EngineBuilder struct {
	configPath    string
	cfg           *config.EngineConfig
	logger        *zap.Logger
	resources     map[resource.ID]interface{}
	repo          storage.TraceRepository
	bus           *trace.Bus
	jobs          map[string]task.Func
	jobOrder      []string
	tasks         []task.Task
	manifestPaths []string
	err           error
}

// NewEngineBuilder 创建引擎构建器（入口）
// configPath为空时使用默认配置
func NewEngineBuilder(configPath string) *EngineBuilder {
	return &EngineBuilder{
		configPath: configPath,
		resources:  make(map[resource.ID]interface{}),
		jobs:       make(map[string]task.Func),
	}
}

// WithConfig 直接指定配置，优先于配置文件（链式）
func (b *EngineBuilder) WithConfig(cfg *config.EngineConfig) *EngineBuilder {
	if b.err != nil {
		return b
	}
	if cfg == nil {
		b.err = errors.New("engine config is nil")
		return b
	}
	b.cfg = cfg
	return b
}

// WithLogger 指定日志，未指定时按配置构建（链式）
func (b *EngineBuilder) WithLogger(l *zap.Logger) *EngineBuilder {
	b.logger = l
	return b
}

// WithResource 预置资源初值（链式）
func (b *EngineBuilder) WithResource(id resource.ID, value interface{}) *EngineBuilder {
	if b.err != nil {
		return b
	}
	if id == "" {
		b.err = errors.New("resource id is empty")
		return b
	}
	b.resources[id] = value
	return b
}

// WithTraceRepository 指定轨迹持久化，优先于配置中的数据库（链式）
func (b *EngineBuilder) WithTraceRepository(repo storage.TraceRepository) *EngineBuilder {
	b.repo = repo
	return b
}

// WithBus 指定轨迹事件总线（链式）
func (b *EngineBuilder) WithBus(bus *trace.Bus) *EngineBuilder {
	b.bus = bus
	return b
}

// WithJob 注册Job函数，供任务清单按名称引用（链式）
func (b *EngineBuilder) WithJob(name string, fn task.Func) *EngineBuilder {
	if b.err != nil {
		return b
	}
	if name == "" || fn == nil {
		b.err = errors.New("job name or function is empty")
		return b
	}
	if _, exists := b.jobs[name]; !exists {
		b.jobOrder = append(b.jobOrder, name)
	}
	b.jobs[name] = fn
	return b
}

// WithTask 注册任务，按调用顺序注册（链式）
func (b *EngineBuilder) WithTask(t task.Task) *EngineBuilder {
	if b.err != nil {
		return b
	}
	if t == nil {
		b.err = errors.New("task is nil")
		return b
	}
	b.tasks = append(b.tasks, t)
	return b
}

// WithManifest 加载YAML或HCL任务清单，在WithTask注册的任务之后注册（链式）
func (b *EngineBuilder) WithManifest(path string) *EngineBuilder {
	if b.err != nil {
		return b
	}
	b.manifestPaths = append(b.manifestPaths, path)
	return b
}

// Build 构建引擎实例（最终步骤）
func (b *EngineBuilder) Build() (*Engine, error) {
	// 检查构建过程是否有错误
	if b.err != nil {
		return nil, b.err
	}

	// 1. 加载引擎配置
	cfg := b.cfg
	if cfg == nil {
		loaded, err := config.LoadConfig(b.configPath)
		if err != nil {
			return nil, fmt.Errorf("load engine config failed: %w", err)
		}
		cfg = loaded
	} else if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate engine config failed: %w", err)
	}
	fs := cfg.FrameScheduler

	// 2. 日志
	log := b.logger
	if log == nil {
		built, err := logger.Build(fs.General.LogLevel, fs.General.LogEncoding)
		if err != nil {
			return nil, fmt.Errorf("build logger failed: %w", err)
		}
		log = built.With(zap.String("instance", fs.General.InstanceName))
	}

	// 3. 初始化存储层（根据配置创建Repository）
	repo := b.repo
	if repo == nil && fs.Trace.Persist {
		created, err := internalstorage.NewTraceRepository(fs.Storage.Database.Type, fs.Storage.Database.DSN, internalstorage.PoolOptions{
			MaxOpenConns:    fs.Storage.Database.MaxOpenConns,
			MaxIdleConns:    fs.Storage.Database.MaxIdleConns,
			ConnMaxLifetime: fs.Storage.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("init storage failed: %w", err)
		}
		repo = created
	}

	// 4. 事件总线
	bus := b.bus
	if bus == nil && fs.Trace.Bus {
		bus = trace.NewBus(log)
	}

	// 5. 创建Engine实例
	eng, err := NewEngine(cfg, log, bus, repo)
	if err != nil {
		if repo != nil && b.repo == nil {
			_ = repo.Close()
		}
		return nil, fmt.Errorf("create engine failed: %w", err)
	}

	// 6. 注册Job函数、资源与任务，任一失败都释放已创建的引擎
	if err := b.populate(eng); err != nil {
		eng.Stop()
		return nil, err
	}
	return eng, nil
}

func (b *EngineBuilder) populate(eng *Engine) error {
	for _, name := range b.jobOrder {
		if err := eng.jobs.RegisterJob(name, b.jobs[name]); err != nil {
			return fmt.Errorf("register job %s failed: %w", name, err)
		}
		eng.logger.Debug("📝 [EngineBuilder] 已注册Job", zap.String("job", name))
	}
	for id, v := range b.resources {
		eng.bank.Insert(id, v)
	}
	for _, t := range b.tasks {
		if err := eng.Register(t); err != nil {
			return fmt.Errorf("register task failed: %w", err)
		}
	}
	for _, path := range b.manifestPaths {
		m, err := config.LoadManifest(path)
		if err != nil {
			return fmt.Errorf("load manifest %s failed: %w", path, err)
		}
		if err := eng.ApplyManifest(m, nil); err != nil {
			return fmt.Errorf("apply manifest %s failed: %w", path, err)
		}
	}
	return nil
}
