// Package task 定义调度单元（Task）、显式注册中心与命名Job函数
package task

import (
	"time"

	"github.com/LENAX/frame-scheduler/pkg/core/resource"
)

// DefaultStage 默认阶段名称
const DefaultStage = "default"

// Task 调度单元接口（对外导出）
// 能力集合：执行、声明资源访问、声明顺序依赖。执行体是同步的，派发后运行到结束
type Task interface {
	// ID 任务唯一标识
	ID() string
	// Run 执行任务体
	Run(ctx *Context) error
	// Resources 资源读写声明
	Resources() []resource.Access
	// Dependencies 必须先完成的任务ID
	Dependencies() []string
}

// Staged 可选接口：声明所属阶段
type Staged interface {
	Stage() string
}

// Lifetime 可选接口：是否跨周期保留
type Lifetime interface {
	Persistent() bool
}

// TimeoutAware 可选接口：单任务超时
type TimeoutAware interface {
	Timeout() time.Duration
}

// Func 任务执行函数签名
type Func func(ctx *Context) error

// FuncTask 基于函数的Task实现（对外导出）
type FuncTask struct {
	id          string
	description string
	stage       string
	fn          Func
	resources   []resource.Access
	deps        []string
	oneShot     bool
	timeout     time.Duration
	params      map[string]string
}

// Option FuncTask构建选项
type Option func(*FuncTask)

// New 创建FuncTask（对外导出）
func New(id string, fn Func, opts ...Option) *FuncTask {
	t := &FuncTask{
		id:    id,
		fn:    fn,
		stage: DefaultStage,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.resources = resource.Normalize(t.resources)
	return t
}

// Reads 声明读资源
func Reads(ids ...resource.ID) Option {
	return func(t *FuncTask) {
		for _, id := range ids {
			t.resources = append(t.resources, resource.ReadOf(id))
		}
	}
}

// Writes 声明写资源
func Writes(ids ...resource.ID) Option {
	return func(t *FuncTask) {
		for _, id := range ids {
			t.resources = append(t.resources, resource.WriteOf(id))
		}
	}
}

// After 声明顺序依赖
func After(ids ...string) Option {
	return func(t *FuncTask) {
		t.deps = append(t.deps, ids...)
	}
}

// InStage 指定阶段，空字符串等同默认阶段
func InStage(stage string) Option {
	return func(t *FuncTask) {
		if stage != "" {
			t.stage = stage
		}
	}
}

// OneShot 只执行一个周期，执行后自动注销
func OneShot() Option {
	return func(t *FuncTask) { t.oneShot = true }
}

// WithTimeout 单任务超时
func WithTimeout(d time.Duration) Option {
	return func(t *FuncTask) { t.timeout = d }
}

// WithDescription 任务描述
func WithDescription(desc string) Option {
	return func(t *FuncTask) { t.description = desc }
}

// WithParams 任务参数（清单中声明的静态参数）
func WithParams(params map[string]string) Option {
	return func(t *FuncTask) {
		if len(params) == 0 {
			return
		}
		t.params = make(map[string]string, len(params))
		for k, v := range params {
			t.params[k] = v
		}
	}
}

func (t *FuncTask) ID() string { return t.id }

func (t *FuncTask) Run(ctx *Context) error {
	if t.fn == nil {
		return nil
	}
	return t.fn(ctx)
}

func (t *FuncTask) Resources() []resource.Access {
	return append([]resource.Access(nil), t.resources...)
}

func (t *FuncTask) Dependencies() []string {
	return append([]string(nil), t.deps...)
}

func (t *FuncTask) Stage() string { return t.stage }
func (t *FuncTask) Persistent() bool { return !t.oneShot }
func (t *FuncTask) Timeout() time.Duration { return t.timeout }
func (t *FuncTask) Description() string { return t.description }
func (t *FuncTask) Params() map[string]string { return t.params }

// StageOf 返回任务阶段，未实现Staged时为默认阶段
func StageOf(t Task) string {
	if s, ok := t.(Staged); ok && s.Stage() != "" {
		return s.Stage()
	}
	return DefaultStage
}

// IsPersistent 未实现Lifetime的任务默认跨周期保留
func IsPersistent(t Task) bool {
	if l, ok := t.(Lifetime); ok {
		return l.Persistent()
	}
	return true
}

// TimeoutOf 返回任务超时，0表示使用执行器默认值
func TimeoutOf(t Task) time.Duration {
	if ta, ok := t.(TimeoutAware); ok {
		return ta.Timeout()
	}
	return 0
}

// AccessesOf 返回合并后的资源声明：同一资源声明多次时按写处理
func AccessesOf(t Task) []resource.Access {
	return resource.Normalize(t.Resources())
}

// ParamsOf 返回任务静态参数
func ParamsOf(t Task) map[string]string {
	if p, ok := t.(interface{ Params() map[string]string }); ok {
		return p.Params()
	}
	return nil
}
