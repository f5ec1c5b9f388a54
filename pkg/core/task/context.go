package task

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/LENAX/frame-scheduler/pkg/core/resource"
)

type ctxKey int

const (
	cycleIDKey ctxKey = iota
	taskIDKey
)

// WithCycleID 在context中附加周期ID
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, cycleIDKey, cycleID)
}

// CycleIDFrom 从context读取周期ID
func CycleIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(cycleIDKey).(string); ok {
		return v
	}
	return ""
}

// WithTaskID 在context中附加任务ID
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDKey, taskID)
}

// TaskIDFrom 从context读取任务ID
func TaskIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(taskIDKey).(string); ok {
		return v
	}
	return ""
}

// Context 任务执行上下文（对外导出）
// 嵌入context.Context，携带本周期的帧信息与资源仓库
type Context struct {
	context.Context

	TaskID  string
	CycleID string
	Frame   uint64
	Delta   time.Duration
	Bank    *resource.Bank
	Logger  *zap.Logger
	Params  map[string]string

	accesses []resource.Access
}

// NewContext 创建任务上下文，accesses为任务声明的资源访问
func NewContext(parent context.Context, t Task, cycleID string, frame uint64, delta time.Duration, bank *resource.Bank, logger *zap.Logger) *Context {
	if parent == nil {
		parent = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx := WithTaskID(WithCycleID(parent, cycleID), t.ID())
	return &Context{
		Context:  ctx,
		TaskID:   t.ID(),
		CycleID:  cycleID,
		Frame:    frame,
		Delta:    delta,
		Bank:     bank,
		Logger:   logger.With(zap.String("task", t.ID()), zap.String("cycle", cycleID)),
		Params:   ParamsOf(t),
		accesses: AccessesOf(t),
	}
}

// Param 读取静态参数，不存在时返回def
func (c *Context) Param(key, def string) string {
	if v, ok := c.Params[key]; ok && v != "" {
		return v
	}
	return def
}

// Accesses 任务声明的资源访问
func (c *Context) Accesses() []resource.Access {
	return append([]resource.Access(nil), c.accesses...)
}

func (c *Context) check(id resource.ID, mode resource.AccessMode) error {
	if c.Bank == nil {
		return fmt.Errorf("%w: %s", resource.ErrUnknownResource, id)
	}
	if !resource.Declares(c.accesses, id, mode) {
		return fmt.Errorf("%w: 任务 %s 未声明对 %s 的%s权限", ErrUndeclaredAccess, c.TaskID, id, mode)
	}
	return nil
}

// Read 共享访问资源，未声明读写时返回ErrUndeclaredAccess
func Read[T any](c *Context, id resource.ID, fn func(T)) error {
	if err := c.check(id, resource.Read); err != nil {
		return err
	}
	return resource.ReadAs(c.Bank, id, fn)
}

// Write 独占更新资源，未声明写时返回ErrUndeclaredAccess
func Write[T any](c *Context, id resource.ID, fn func(T) T) error {
	if err := c.check(id, resource.Write); err != nil {
		return err
	}
	return resource.WriteAs(c.Bank, id, fn)
}
