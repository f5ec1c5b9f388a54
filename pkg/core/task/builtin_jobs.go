package task

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/LENAX/frame-scheduler/pkg/core/resource"
)

// 内置Job名称
const (
	JobNoop      = "noop"
	JobSleep     = "sleep"
	JobLog       = "log"
	JobFail      = "fail"
	JobIncrement = "increment"
)

// ErrJobFailed fail Job返回的错误
var ErrJobFailed = errors.New("任务按配置失败")

func builtinJobs() map[string]Func {
	return map[string]Func{
		JobNoop:      NoopJob,
		JobSleep:     SleepJob,
		JobLog:       LogJob,
		JobFail:      FailJob,
		JobIncrement: IncrementJob,
	}
}

// NoopJob 空任务
func NoopJob(ctx *Context) error {
	return nil
}

// SleepJob 模拟耗时任务
// 参数：duration (默认 10ms)
func SleepJob(ctx *Context) error {
	d, err := time.ParseDuration(ctx.Param("duration", "10ms"))
	if err != nil {
		return fmt.Errorf("解析duration参数失败: %w", err)
	}
	time.Sleep(d)
	return nil
}

// LogJob 输出一条日志
// 参数：message
func LogJob(ctx *Context) error {
	ctx.Logger.Info("📝 [LogJob] "+ctx.Param("message", ctx.TaskID), zap.Uint64("frame", ctx.Frame))
	return nil
}

// FailJob 总是失败，参数 message 作为错误描述
func FailJob(ctx *Context) error {
	return fmt.Errorf("%w: %s", ErrJobFailed, ctx.Param("message", ctx.TaskID))
}

// IncrementJob 对每个声明写的int资源加一
// 参数：step (默认 1)
func IncrementJob(ctx *Context) error {
	step, err := strconv.Atoi(ctx.Param("step", "1"))
	if err != nil {
		return fmt.Errorf("解析step参数失败: %w", err)
	}
	for _, a := range ctx.accesses {
		if a.Mode != resource.Write {
			continue
		}
		if err := Write(ctx, a.Resource, func(v int) int { return v + step }); err != nil {
			return err
		}
	}
	return nil
}
