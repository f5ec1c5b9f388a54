package dag

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCyclicDependency 依赖图存在环，整个周期中止
	ErrCyclicDependency = errors.New("检测到循环依赖")
	// ErrUnknownDependency 依赖的任务不在快照中
	ErrUnknownDependency = errors.New("依赖的任务不存在")
	// ErrNilWriter 导出时writer为nil
	ErrNilWriter = errors.New("writer不能为nil")
)

// CyclicDependencyError 循环依赖错误（对外导出）
// TaskIDs 为环上的任务，首尾相同
type CyclicDependencyError struct {
	Stage   string
	TaskIDs []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("%s: 阶段=%s, 环=%s", ErrCyclicDependency, e.Stage, strings.Join(e.TaskIDs, " -> "))
}

func (e *CyclicDependencyError) Unwrap() error { return ErrCyclicDependency }

// UnknownDependencyError 未知依赖错误（对外导出）
type UnknownDependencyError struct {
	TaskID     string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("%s: 任务 %s 依赖 %s", ErrUnknownDependency, e.TaskID, e.Dependency)
}

func (e *UnknownDependencyError) Unwrap() error { return ErrUnknownDependency }
