package task

import "errors"

var (
	// ErrDuplicateTask 任务ID已注册，调用方可以换ID重试或忽略
	ErrDuplicateTask = errors.New("任务ID重复")
	// ErrUnknownTask 任务ID未注册
	ErrUnknownTask = errors.New("任务不存在")
	// ErrInvalidTask 任务定义无效（nil或ID为空）
	ErrInvalidTask = errors.New("任务定义无效")
	// ErrUndeclaredAccess 任务访问了未声明的资源
	ErrUndeclaredAccess = errors.New("未声明的资源访问")
	// ErrDuplicateJob Job函数名称重复
	ErrDuplicateJob = errors.New("Job函数名称重复")
	// ErrUnknownJob Job函数未注册
	ErrUnknownJob = errors.New("Job函数未注册")
)
