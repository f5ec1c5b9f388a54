package task

import (
	"fmt"
	"sort"
	"sync"
)

// JobRegistry 命名Job函数注册中心（对外导出）
// 清单与CLI通过名称把声明式任务绑定到代码
type JobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]Func
}

// NewJobRegistry 创建空的Job注册中心（对外导出）
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]Func)}
}

// NewDefaultJobRegistry 创建并注册内置Job的注册中心（对外导出）
func NewDefaultJobRegistry() *JobRegistry {
	r := NewJobRegistry()
	for name, fn := range builtinJobs() {
		r.jobs[name] = fn
	}
	return r
}

// RegisterJob 注册Job函数（对外导出）
func (r *JobRegistry) RegisterJob(name string, fn Func) error {
	if name == "" {
		return fmt.Errorf("%w: Job名称不能为空", ErrInvalidTask)
	}
	if fn == nil {
		return fmt.Errorf("%w: Job %s 函数为nil", ErrInvalidTask, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	r.jobs[name] = fn
	return nil
}

// Job 根据名称获取Job函数（对外导出）
func (r *JobRegistry) Job(name string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return fn, nil
}

// Names 返回已注册的Job名称（排序）
func (r *JobRegistry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
