package task

import (
	"fmt"
	"sort"
	"sync"

	"github.com/LENAX/frame-scheduler/pkg/core/resource"
)

type entry struct {
	task Task
	seq  uint64
}

// Registry 任务注册中心（对外导出）
// 显式注册，不做任何自动发现；注册顺序决定冲突边的方向
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*entry
	seq   uint64
}

// NewRegistry 创建任务注册中心（对外导出）
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*entry)}
}

// Register 注册任务（对外导出）
// 返回任务ID；ID已存在时返回ErrDuplicateTask，资源声明无效时返回ErrInvalidTask，注册表保持不变
func (r *Registry) Register(t Task) (string, error) {
	if t == nil {
		return "", fmt.Errorf("%w: 任务为nil", ErrInvalidTask)
	}
	id := t.ID()
	if id == "" {
		return "", fmt.Errorf("%w: 任务ID不能为空", ErrInvalidTask)
	}
	for _, a := range t.Resources() {
		if a.Resource == "" {
			return "", fmt.Errorf("%w: %s: 资源ID不能为空", ErrInvalidTask, id)
		}
		if a.Mode != resource.Read && a.Mode != resource.Write {
			return "", fmt.Errorf("%w: %s: 资源 %s 的访问模式无效: %d", ErrInvalidTask, id, a.Resource, int(a.Mode))
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[id]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateTask, id)
	}
	r.seq++
	r.tasks[id] = &entry{task: t, seq: r.seq}
	return id, nil
}

// MustRegister 注册任务，失败时panic，用于测试与示例
func (r *Registry) MustRegister(t Task) string {
	id, err := r.Register(t)
	if err != nil {
		panic(err)
	}
	return id
}

// Unregister 注销任务（对外导出）
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[id]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	delete(r.tasks, id)
	return nil
}

// Get 根据ID获取任务
func (r *Registry) Get(id string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tasks[id]
	if !ok {
		return nil, false
	}
	return e.task, true
}

// Len 已注册任务数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Snapshot 返回按注册顺序排列的只读快照（对外导出）
// 快照之后的注册/注销不影响快照内容
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.tasks))
	for _, e := range r.tasks {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	tasks := make([]Task, len(entries))
	for i, e := range entries {
		tasks[i] = e.task
	}
	return Snapshot{tasks: tasks}
}

// ClearOneShot 注销快照中的一次性任务，返回被注销的ID
// 只处理快照内的任务，执行期间新注册的一次性任务留到下个周期
func (r *Registry) ClearOneShot(s Snapshot) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for _, t := range s.tasks {
		if IsPersistent(t) {
			continue
		}
		e, ok := r.tasks[t.ID()]
		if !ok || e.task != t {
			continue
		}
		delete(r.tasks, t.ID())
		removed = append(removed, t.ID())
	}
	return removed
}

// Snapshot 注册表快照（对外导出）
type Snapshot struct {
	tasks []Task
}

// NewSnapshot 直接从任务列表构造快照，顺序即注册顺序
func NewSnapshot(tasks ...Task) Snapshot {
	return Snapshot{tasks: append([]Task(nil), tasks...)}
}

// Tasks 按注册顺序返回任务
func (s Snapshot) Tasks() []Task {
	return append([]Task(nil), s.tasks...)
}

// Len 快照中任务数量
func (s Snapshot) Len() int { return len(s.tasks) }

// IDs 按注册顺序返回任务ID
func (s Snapshot) IDs() []string {
	ids := make([]string, len(s.tasks))
	for i, t := range s.tasks {
		ids[i] = t.ID()
	}
	return ids
}

// Stages 按首次出现顺序返回快照中出现的阶段
func (s Snapshot) Stages() []string {
	seen := make(map[string]bool)
	var stages []string
	for _, t := range s.tasks {
		st := StageOf(t)
		if !seen[st] {
			seen[st] = true
			stages = append(stages, st)
		}
	}
	return stages
}

// ByStage 返回指定阶段的子快照，保持注册顺序
func (s Snapshot) ByStage(stage string) Snapshot {
	var tasks []Task
	for _, t := range s.tasks {
		if StageOf(t) == stage {
			tasks = append(tasks, t)
		}
	}
	return Snapshot{tasks: tasks}
}
