package trace

import "sync"

// Ring 内存中保留最近N个执行轨迹（对外导出）
type Ring struct {
	mu     sync.RWMutex
	traces []*ExecutionTrace
	next   int
	size   int
}

// NewRing 创建容量为capacity的环形缓冲，capacity<=0时为1
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{traces: make([]*ExecutionTrace, capacity)}
}

// Push 加入轨迹，满时覆盖最旧的
func (r *Ring) Push(t *ExecutionTrace) {
	if t == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.traces[r.next] = t
	r.next = (r.next + 1) % len(r.traces)
	if r.size < len(r.traces) {
		r.size++
	}
}

// Len 当前保存的轨迹数量
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// List 从新到旧返回最多limit个轨迹，limit<=0时返回全部
func (r *Ring) List(limit int) []*ExecutionTrace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > r.size {
		limit = r.size
	}
	out := make([]*ExecutionTrace, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + len(r.traces)) % len(r.traces)
		out = append(out, r.traces[idx])
	}
	return out
}

// Latest 最新的轨迹
func (r *Ring) Latest() (*ExecutionTrace, bool) {
	list := r.List(1)
	if len(list) == 0 {
		return nil, false
	}
	return list[0], true
}

// Get 按周期ID查找
func (r *Ring) Get(cycleID string) (*ExecutionTrace, bool) {
	for _, t := range r.List(0) {
		if t.CycleID == cycleID {
			return t, true
		}
	}
	return nil, false
}
