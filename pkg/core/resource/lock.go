package resource

// LockTable 运行时资源锁表（对外导出）
// 执行器协调循环在派发任务前做准入检查，只在单个goroutine内使用，不加锁
type LockTable struct {
	readers map[ID]int
	writers map[ID]bool
}

// NewLockTable 创建空锁表
func NewLockTable() *LockTable {
	return &LockTable{
		readers: make(map[ID]int),
		writers: make(map[ID]bool),
	}
}

// CanAcquire 检查一组访问声明是否能在当前持有状态下全部获得
func (l *LockTable) CanAcquire(accesses []Access) bool {
	for _, a := range accesses {
		if l.writers[a.Resource] {
			return false
		}
		if a.Mode == Write && l.readers[a.Resource] > 0 {
			return false
		}
	}
	return true
}

// Acquire 记录持有，调用方必须先通过CanAcquire
func (l *LockTable) Acquire(accesses []Access) {
	for _, a := range accesses {
		if a.Mode == Write {
			l.writers[a.Resource] = true
		} else {
			l.readers[a.Resource]++
		}
	}
}

// Release 释放Acquire记录的持有
func (l *LockTable) Release(accesses []Access) {
	for _, a := range accesses {
		if a.Mode == Write {
			delete(l.writers, a.Resource)
			continue
		}
		if n := l.readers[a.Resource]; n <= 1 {
			delete(l.readers, a.Resource)
		} else {
			l.readers[a.Resource] = n - 1
		}
	}
}

// Held 当前被持有的资源数量
func (l *LockTable) Held() int {
	return len(l.readers) + len(l.writers)
}
