package resource

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownResource 资源未注册
	ErrUnknownResource = errors.New("资源不存在")
	// ErrTypeMismatch 资源值类型与期望不符
	ErrTypeMismatch = errors.New("资源类型不匹配")
)

// slot 单个资源槽，独立的读写锁
type slot struct {
	mu    sync.RWMutex
	value interface{}
}

// Bank 资源仓库（对外导出）
// 保存游戏/模拟子系统的共享状态，任务通过声明的读写意图访问
type Bank struct {
	mu    sync.RWMutex
	slots map[ID]*slot
}

// NewBank 创建资源仓库
func NewBank() *Bank {
	return &Bank{slots: make(map[ID]*slot)}
}

// Insert 插入或替换资源值
func (b *Bank) Insert(id ID, value interface{}) {
	b.mu.Lock()
	s, ok := b.slots[id]
	if !ok {
		b.slots[id] = &slot{value: value}
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	s.mu.Lock()
	s.value = value
	s.mu.Unlock()
}

// Remove 删除资源
func (b *Bank) Remove(id ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.slots[id]
	delete(b.slots, id)
	return ok
}

// Has 判断资源是否存在
func (b *Bank) Has(id ID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.slots[id]
	return ok
}

// IDs 返回所有资源ID（排序）
func (b *Bank) IDs() []ID {
	b.mu.RLock()
	ids := make([]ID, 0, len(b.slots))
	for id := range b.slots {
		ids = append(ids, id)
	}
	b.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (b *Bank) lookup(id ID) (*slot, error) {
	b.mu.RLock()
	s, ok := b.slots[id]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, id)
	}
	return s, nil
}

// Get 读取资源当前值
func (b *Bank) Get(id ID) (interface{}, error) {
	s, err := b.lookup(id)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, nil
}

// Read 在共享锁下访问资源
func (b *Bank) Read(id ID, fn func(v interface{})) error {
	s, err := b.lookup(id)
	if err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.value)
	return nil
}

// Write 在独占锁下更新资源，fn返回新值
func (b *Bank) Write(id ID, fn func(v interface{}) interface{}) error {
	s, err := b.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = fn(s.value)
	return nil
}

// Get 按类型读取资源（泛型辅助函数）
func Get[T any](b *Bank, id ID) (T, error) {
	var zero T
	v, err := b.Get(id)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s 实际类型 %T", ErrTypeMismatch, id, v)
	}
	return typed, nil
}

// ReadAs 按类型在共享锁下访问资源
func ReadAs[T any](b *Bank, id ID, fn func(T)) error {
	var typeErr error
	err := b.Read(id, func(v interface{}) {
		typed, ok := v.(T)
		if !ok {
			typeErr = fmt.Errorf("%w: %s 实际类型 %T", ErrTypeMismatch, id, v)
			return
		}
		fn(typed)
	})
	if err != nil {
		return err
	}
	return typeErr
}

// WriteAs 按类型在独占锁下更新资源，类型不符时保持原值
func WriteAs[T any](b *Bank, id ID, fn func(T) T) error {
	var typeErr error
	err := b.Write(id, func(v interface{}) interface{} {
		typed, ok := v.(T)
		if !ok {
			typeErr = fmt.Errorf("%w: %s 实际类型 %T", ErrTypeMismatch, id, v)
			return v
		}
		return fn(typed)
	})
	if err != nil {
		return err
	}
	return typeErr
}
