package storage

import (
	"context"
	"time"

	"github.com/LENAX/frame-scheduler/pkg/core/trace"
)

// TraceSummary 执行轨迹摘要，不含Span明细（对外导出）
type TraceSummary struct {
	CycleID    string    `json:"cycle_id"`
	Frame      uint64    `json:"frame"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	TaskCount  int       `json:"task_count"`
	Failed     int       `json:"failed"`
	Incomplete bool      `json:"incomplete"`
}

// TraceRepository 执行轨迹持久化接口（对外导出）
type TraceRepository interface {
	BaseRepository
	// Save 保存执行轨迹（同一周期ID覆盖写入）
	Save(ctx context.Context, t *trace.ExecutionTrace) error
	// GetByCycleID 按周期ID查询完整轨迹，不存在时返回ErrNotFound
	GetByCycleID(ctx context.Context, cycleID string) (*trace.ExecutionTrace, error)
	// List 按开始时间倒序列出摘要，limit<=0表示不限制
	List(ctx context.Context, limit, offset int) ([]*TraceSummary, error)
	// DeleteBefore 删除结束时间早于before的轨迹，返回删除条数
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
