package dao

import (
	"time"
)

// CycleTraceDAO cycle_trace表的数据访问对象（内部使用）
type CycleTraceDAO struct {
	CycleID    string    `db:"cycle_id"`
	Frame      int64     `db:"frame"`
	StartedAt  time.Time `db:"started_at"`
	EndedAt    time.Time `db:"ended_at"`
	TaskCount  int       `db:"task_count"`
	Failed     int       `db:"failed_count"`
	Incomplete bool      `db:"incomplete"`
	Payload    string    `db:"payload"` // JSON格式存储完整轨迹
	CreateTime time.Time `db:"create_time"`
}
