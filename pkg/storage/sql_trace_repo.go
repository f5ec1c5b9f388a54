package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/LENAX/frame-scheduler/pkg/core/trace"
	"github.com/LENAX/frame-scheduler/pkg/storage/dao"
)

const traceTable = "cycle_trace"

var traceColumns = []string{
	"cycle_id", "frame", "started_at", "ended_at",
	"task_count", "failed_count", "incomplete", "payload", "create_time",
}

// SQLTraceRepo 基于sqlx的执行轨迹Repository（对外导出）
// 三种数据库共用同一实现，差异由Dialect承担
type SQLTraceRepo struct {
	db      *sqlx.DB
	dialect Dialect
}

// NewSQLTraceRepo 创建执行轨迹Repository并初始化表结构（对外导出）
func NewSQLTraceRepo(db *sqlx.DB, dialect Dialect) (*SQLTraceRepo, error) {
	repo := &SQLTraceRepo{db: db, dialect: dialect}
	if err := repo.initSchema(); err != nil {
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	return repo, nil
}

// OpenDB 按方言打开数据库并执行连接配置（对外导出）
func OpenDB(dialect Dialect, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}
	for _, stmt := range dialect.ConfigureDB() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("配置%s失败: %w", dialect.Name(), err)
		}
	}
	return db, nil
}

// initSchema 初始化数据库表结构
func (r *SQLTraceRepo) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cycle_trace (
		cycle_id VARCHAR(64) PRIMARY KEY,
		frame BIGINT NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME NOT NULL,
		task_count INTEGER NOT NULL,
		failed_count INTEGER NOT NULL,
		incomplete INTEGER NOT NULL DEFAULT 0,
		payload TEXT NOT NULL,
		create_time DATETIME NOT NULL
	)`
	if _, err := r.db.Exec(r.dialect.CreateTableSQL(schema)); err != nil {
		return err
	}
	index := "CREATE INDEX IF NOT EXISTS idx_cycle_trace_ended_at ON cycle_trace (ended_at)"
	if r.dialect.Name() == "mysql" {
		// MySQL不支持CREATE INDEX IF NOT EXISTS
		index = "CREATE INDEX idx_cycle_trace_ended_at ON cycle_trace (ended_at)"
		if _, err := r.db.Exec(index); err != nil && !isDuplicateIndex(err) {
			return err
		}
		return nil
	}
	_, err := r.db.Exec(index)
	return err
}

func isDuplicateIndex(err error) bool {
	// Error 1061: Duplicate key name
	return strings.Contains(err.Error(), "1061") || strings.Contains(err.Error(), "Duplicate key name")
}

// GetDB 获取底层数据库连接（对外导出）
func (r *SQLTraceRepo) GetDB() *sqlx.DB {
	return r.db
}

// Close 关闭数据库连接（对外导出）
func (r *SQLTraceRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Save 保存执行轨迹
func (r *SQLTraceRepo) Save(ctx context.Context, t *trace.ExecutionTrace) error {
	if t == nil || t.CycleID == "" {
		return fmt.Errorf("执行轨迹缺少周期ID")
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("序列化执行轨迹失败: %w", err)
	}
	row := dao.CycleTraceDAO{
		CycleID:    t.CycleID,
		Frame:      int64(t.Frame),
		StartedAt:  t.StartedAt.UTC(),
		EndedAt:    t.EndedAt.UTC(),
		TaskCount:  t.TaskCount(),
		Failed:     t.Count("failed") + t.Count("timeout"),
		Incomplete: t.Incomplete,
		Payload:    string(payload),
		CreateTime: time.Now().UTC(),
	}
	query := r.dialect.UpsertSQL(traceTable, traceColumns, "cycle_id", traceColumns[1:])
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("保存执行轨迹失败: %w", err)
	}
	return nil
}

// GetByCycleID 按周期ID查询完整轨迹
func (r *SQLTraceRepo) GetByCycleID(ctx context.Context, cycleID string) (*trace.ExecutionTrace, error) {
	var payload string
	query := r.db.Rebind("SELECT payload FROM cycle_trace WHERE cycle_id = ?")
	if err := r.db.GetContext(ctx, &payload, query, cycleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("周期 %s: %w", cycleID, ErrNotFound)
		}
		return nil, fmt.Errorf("查询执行轨迹失败: %w", err)
	}
	var t trace.ExecutionTrace
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return nil, fmt.Errorf("反序列化执行轨迹失败: %w", err)
	}
	return &t, nil
}

// List 列出执行轨迹摘要
func (r *SQLTraceRepo) List(ctx context.Context, limit, offset int) ([]*TraceSummary, error) {
	query := `SELECT cycle_id, frame, started_at, ended_at, task_count, failed_count, incomplete, create_time
		FROM cycle_trace ORDER BY started_at DESC, cycle_id`
	args := []interface{}{}
	if limit <= 0 && offset > 0 {
		// OFFSET必须搭配LIMIT
		limit = math.MaxInt32
	}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}
	var rows []dao.CycleTraceDAO
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("查询执行轨迹列表失败: %w", err)
	}
	out := make([]*TraceSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, &TraceSummary{
			CycleID:    row.CycleID,
			Frame:      uint64(row.Frame),
			StartedAt:  row.StartedAt,
			EndedAt:    row.EndedAt,
			TaskCount:  row.TaskCount,
			Failed:     row.Failed,
			Incomplete: row.Incomplete,
		})
	}
	return out, nil
}

// DeleteBefore 删除过期轨迹
func (r *SQLTraceRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	query := r.db.Rebind("DELETE FROM cycle_trace WHERE ended_at < ?")
	res, err := r.db.ExecContext(ctx, query, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("清理执行轨迹失败: %w", err)
	}
	return res.RowsAffected()
}

// 确保实现接口
var _ TraceRepository = (*SQLTraceRepo)(nil)
