package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/LENAX/frame-scheduler/pkg/config"
	"github.com/LENAX/frame-scheduler/pkg/storage"
)

// RetentionScheduler 执行轨迹定时清理器（对外导出）
// 按Cron表达式周期性删除结束时间早于保留期的持久化轨迹
type RetentionScheduler struct {
	cron      *cron.Cron
	repo      storage.TraceRepository
	retention time.Duration
	logger    *zap.Logger

	mu          sync.Mutex
	entry       cron.EntryID
	scheduled   bool
	lastRun     time.Time
	lastDeleted int64
}

// NewRetentionScheduler 创建定时清理器（对外导出）
func NewRetentionScheduler(repo storage.TraceRepository, retention time.Duration, logger *zap.Logger) *RetentionScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetentionScheduler{
		cron:      cron.New(cron.WithSeconds()), // 支持秒级精度
		repo:      repo,
		retention: retention,
		logger:    logger,
	}
}

// Schedule 设置清理周期，重复调用时替换原有周期（对外导出）
func (rs *RetentionScheduler) Schedule(expr string) error {
	// 验证Cron表达式（使用Parser支持秒级精度）
	if _, err := config.CronParser.Parse(expr); err != nil {
		return fmt.Errorf("清理周期的Cron表达式无效: %w", err)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.scheduled {
		rs.cron.Remove(rs.entry)
	}
	entryID, err := rs.cron.AddFunc(expr, rs.trigger)
	if err != nil {
		return fmt.Errorf("添加Cron任务失败: %w", err)
	}
	rs.entry = entryID
	rs.scheduled = true

	rs.logger.Info("✅ [轨迹清理] 已设置清理周期",
		zap.String("cron", expr),
		zap.Duration("retention", rs.retention))
	return nil
}

// trigger Cron触发的清理（内部方法）
func (rs *RetentionScheduler) trigger() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := rs.Prune(ctx); err != nil {
		rs.logger.Error("❌ [轨迹清理] 清理失败", zap.Error(err))
	}
}

// Prune 立即清理一次过期轨迹，返回删除条数（对外导出）
func (rs *RetentionScheduler) Prune(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-rs.retention)
	n, err := rs.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	rs.mu.Lock()
	rs.lastRun = time.Now()
	rs.lastDeleted = n
	rs.mu.Unlock()

	if n > 0 {
		rs.logger.Info("🧹 [轨迹清理] 已删除过期轨迹",
			zap.Int64("deleted", n),
			zap.Time("before", cutoff))
	}
	return n, nil
}

// LastRun 最近一次清理的时间与删除条数
func (rs *RetentionScheduler) LastRun() (time.Time, int64) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.lastRun, rs.lastDeleted
}

// Start 启动定时清理（对外导出）
func (rs *RetentionScheduler) Start() {
	rs.cron.Start()
	rs.logger.Info("✅ [轨迹清理] 已启动")
}

// Stop 停止定时清理，等待进行中的清理结束（对外导出）
func (rs *RetentionScheduler) Stop() {
	<-rs.cron.Stop().Done()
	rs.logger.Info("✅ [轨迹清理] 已停止")
}
