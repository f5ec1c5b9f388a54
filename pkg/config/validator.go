package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// CronParser 支持秒级精度的Cron表达式解析器
var CronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateConfig 校验框架配置合法性
func ValidateConfig(cfg *EngineConfig) error {
	if cfg == nil {
		return fmt.Errorf("配置不能为空")
	}
	fs := &cfg.FrameScheduler

	// 校验General
	if fs.General.InstanceName == "" {
		return fmt.Errorf("instance_name不能为空")
	}
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[fs.General.LogLevel] {
		return fmt.Errorf("log_level必须是debug/info/warn/error之一")
	}
	if fs.General.LogEncoding != "console" && fs.General.LogEncoding != "json" {
		return fmt.Errorf("log_encoding必须是console/json之一")
	}

	// 校验Execution
	if fs.Execution.Workers <= 0 || fs.Execution.Workers > 1024 {
		return fmt.Errorf("execution.workers必须在1到1024之间")
	}
	if fs.Execution.DefaultTaskTimeout < 0 {
		return fmt.Errorf("execution.default_task_timeout不能为负数")
	}

	// 校验Loop
	if fs.Loop.FrameInterval < 0 {
		return fmt.Errorf("loop.frame_interval不能为负数")
	}
	seen := make(map[string]bool)
	for i, st := range fs.Loop.Stages {
		if st == "" {
			return fmt.Errorf("loop.stages[%d]不能为空", i)
		}
		if seen[st] {
			return fmt.Errorf("loop.stages中存在重复的阶段: %s", st)
		}
		seen[st] = true
	}

	// 校验Trace
	if fs.Trace.BufferSize <= 0 {
		return fmt.Errorf("trace.buffer_size必须大于0")
	}
	if fs.Trace.Keep <= 0 {
		return fmt.Errorf("trace.keep必须大于0")
	}
	if fs.Trace.Persist {
		if _, err := CronParser.Parse(fs.Trace.RetentionCron); err != nil {
			return fmt.Errorf("trace.retention_cron无效: %w", err)
		}
	}

	// 校验Storage.Database
	validDBTypes := map[string]bool{
		"sqlite":     true,
		"sqlite3":    true,
		"postgres":   true,
		"postgresql": true,
		"mysql":      true,
	}
	if !validDBTypes[fs.Storage.Database.Type] {
		return fmt.Errorf("database.type必须是sqlite/postgres/mysql之一")
	}
	if fs.Storage.Database.DSN == "" {
		return fmt.Errorf("database.dsn不能为空")
	}
	if fs.Storage.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns不能为负数")
	}

	// 校验Server
	if fs.Server.Port <= 0 || fs.Server.Port > 65535 {
		return fmt.Errorf("server.port必须在1到65535之间")
	}

	return nil
}
