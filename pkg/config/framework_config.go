package config

import (
	"fmt"
	"time"
)

// EngineConfig 调度器框架配置（对外导出）
type EngineConfig struct {
	FrameScheduler struct {
		General struct {
			InstanceName string `yaml:"instance_name"`
			LogLevel     string `yaml:"log_level"`
			LogEncoding  string `yaml:"log_encoding"`
			Env          string `yaml:"env"`
		} `yaml:"general"`
		Execution struct {
			Workers                 int           `yaml:"workers"`
			DefaultTaskTimeout      time.Duration `yaml:"default_task_timeout"`
			SkipDependentsOnFailure bool          `yaml:"skip_dependents_on_failure"`
		} `yaml:"execution"`
		Loop struct {
			Frames        uint64        `yaml:"frames"`
			FrameInterval time.Duration `yaml:"frame_interval"`
			Stages        []string      `yaml:"stages"`
		} `yaml:"loop"`
		Trace struct {
			Enabled       bool          `yaml:"enabled"`
			BufferSize    int           `yaml:"buffer_size"`
			Keep          int           `yaml:"keep"`
			Persist       bool          `yaml:"persist"`
			Retention     time.Duration `yaml:"retention"`
			RetentionCron string        `yaml:"retention_cron"`
			Bus           bool          `yaml:"bus"`
		} `yaml:"trace"`
		Storage struct {
			Database struct {
				Type            string        `yaml:"type"`
				DSN             string        `yaml:"dsn"`
				MaxOpenConns    int           `yaml:"max_open_conns"`
				MaxIdleConns    int           `yaml:"max_idle_conns"`
				ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
			} `yaml:"database"`
		} `yaml:"storage"`
		Server struct {
			Host            string        `yaml:"host"`
			Port            int           `yaml:"port"`
			ReadTimeout     time.Duration `yaml:"read_timeout"`
			WriteTimeout    time.Duration `yaml:"write_timeout"`
			ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		} `yaml:"server"`
	} `yaml:"frame-scheduler"`
}

// DefaultConfig 返回带默认值的配置（对外导出）
// 布尔开关的默认值只能在这里设置，ApplyDefaults无法区分未设置与false
func DefaultConfig() *EngineConfig {
	cfg := &EngineConfig{}
	cfg.FrameScheduler.Trace.Enabled = true
	cfg.FrameScheduler.Trace.Bus = true
	cfg.ApplyDefaults()
	return cfg
}

// GetWorkers 获取worker数量
func (c *EngineConfig) GetWorkers() int {
	return c.FrameScheduler.Execution.Workers
}

// GetDefaultTaskTimeout 获取默认任务超时时间
func (c *EngineConfig) GetDefaultTaskTimeout() time.Duration {
	return c.FrameScheduler.Execution.DefaultTaskTimeout
}

// GetDatabaseType 获取数据库类型
func (c *EngineConfig) GetDatabaseType() string {
	return c.FrameScheduler.Storage.Database.Type
}

// GetDatabaseDSN 获取数据库DSN
func (c *EngineConfig) GetDatabaseDSN() string {
	return c.FrameScheduler.Storage.Database.DSN
}

// GetServerAddr 获取HTTP监听地址
func (c *EngineConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.FrameScheduler.Server.Host, c.FrameScheduler.Server.Port)
}

// ApplyDefaults 应用默认值
func (c *EngineConfig) ApplyDefaults() {
	fs := &c.FrameScheduler

	// General默认值
	if fs.General.InstanceName == "" {
		fs.General.InstanceName = "frame-scheduler"
	}
	if fs.General.LogLevel == "" {
		fs.General.LogLevel = "info"
	}
	if fs.General.LogEncoding == "" {
		fs.General.LogEncoding = "console"
	}
	if fs.General.Env == "" {
		fs.General.Env = "dev"
	}

	// Execution默认值
	if fs.Execution.Workers <= 0 {
		fs.Execution.Workers = 4
	}

	// Trace默认值
	if fs.Trace.BufferSize <= 0 {
		fs.Trace.BufferSize = 1024
	}
	if fs.Trace.Keep <= 0 {
		fs.Trace.Keep = 64
	}
	if fs.Trace.Retention <= 0 {
		fs.Trace.Retention = 24 * time.Hour
	}
	if fs.Trace.RetentionCron == "" {
		fs.Trace.RetentionCron = "0 */10 * * * *"
	}

	// Database默认值
	if fs.Storage.Database.Type == "" {
		fs.Storage.Database.Type = "sqlite"
	}
	if fs.Storage.Database.DSN == "" {
		fs.Storage.Database.DSN = "frame-scheduler.db"
	}
	if fs.Storage.Database.MaxOpenConns <= 0 {
		fs.Storage.Database.MaxOpenConns = 10
	}
	if fs.Storage.Database.MaxIdleConns <= 0 {
		fs.Storage.Database.MaxIdleConns = 5
	}
	if fs.Storage.Database.ConnMaxLifetime <= 0 {
		fs.Storage.Database.ConnMaxLifetime = 2 * time.Hour
	}

	// Server默认值
	if fs.Server.Host == "" {
		fs.Server.Host = "0.0.0.0"
	}
	if fs.Server.Port <= 0 {
		fs.Server.Port = 8080
	}
	if fs.Server.ReadTimeout <= 0 {
		fs.Server.ReadTimeout = 15 * time.Second
	}
	if fs.Server.WriteTimeout <= 0 {
		fs.Server.WriteTimeout = 15 * time.Second
	}
	if fs.Server.ShutdownTimeout <= 0 {
		fs.Server.ShutdownTimeout = 10 * time.Second
	}
}
