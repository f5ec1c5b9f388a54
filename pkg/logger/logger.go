// Package logger 构建调度器使用的zap日志实例
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// atomicLevel 全局可调的日志级别
var atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// Build 构建日志实例（对外导出）
// Error及以上级别写入stderr，其余写入stdout；encoding为console或json
func Build(level, encoding string) (*zap.Logger, error) {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("无效的日志级别 %q: %w", level, err)
	}
	atomicLevel.SetLevel(l)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	switch encoding {
	case "", "console":
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		encoder = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("无效的日志编码 %q", encoding)
	}

	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})
	lowPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return atomicLevel.Enabled(lvl) && lvl < zapcore.ErrorLevel
	})

	infoCore := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), lowPriority)
	errorCore := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), highPriority)

	return zap.New(zapcore.NewTee(infoCore, errorCore), zap.AddCaller()), nil
}

// MustBuild 同Build，失败时回退到Nop日志
func MustBuild(level, encoding string) *zap.Logger {
	l, err := Build(level, encoding)
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// SetLevel 动态调整日志级别
func SetLevel(level string) error {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("无效的日志级别 %q: %w", level, err)
	}
	atomicLevel.SetLevel(l)
	return nil
}

// Level 当前日志级别
func Level() string {
	return atomicLevel.Level().String()
}
