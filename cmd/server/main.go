package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/LENAX/frame-scheduler/pkg/api"
	"github.com/LENAX/frame-scheduler/pkg/core/engine"
)

var (
	Version   = "0.3.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	// 命令行参数
	configPath := flag.String("config", "./configs/frame-scheduler.yaml", "引擎配置文件路径")
	manifests := flag.String("manifest", "", "任务清单文件，多个用逗号分隔")
	host := flag.String("host", "", "监听地址（为空时使用配置）")
	port := flag.Int("port", 0, "监听端口（为0时使用配置）")
	flag.Parse()

	// 1. 构建Engine
	builder := engine.NewEngineBuilder(*configPath)
	for _, m := range strings.Split(*manifests, ",") {
		if m = strings.TrimSpace(m); m != "" {
			builder.WithManifest(m)
		}
	}
	eng, err := builder.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "创建Engine失败: %v\n", err)
		os.Exit(1)
	}
	logger := eng.Logger()
	logger.Info("Frame Scheduler Server",
		zap.String("version", Version),
		zap.String("commit", GitCommit),
		zap.String("build_time", BuildTime),
		zap.String("config", *configPath))

	// 2. 启动Engine
	ctx, cancel := context.WithCancel(context.Background())
	if err := eng.Start(ctx); err != nil {
		logger.Fatal("启动Engine失败", zap.Error(err))
	}

	// 3. 创建API服务器
	config := api.ServerConfigFrom(eng.Config())
	if *host != "" {
		config.Host = *host
	}
	if *port > 0 {
		config.Port = *port
	}
	apiServer := api.NewAPIServer(eng, config, Version)

	// 4. 在goroutine中启动API服务器与帧循环
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("API服务器错误", zap.Error(err))
		}
	}()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := eng.Run(ctx, eng.Config().FrameScheduler.Loop.Frames); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("❌ 帧循环中断", zap.Error(err))
		}
	}()

	logger.Info("✅ Frame Scheduler Server started", zap.String("addr", apiServer.Addr()))

	// 5. 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务...")
	cancel()
	<-loopDone

	// 6. 优雅关闭
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), eng.Config().FrameScheduler.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("关闭API服务器失败", zap.Error(err))
	}

	eng.Stop()
	logger.Info("✅ 服务已停止")
	_ = logger.Sync()
}
