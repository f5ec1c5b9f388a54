package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LENAX/frame-scheduler/pkg/api"
	"github.com/LENAX/frame-scheduler/pkg/cli/output"
)

var (
	serverPort      int
	serverHost      string
	serverManifests []string
	serverLoop      bool
	serverFrames    uint64
)

// serverCmd server子命令
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "服务管理命令",
	Long:  `管理Frame Scheduler HTTP调试服务。`,
}

// serverStartCmd 启动服务
var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "启动HTTP调试服务",
	Long: `启动Frame Scheduler HTTP调试服务，默认同时在后台运行帧循环。

示例：
  # 使用默认配置启动
  frame-scheduler server start --manifest ./examples/game.yaml

  # 指定端口启动
  frame-scheduler server start --port 8080

  # 指定配置文件启动，只提供查询不运行帧循环
  frame-scheduler server start --config ./configs/frame-scheduler.yaml --loop=false`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			output.Info("使用配置文件: %s", configPath)
		}

		// 创建Engine
		eng, err := buildEngine(serverManifests, nil)
		if err != nil {
			output.Error("创建Engine失败: %v", err)
			return err
		}

		// 启动Engine
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := eng.Start(ctx); err != nil {
			output.Error("启动Engine失败: %v", err)
			eng.Stop()
			return err
		}

		// 命令行参数优先于配置文件
		cfg := api.ServerConfigFrom(eng.Config())
		if cmd.Flags().Changed("host") {
			cfg.Host = serverHost
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = serverPort
		}

		// 创建并启动API服务器
		apiServer := api.NewAPIServer(eng, cfg, Version)
		serveErr := make(chan error, 1)
		go func() {
			serveErr <- apiServer.Start()
		}()
		output.Success("Frame Scheduler Server started on %s", apiServer.Addr())

		loopDone := make(chan struct{})
		if serverLoop {
			frames := serverFrames
			if frames == 0 {
				frames = eng.Config().FrameScheduler.Loop.Frames
			}
			go func() {
				defer close(loopDone)
				if err := eng.Run(ctx, frames); err != nil && !errors.Is(err, context.Canceled) {
					eng.Logger().Error("❌ 帧循环中断", zap.Error(err))
				}
			}()
		} else {
			close(loopDone)
		}

		// 等待中断信号或服务器异常退出
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		var runErr error
		select {
		case <-quit:
		case runErr = <-serveErr:
			if runErr != nil {
				output.Error("API服务器错误: %v", runErr)
			}
		}

		output.Info("正在关闭服务...")
		cancel()
		<-loopDone

		// 优雅关闭
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), eng.Config().FrameScheduler.Server.ShutdownTimeout)
		defer cancelShutdown()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			output.Error("关闭API服务器失败: %v", err)
		}

		eng.Stop()
		output.Success("服务已停止")
		return runErr
	},
}

func init() {
	serverStartCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "监听端口（覆盖配置）")
	serverStartCmd.Flags().StringVarP(&serverHost, "host", "H", "0.0.0.0", "监听地址（覆盖配置）")
	serverStartCmd.Flags().StringSliceVarP(&serverManifests, "manifest", "m", nil, "任务清单文件（YAML或HCL，可重复）")
	serverStartCmd.Flags().BoolVar(&serverLoop, "loop", true, "后台运行帧循环")
	serverStartCmd.Flags().Uint64VarP(&serverFrames, "frames", "n", 0, "帧循环运行帧数（0使用配置）")

	serverCmd.AddCommand(serverStartCmd)
}
