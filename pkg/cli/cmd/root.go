package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// 全局变量
	serverURL  string
	outputJSON bool
	configPath string
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "frame-scheduler",
	Short: "Frame Scheduler CLI - 帧调度器命令行工具",
	Long: `Frame Scheduler CLI 用于运行和调试基于依赖图的帧调度器。

支持的功能：
  - 加载YAML/HCL任务清单并运行帧循环
  - 查看每个阶段的依赖图与并行分层（支持DOT输出）
  - 查询远程调度器的执行轨迹与任务
  - 启动HTTP调试服务

使用示例：
  # 运行100帧
  frame-scheduler run --manifest ./examples/game.yaml --frames 100

  # 输出依赖图
  frame-scheduler plan --manifest ./examples/game.hcl --dot

  # 查看最近的执行轨迹
  frame-scheduler trace list --server http://localhost:8080

  # 启动HTTP服务
  frame-scheduler server start --manifest ./examples/game.yaml --port 8080`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "调度器调试服务地址")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "使用JSON格式输出")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径（为空时使用默认配置）")

	// 添加子命令
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(versionCmd)
}
