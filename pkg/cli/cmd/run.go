package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LENAX/frame-scheduler/pkg/cli/output"
	"github.com/LENAX/frame-scheduler/pkg/core/engine"
)

var (
	runFrames    uint64
	runManifests []string
	runLast      int
)

// runCmd 本地运行帧循环
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "加载任务清单并运行帧循环",
	Long: `加载任务清单并在本地运行帧循环，结束后输出统计与最近的周期。

--frames 为0时使用配置中的 loop.frames；两者都为0时一直运行到 Ctrl+C。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine(runManifests, nil)
		if err != nil {
			output.Error("创建引擎失败: %v", err)
			return err
		}
		defer eng.Stop()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := eng.Start(ctx); err != nil {
			return err
		}

		frames := runFrames
		if frames == 0 {
			frames = eng.Config().FrameScheduler.Loop.Frames
		}
		runErr := eng.Run(ctx, frames)
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			output.Error("帧循环中断: %v", runErr)
		}

		stats := eng.Stats()
		if outputJSON {
			if err := output.WriteJSON(cmd.OutOrStdout(), stats); err != nil {
				return err
			}
			return ignoreCancel(runErr)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Frames:         %d\n", stats.Frame)
		fmt.Fprintf(out, "Cycles:         %d\n", stats.Cycles)
		fmt.Fprintf(out, "Failed cycles:  %d\n", stats.FailedCycles)
		fmt.Fprintf(out, "Aborted cycles: %d\n", stats.AbortedCycles)
		fmt.Fprintf(out, "Tasks:          %d\n\n", stats.Tasks)

		table := output.NewTable([]string{"CYCLE_ID", "FRAME", "TASKS", "FAILED", "DURATION"})
		for _, t := range eng.Ring().List(runLast) {
			table.AddRow(
				t.CycleID,
				strconv.FormatUint(t.Frame, 10),
				strconv.Itoa(t.TaskCount()),
				strconv.Itoa(t.Count("failed")+t.Count("timeout")),
				t.Duration().String(),
			)
		}
		if table.Len() > 0 {
			table.RenderTo(out)
		}
		return ignoreCancel(runErr)
	},
}

// buildEngine 按全局配置与任务清单构建引擎
func buildEngine(manifests []string, logger *zap.Logger) (*engine.Engine, error) {
	b := engine.NewEngineBuilder(configPath)
	if logger != nil {
		b.WithLogger(logger)
	}
	for _, m := range manifests {
		b.WithManifest(m)
	}
	return b.Build()
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func init() {
	runCmd.Flags().Uint64VarP(&runFrames, "frames", "n", 0, "运行帧数")
	runCmd.Flags().StringSliceVarP(&runManifests, "manifest", "m", nil, "任务清单文件（YAML或HCL，可重复）")
	runCmd.Flags().IntVar(&runLast, "last", 5, "输出最近的周期数量")
}
