package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/LENAX/frame-scheduler/pkg/cli/client"
	"github.com/LENAX/frame-scheduler/pkg/cli/output"
)

var (
	traceSource string
	traceLimit  int
	traceOffset int
)

// traceCmd trace子命令
var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "执行轨迹查询命令",
	Long:  `查询远程调度器记录的周期执行轨迹。`,
}

// traceListCmd 列出周期轨迹
var traceListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出最近的周期轨迹",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		result, err := c.ListCycles(traceSource, traceLimit, traceOffset)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		out := cmd.OutOrStdout()
		if outputJSON {
			return output.WriteJSON(out, result)
		}

		if len(result.Items) == 0 {
			fmt.Fprintln(out, "暂无执行轨迹")
			return nil
		}

		table := output.NewTable([]string{"CYCLE_ID", "FRAME", "STARTED", "TASKS", "FAILED", "DURATION", "INCOMPLETE"})
		for _, item := range result.Items {
			table.AddRow(
				item.CycleID,
				strconv.FormatUint(item.Frame, 10),
				item.StartedAt.Local().Format("2006-01-02 15:04:05.000"),
				strconv.Itoa(item.TaskCount),
				strconv.Itoa(item.Failed),
				item.Duration,
				strconv.FormatBool(item.Incomplete),
			)
		}
		table.RenderTo(out)
		fmt.Fprintf(out, "\n总计: %d 条记录\n", result.Total)
		return nil
	},
}

// traceShowCmd 查看单个周期轨迹
var traceShowCmd = &cobra.Command{
	Use:   "show <cycle-id>",
	Short: "查看单个周期的任务执行区间",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		tr, err := c.GetCycle(args[0])
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		out := cmd.OutOrStdout()
		if outputJSON {
			return output.WriteJSON(out, tr)
		}

		fmt.Fprintf(out, "Cycle:    %s\n", tr.CycleID)
		fmt.Fprintf(out, "Frame:    %d\n", tr.Frame)
		fmt.Fprintf(out, "Started:  %s\n", tr.StartedAt.Local().Format("2006-01-02 15:04:05.000"))
		fmt.Fprintf(out, "Duration: %s\n", tr.Duration())
		if tr.Incomplete {
			output.Warning("轨迹不完整，丢弃了 %d 个事件", tr.Dropped)
		}
		fmt.Fprintln(out)

		table := output.NewTable([]string{"STAGE", "TASK", "WORKER", "OFFSET", "DURATION", "STATUS", "ERROR"})
		for _, sp := range tr.Spans {
			offset := "-"
			if !sp.Start.IsZero() {
				offset = sp.Start.Sub(tr.StartedAt).String()
			}
			table.AddRow(
				sp.Stage,
				sp.TaskID,
				strconv.Itoa(sp.Worker),
				offset,
				sp.Duration().String(),
				output.Status(sp.Status),
				sp.Error,
			)
		}
		table.RenderTo(out)
		return nil
	},
}

func init() {
	traceListCmd.Flags().StringVar(&traceSource, "source", "memory", "数据源 (memory, store)")
	traceListCmd.Flags().IntVarP(&traceLimit, "limit", "l", 20, "返回数量限制")
	traceListCmd.Flags().IntVar(&traceOffset, "offset", 0, "分页偏移")

	traceCmd.AddCommand(traceListCmd)
	traceCmd.AddCommand(traceShowCmd)
}
