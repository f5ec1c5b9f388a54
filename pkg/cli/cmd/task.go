package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/LENAX/frame-scheduler/pkg/cli/client"
	"github.com/LENAX/frame-scheduler/pkg/cli/output"
)

var taskStage string

// taskCmd task子命令
var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "任务查询命令",
	Long:  `查询远程调度器已注册的任务及其资源声明。`,
}

// taskListCmd 列出任务
var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出已注册任务",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(serverURL)
		result, err := c.ListTasks(taskStage, 100)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		out := cmd.OutOrStdout()
		if outputJSON {
			return output.WriteJSON(out, result)
		}
		if len(result.Items) == 0 {
			fmt.Fprintln(out, "暂无任务")
			return nil
		}

		table := output.NewTable([]string{"TASK_ID", "STAGE", "READS", "WRITES", "AFTER", "LIFETIME"})
		for _, t := range result.Items {
			lifetime := "persistent"
			if !t.Persistent {
				lifetime = "one-shot"
			}
			table.AddRow(
				t.ID,
				t.Stage,
				joinOrDash(t.Reads),
				joinOrDash(t.Writes),
				joinOrDash(t.Dependencies),
				lifetime,
			)
		}
		table.RenderTo(out)
		return nil
	},
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}

func init() {
	taskListCmd.Flags().StringVar(&taskStage, "stage", "", "按阶段过滤")

	taskCmd.AddCommand(taskListCmd)
}
