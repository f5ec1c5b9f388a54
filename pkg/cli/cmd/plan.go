package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LENAX/frame-scheduler/pkg/api/dto"
	"github.com/LENAX/frame-scheduler/pkg/cli/client"
	"github.com/LENAX/frame-scheduler/pkg/cli/output"
)

var (
	planManifests []string
	planDOT       bool
	planRemote    bool
)

// planCmd 构建依赖图但不执行
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "输出每个阶段的依赖图与并行分层",
	Long: `构建每个阶段的依赖图但不执行任何任务。

默认从本地任务清单构建；--remote 时查询 --server 指定的调度器。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if planRemote {
			c := client.New(serverURL)
			if planDOT {
				dot, err := c.GraphDOT()
				if err != nil {
					output.Error("查询失败: %v", err)
					return err
				}
				fmt.Fprint(out, dot)
				return nil
			}
			graph, err := c.Graph()
			if err != nil {
				output.Error("查询失败: %v", err)
				return err
			}
			return renderPlan(cmd, graph.Stages)
		}

		eng, err := buildEngine(planManifests, zap.NewNop())
		if err != nil {
			output.Error("创建引擎失败: %v", err)
			return err
		}
		defer eng.Stop()

		graphs, err := eng.Plan()
		if err != nil {
			output.Error("依赖图构建失败: %v", err)
			return err
		}
		if planDOT {
			for _, g := range graphs {
				if err := g.ExportDOT(out); err != nil {
					return err
				}
			}
			return nil
		}

		stages := make([]dto.StageGraph, 0, len(graphs))
		for _, g := range graphs {
			stages = append(stages, dto.NewStageGraph(g))
		}
		return renderPlan(cmd, stages)
	},
}

func renderPlan(cmd *cobra.Command, stages []dto.StageGraph) error {
	out := cmd.OutOrStdout()
	if outputJSON {
		return output.WriteJSON(out, stages)
	}
	if len(stages) == 0 {
		fmt.Fprintln(out, "暂无任务")
		return nil
	}

	for i, st := range stages {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "Stage %s (%d tasks, %d edges)\n", st.Stage, len(st.Nodes), len(st.Edges))
		levels := output.NewTable([]string{"LEVEL", "TASKS"})
		for n, level := range st.Levels {
			levels.AddRow(strconv.Itoa(n), strings.Join(level, ", "))
		}
		levels.RenderTo(out)

		if len(st.Edges) == 0 {
			continue
		}
		fmt.Fprintln(out)
		edges := output.NewTable([]string{"FROM", "TO", "KIND", "RESOURCE"})
		for _, e := range st.Edges {
			res := e.Resource
			if res == "" {
				res = "-"
			}
			edges.AddRow(e.From, e.To, e.Kind, res)
		}
		edges.RenderTo(out)
	}
	return nil
}

func init() {
	planCmd.Flags().StringSliceVarP(&planManifests, "manifest", "m", nil, "任务清单文件（YAML或HCL，可重复）")
	planCmd.Flags().BoolVar(&planDOT, "dot", false, "输出Graphviz DOT")
	planCmd.Flags().BoolVar(&planRemote, "remote", false, "查询远程调度器而不是本地清单")
}
