package dag

import (
	"fmt"
	"io"
	"strings"
)

// DOTOption 配置ExportDOT
type DOTOption func(*dotConfig)

type dotConfig struct {
	graphName string
	rankDir   string
}

// DOTWithGraphName 覆盖DOT图名称
func DOTWithGraphName(name string) DOTOption {
	return func(cfg *dotConfig) {
		if name != "" {
			cfg.graphName = name
		}
	}
}

// DOTWithRankDir 设置布局方向（LR、TB等）
func DOTWithRankDir(rankDir string) DOTOption {
	return func(cfg *dotConfig) {
		if rankDir != "" {
			cfg.rankDir = rankDir
		}
	}
}

// ExportDOT 以Graphviz DOT格式输出依赖图（对外导出）
// 冲突边以虚线绘制并标注资源名
func (g *Graph) ExportDOT(w io.Writer, opts ...DOTOption) error {
	if w == nil {
		return ErrNilWriter
	}
	cfg := dotConfig{graphName: g.stage, rankDir: "LR"}
	for _, opt := range opts {
		opt(&cfg)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n", dotQuote(cfg.graphName))
	if cfg.rankDir != "" {
		fmt.Fprintf(&b, "    rankdir=%s;\n", cfg.rankDir)
	}
	for _, n := range g.nodes {
		fmt.Fprintf(&b, "    %s;\n", dotQuote(n.ID()))
	}
	for _, e := range g.edges {
		from, to := dotQuote(g.nodes[e.From].ID()), dotQuote(g.nodes[e.To].ID())
		if e.Kind == EdgeConflict {
			fmt.Fprintf(&b, "    %s -> %s [style=dashed, label=%s];\n", from, to, dotQuote(string(e.Resource)))
			continue
		}
		fmt.Fprintf(&b, "    %s -> %s;\n", from, to)
	}
	b.WriteString("}\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func dotQuote(name string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range name {
		switch r {
		case '\\', '"':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
