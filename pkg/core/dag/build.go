package dag

import (
	"fmt"

	godag "github.com/begmaroman/go-dag"

	"github.com/LENAX/frame-scheduler/pkg/core/resource"
	"github.com/LENAX/frame-scheduler/pkg/core/task"
)

// BuildOption 构建选项
type BuildOption func(*buildOptions)

type buildOptions struct {
	stage    string
	external map[string]bool
}

// WithStage 指定图所属阶段（仅用于展示与错误信息）
func WithStage(stage string) BuildOption {
	return func(o *buildOptions) { o.stage = stage }
}

// WithExternal 声明已在之前阶段完成的任务，对它们的依赖视为已满足
func WithExternal(ids ...string) BuildOption {
	return func(o *buildOptions) {
		for _, id := range ids {
			o.external[id] = true
		}
	}
}

// Build 从任务快照构建依赖图（对外导出）
// 1. 为每个显式依赖加边（依赖 -> 任务）
// 2. 为每对访问同一资源且至少一方为写的任务加冲突边，默认按注册顺序定向；
//    两者之间已有路径时沿该路径方向定向
// 3. DFS三色标记检测环，有环时返回*CyclicDependencyError，不返回部分图
func Build(snap task.Snapshot, opts ...BuildOption) (*Graph, error) {
	o := buildOptions{stage: task.DefaultStage, external: make(map[string]bool)}
	for _, opt := range opts {
		opt(&o)
	}

	tasks := snap.Tasks()
	g := newGraph(o.stage, len(tasks))
	for i, t := range tasks {
		if _, exists := g.index[t.ID()]; exists {
			return nil, fmt.Errorf("%w: %s", task.ErrDuplicateTask, t.ID())
		}
		g.index[t.ID()] = i
		g.nodes = append(g.nodes, &Node{Index: i, Task: t})
	}

	// 1. 显式依赖
	for i, t := range tasks {
		for _, dep := range t.Dependencies() {
			from, ok := g.index[dep]
			if !ok {
				if o.external[dep] {
					continue
				}
				return nil, &UnknownDependencyError{TaskID: t.ID(), Dependency: dep}
			}
			g.addEdge(from, i, EdgeDeclared, "")
		}
	}

	// 2. 资源冲突边
	accesses := make([][]resource.Access, len(tasks))
	for i, t := range tasks {
		accesses[i] = task.AccessesOf(t)
	}
	for i := 0; i < len(tasks); i++ {
		if len(accesses[i]) == 0 {
			continue
		}
		for j := i + 1; j < len(tasks); j++ {
			res, conflict := resource.FirstConflict(accesses[i], accesses[j])
			if !conflict {
				continue
			}
			if g.hasEdge(i, j) || g.hasEdge(j, i) {
				continue
			}
			if g.reachable(j, i) {
				g.addEdge(j, i, EdgeConflict, res)
			} else {
				g.addEdge(i, j, EdgeConflict, res)
			}
		}
	}

	// 3. 环检测
	if hasCycle, path := detectCycleDFS(g.succ); hasCycle {
		ids := make([]string, len(path))
		for k, idx := range path {
			ids[k] = g.nodes[idx].ID()
		}
		return nil, &CyclicDependencyError{Stage: o.stage, TaskIDs: ids}
	}

	for i := range g.nodes {
		g.inDegree[i] = len(g.pred[i])
	}
	if err := g.mirror(); err != nil {
		return nil, err
	}
	return g, nil
}

// detectCycleDFS 使用DFS检测图中是否存在环
// 三色标记：0=未访问，1=访问中，2=已访问；返回的环路径首尾相同
func detectCycleDFS(succ [][]int) (bool, []int) {
	color := make([]int, len(succ))
	parent := make([]int, len(succ))
	for i := range parent {
		parent[i] = -1
	}
	var cycle []int

	var dfs func(n int) bool
	dfs = func(n int) bool {
		color[n] = 1
		for _, child := range succ[n] {
			switch color[child] {
			case 0:
				parent[child] = n
				if dfs(child) {
					return true
				}
			case 1:
				// 回边 n -> child，沿parent回溯得到 child ... n
				rev := []int{n}
				for cur := n; cur != child && parent[cur] != -1; {
					cur = parent[cur]
					rev = append(rev, cur)
				}
				for k := len(rev) - 1; k >= 0; k-- {
					cycle = append(cycle, rev[k])
				}
				cycle = append(cycle, child)
				return true
			}
		}
		color[n] = 2
		return false
	}

	for n := range succ {
		if color[n] == 0 && dfs(n) {
			return true, cycle
		}
	}
	return false, nil
}

// mirror 把图结构复制到go-dag实例，用于父子/根节点查询
func (g *Graph) mirror() error {
	d := godag.NewDAG[*Node]()
	for _, n := range g.nodes {
		if _, err := d.AddVertex(n); err != nil {
			return fmt.Errorf("添加节点失败: Task ID=%s, Error=%w", n.ID(), err)
		}
	}
	for _, e := range g.edges {
		from, to := g.nodes[e.From].ID(), g.nodes[e.To].ID()
		if err := d.AddEdge(from, to); err != nil {
			return fmt.Errorf("添加边失败: %s -> %s, Error=%w", from, to, err)
		}
	}
	g.shape = d
	return nil
}
