// Package dag 从任务快照构建本周期不可变的依赖图
package dag

import (
	"fmt"
	"sort"

	godag "github.com/begmaroman/go-dag"

	"github.com/LENAX/frame-scheduler/pkg/core/resource"
	"github.com/LENAX/frame-scheduler/pkg/core/task"
)

// Graph 依赖图（对外导出）
// 节点保存在按下标寻址的arena中，边为邻接表；构建完成后只读，可并发查询
type Graph struct {
	stage    string
	nodes    []*Node
	index    map[string]int
	succ     [][]int
	pred     [][]int
	inDegree []int
	edges    []Edge
	edgeSet  map[[2]int]struct{}
	shape    *godag.DAG[*Node]
}

func newGraph(stage string, n int) *Graph {
	return &Graph{
		stage:    stage,
		nodes:    make([]*Node, 0, n),
		index:    make(map[string]int, n),
		succ:     make([][]int, n),
		pred:     make([][]int, n),
		inDegree: make([]int, n),
		edgeSet:  make(map[[2]int]struct{}),
	}
}

func (g *Graph) addEdge(from, to int, kind EdgeKind, res resource.ID) {
	key := [2]int{from, to}
	if _, exists := g.edgeSet[key]; exists {
		return
	}
	g.edgeSet[key] = struct{}{}
	g.succ[from] = append(g.succ[from], to)
	g.pred[to] = append(g.pred[to], from)
	g.edges = append(g.edges, Edge{From: from, To: to, Kind: kind, Resource: res})
}

func (g *Graph) hasEdge(from, to int) bool {
	_, ok := g.edgeSet[[2]int{from, to}]
	return ok
}

// reachable 判断from是否能沿已有边到达to
func (g *Graph) reachable(from, to int) bool {
	visited := make([]bool, len(g.succ))
	stack := []int{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		stack = append(stack, g.succ[n]...)
	}
	return false
}

// Stage 图所属阶段
func (g *Graph) Stage() string { return g.stage }

// Len 节点数量
func (g *Graph) Len() int { return len(g.nodes) }

// Node 按下标获取节点
func (g *Graph) Node(i int) *Node { return g.nodes[i] }

// Task 按下标获取任务
func (g *Graph) Task(i int) task.Task { return g.nodes[i].Task }

// Nodes 按注册顺序返回所有节点
func (g *Graph) Nodes() []*Node {
	return append([]*Node(nil), g.nodes...)
}

// IDs 按注册顺序返回所有任务ID
func (g *Graph) IDs() []string {
	ids := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		ids[i] = n.ID()
	}
	return ids
}

// Index 根据任务ID查找下标
func (g *Graph) Index(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Successors 下游节点下标
func (g *Graph) Successors(i int) []int {
	return append([]int(nil), g.succ[i]...)
}

// Predecessors 上游节点下标
func (g *Graph) Predecessors(i int) []int {
	return append([]int(nil), g.pred[i]...)
}

// InDegree 节点入度
func (g *Graph) InDegree(i int) int { return g.inDegree[i] }

// InDegrees 返回入度表副本，执行器在其上递减
func (g *Graph) InDegrees() []int {
	return append([]int(nil), g.inDegree...)
}

// Edges 按加入顺序返回所有边
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// HasEdge 判断是否存在边 from -> to
func (g *Graph) HasEdge(from, to string) bool {
	f, ok1 := g.index[from]
	t, ok2 := g.index[to]
	return ok1 && ok2 && g.hasEdge(f, t)
}

// Roots 入度为0的任务ID（按注册顺序）
func (g *Graph) Roots() []string {
	return g.sortedIDs(g.shape.GetRoots())
}

// Children 直接下游任务ID（按注册顺序）
func (g *Graph) Children(id string) ([]string, error) {
	children, err := g.shape.GetChildren(id)
	if err != nil {
		return nil, fmt.Errorf("获取子节点失败: %s: %w", id, err)
	}
	return g.sortedIDs(children), nil
}

// Parents 直接上游任务ID（按注册顺序）
func (g *Graph) Parents(id string) ([]string, error) {
	parents, err := g.shape.GetParents(id)
	if err != nil {
		return nil, fmt.Errorf("获取父节点失败: %s: %w", id, err)
	}
	return g.sortedIDs(parents), nil
}

func (g *Graph) sortedIDs(m map[string]godag.VHash) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return g.index[ids[a]] < g.index[ids[b]] })
	return ids
}

// Levels 执行拓扑分层（对外导出）
// 使用Kahn算法，每一层的任务之间没有边，可以并行执行；层内按注册顺序
func (g *Graph) Levels() *TopologicalOrder {
	result := &TopologicalOrder{Levels: make([][]string, 0)}
	inDegree := g.InDegrees()

	queue := make([]int, 0)
	for i, d := range inDegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}

	for len(queue) > 0 {
		sort.Ints(queue)
		level := make([]string, 0, len(queue))
		next := make([]int, 0)
		for _, n := range queue {
			level = append(level, g.nodes[n].ID())
			for _, child := range g.succ[n] {
				inDegree[child]--
				if inDegree[child] == 0 {
					next = append(next, child)
				}
			}
		}
		result.Levels = append(result.Levels, level)
		queue = next
	}
	return result
}
