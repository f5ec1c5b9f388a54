package dag

import (
	"github.com/LENAX/frame-scheduler/pkg/core/resource"
	"github.com/LENAX/frame-scheduler/pkg/core/task"
)

// Node 图节点（对外导出）
// Index 为节点在arena中的下标，按注册顺序分配
type Node struct {
	Index int
	Task  task.Task
}

// ID 节点ID，同时满足go-dag的顶点接口
func (n *Node) ID() string { return n.Task.ID() }

// EdgeKind 边的来源
type EdgeKind string

const (
	// EdgeDeclared 显式声明的依赖
	EdgeDeclared EdgeKind = "declared"
	// EdgeConflict 资源冲突推导出的边
	EdgeConflict EdgeKind = "conflict"
)

// Edge 有向边 From -> To（对外导出）
type Edge struct {
	From     int
	To       int
	Kind     EdgeKind
	Resource resource.ID // 仅冲突边
}

// TopologicalOrder 拓扑排序结果（对外导出）
type TopologicalOrder struct {
	Levels [][]string // 每一层的Task ID列表，可以并行执行
}
