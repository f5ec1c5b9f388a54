package dto

import (
	"time"

	"github.com/LENAX/frame-scheduler/pkg/core/dag"
)

// APIResponse 通用API响应结构
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) APIResponse[any] {
	return APIResponse[any]{
		Code:    code,
		Message: message,
	}
}

// CycleSummary 周期轨迹摘要信息
type CycleSummary struct {
	CycleID    string    `json:"cycle_id"`
	Frame      uint64    `json:"frame"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	Duration   string    `json:"duration"`
	TaskCount  int       `json:"task_count"`
	Failed     int       `json:"failed"`
	Incomplete bool      `json:"incomplete"`
	Source     string    `json:"source"` // memory 或 store
}

// TaskSummary Task摘要信息
type TaskSummary struct {
	ID           string            `json:"id"`
	Stage        string            `json:"stage"`
	Description  string            `json:"description,omitempty"`
	Reads        []string          `json:"reads,omitempty"`
	Writes       []string          `json:"writes,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Persistent   bool              `json:"persistent"`
	Timeout      string            `json:"timeout,omitempty"`
	Params       map[string]string `json:"params,omitempty"`
}

// StageGraph 单个阶段的依赖图
type StageGraph struct {
	Stage  string      `json:"stage"`
	Nodes  []string    `json:"nodes"`
	Edges  []GraphEdge `json:"edges"`
	Levels [][]string  `json:"levels"`
	Roots  []string    `json:"roots"`
}

// NewStageGraph 从依赖图构建响应
func NewStageGraph(g *dag.Graph) StageGraph {
	sg := StageGraph{
		Stage:  g.Stage(),
		Nodes:  g.IDs(),
		Edges:  make([]GraphEdge, 0),
		Levels: g.Levels().Levels,
		Roots:  g.Roots(),
	}
	for _, e := range g.Edges() {
		sg.Edges = append(sg.Edges, GraphEdge{
			From:     g.Node(e.From).ID(),
			To:       g.Node(e.To).ID(),
			Kind:     string(e.Kind),
			Resource: string(e.Resource),
		})
	}
	return sg
}

// GraphEdge 依赖图的边
type GraphEdge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Kind     string `json:"kind"`
	Resource string `json:"resource,omitempty"`
}

// GraphResponse 执行计划响应
type GraphResponse struct {
	Stages []StageGraph `json:"stages"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// ListResponse 列表响应
type ListResponse[T any] struct {
	Total   int  `json:"total"`
	Items   []T  `json:"items"`
	HasMore bool `json:"has_more"`
}

// StreamMessage WebSocket 消息结构
type StreamMessage struct {
	Type    string      `json:"type"`              // 消息类型：subscribed/trace/error
	Message string      `json:"message,omitempty"` // 消息说明
	Data    interface{} `json:"data,omitempty"`    // 数据内容
}
