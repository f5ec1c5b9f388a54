package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/frame-scheduler/pkg/api/dto"
	"github.com/LENAX/frame-scheduler/pkg/core/engine"
	"github.com/LENAX/frame-scheduler/pkg/core/resource"
	"github.com/LENAX/frame-scheduler/pkg/core/task"
)

// TaskHandler 任务API处理器
type TaskHandler struct {
	engine *engine.Engine
}

// NewTaskHandler 创建TaskHandler
func NewTaskHandler(eng *engine.Engine) *TaskHandler {
	return &TaskHandler{engine: eng}
}

// List 按注册顺序列出任务
// GET /api/v1/tasks?stage=xxx&limit=20&offset=0
func (h *TaskHandler) List(c *gin.Context) {
	var query dto.ListQueryRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("查询参数错误: %v", err)))
		return
	}

	var all []dto.TaskSummary
	for _, t := range h.engine.Tasks() {
		if query.Stage != "" && task.StageOf(t) != query.Stage {
			continue
		}
		all = append(all, taskSummary(t))
	}

	// 分页
	limit := query.GetDefaultLimit()
	offset := query.Offset
	total := len(all)
	items := []dto.TaskSummary{}
	if offset < total {
		end := offset + limit
		if end > total {
			end = total
		}
		items = all[offset:end]
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.TaskSummary]{
		Total:   total,
		Items:   items,
		HasMore: offset+len(items) < total,
	}))
}

func taskSummary(t task.Task) dto.TaskSummary {
	s := dto.TaskSummary{
		ID:           t.ID(),
		Stage:        task.StageOf(t),
		Dependencies: t.Dependencies(),
		Persistent:   task.IsPersistent(t),
		Params:       task.ParamsOf(t),
	}
	if d, ok := t.(interface{ Description() string }); ok {
		s.Description = d.Description()
	}
	if timeout := task.TimeoutOf(t); timeout > 0 {
		s.Timeout = timeout.String()
	}
	for _, a := range task.AccessesOf(t) {
		if a.Mode == resource.Write {
			s.Writes = append(s.Writes, string(a.Resource))
		} else {
			s.Reads = append(s.Reads, string(a.Resource))
		}
	}
	return s
}
