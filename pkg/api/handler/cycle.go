package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/frame-scheduler/pkg/api/dto"
	"github.com/LENAX/frame-scheduler/pkg/core/engine"
	"github.com/LENAX/frame-scheduler/pkg/core/trace"
	"github.com/LENAX/frame-scheduler/pkg/storage"
)

// CycleHandler 周期轨迹API处理器
type CycleHandler struct {
	engine *engine.Engine
}

// NewCycleHandler 创建CycleHandler
func NewCycleHandler(eng *engine.Engine) *CycleHandler {
	return &CycleHandler{engine: eng}
}

// List 列出最近的周期轨迹
// GET /api/v1/cycles?limit=20&offset=0&source=memory|store
func (h *CycleHandler) List(c *gin.Context) {
	var query dto.CycleQueryRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("查询参数错误: %v", err)))
		return
	}
	limit := query.GetDefaultLimit()
	offset := query.Offset

	if query.GetDefaultSource() == "store" {
		repo := h.engine.Repository()
		if repo == nil {
			c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse(503, "轨迹存储未配置"))
			return
		}
		// 多取一条用于判断是否还有更多
		rows, err := repo.List(c.Request.Context(), limit+1, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询轨迹失败: %v", err)))
			return
		}
		hasMore := len(rows) > limit
		if hasMore {
			rows = rows[:limit]
		}
		items := make([]dto.CycleSummary, 0, len(rows))
		for _, row := range rows {
			items = append(items, storedSummary(row))
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.CycleSummary]{
			Total:   offset + len(items),
			Items:   items,
			HasMore: hasMore,
		}))
		return
	}

	traces := h.engine.Ring().List(0)
	total := len(traces)
	if offset >= total {
		traces = nil
	} else {
		end := offset + limit
		if end > total {
			end = total
		}
		traces = traces[offset:end]
	}
	items := make([]dto.CycleSummary, 0, len(traces))
	for _, t := range traces {
		items = append(items, memorySummary(t))
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.CycleSummary]{
		Total:   total,
		Items:   items,
		HasMore: offset+len(items) < total,
	}))
}

// Get 获取单个周期的完整轨迹，先查内存再查存储
// GET /api/v1/cycles/:id
func (h *CycleHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if t, ok := h.engine.Ring().Get(id); ok {
		c.JSON(http.StatusOK, dto.NewSuccessResponse(t))
		return
	}

	repo := h.engine.Repository()
	if repo == nil {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, fmt.Sprintf("周期不存在: %s", id)))
		return
	}
	t, err := repo.GetByCycleID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, fmt.Sprintf("周期不存在: %s", id)))
			return
		}
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询轨迹失败: %v", err)))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(t))
}

func memorySummary(t *trace.ExecutionTrace) dto.CycleSummary {
	return dto.CycleSummary{
		CycleID:    t.CycleID,
		Frame:      t.Frame,
		StartedAt:  t.StartedAt,
		EndedAt:    t.EndedAt,
		Duration:   formatDuration(t.Duration()),
		TaskCount:  t.TaskCount(),
		Failed:     t.Count("failed") + t.Count("timeout"),
		Incomplete: t.Incomplete,
		Source:     "memory",
	}
}

func storedSummary(s *storage.TraceSummary) dto.CycleSummary {
	return dto.CycleSummary{
		CycleID:    s.CycleID,
		Frame:      s.Frame,
		StartedAt:  s.StartedAt,
		EndedAt:    s.EndedAt,
		Duration:   formatDuration(s.EndedAt.Sub(s.StartedAt)),
		TaskCount:  s.TaskCount,
		Failed:     s.Failed,
		Incomplete: s.Incomplete,
		Source:     "store",
	}
}
