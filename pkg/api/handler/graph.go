package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/frame-scheduler/pkg/api/dto"
	"github.com/LENAX/frame-scheduler/pkg/core/dag"
	"github.com/LENAX/frame-scheduler/pkg/core/engine"
)

// GraphHandler 执行计划API处理器
type GraphHandler struct {
	engine *engine.Engine
}

// NewGraphHandler 创建GraphHandler
func NewGraphHandler(eng *engine.Engine) *GraphHandler {
	return &GraphHandler{engine: eng}
}

// Get 构建当前注册表的依赖图但不执行
// GET /api/v1/graph?format=json|dot&stage=xxx
func (h *GraphHandler) Get(c *gin.Context) {
	var query dto.GraphQueryRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("查询参数错误: %v", err)))
		return
	}

	graphs, err := h.engine.Plan()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, dag.ErrCyclicDependency) || errors.Is(err, dag.ErrUnknownDependency) {
			status = http.StatusConflict
		}
		c.JSON(status, dto.NewErrorResponse(status, fmt.Sprintf("依赖图构建失败: %v", err)))
		return
	}
	if query.Stage != "" {
		filtered := graphs[:0:0]
		for _, g := range graphs {
			if g.Stage() == query.Stage {
				filtered = append(filtered, g)
			}
		}
		graphs = filtered
	}

	if query.GetDefaultFormat() == "dot" {
		var buf bytes.Buffer
		for _, g := range graphs {
			if err := g.ExportDOT(&buf, dag.DOTWithGraphName(g.Stage())); err != nil {
				c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("导出DOT失败: %v", err)))
				return
			}
		}
		c.Data(http.StatusOK, "text/vnd.graphviz; charset=utf-8", buf.Bytes())
		return
	}

	resp := dto.GraphResponse{Stages: make([]dto.StageGraph, 0, len(graphs))}
	for _, g := range graphs {
		resp.Stages = append(resp.Stages, dto.NewStageGraph(g))
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(resp))
}
