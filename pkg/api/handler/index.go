package handler

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/frame-scheduler/pkg/api/dto"
	"github.com/LENAX/frame-scheduler/pkg/core/engine"
)

// IndexTemplate 调试首页模板名称
const IndexTemplate = "index.html"

// indexRecent 首页展示的最近周期数量
const indexRecent = 10

// IndexTemplates 调试首页模板，由路由通过SetHTMLTemplate加载
var IndexTemplates = template.Must(template.New(IndexTemplate).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Instance}} - frame scheduler</title></head>
<body>
<h1 id="instance">{{.Instance}}</h1>
<p id="version">version {{.Version}}</p>
<table id="stats">
<tr><th>running</th><td class="running">{{.Stats.Running}}</td></tr>
<tr><th>frame</th><td class="frame">{{.Stats.Frame}}</td></tr>
<tr><th>cycles</th><td class="cycles">{{.Stats.Cycles}}</td></tr>
<tr><th>failed cycles</th><td class="failed-cycles">{{.Stats.FailedCycles}}</td></tr>
<tr><th>aborted cycles</th><td class="aborted-cycles">{{.Stats.AbortedCycles}}</td></tr>
<tr><th>workers</th><td class="workers">{{.Stats.Pool.Workers}}</td></tr>
</table>
<h2>Stages</h2>
<ol id="stages">{{range .Stages}}<li>{{.}}</li>{{end}}</ol>
<h2>Tasks</h2>
<table id="tasks">
<tr><th>id</th><th>stage</th><th>reads</th><th>writes</th><th>after</th></tr>
{{range .Tasks}}<tr class="task" data-id="{{.ID}}"><td>{{.ID}}</td><td>{{.Stage}}</td><td>{{range .Reads}}{{.}} {{end}}</td><td>{{range .Writes}}{{.}} {{end}}</td><td>{{range .Dependencies}}{{.}} {{end}}</td></tr>
{{end}}</table>
<h2>Recent cycles</h2>
<table id="cycles">
<tr><th>cycle</th><th>frame</th><th>tasks</th><th>failed</th><th>duration</th></tr>
{{range .Cycles}}<tr class="cycle" data-id="{{.CycleID}}"><td><a href="/api/v1/cycles/{{.CycleID}}">{{.CycleID}}</a></td><td>{{.Frame}}</td><td>{{.TaskCount}}</td><td>{{.Failed}}</td><td>{{.Duration}}</td></tr>
{{end}}</table>
<p><a href="/api/v1/graph?format=dot">graph (dot)</a> · <a href="/api/v1/stats">stats</a></p>
</body>
</html>`))

// IndexHandler 调试首页处理器
type IndexHandler struct {
	engine  *engine.Engine
	version string
}

// NewIndexHandler 创建IndexHandler
func NewIndexHandler(eng *engine.Engine, version string) *IndexHandler {
	return &IndexHandler{engine: eng, version: version}
}

// Index 调试首页
// GET /
func (h *IndexHandler) Index(c *gin.Context) {
	tasks := make([]dto.TaskSummary, 0)
	for _, t := range h.engine.Tasks() {
		tasks = append(tasks, taskSummary(t))
	}
	cycles := make([]dto.CycleSummary, 0, indexRecent)
	for _, t := range h.engine.Ring().List(indexRecent) {
		cycles = append(cycles, memorySummary(t))
	}

	c.HTML(http.StatusOK, IndexTemplate, gin.H{
		"Instance": h.engine.Config().FrameScheduler.General.InstanceName,
		"Version":  h.version,
		"Stats":    h.engine.Stats(),
		"Stages":   h.engine.StageOrder(),
		"Tasks":    tasks,
		"Cycles":   cycles,
	})
}
