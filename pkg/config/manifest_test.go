package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/frame-scheduler/pkg/core/resource"
	"github.com/LENAX/frame-scheduler/pkg/core/task"
)

const yamlManifest = `
stages: ["update", "render"]
vars:
  step: "2"
resources:
  score: 0
  gravity: 9.5
  title: "demo"
tasks:
  - id: physics
    job: increment
    stage: update
    writes: [score]
    params:
      step: "${step}"
  - id: ai
    job: sleep
    stage: update
    reads: [score]
    after: [physics]
    timeout: 50ms
    description: "读取分数"
  - id: draw
    job: noop
    stage: render
    reads: [score, title]
    one_shot: true
`

const hclManifestSrc = `
stages = ["update", "render"]

vars = {
  step = "2"
}

resource "score" {
  value = 0
}

resource "gravity" {
  value = 9.5
}

resource "title" {
  value = "demo"
}

task "physics" {
  job    = "increment"
  stage  = "update"
  writes = ["score"]
  params = {
    step = "$${step}"
  }
}

task "ai" {
  job         = "sleep"
  stage       = "update"
  reads       = ["score"]
  after       = ["physics"]
  timeout     = "50ms"
  description = "读取分数"
}

task "draw" {
  job      = "noop"
  stage    = "render"
  reads    = ["score", "title"]
  one_shot = true
}
`

func TestParseManifest_YAMLAndHCLAgree(t *testing.T) {
	y, err := ParseManifest([]byte(yamlManifest), "tasks.yaml")
	require.NoError(t, err)
	h, err := ParseManifest([]byte(hclManifestSrc), "tasks.hcl")
	require.NoError(t, err)

	assert.Equal(t, y.Stages, h.Stages)
	assert.Equal(t, y.Vars, h.Vars)
	assert.Equal(t, y.Resources, h.Resources)
	assert.Equal(t, y.Tasks, h.Tasks)

	assert.Equal(t, 0, h.Resources["score"])
	assert.Equal(t, 9.5, h.Resources["gravity"])
	assert.Equal(t, 50*time.Millisecond, h.Tasks[1].Timeout)
	assert.True(t, h.Tasks[2].OneShot)
}

func TestManifest_BuildTasks(t *testing.T) {
	m, err := ParseManifest([]byte(yamlManifest), "tasks.yml")
	require.NoError(t, err)

	tasks, err := m.BuildTasks(task.NewDefaultJobRegistry())
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	physics := tasks[0]
	assert.Equal(t, "physics", physics.ID())
	assert.Equal(t, "update", task.StageOf(physics))
	assert.Equal(t, []resource.Access{resource.WriteOf("score")}, physics.Resources())
	assert.Equal(t, "2", task.ParamsOf(physics)["step"])

	ai := tasks[1]
	assert.Equal(t, []string{"physics"}, ai.Dependencies())
	assert.Equal(t, 50*time.Millisecond, task.TimeoutOf(ai))
	assert.True(t, task.IsPersistent(ai))

	draw := tasks[2]
	assert.Equal(t, "render", task.StageOf(draw))
	assert.False(t, task.IsPersistent(draw))
	assert.Len(t, draw.Resources(), 2)

	initial := m.InitialResources()
	assert.Equal(t, 0, initial[resource.ID("score")])
	assert.Equal(t, "demo", initial[resource.ID("title")])
}

func TestManifest_Validate(t *testing.T) {
	jobs := task.NewDefaultJobRegistry()
	cases := map[string]*Manifest{
		"重复id": {Tasks: []TaskSpec{{ID: "a", Job: "noop"}, {ID: "a", Job: "noop"}}},
		"空id":  {Tasks: []TaskSpec{{Job: "noop"}}},
		"缺少job": {Tasks: []TaskSpec{{ID: "a"}}},
		"未知job": {Tasks: []TaskSpec{{ID: "a", Job: "teleport"}}},
		"未声明阶段": {
			Stages: []string{"update"},
			Tasks:  []TaskSpec{{ID: "a", Job: "noop", Stage: "render"}},
		},
		"重复阶段":  {Stages: []string{"update", "update"}},
		"负数超时":  {Tasks: []TaskSpec{{ID: "a", Job: "noop", Timeout: -time.Second}}},
		"空资源名称": {Tasks: []TaskSpec{{ID: "a", Job: "noop", Writes: []string{""}}}},
		"未定义变量": {Tasks: []TaskSpec{{ID: "a", Job: "noop", Params: map[string]string{"n": "${missing}"}}}},
	}
	for name, m := range cases {
		err := m.Validate(jobs)
		assert.True(t, errors.Is(err, ErrInvalidManifest), name)
	}

	ok := &Manifest{Tasks: []TaskSpec{{ID: "a", Job: "teleport"}}}
	assert.NoError(t, ok.Validate(nil), "未提供Job注册表时不校验job名称")
}

func TestLoadManifest_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.hcl")
	require.NoError(t, os.WriteFile(path, []byte(hclManifestSrc), 0644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Len(t, m.Tasks, 3)

	_, err = LoadManifest(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestParseManifest_BadHCL(t *testing.T) {
	_, err := ParseManifest([]byte(`task "a" {`), "broken.hcl")
	assert.Error(t, err)

	_, err = ParseManifest([]byte(`task "a" {
  job     = "noop"
  timeout = "soon"
}`), "timeout.hcl")
	assert.Error(t, err)
}

func TestExpandParams(t *testing.T) {
	vars := map[string]string{"rate": "60", "empty": ""}

	out, err := ExpandParams(map[string]string{
		"rate":    "${rate}",
		"empty":   "${empty}",
		"literal": "rate",
		"partial": "x${rate}",
	}, vars)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"rate":    "60",
		"empty":   "",
		"literal": "rate",
		"partial": "x${rate}",
	}, out)

	_, err = ExpandParams(map[string]string{"a": "${b}", "c": "${a}"}, vars)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[a b]")

	params := map[string]string{"k": "${rate}"}
	_, err = ExpandParams(params, vars)
	require.NoError(t, err)
	assert.Equal(t, "${rate}", params["k"], "不修改原参数表")
}

func TestShippedExamplesAgree(t *testing.T) {
	y, err := LoadManifest(filepath.Join("..", "..", "examples", "game.yaml"))
	require.NoError(t, err)
	h, err := LoadManifest(filepath.Join("..", "..", "examples", "game.hcl"))
	require.NoError(t, err)

	assert.Equal(t, y.Stages, h.Stages)
	assert.Equal(t, y.Vars, h.Vars)
	assert.Equal(t, y.Resources, h.Resources)
	assert.Equal(t, y.Tasks, h.Tasks)

	tasks, err := h.BuildTasks(task.NewDefaultJobRegistry())
	require.NoError(t, err)
	require.Len(t, tasks, 5)
	assert.Equal(t, "2ms", task.ParamsOf(tasks[4])["duration"])
}
