package dag

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/frame-scheduler/pkg/core/resource"
	"github.com/LENAX/frame-scheduler/pkg/core/task"
)

func snap(tasks ...task.Task) task.Snapshot { return task.NewSnapshot(tasks...) }

func TestBuild_DeclaredDependencies(t *testing.T) {
	g, err := Build(snap(
		task.New("task1", nil),
		task.New("task2", nil, task.After("task1")),
		task.New("task3", nil, task.After("task1")),
		task.New("task4", nil, task.After("task2", "task3")),
	))
	require.NoError(t, err)

	assert.Equal(t, 4, g.Len())
	i2, _ := g.Index("task2")
	i4, _ := g.Index("task4")
	assert.Equal(t, 1, g.InDegree(i2))
	assert.Equal(t, 2, g.InDegree(i4))
	assert.True(t, g.HasEdge("task1", "task2"))
	assert.False(t, g.HasEdge("task2", "task1"))

	assert.Equal(t, []string{"task1"}, g.Roots())
	children, err := g.Children("task1")
	require.NoError(t, err)
	assert.Equal(t, []string{"task2", "task3"}, children)
	parents, err := g.Parents("task4")
	require.NoError(t, err)
	assert.Equal(t, []string{"task2", "task3"}, parents)

	assert.Equal(t, [][]string{{"task1"}, {"task2", "task3"}, {"task4"}}, g.Levels().Levels)
}

func TestBuild_ConflictEdges(t *testing.T) {
	g, err := Build(snap(
		task.New("reader1", nil, task.Reads("pos")),
		task.New("reader2", nil, task.Reads("pos")),
		task.New("writer", nil, task.Writes("pos")),
		task.New("other", nil, task.Writes("vel")),
	))
	require.NoError(t, err)

	assert.False(t, g.HasEdge("reader1", "reader2"), "读读不产生边")
	assert.True(t, g.HasEdge("reader1", "writer"), "按注册顺序定向")
	assert.True(t, g.HasEdge("reader2", "writer"))
	assert.Empty(t, g.Successors(3))

	for _, e := range g.Edges() {
		assert.Equal(t, EdgeConflict, e.Kind)
		assert.Equal(t, resource.ID("pos"), e.Resource)
	}
	assert.Equal(t, [][]string{{"reader1", "reader2", "other"}, {"writer"}}, g.Levels().Levels)
}

func TestBuild_ConflictFollowsDeclaredOrder(t *testing.T) {
	// 显式依赖 b -> a 与冲突边方向相反时不产生环
	g, err := Build(snap(
		task.New("a", nil, task.Writes("r"), task.After("b")),
		task.New("b", nil, task.Writes("r")),
	))
	require.NoError(t, err)
	assert.True(t, g.HasEdge("b", "a"))
	assert.False(t, g.HasEdge("a", "b"))
	assert.Len(t, g.Edges(), 1)

	// 间接路径 c -> m -> a 决定冲突边方向
	g, err = Build(snap(
		task.New("a", nil, task.Writes("r"), task.After("m")),
		task.New("c", nil, task.Writes("r")),
		task.New("m", nil, task.After("c")),
	))
	require.NoError(t, err)
	assert.True(t, g.HasEdge("c", "a"))
	assert.False(t, g.HasEdge("a", "c"))
}

func TestBuild_Deterministic(t *testing.T) {
	build := func() []Edge {
		g, err := Build(snap(
			task.New("input", nil, task.Writes("input")),
			task.New("move", nil, task.Reads("input", "time"), task.Writes("pos")),
			task.New("collide", nil, task.Writes("pos"), task.After("move")),
			task.New("draw", nil, task.Reads("pos")),
		))
		require.NoError(t, err)
		return g.Edges()
	}
	first := build()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, build())
	}
}

func TestBuild_Cycle(t *testing.T) {
	_, err := Build(snap(
		task.New("task1", nil, task.After("task3")),
		task.New("task2", nil, task.After("task1")),
		task.New("task3", nil, task.After("task2")),
	), WithStage("update"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCyclicDependency))

	var cycErr *CyclicDependencyError
	require.True(t, errors.As(err, &cycErr))
	assert.Equal(t, "update", cycErr.Stage)
	require.Len(t, cycErr.TaskIDs, 4)
	assert.Equal(t, cycErr.TaskIDs[0], cycErr.TaskIDs[3], "环首尾相同")
	assert.ElementsMatch(t, []string{"task1", "task2", "task3"}, cycErr.TaskIDs[:3])
}

func TestBuild_SelfDependency(t *testing.T) {
	_, err := Build(snap(task.New("loop", nil, task.After("loop"))))
	var cycErr *CyclicDependencyError
	require.True(t, errors.As(err, &cycErr))
	assert.Equal(t, []string{"loop", "loop"}, cycErr.TaskIDs)
}

func TestBuild_UnknownDependency(t *testing.T) {
	_, err := Build(snap(task.New("a", nil, task.After("ghost"))))
	assert.True(t, errors.Is(err, ErrUnknownDependency))
	var depErr *UnknownDependencyError
	require.True(t, errors.As(err, &depErr))
	assert.Equal(t, "ghost", depErr.Dependency)

	g, err := Build(snap(task.New("a", nil, task.After("ghost"))), WithExternal("ghost"))
	require.NoError(t, err)
	assert.Equal(t, 0, g.InDegree(0), "之前阶段的依赖视为已满足")
}

func TestBuild_Empty(t *testing.T) {
	g, err := Build(snap())
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
	assert.Empty(t, g.Roots())
	assert.Empty(t, g.Levels().Levels)
}

func TestExportDOT(t *testing.T) {
	g, err := Build(snap(
		task.New("a", nil, task.Writes("r")),
		task.New("b", nil, task.Reads("r")),
		task.New("c", nil, task.After("a")),
	), WithStage("update"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, g.ExportDOT(&buf))
	out := buf.String()
	assert.Contains(t, out, `digraph "update" {`)
	assert.Contains(t, out, `"a" -> "b" [style=dashed, label="r"];`)
	assert.Contains(t, out, `"a" -> "c";`)

	assert.True(t, errors.Is(g.ExportDOT(nil), ErrNilWriter))
}
