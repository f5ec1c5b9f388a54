package trace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/frame-scheduler/pkg/core/dag"
	"github.com/LENAX/frame-scheduler/pkg/core/task"
)

func TestRecorder_Spans(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.Begin("cycle-1", 3, nil))
	assert.True(t, r.Active())
	assert.ErrorIs(t, r.Begin("cycle-2", 4, nil), ErrRecorderActive)

	t0 := time.Now()
	r.Record(Event{Kind: EventTaskStarted, Stage: "default", TaskID: "a", Worker: 1, At: t0, Status: "running"})
	r.Record(Event{Kind: EventTaskStarted, Stage: "default", TaskID: "b", Worker: 2, At: t0.Add(time.Millisecond), Status: "running"})
	r.Record(Event{Kind: EventTaskFinished, Stage: "default", TaskID: "a", Worker: 1, At: t0.Add(5 * time.Millisecond), Status: "success"})
	r.Record(Event{Kind: EventTaskFinished, Stage: "default", TaskID: "b", Worker: 2, At: t0.Add(3 * time.Millisecond), Status: "failed", Error: "boom"})
	r.Record(Event{Kind: EventTaskFinished, Stage: "default", TaskID: "c", At: t0.Add(6 * time.Millisecond), Status: "skipped"})

	tr, err := r.Finish()
	require.NoError(t, err)
	assert.False(t, r.Active())
	assert.Equal(t, "cycle-1", tr.CycleID)
	assert.Equal(t, uint64(3), tr.Frame)
	assert.False(t, tr.Incomplete)
	assert.NoError(t, tr.Err())

	assert.Equal(t, []string{"a", "b", "c"}, tr.Order())
	assert.True(t, tr.Overlaps("a", "b"))
	assert.False(t, tr.Overlaps("a", "c"))

	b, ok := tr.Span("b")
	require.True(t, ok)
	assert.Equal(t, "boom", b.Error)
	assert.Equal(t, 2, b.Worker)
	assert.Equal(t, 2*time.Millisecond, b.Duration())
	assert.Equal(t, 1, tr.Count("skipped"))

	// 结束后的事件被忽略
	r.Record(Event{Kind: EventTaskStarted, TaskID: "late"})
	_, err = r.Finish()
	assert.ErrorIs(t, err, ErrRecorderIdle)
}

func TestRecorder_OverflowMarksIncomplete(t *testing.T) {
	r := NewRecorder(WithBufferSize(2))
	// 手动挂载会话，drain尚未启动，缓冲区满后的事件必然被丢弃
	s := &session{
		trace:  &ExecutionTrace{CycleID: "overflow", StartedAt: time.Now()},
		events: make(chan Event, 2),
		done:   make(chan struct{}),
	}
	r.active = s

	for i := 0; i < 5; i++ {
		r.Record(Event{Kind: EventTaskStarted, TaskID: fmt.Sprintf("t%d", i), At: time.Now()})
	}
	go s.drain()

	tr, err := r.Finish()
	require.NoError(t, err)
	assert.True(t, tr.Incomplete)
	assert.Equal(t, int64(3), tr.Dropped)
	assert.Len(t, tr.Spans, 2)
	assert.True(t, errors.Is(tr.Err(), ErrTraceOverflow))
}

func TestRecorder_NeverBlocks(t *testing.T) {
	r := NewRecorder(WithBufferSize(1))
	require.NoError(t, r.Begin("fast", 0, nil))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			r.Record(Event{Kind: EventTaskStarted, TaskID: fmt.Sprintf("t%d", i), At: time.Now()})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Record 阻塞")
	}
	tr, err := r.Finish()
	require.NoError(t, err)
	assert.Equal(t, int64(10000), int64(len(tr.Spans))+tr.Dropped)
}

func TestShapeOf(t *testing.T) {
	g, err := dag.Build(task.NewSnapshot(
		task.New("a", nil, task.Writes("r")),
		task.New("b", nil, task.Reads("r")),
	), dag.WithStage("update"))
	require.NoError(t, err)

	shape := ShapeOf(g)
	assert.Equal(t, "update", shape.Stage)
	assert.Equal(t, []string{"a", "b"}, shape.Nodes)
	require.Len(t, shape.Edges, 1)
	assert.Equal(t, ShapeEdge{From: "a", To: "b", Kind: "conflict", Resource: "r"}, shape.Edges[0])
}

func TestExecutionTrace_JSON(t *testing.T) {
	tr := &ExecutionTrace{
		CycleID: "c1",
		Frame:   9,
		Stages:  []GraphShape{{Stage: "default", Nodes: []string{"a"}, Edges: []ShapeEdge{}}},
		Spans:   []Span{{Stage: "default", TaskID: "a", Status: "success"}},
	}
	raw, err := json.Marshal(tr)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"cycle_id":"c1"`)
	assert.NotContains(t, string(raw), `"error"`)
	assert.Equal(t, 1, tr.TaskCount())
}

func TestRing(t *testing.T) {
	ring := NewRing(2)
	_, ok := ring.Latest()
	assert.False(t, ok)

	for i := 1; i <= 3; i++ {
		ring.Push(&ExecutionTrace{CycleID: fmt.Sprintf("c%d", i)})
	}
	assert.Equal(t, 2, ring.Len())

	list := ring.List(0)
	require.Len(t, list, 2)
	assert.Equal(t, "c3", list[0].CycleID)
	assert.Equal(t, "c2", list[1].CycleID)

	_, ok = ring.Get("c1")
	assert.False(t, ok, "最旧的被覆盖")
	latest, ok := ring.Latest()
	require.True(t, ok)
	assert.Equal(t, "c3", latest.CycleID)
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(&ExecutionTrace{CycleID: "bus-1", Frame: 2, EndedAt: time.Now()}))

	select {
	case got := <-ch:
		assert.Equal(t, "bus-1", got.CycleID)
		assert.Equal(t, uint64(2), got.Frame)
	case <-time.After(5 * time.Second):
		t.Fatal("未收到轨迹")
	}
}
