package task

import (
	"sync"
	"testing"
	"time"

	"github.com/cuemby/taskrunner/pkg/memnode"
	"github.com/heimdalr/dag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// orderingContext pushes tasks into a channel in push order, so the test can
// compare the runtime's dependency-driven readiness ordering against an
// independent topological-sort oracle.
type orderingContext struct {
	mu     sync.Mutex
	pushed []ID
}

func (c *orderingContext) CanExecute(memnode.WorkerKind) bool { return true }

func (c *orderingContext) PushTask(t *Task) error {
	c.mu.Lock()
	c.pushed = append(c.pushed, t.ID)
	c.mu.Unlock()
	return nil
}

func (c *orderingContext) order() []ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ID{}, c.pushed...)
}

// TestReadinessOrderMatchesTopologicalSort builds a small diamond-shaped
// task DAG (A -> B, A -> C, B -> D, C -> D), submits it out of a
// topological order that still respects DependsOn, and checks the runtime
// only pushes each task once every predecessor named by heimdalr/dag as an
// ancestor has been marked terminated.
func TestReadinessOrderMatchesTopologicalSort(t *testing.T) {
	ctx := &orderingContext{}
	cl := &Codelet{Name: "noop", Where: memnode.KindCPU}

	a := Create(cl, nil, nil)
	b := Create(cl, nil, nil)
	c := Create(cl, nil, nil)
	d := Create(cl, nil, nil)
	b.DependsOn = []*Task{a}
	c.DependsOn = []*Task{a}
	d.DependsOn = []*Task{b, c}

	oracle := dag.NewDAG()
	vertexID := make(map[ID]string, 4)
	for _, v := range []*Task{a, b, c, d} {
		vid, err := oracle.AddVertex(string(v.ID))
		require.NoError(t, err)
		vertexID[v.ID] = vid
	}
	require.NoError(t, oracle.AddEdge(vertexID[a.ID], vertexID[b.ID]))
	require.NoError(t, oracle.AddEdge(vertexID[a.ID], vertexID[c.ID]))
	require.NoError(t, oracle.AddEdge(vertexID[b.ID], vertexID[d.ID]))
	require.NoError(t, oracle.AddEdge(vertexID[c.ID], vertexID[d.ID]))

	require.NoError(t, Submit(d, ctx))
	require.NoError(t, Submit(b, ctx))
	require.NoError(t, Submit(c, ctx))
	require.NoError(t, Submit(a, ctx))

	assert.Equal(t, []ID{a.ID}, ctx.order(), "only A has no predecessors and is pushed at submit time")

	HandleJobTermination(a.Job(), nil)
	assert.Eventually(t, func() bool { return len(ctx.order()) == 3 }, time.Second, time.Millisecond)
	pushedAfterA := map[ID]bool{}
	for _, id := range ctx.order() {
		pushedAfterA[id] = true
	}
	assert.True(t, pushedAfterA[b.ID])
	assert.True(t, pushedAfterA[c.ID])
	assert.False(t, pushedAfterA[d.ID], "D depends on both B and C, neither has terminated yet")

	HandleJobTermination(b.Job(), nil)
	assert.False(t, pushedContains(ctx, d.ID), "D still waits on C")

	HandleJobTermination(c.Job(), nil)
	assert.Eventually(t, func() bool { return pushedContains(ctx, d.ID) }, time.Second, time.Millisecond)

	ancestorsOfD, err := oracle.GetAncestors(vertexID[d.ID])
	require.NoError(t, err)
	assert.Len(t, ancestorsOfD, 3, "A, B, C are all ancestors of D per the oracle DAG")
}

func pushedContains(ctx *orderingContext, id ID) bool {
	for _, p := range ctx.order() {
		if p == id {
			return true
		}
	}
	return false
}
