package task

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/taskrunner/pkg/datawizard"
	"github.com/cuemby/taskrunner/pkg/memnode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeContext is a minimal SchedulingContext for unit tests: it records
// every pushed task and reports CanExecute against a fixed worker-kind mask.
type fakeContext struct {
	mu      sync.Mutex
	workers memnode.WorkerKind
	pushed  []*Task
}

func (c *fakeContext) CanExecute(where memnode.WorkerKind) bool {
	return where&c.workers != 0
}

func (c *fakeContext) PushTask(t *Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushed = append(c.pushed, t)
	return nil
}

func (c *fakeContext) pushedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pushed)
}

func newTestHandle(t *testing.T) *datawizard.Handle {
	t.Helper()
	reg := memnode.NewRegistry()
	reg.AddNode(memnode.KindHostRAM, memnode.KindCPU, memnode.NewArenaAllocator(0), memnode.NewMemcpyEngine())
	arena := datawizard.NewArena(reg)
	h, err := arena.Register(&datawizard.VectorInterface{NElem: 1, ElemSize: 8}, 0, datawizard.Float64sToBytes([]float64{0}))
	require.NoError(t, err)
	return h
}

func TestSubmitNoDeviceRejectsWithoutPush(t *testing.T) {
	ctx := &fakeContext{workers: memnode.KindCPU}
	cl := &Codelet{Name: "cuda-only", Where: memnode.KindCUDA, NBuffers: 0}
	tk := Create(cl, nil, nil)

	err := Submit(tk, ctx)
	assert.ErrorIs(t, err, ErrNoDevice)
	assert.Equal(t, 0, ctx.pushedCount())
	assert.Nil(t, tk.Job())
}

func TestSubmitWithNoDependenciesPushesImmediately(t *testing.T) {
	ctx := &fakeContext{workers: memnode.KindCPU}
	cl := &Codelet{Name: "noop", Where: memnode.KindCPU}
	tk := Create(cl, nil, nil)

	require.NoError(t, Submit(tk, ctx))
	assert.Equal(t, 1, ctx.pushedCount())
	assert.Equal(t, StateReady, tk.Job().State())
}

func TestSubmitDefersUntilExplicitDependencyTerminates(t *testing.T) {
	ctx := &fakeContext{workers: memnode.KindCPU}
	cl := &Codelet{Name: "noop", Where: memnode.KindCPU}

	t1 := Create(cl, nil, nil)
	require.NoError(t, Submit(t1, ctx))

	t2 := Create(cl, nil, nil)
	t2.DependsOn = []*Task{t1}
	require.NoError(t, Submit(t2, ctx))

	assert.Equal(t, 1, ctx.pushedCount(), "t2 should not be pushed until t1 terminates")

	HandleJobTermination(t1.Job(), nil)
	assert.Equal(t, 2, ctx.pushedCount())
}

func TestSubmitSerializesConflictingBufferAccess(t *testing.T) {
	ctx := &fakeContext{workers: memnode.KindCPU}
	h := newTestHandle(t)
	cl := &Codelet{Name: "writer", Where: memnode.KindCPU, NBuffers: 1, Modes: []datawizard.AccessMode{datawizard.ModeW}}

	t1 := Create(cl, []Buffer{{Handle: h, Mode: datawizard.ModeW}}, nil)
	require.NoError(t, Submit(t1, ctx))

	t2 := Create(cl, []Buffer{{Handle: h, Mode: datawizard.ModeW}}, nil)
	require.NoError(t, Submit(t2, ctx))

	assert.Equal(t, 1, ctx.pushedCount(), "t2 conflicts with t1 on h and must wait")

	HandleJobTermination(t1.Job(), nil)
	assert.Eventually(t, func() bool { return ctx.pushedCount() == 2 }, time.Second, time.Millisecond)
}

func TestTrackerWaitForAllBlocksUntilAllDone(t *testing.T) {
	ctx := &fakeContext{workers: memnode.KindCPU}
	cl := &Codelet{Name: "noop", Where: memnode.KindCPU}
	tr := NewTracker()

	var tasks []*Task
	for i := 0; i < 5; i++ {
		tk := Create(cl, nil, nil)
		tk.Callbacks = append(tk.Callbacks, TrackedCallback(tr))
		tasks = append(tasks, tk)
		require.NoError(t, Submit(tk, ctx))
	}

	var finished int32
	done := make(chan struct{})
	go func() {
		tr.WaitForAll()
		close(done)
	}()

	for _, tk := range tasks {
		HandleJobTermination(tk.Job(), nil)
		atomic.AddInt32(&finished, 1)
	}
	<-done
	assert.EqualValues(t, 5, finished)
}

func TestParallelTaskRanksAreUniquePerAlias(t *testing.T) {
	ctx := &fakeContext{workers: memnode.KindCPU}
	cl := &Codelet{Name: "forkjoin", Where: memnode.KindCPU}
	tk := Create(cl, nil, nil)
	tk.Type = ForkJoin
	tk.Size = 3
	require.NoError(t, Submit(tk, ctx))

	seen := map[int]bool{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rank := tk.Job().ClaimRank()
			mu.Lock()
			seen[rank] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, map[int]bool{0: true, 1: true, 2: true}, seen)
}
