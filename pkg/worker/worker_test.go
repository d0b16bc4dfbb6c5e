package worker

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/taskrunner/pkg/datawizard"
	"github.com/cuemby/taskrunner/pkg/memnode"
	"github.com/cuemby/taskrunner/pkg/sched"
	"github.com/cuemby/taskrunner/pkg/sched/eager"
	"github.com/cuemby/taskrunner/pkg/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRig(t *testing.T) (*memnode.Registry, *datawizard.Arena, *sched.Context) {
	t.Helper()
	reg := memnode.NewRegistry()
	reg.AddNode(memnode.KindHostRAM, memnode.KindCPU, memnode.NewArenaAllocator(0), memnode.NewMemcpyEngine())
	arena := datawizard.NewArena(reg)
	ctx := sched.NewContext(0, "global", eager.New(false), sched.PerfArch{Name: "cpu"})
	return reg, arena, ctx
}

func TestWorkerExecutesSequentialTask(t *testing.T) {
	reg, arena, ctx := newTestRig(t)
	h, err := arena.Register(&datawizard.VectorInterface{NElem: 4, ElemSize: 8}, 0,
		datawizard.Float64sToBytes([]float64{1, 2, 3, 4}))
	require.NoError(t, err)

	cl := &task.Codelet{
		Name:     "scale2",
		Where:    memnode.KindCPU,
		NBuffers: 1,
		Modes:    []datawizard.AccessMode{datawizard.ModeRW},
		Implementations: map[memnode.WorkerKind]task.CPUFunc{
			memnode.KindCPU: func(ec *task.ExecContext) error {
				vals := datawizard.BytesToFloat64s(ec.Bytes[0])
				for i := range vals {
					vals[i] *= 2
				}
				copy(ec.Bytes[0], datawizard.Float64sToBytes(vals))
				return nil
			},
		},
	}

	tk := task.Create(cl, []task.Buffer{{Handle: h, Mode: datawizard.ModeRW}}, nil)
	w := New(Config{ID: 0, Kind: memnode.KindCPU, Arch: "cpu", Node: 0, Registry: reg, Context: ctx})
	ctx.AddWorkers([]sched.WorkerHandle{w})
	w.Start()
	defer w.Stop()

	require.NoError(t, task.Submit(tk, ctx))
	require.NoError(t, tk.Wait())

	out := datawizard.BytesToFloat64s(h.Bytes(0))
	assert.Equal(t, []float64{2, 4, 6, 8}, out)
}

func TestWorkerRejectsTaskNoMatchingWorkerKind(t *testing.T) {
	reg, _, ctx := newTestRig(t)
	_ = reg
	cl := &task.Codelet{Name: "cuda-only", Where: memnode.KindCUDA}
	tk := task.Create(cl, nil, nil)

	err := task.Submit(tk, ctx)
	assert.ErrorIs(t, err, task.ErrNoDevice)
}

func TestWorkerRunsSPMDTaskWithDistinctRanks(t *testing.T) {
	reg, arena, ctx := newTestRig(t)
	h, err := arena.Register(&datawizard.VectorInterface{NElem: 3, ElemSize: 8}, 0,
		datawizard.Float64sToBytes([]float64{0, 0, 0}))
	require.NoError(t, err)

	var ranksSeen int32
	cl := &task.Codelet{
		Name:     "spmd-noop",
		Where:    memnode.KindCPU,
		NBuffers: 1,
		Modes:    []datawizard.AccessMode{datawizard.ModeW},
		Implementations: map[memnode.WorkerKind]task.CPUFunc{
			memnode.KindCPU: func(ec *task.ExecContext) error {
				atomic.AddInt32(&ranksSeen, 1<<uint(ec.Rank))
				return nil
			},
		},
	}

	tk := task.Create(cl, []task.Buffer{{Handle: h, Mode: datawizard.ModeW}}, nil)
	tk.Type = task.SPMD
	tk.Size = 3

	w := New(Config{ID: 0, Kind: memnode.KindCPU, Arch: "cpu", Node: 0, Registry: reg, Context: ctx})
	ctx.AddWorkers([]sched.WorkerHandle{w})
	w.Start()
	defer w.Stop()

	require.NoError(t, task.Submit(tk, ctx))
	require.NoError(t, tk.Wait())

	assert.Equal(t, int32(1|2|4), atomic.LoadInt32(&ranksSeen), "ranks 0, 1, 2 each ran exactly once")
}

func TestWorkerPicksUpTaskPushedWhileParked(t *testing.T) {
	_, _, ctx := newTestRig(t)
	cl := &task.Codelet{
		Name:  "noop",
		Where: memnode.KindCPU,
		Implementations: map[memnode.WorkerKind]task.CPUFunc{
			memnode.KindCPU: func(ec *task.ExecContext) error { return nil },
		},
	}
	w := New(Config{ID: 0, Kind: memnode.KindCPU, Arch: "cpu", Node: 0, Registry: nil, Context: ctx})
	ctx.AddWorkers([]sched.WorkerHandle{w})
	w.Start()
	defer w.Stop()

	// give the driver a moment to park before pushing work
	time.Sleep(5 * time.Millisecond)

	tk := task.Create(cl, nil, nil)
	require.NoError(t, task.Submit(tk, ctx))
	assert.Eventually(t, func() bool {
		return tk.Job().State() == task.StateTerminated
	}, time.Second, time.Millisecond)
}
