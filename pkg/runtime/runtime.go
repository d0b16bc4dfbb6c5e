// Package runtime wires the memory nodes, data-coherence arena, scheduling
// context, worker pool, and performance model into a single process-wide
// runtime, constructing each component in sequence and wrapping any failure
// with the stage that produced it.
package runtime

import (
	"fmt"
	"os"

	"github.com/cuemby/taskrunner/pkg/config"
	"github.com/cuemby/taskrunner/pkg/datawizard"
	"github.com/cuemby/taskrunner/pkg/log"
	"github.com/cuemby/taskrunner/pkg/memnode"
	"github.com/cuemby/taskrunner/pkg/metrics"
	"github.com/cuemby/taskrunner/pkg/perfmodel"
	"github.com/cuemby/taskrunner/pkg/sched"
	_ "github.com/cuemby/taskrunner/pkg/sched/eager" // self-registers "eager-central"
	"github.com/cuemby/taskrunner/pkg/sched/tree"    // self-registers "tree"; also needed below to configure its Estimator
	"github.com/cuemby/taskrunner/pkg/task"
	"github.com/cuemby/taskrunner/pkg/worker"
)

// cpuArch is the only worker architecture this rendition schedules against;
// NCUDA/NOPENCL are rejected by pkg/config before Init ever sees them.
const cpuArch = "cpu"

// Runtime is the live process-wide handle: the memory-node registry, the
// data-coherence arena every Task's buffers are registered against, the
// root scheduling context, and the worker pool draining it.
type Runtime struct {
	cfg *config.Config

	Nodes   *memnode.Registry
	Arena   *datawizard.Arena
	Context *sched.Context
	PerfDB  *perfmodel.Store

	hostNode int
	workers  []*worker.Worker
}

// Init builds and starts a Runtime: one host-RAM memory node, one arena
// bound to it, one root scheduling context running cfg.Sched's policy, a
// perfmodel store under dataDir (if non-empty) for the "tree" policy's
// estimates, and cfg.NCPU worker goroutines pumping that context's ready
// queue.
func Init(cfg *config.Config, dataDir string) (*Runtime, error) {
	if cfg.NCPU < 1 {
		return nil, fmt.Errorf("runtime: NCPU must be at least 1, got %d", cfg.NCPU)
	}

	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("runtime: create data dir: %w", err)
		}
	}

	reg := memnode.NewRegistry()
	hostNode := reg.AddNode(memnode.KindHostRAM, memnode.KindCPU,
		memnode.NewArenaAllocator(cfg.LimitCPUMem), memnode.NewMemcpyEngine())
	metrics.RegisterComponent("memnode", true, "ready")

	arena := datawizard.NewArena(reg)

	perfDB, err := openPerfDB(dataDir, cfg.Calibrate)
	if err != nil {
		return nil, fmt.Errorf("runtime: open perfmodel store: %w", err)
	}

	ctx, err := sched.CreateContext("global", cfg.Sched, sched.PerfArch{Name: cpuArch})
	if err != nil {
		if perfDB != nil {
			perfDB.Close()
		}
		metrics.RegisterComponent("scheduler", false, err.Error())
		return nil, fmt.Errorf("runtime: create scheduling context: %w", err)
	}
	metrics.RegisterComponent("scheduler", true, "ready")

	if treePolicy, ok := ctx.Policy().(*tree.Policy); ok && perfDB != nil {
		treePolicy.Estimator = perfDB
	}

	r := &Runtime{
		cfg:      cfg,
		Nodes:    reg,
		Arena:    arena,
		Context:  ctx,
		PerfDB:   perfDB,
		hostNode: hostNode,
	}

	handles := make([]sched.WorkerHandle, 0, cfg.NCPU)
	for i := 0; i < cfg.NCPU; i++ {
		w := worker.New(worker.Config{
			ID:       i,
			Kind:     memnode.KindCPU,
			Arch:     cpuArch,
			Node:     hostNode,
			Registry: reg,
			Context:  ctx,
		})
		r.workers = append(r.workers, w)
		handles = append(handles, w)
	}
	ctx.AddWorkers(handles)
	for _, w := range r.workers {
		w.Start()
	}
	metrics.RegisterComponent("worker_pool", true, "ready")

	log.Logger.Info().
		Str("sched", cfg.Sched).
		Int("ncpu", cfg.NCPU).
		Msg("runtime started")

	return r, nil
}

func openPerfDB(dataDir string, mode config.Calibrate) (*perfmodel.Store, error) {
	if dataDir == "" {
		return nil, nil
	}
	return perfmodel.Open(dataDir, perfmodel.ParseMode(string(mode)))
}

// Submit hands t to the root scheduling context; t's buffers must already
// be bound to handles from r.Arena. Returns once t is either queued
// (dependencies unresolved or not) or rejected with ErrNoDevice because no
// worker in the context can run its codelet.
func (r *Runtime) Submit(t *task.Task) error {
	return task.Submit(t, r.Context)
}

// HostNode is the memory-node id every CPU worker executes on and fetches
// input buffers onto.
func (r *Runtime) HostNode() int { return r.hostNode }

// Shutdown stops every worker, tears down the root scheduling context, and
// closes the performance-model store. Call exactly once; Worker.Stop closes
// its stop channel unconditionally, so a second Shutdown would panic.
func (r *Runtime) Shutdown() {
	for _, w := range r.workers {
		w.Stop()
	}
	metrics.UpdateComponent("worker_pool", false, "stopped")
	sched.DeleteContext(r.Context)
	metrics.UpdateComponent("scheduler", false, "stopped")
	if r.PerfDB != nil {
		r.PerfDB.Close()
	}
	log.Logger.Info().Msg("runtime stopped")
}
