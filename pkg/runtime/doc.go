/*
Package runtime is the process-wide lifecycle hub: it owns the memory-node
registry, the data-coherence arena, the root scheduling context, the
performance-model store, and the worker pool draining that context's ready
queue.

# Architecture

	┌─────────────────────────── Runtime ────────────────────────────┐
	│                                                                  │
	│  ┌────────────────┐   ┌──────────────────┐   ┌───────────────┐ │
	│  │ memnode.Registry│   │ datawizard.Arena │   │ perfmodel.Store│ │
	│  │  node 0: host RAM│◄─┤  handle registry, │   │  bbolt-backed   │ │
	│  │  ArenaAllocator  │   │  MSI coherence    │   │  symbol/arch/   │ │
	│  │  MemcpyEngine    │   │                   │   │  footprint→     │ │
	│  └────────┬─────────┘   └─────────┬─────────┘   │  mean/variance  │ │
	│           │                       │              └───────┬───────┘ │
	│           │                       │                      │         │
	│           ▼                       ▼                      ▼         │
	│  ┌────────────────────────────────────────────────────────────┐   │
	│  │              sched.Context ("global")                      │   │
	│  │   bound to one registered Policy (eager-central or tree)   │   │
	│  └──────────────────────────┬───────────────────────────────┬─┘   │
	│                             │                               │     │
	│                             ▼                               │     │
	│  ┌──────────────────────────────────────────────┐           │     │
	│  │         worker.Worker pool (NCPU goroutines)  │◄──────────┘     │
	│  │   pop task → fetch buffers → execute → retire │                 │
	│  └──────────────────────────────────────────────┘                 │
	└──────────────────────────────────────────────────────────────────┘

# Usage

	cfg, err := config.FromEnv("")
	if err != nil {
		log.Fatal(err)
	}
	rt, err := runtime.Init(cfg, "/var/lib/taskrunner")
	if err != nil {
		log.Fatal(err)
	}
	defer rt.Shutdown()

	h, err := rt.Arena.Register(&datawizard.VectorInterface{NElem: n, ElemSize: 8}, rt.HostNode(), data)
	t := task.Create(codelet, []task.Buffer{{Handle: h, Mode: datawizard.ModeRW}}, nil)
	if err := rt.Submit(t); err != nil {
		log.Fatal(err)
	}
	if err := t.Wait(); err != nil {
		log.Fatal(err)
	}

# Scheduler selection

cfg.Sched names a policy registered with pkg/sched (RegisterPolicy is
called from each policy package's init, so importing pkg/runtime pulls in
both pkg/sched/eager and pkg/sched/tree as a side effect). "tree" consults
the perfmodel store as its cost estimator once CALIBRATE has accumulated
enough samples; "eager-central" ignores it entirely.

# See also

  - pkg/config for the env-var-driven Config this package consumes
  - pkg/worker for the driver loop each pool member runs
  - pkg/sched for the Policy/Context abstraction a scheduling context wraps
*/
package runtime
