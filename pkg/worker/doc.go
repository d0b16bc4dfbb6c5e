/*
Package worker implements the driver loop that turns ready tasks into
executed codelets.

A worker is a single goroutine bound to one memory node and one worker kind
(currently only KindCPU has a shipped implementation path). It pops tasks
from a scheduling context, fetches every bound buffer to local coherence,
invokes the codelet, and retires the job.

# Architecture

	┌────────────────────────── WORKER ───────────────────────────┐
	│                                                               │
	│  ┌─────────────────────────────────────────────┐            │
	│  │              driveLoop (goroutine)            │            │
	│  │  - PopTask(workerID) from sched.Context        │            │
	│  │  - park on wakeCh / idlePollInterval / stopCh  │            │
	│  └──────┬──────────────────────────┬─────────────┘            │
	│         │                          │                          │
	│  ┌──────▼───────┐          ┌──────▼───────────┐              │
	│  │ fetchBuffers │          │  codelet exec    │              │
	│  │  - FetchForTask per buf │  - CPU impl for   │              │
	│  │  - block on Transfer    │    w.kind         │              │
	│  └──────┬───────┘          └──────┬───────────┘              │
	│         │                          │                          │
	│  ┌──────▼──────────────────────────▼───────────┐             │
	│  │     before/after/busy barriers (task.Barrier) │             │
	│  │  coordinate SPMD/FORKJOIN aliases spawned      │             │
	│  │  from this one driver invocation               │             │
	│  └─────────────────────────────────────────────┘             │
	└───────────────────────────────────────────────────────────────┘

# Parallel tasks

A combined worker of size k (SPMD or FORKJOIN) is executed by the one
physical driver that popped the task, rather than by k distinct Worker
instances independently popping the same task id. The driver arrives k
times at each of the job's before-work, after-work, and busy barriers.
SPMD spawns k goroutines, each claiming a rank via Job.ClaimRank and
running the codelet once with it; FORKJOIN runs the codelet once, inline
on the driver goroutine, with rank 0 and NRanks set to k so the codelet
body can fan out internally, and claims the other k-1 ranks without
running anything for them.

# Shutdown

Stop closes stopCh and blocks on doneCh; a worker parked in driveLoop's
select wakes on stopCh and exits without finishing a PopTask cycle it has
not yet started. A worker mid-execute finishes that task's barriers and
HandleJobTermination before observing stopCh again.
*/
package worker
