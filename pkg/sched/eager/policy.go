// Package eager implements the central FIFO scheduling policy: one global
// ready queue and a waiting-worker bitmap, protected by a single mutex.
// Grounded directly on original_source/src/sched_policies/eager_central_policy.c.
package eager

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/taskrunner/pkg/metrics"
	"github.com/cuemby/taskrunner/pkg/sched"
	"github.com/cuemby/taskrunner/pkg/task"
)

// Policy is the eager central scheduler: a single FIFO of ready tasks and a
// per-worker waiters bit, both guarded by mu. BlockingDrivers selects the
// two-pass wake variant: when true, PushTask collects wake targets under
// the lock and signals them only after releasing it, so a goroutine never
// wakes while still contending the lock it would immediately need.
type Policy struct {
	BlockingDrivers bool

	mu       sync.Mutex
	fifo     []*task.Task
	waiters  map[int]bool
	pushedAt map[task.ID]time.Time
	ntasks   int32 // atomic fast-path count, mirrors len(fifo)
}

func New(blockingDrivers bool) *Policy {
	return &Policy{
		BlockingDrivers: blockingDrivers,
		waiters:         make(map[int]bool),
		pushedAt:        make(map[task.ID]time.Time),
	}
}

func init() {
	sched.RegisterPolicy("eager-central", func() sched.Policy { return New(false) })
}

func (p *Policy) Name() string                 { return "eager-central" }
func (p *Policy) WorkerType() sched.WorkerType { return sched.WorkerTypeList }

func (p *Policy) InitSched(ctx *sched.Context)   {}
func (p *Policy) DeinitSched(ctx *sched.Context) {}

func (p *Policy) AddWorkers(ctx *sched.Context, workerIDs []int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range workerIDs {
		p.waiters[id] = false
	}
}

func (p *Policy) RemoveWorkers(ctx *sched.Context, workerIDs []int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range workerIDs {
		delete(p.waiters, id)
	}
}

// PushTask appends t to the FIFO, then wakes at most one eligible idle
// worker: the first context member whose kind intersects t's Where mask
// and whose waiters bit is set.
func (p *Policy) PushTask(ctx *sched.Context, t *task.Task) error {
	p.mu.Lock()
	p.fifo = append(p.fifo, t)
	p.pushedAt[t.ID] = time.Now()
	atomic.AddInt32(&p.ntasks, 1)

	var toWake sched.WorkerHandle
	for _, w := range ctx.Workers() {
		if w.Kind()&t.Codelet.Where == 0 {
			continue
		}
		if !p.waiters[w.ID()] {
			continue
		}
		p.waiters[w.ID()] = false
		toWake = w
		break
	}

	if toWake != nil && !p.BlockingDrivers {
		toWake.Signal()
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if toWake != nil {
		toWake.Signal()
	}
	return nil
}

// PopTask returns the first FIFO task this worker can execute. A racy,
// lock-free length check is used as a fast path: when it reads zero the
// call returns nil without taking the lock or setting the worker's waiters
// bit. Only the locked search marks a worker as waiting, when the FIFO
// holds tasks but none this worker can execute.
func (p *Policy) PopTask(ctx *sched.Context, workerID int) *task.Task {
	if atomic.LoadInt32(&p.ntasks) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := ctx.Worker(workerID)
	if !ok {
		return nil
	}

	idx := -1
	for i, t := range p.fifo {
		if t.Codelet.Where&w.Kind() != 0 {
			idx = i
			break
		}
	}
	if idx == -1 {
		p.waiters[workerID] = true
		return nil
	}

	t := p.fifo[idx]
	p.fifo = append(p.fifo[:idx], p.fifo[idx+1:]...)
	atomic.AddInt32(&p.ntasks, -1)
	if pushedAt, ok := p.pushedAt[t.ID]; ok {
		metrics.SchedulingLatency.Observe(time.Since(pushedAt).Seconds())
		delete(p.pushedAt, t.ID)
	}

	if child, ok := ctx.MasterFor(workerID); ok {
		p.mu.Unlock()
		_ = child.PushTask(t)
		p.mu.Lock()
		return nil
	}
	return t
}

// PopEveryTask drains and returns the entire ready queue, clearing the
// policy's own fast-path count and push timestamps; the returned tasks
// themselves are not modified. sched.Context.PopEveryTask exposes it.
func (p *Policy) PopEveryTask(ctx *sched.Context) []*task.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	all := p.fifo
	p.fifo = nil
	atomic.StoreInt32(&p.ntasks, 0)
	p.pushedAt = make(map[task.ID]time.Time)
	return all
}

func (p *Policy) PreExecHook(ctx *sched.Context, t *task.Task)  {}
func (p *Policy) PostExecHook(ctx *sched.Context, t *task.Task) {}
