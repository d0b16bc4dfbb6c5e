package sched

import (
	"sync"

	"github.com/cuemby/taskrunner/pkg/memnode"
	"github.com/cuemby/taskrunner/pkg/task"
)

// WorkerHandle is what a policy needs to drive a worker: its id, its kind
// mask (for codelet `where` matching), and a way to wake it if it is
// parked waiting for work.
type WorkerHandle interface {
	ID() int
	Kind() memnode.WorkerKind
	Signal()
}

// PerfArch is the performance-model architecture descriptor a scheduling
// context carries for scheduler-tree cost aggregation (pkg/sched/tree).
type PerfArch struct {
	Name string
}

// Context is a named subset of workers with its own policy instance. There
// is a root "global" context created at runtime.Init and zero or more named
// child contexts.
type Context struct {
	ID       int
	Name     string
	PerfArch PerfArch

	policy Policy

	mu       sync.RWMutex
	workers  map[int]WorkerHandle
	masterOf map[int]*Context // workerID -> child context this worker masters
}

// NewContext constructs a context bound to policy and immediately calls its
// InitSched hook.
func NewContext(id int, name string, policy Policy, perfArch PerfArch) *Context {
	c := &Context{
		ID:       id,
		Name:     name,
		PerfArch: perfArch,
		policy:   policy,
		workers:  make(map[int]WorkerHandle),
		masterOf: make(map[int]*Context),
	}
	policy.InitSched(c)
	return c
}

// AddWorkers registers workers as members of this context and notifies the
// policy.
func (c *Context) AddWorkers(workers []WorkerHandle) {
	ids := make([]int, len(workers))
	c.mu.Lock()
	for i, w := range workers {
		c.workers[w.ID()] = w
		ids[i] = w.ID()
	}
	c.mu.Unlock()
	c.policy.AddWorkers(c, ids)
}

func (c *Context) RemoveWorkers(ids []int) {
	c.mu.Lock()
	for _, id := range ids {
		delete(c.workers, id)
	}
	c.mu.Unlock()
	c.policy.RemoveWorkers(c, ids)
}

func (c *Context) Worker(id int) (WorkerHandle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.workers[id]
	return w, ok
}

// Workers returns the current member worker handles, sorted by nothing in
// particular (iteration order of the underlying map).
func (c *Context) Workers() []WorkerHandle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]WorkerHandle, 0, len(c.workers))
	for _, w := range c.workers {
		out = append(out, w)
	}
	return out
}

// Policy returns the policy instance this context is bound to, letting a
// caller that knows the concrete type (e.g. runtime.Init wiring a
// perfmodel.Store into a *tree.Policy) configure it post-construction.
func (c *Context) Policy() Policy {
	return c.policy
}

// CanExecute reports whether any member worker's kind intersects where.
// Implements task.SchedulingContext.
func (c *Context) CanExecute(where memnode.WorkerKind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, w := range c.workers {
		if w.Kind()&where != 0 {
			return true
		}
	}
	return false
}

// PushTask implements task.SchedulingContext by forwarding to the attached
// policy.
func (c *Context) PushTask(t *task.Task) error {
	return c.policy.PushTask(c, t)
}

func (c *Context) PopTask(workerID int) *task.Task {
	return c.policy.PopTask(c, workerID)
}

func (c *Context) PopEveryTask() []*task.Task {
	return c.policy.PopEveryTask(c)
}

// SetMaster designates workerID as the master for a child context: tasks
// that workerID would otherwise pop from this context are instead forwarded
// into child. See pkg/sched/eager's pop_task sub-context inheritance.
func (c *Context) SetMaster(workerID int, child *Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.masterOf[workerID] = child
}

func (c *Context) MasterFor(workerID int) (*Context, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.masterOf[workerID]
	return ch, ok
}

func (c *Context) Delete() {
	c.policy.DeinitSched(c)
}
