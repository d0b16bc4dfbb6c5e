// Package sched defines the scheduler policy interface and the scheduling
// context that binds a policy instance to a named set of workers. Reference
// policies (eager central FIFO, scheduler-tree) live in sub-packages.
package sched

import "github.com/cuemby/taskrunner/pkg/task"

// WorkerType distinguishes policies that address workers as a flat list
// from ones that route through a tree of scheduling nodes.
type WorkerType int

const (
	WorkerTypeList WorkerType = iota
	WorkerTypeTree
)

// Policy is the fixed vtable every scheduler policy implements.
type Policy interface {
	Name() string
	WorkerType() WorkerType

	InitSched(ctx *Context)
	DeinitSched(ctx *Context)
	AddWorkers(ctx *Context, workerIDs []int)
	RemoveWorkers(ctx *Context, workerIDs []int)

	PushTask(ctx *Context, t *task.Task) error
	// PopTask returns a ready task for workerID, or nil if none is
	// available right now.
	PopTask(ctx *Context, workerID int) *task.Task
	// PopEveryTask drains and returns the entire ready queue, used by
	// context teardown to redistribute a departing context's backlog.
	PopEveryTask(ctx *Context) []*task.Task

	PreExecHook(ctx *Context, t *task.Task)
	PostExecHook(ctx *Context, t *task.Task)
}
