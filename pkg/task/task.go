package task

import (
	"time"

	"github.com/cuemby/taskrunner/pkg/datawizard"
	"github.com/cuemby/taskrunner/pkg/memnode"
	"github.com/google/uuid"
)

// ID is a task's user-facing identifier. Handle ids stay small dense arena
// integers (see pkg/datawizard); tasks get uuids since they are the
// identifiers exposed across the public API and over pkg/rpc.
type ID string

func newID() ID { return ID(uuid.New().String()) }

// Type distinguishes ordinary sequential tasks from parallel ones.
type Type int

const (
	Sequential Type = iota
	SPMD
	ForkJoin
)

// Buffer binds one data handle to a task at a given access mode.
type Buffer struct {
	Handle *datawizard.Handle
	Mode   datawizard.AccessMode
}

// SchedulingContext is the surface Submit needs from pkg/sched without
// importing it: whether any member worker can run a codelet's Where mask,
// and how to hand a ready task to the attached policy.
type SchedulingContext interface {
	CanExecute(where memnode.WorkerKind) bool
	PushTask(t *Task) error
}

// Task is immutable after Submit. Codelet, Buffers, and Args are fixed at
// Create time; ContextID/Type/priority/deadline/dependencies are set before
// Submit is called.
type Task struct {
	ID      ID
	Codelet *Codelet
	Buffers []Buffer
	Args    []byte

	Synchronous bool
	Priority    int
	Deadline    time.Time
	Tag         int64
	ContextID   int
	Type        Type
	Size        int // combined-worker size k for SPMD/ForkJoin; 1 for Sequential

	DependsOn []*Task
	TagDeps   []int64

	Callbacks []func(err error)

	job *Job
}

// Create allocates an inert task record. Per spec this is the one API call
// permitted outside the Init..Shutdown window, since it only builds a
// value, it does not touch runtime state.
func Create(cl *Codelet, buffers []Buffer, args []byte) *Task {
	return &Task{
		ID:      newID(),
		Codelet: cl,
		Buffers: buffers,
		Args:    args,
		Size:    1,
		Type:    Sequential,
	}
}

// Job returns this task's runtime shadow, or nil before Submit.
func (t *Task) Job() *Job { return t.job }

// ExpectedFootprint sums the byte size of every bound buffer, the size
// bucket pkg/perfmodel keys calibration samples by.
func (t *Task) ExpectedFootprint() uint64 {
	var total uint64
	for _, b := range t.Buffers {
		if b.Handle == nil {
			continue
		}
		total += b.Handle.Interface().ByteSize()
	}
	return total
}
