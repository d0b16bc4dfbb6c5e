package task

import (
	"sync"
	"sync/atomic"

	"github.com/cuemby/taskrunner/pkg/datawizard"
	"github.com/cuemby/taskrunner/pkg/metrics"
)

// State is a job's position in submitted -> ready -> fetching -> executing
// -> terminated.
type State int32

const (
	StateSubmitted State = iota
	StateReady
	StateFetching
	StateExecuting
	StateTerminated
)

// Job is the mutable runtime shadow of a Task. A parallel task over a
// combined worker of size k has k aliases sharing one Job; ClaimRank hands
// out the 0..k-1 rank each alias runs under.
type Job struct {
	task *Task
	ctx  SchedulingContext

	remainingDeps      int64 // atomic
	buffersToTransfer  int32
	buffersTransferred int32 // atomic
	state              int32 // atomic State

	tickets []*datawizard.AccessTicket

	succMu     sync.Mutex
	successors []*Job

	workerID int

	activeAliasCount int32 // atomic, rank dispenser
	beforeWork       *Barrier
	afterWork        *Barrier
	busyBarrier      *Barrier

	err      error
	doneCh   chan struct{}
	doneOnce sync.Once
}

func newJob(t *Task, ctx SchedulingContext) *Job {
	k := t.Size
	if k < 1 {
		k = 1
	}
	return &Job{
		task:        t,
		ctx:         ctx,
		beforeWork:  NewBarrier(k),
		afterWork:   NewBarrier(k),
		busyBarrier: NewBarrier(k),
		doneCh:      make(chan struct{}),
	}
}

func (j *Job) State() State { return State(atomic.LoadInt32(&j.state)) }

func (j *Job) setState(s State) { atomic.StoreInt32(&j.state, int32(s)) }

// ClaimRank atomically hands out the next 0-based rank for a parallel task's
// aliases. Only meaningful when Task.Size > 1.
func (j *Job) ClaimRank() int {
	return int(atomic.AddInt32(&j.activeAliasCount, 1) - 1)
}

func (j *Job) BeforeWorkBarrier() *Barrier { return j.beforeWork }
func (j *Job) AfterWorkBarrier() *Barrier  { return j.afterWork }
func (j *Job) BusyBarrier() *Barrier       { return j.busyBarrier }

// Task returns the task this job shadows.
func (j *Job) Task() *Task { return j.task }

// SetState exposes the worker driver's state transitions (fetching,
// executing) that do not themselves trigger dependency resolution.
func (j *Job) SetState(s State) { j.setState(s) }

func (j *Job) WorkerID() int      { return j.workerID }
func (j *Job) SetWorkerID(id int) { j.workerID = id }

func (j *Job) addSuccessor(s *Job) {
	j.succMu.Lock()
	j.successors = append(j.successors, s)
	j.succMu.Unlock()
}

// resolveDep is called once per satisfied predecessor (an explicit task
// dependency completing, or a handle access ticket becoming ready). When
// the count reaches zero the job becomes ready and is handed to the policy.
func (j *Job) resolveDep() {
	if atomic.AddInt64(&j.remainingDeps, -1) == 0 {
		j.setState(StateReady)
		metrics.TasksReady.Inc()
		_ = j.ctx.PushTask(j.task)
	}
}

// Submit attaches a fresh job to t, resolves explicit task dependencies and
// per-handle sequential-consistency ordering, and hands the task to ctx's
// policy once every dependency is satisfied. Returns ErrNoDevice without
// enqueueing anything if no worker in ctx can run the codelet.
func Submit(t *Task, ctx SchedulingContext) error {
	if t.Codelet == nil {
		return ErrInvalidState
	}
	if t.job != nil {
		return ErrInvalidState
	}
	if !ctx.CanExecute(t.Codelet.Where) {
		metrics.TasksRejected.WithLabelValues("no_device").Inc()
		return ErrNoDevice
	}

	j := newJob(t, ctx)
	t.job = j

	var remaining int64

	for _, dep := range t.DependsOn {
		if dep.job == nil || dep.job.State() == StateTerminated {
			continue
		}
		remaining++
		dep.job.addSuccessor(j)
	}

	tickets := make([]*datawizard.AccessTicket, len(t.Buffers))
	for i, b := range t.Buffers {
		ticket := b.Handle.TrackAccess(b.Mode)
		tickets[i] = ticket
		select {
		case <-ticket.Ready():
		default:
			remaining++
			go func() {
				<-ticket.Ready()
				j.resolveDep()
			}()
		}
	}
	j.tickets = tickets
	j.buffersToTransfer = int32(len(t.Buffers))

	atomic.StoreInt64(&j.remainingDeps, remaining)
	metrics.TasksSubmitted.Inc()

	if remaining == 0 {
		j.setState(StateReady)
		metrics.TasksReady.Inc()
		return ctx.PushTask(t)
	}
	return nil
}

// MarkBufferTransferred records one completed input fetch; when every
// buffer has landed the caller (the worker driver) may proceed to execute.
func (j *Job) MarkBufferTransferred() bool {
	return atomic.AddInt32(&j.buffersTransferred, 1) == j.buffersToTransfer
}

// HandleJobTermination runs the completion protocol: release each buffer's
// access ticket (unblocking anything serialized behind it), decrement every
// successor's remaining-dependency count (pushing any that reach zero),
// invoke the task's callbacks, and unblock Wait.
func HandleJobTermination(j *Job, execErr error) {
	for i, b := range j.task.Buffers {
		b.Handle.CompleteAccess(j.tickets[i])
	}

	j.succMu.Lock()
	succs := j.successors
	j.succMu.Unlock()
	for _, s := range succs {
		s.resolveDep()
	}

	j.err = execErr
	j.setState(StateTerminated)

	outcome := "success"
	switch {
	case execErr == ErrAbortKernel:
		outcome = "failed"
	case execErr != nil:
		outcome = "aborted"
	}
	metrics.TasksTerminated.WithLabelValues(outcome).Inc()

	for _, cb := range j.task.Callbacks {
		cb(execErr)
	}
	j.doneOnce.Do(func() { close(j.doneCh) })
}

// Wait blocks until the task's job reaches StateTerminated.
func (t *Task) Wait() error {
	if t.job == nil {
		return ErrInvalidState
	}
	<-t.job.doneCh
	return t.job.err
}

// Tracker counts submitted-but-not-terminated tasks so WaitForAll can block
// until every task reaching it has completed, independent of any one job's
// individual callbacks.
type Tracker struct {
	mu   sync.Mutex
	cond *sync.Cond
	n    int
}

func NewTracker() *Tracker {
	tr := &Tracker{}
	tr.cond = sync.NewCond(&tr.mu)
	return tr
}

func (tr *Tracker) Add() {
	tr.mu.Lock()
	tr.n++
	tr.mu.Unlock()
}

func (tr *Tracker) Done() {
	tr.mu.Lock()
	tr.n--
	if tr.n == 0 {
		tr.cond.Broadcast()
	}
	tr.mu.Unlock()
}

func (tr *Tracker) WaitForAll() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for tr.n > 0 {
		tr.cond.Wait()
	}
}

// TrackedCallback returns a task completion callback that reports to tr.
// Install it via Task.Callbacks before Submit to make the task participate
// in WaitForAll.
func TrackedCallback(tr *Tracker) func(error) {
	tr.Add()
	return func(error) { tr.Done() }
}
