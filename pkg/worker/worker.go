// Package worker implements the driver loop that pops ready tasks off a
// scheduling context, fetches their buffers to local coherence, invokes the
// codelet implementation, and retires the job. Structurally grounded on
// pkg/worker/worker.go's goroutine+stopCh driver loop; the container
// lifecycle it used to drive is replaced with the task-fetch-execute-commit
// cycle.
package worker

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/taskrunner/pkg/datawizard"
	"github.com/cuemby/taskrunner/pkg/log"
	"github.com/cuemby/taskrunner/pkg/memnode"
	"github.com/cuemby/taskrunner/pkg/metrics"
	"github.com/cuemby/taskrunner/pkg/sched"
	"github.com/cuemby/taskrunner/pkg/task"
)

// idlePollInterval bounds how long a parked worker sleeps between wake
// attempts when it has no task and no Signal has arrived; it exists only so
// a worker never blocks forever on a missed wakeup.
const idlePollInterval = 50 * time.Millisecond

// Worker drives one CPU worker: a single goroutine that repeatedly pops a
// task from its scheduling context's policy, runs the coherence+execute
// cycle, and reports completion. It implements sched.WorkerHandle so
// policies can address and wake it.
type Worker struct {
	id   int
	kind memnode.WorkerKind
	arch string
	node int // memnode id this worker fetches input buffers onto and executes on

	reg *memnode.Registry
	ctx *sched.Context

	wakeCh chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

// Config describes one worker's placement: which scheduling context feeds
// it, which memory node it executes on, and its kind for codelet matching.
type Config struct {
	ID       int
	Kind     memnode.WorkerKind
	Arch     string
	Node     int
	Registry *memnode.Registry
	Context  *sched.Context
}

func New(cfg Config) *Worker {
	return &Worker{
		id:     cfg.ID,
		kind:   cfg.Kind,
		arch:   cfg.Arch,
		node:   cfg.Node,
		reg:    cfg.Registry,
		ctx:    cfg.Context,
		wakeCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (w *Worker) ID() int                  { return w.id }
func (w *Worker) Kind() memnode.WorkerKind { return w.kind }

// Signal wakes a parked driver loop. Non-blocking: a worker that is already
// awake (or has an unconsumed wakeup pending) simply drops the signal.
func (w *Worker) Signal() {
	select {
	case w.wakeCh <- struct{}{}:
	default:
	}
}

// Start launches the driver loop in a new goroutine.
func (w *Worker) Start() {
	go w.driveLoop()
}

// Stop requests the driver loop to exit and blocks until it has.
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Worker) driveLoop() {
	defer close(w.doneCh)
	workerIDStr := strconv.Itoa(w.id)
	logger := log.WithWorker(workerIDStr)
	logger.Info().Msg("worker driver loop started")

	for {
		select {
		case <-w.stopCh:
			logger.Info().Msg("worker driver loop stopping")
			return
		default:
		}

		t := w.ctx.PopTask(w.id)
		if t == nil {
			metrics.WorkersWaiting.Inc()
			select {
			case <-w.wakeCh:
			case <-time.After(idlePollInterval):
			case <-w.stopCh:
				metrics.WorkersWaiting.Dec()
				logger.Info().Msg("worker driver loop stopping")
				return
			}
			metrics.WorkersWaiting.Dec()
			continue
		}

		metrics.WorkerBusy.WithLabelValues(workerIDStr).Set(1)
		w.execute(t)
		metrics.WorkerBusy.WithLabelValues(workerIDStr).Set(0)
	}
}

// execute runs one task's full fetch/execute/retire cycle. A combined
// worker of size k is executed from this single driver invocation rather
// than by k distinct physical Worker instances popping the same task: the
// driver arrives k times at each of the before-work/after-work/busy
// barriers, SPMD fans out k goroutines that each claim a rank via
// Job.ClaimRank, and FORKJOIN runs the codelet once, inline, on rank 0.
func (w *Worker) execute(t *task.Task) {
	j := t.Job()
	n := t.Size
	if n < 1 {
		n = 1
	}
	j.SetWorkerID(w.id)
	j.SetState(task.StateFetching)

	before := j.BeforeWorkBarrier()
	for i := 0; i < n; i++ {
		before.Arrive()
	}
	before.Wait()

	bufs, bytesSlices, privBufs, fetchErr := w.fetchBuffers(t)

	j.SetState(task.StateExecuting)

	var mu sync.Mutex
	var execErr error
	record := func(e error) {
		if e == nil {
			return
		}
		mu.Lock()
		if execErr == nil {
			execErr = e
		}
		mu.Unlock()
	}

	switch {
	case fetchErr != nil:
		record(fetchErr)
	case t.Type == task.ForkJoin:
		// Only rank 0 runs the forked region; the other ranks are claimed
		// without running anything, so every rank of the job is handed out.
		fn, ok := t.Codelet.Implementations[w.kind]
		if !ok {
			record(task.ErrNoDevice)
			break
		}
		rank := j.ClaimRank()
		for i := 1; i < n; i++ {
			j.ClaimRank()
		}
		execCtx := &task.ExecContext{Buffers: bufs, Bytes: bytesSlices, Args: t.Args, Rank: rank, NRanks: n}
		record(fn(execCtx))
	default:
		fn, ok := t.Codelet.Implementations[w.kind]
		if !ok {
			record(task.ErrNoDevice)
			break
		}
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				rank := j.ClaimRank()
				execCtx := &task.ExecContext{Buffers: bufs, Bytes: bytesSlices, Args: t.Args, Rank: rank, NRanks: n}
				record(fn(execCtx))
			}()
		}
		wg.Wait()
	}

	after := j.AfterWorkBarrier()
	for i := 0; i < n; i++ {
		after.Arrive()
	}
	after.Wait()

	w.releaseBuffers(t, privBufs)

	busy := j.BusyBarrier()
	for i := 0; i < n; i++ {
		busy.Arrive()
	}
	busy.Wait()

	task.HandleJobTermination(j, execErr)
}

// fetchBuffers runs the coherence protocol for every buffer bound to t,
// blocking until each transfer lands. On error it stops fetching further
// buffers and returns the first failure.
func (w *Worker) fetchBuffers(t *task.Task) ([]datawizard.Interface, [][]byte, [][]byte, error) {
	bufs := make([]datawizard.Interface, len(t.Buffers))
	bytesSlices := make([][]byte, len(t.Buffers))
	privBufs := make([][]byte, len(t.Buffers))

	for i, b := range t.Buffers {
		transfer, priv, err := b.Handle.FetchForTask(w.reg, w.node, b.Mode)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("worker %d: fetch buffer %d: %w", w.id, i, err)
		}
		if err := transfer.Wait(); err != nil {
			return nil, nil, nil, fmt.Errorf("worker %d: transfer buffer %d: %w", w.id, i, err)
		}
		privBufs[i] = priv
		if priv != nil {
			bytesSlices[i] = priv
		} else {
			bytesSlices[i] = b.Handle.Bytes(w.node)
		}
		bufs[i] = b.Handle.Interface()
		t.Job().MarkBufferTransferred()
	}
	return bufs, bytesSlices, privBufs, nil
}

// releaseBuffers frees SCRATCH private buffers and folds REDUX private
// buffers into the canonical replica after the codelet has run.
func (w *Worker) releaseBuffers(t *task.Task, privBufs [][]byte) {
	if privBufs == nil {
		return
	}
	for i, b := range t.Buffers {
		if privBufs[i] == nil {
			continue
		}
		switch b.Mode {
		case datawizard.ModeSCRATCH:
			b.Handle.ReleaseScratch(w.reg, w.node, privBufs[i])
		case datawizard.ModeREDUX:
			b.Handle.FoldRedux(w.reg, w.node, privBufs[i])
		}
	}
}
