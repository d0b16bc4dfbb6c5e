package task

import (
	"github.com/cuemby/taskrunner/pkg/datawizard"
	"github.com/cuemby/taskrunner/pkg/memnode"
)

// ExecContext is what a codelet implementation receives when the driver
// invokes it: one buffer per binding, in task order, plus the opaque
// argument blob and this alias's rank within a parallel task.
type ExecContext struct {
	Buffers []datawizard.Interface
	Bytes   [][]byte
	Args    []byte
	Rank    int
	NRanks  int
}

// CPUFunc is a codelet's per-kind implementation. Only CPU implementations
// are invoked by the shipped driver; the Where bitmask and Implementations
// map exist per worker kind so a future GPU driver slots in without
// reshaping Codelet.
type CPUFunc func(ctx *ExecContext) error

// Codelet is a passive, immutable-after-first-use descriptor: eligible
// worker kinds, per-kind implementations, buffer arity, and access modes.
type Codelet struct {
	Name            string
	Where           memnode.WorkerKind
	Implementations map[memnode.WorkerKind]CPUFunc
	NBuffers        int
	Modes           []datawizard.AccessMode
	PerfModelSymbol string // key used by pkg/perfmodel; empty disables calibration
}

func (c *Codelet) implFor(kind memnode.WorkerKind) (CPUFunc, bool) {
	fn, ok := c.Implementations[kind]
	return fn, ok
}
