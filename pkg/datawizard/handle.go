package datawizard

import (
	"sync"

	"github.com/cuemby/taskrunner/pkg/memnode"
	"golang.org/x/sync/singleflight"
)

// replicaRecord is one handle's materialization on one memory node.
type replicaRecord struct {
	state   ReplicaState
	data    []byte
	pending *memnode.Transfer // non-nil while an outgoing/incoming copy pins this replica
}

// AccessTicket sequences a task's binding to a handle into submission order.
// Ready closes once every conflicting predecessor has called Complete.
type AccessTicket struct {
	mode  AccessMode
	ready chan struct{}
	done  chan struct{}
}

func (t *AccessTicket) Ready() <-chan struct{} { return t.ready }

// Handle is the canonical identity of a piece of user data. Its mutex is the
// single writer of replica state and the serialization primitive the spec
// requires: distinct handles make progress concurrently, a single handle's
// metadata mutations never race.
type Handle struct {
	id      HandleID
	iface   Interface
	home    int    // node the buffer was registered on; Unregister reconciles back here
	userBuf []byte // the caller's original slice from Register, kept in sync on Unregister

	mu       sync.Mutex
	replicas map[int]*replicaRecord
	state    handleLifecycle

	parent   HandleID
	children []HandleID
	filter   Filter

	amu     sync.Mutex
	pending []*AccessTicket // FIFO of not-yet-completed access tickets, submission order

	reduceFn ReduceFunc // set only for REDUX-bound handles

	// sf collapses concurrent first-touch fetches of the same (handle, node)
	// replica into a single CopyAsync. Non-conflicting reads of an invalid
	// replica are the case this guards: without it, each reader would
	// allocate and launch its own copy and clobber the others' bookkeeping
	// in h.replicas[execNode].
	sf singleflight.Group
}

// ReduceFunc folds a private per-worker REDUX replica into the canonical
// replica. Supplied by the caller registering a handle intended for REDUX use.
type ReduceFunc func(canonical, partial []byte)

func newHandle(id HandleID, iface Interface, home int) *Handle {
	return &Handle{
		id:       id,
		iface:    iface,
		home:     home,
		replicas: make(map[int]*replicaRecord),
		parent:   0,
	}
}

func (h *Handle) ID() HandleID { return h.id }

func (h *Handle) Interface() Interface { return h.iface }

// replicaState reports the coherence state on a node without allocating.
func (h *Handle) replicaState(node int) ReplicaState {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.replicas[node]
	if !ok {
		return Invalid
	}
	return r.state
}

// Owner returns the node currently in OWNER state, or -1 if none (handle
// has no materialized data, which should only happen before Register).
func (h *Handle) Owner() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	for node, r := range h.replicas {
		if r.state == Owner {
			return node
		}
	}
	return -1
}

// TrackAccess registers a new binding to this handle in submission order and
// returns a ticket whose Ready channel closes once all conflicting prior
// tickets have called Complete. Reads batch concurrently; any write
// serializes against everything before it, and everything after a write
// serializes against it.
func (h *Handle) TrackAccess(mode AccessMode) *AccessTicket {
	h.amu.Lock()
	defer h.amu.Unlock()

	ticket := &AccessTicket{mode: mode, ready: make(chan struct{}), done: make(chan struct{})}

	var blockers []*AccessTicket
	if mode&ModeW != 0 {
		blockers = append(blockers, h.pending...)
	} else {
		for _, p := range h.pending {
			if p.mode&ModeW != 0 {
				blockers = append(blockers, p)
			}
		}
	}
	h.pending = append(h.pending, ticket)

	if len(blockers) == 0 {
		close(ticket.ready)
	} else {
		go func() {
			for _, b := range blockers {
				<-b.done
			}
			close(ticket.ready)
		}()
	}
	return ticket
}

// CompleteAccess marks a ticket done, unblocking any accesses queued behind
// it, and retires it from the handle's pending list.
func (h *Handle) CompleteAccess(t *AccessTicket) {
	close(t.done)
	h.amu.Lock()
	defer h.amu.Unlock()
	for i, p := range h.pending {
		if p == t {
			h.pending = append(h.pending[:i], h.pending[i+1:]...)
			break
		}
	}
}
