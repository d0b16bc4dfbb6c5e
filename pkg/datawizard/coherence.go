package datawizard

import (
	"fmt"

	"github.com/cuemby/taskrunner/pkg/memnode"
	"golang.org/x/sync/singleflight"
)

// Transfer is datawizard's own completion handle: it wraps the raw memnode
// copy (when one is needed) together with the replica-state finalization
// that must run after the bytes land, so callers only ever wait on one
// object regardless of which coherence path was taken.
type Transfer struct {
	done chan struct{}
	err  error
}

func newTransfer() *Transfer           { return &Transfer{done: make(chan struct{})} }
func (t *Transfer) complete(err error) { t.err = err; close(t.done) }
func (t *Transfer) Wait() error        { <-t.done; return t.err }
func completedTransfer(err error) *Transfer {
	t := newTransfer()
	t.complete(err)
	return t
}

// FetchForTask runs the coherence protocol (spec §4.1) for one (handle,
// node, mode) binding. It returns a Transfer the caller awaits before
// touching the handle's bytes on execNode, and for SCRATCH/REDUX a private
// buffer untracked by the replica state machine.
func (h *Handle) FetchForTask(reg *memnode.Registry, execNode int, mode AccessMode) (*Transfer, []byte, error) {
	h.mu.Lock()

	if h.state != lifecyclePlain {
		h.mu.Unlock()
		return nil, nil, ErrInvalidState
	}
	node := reg.Node(execNode)
	if node == nil {
		h.mu.Unlock()
		return nil, nil, ErrInvalidHandle
	}

	if mode == ModeSCRATCH || mode == ModeREDUX {
		defer h.mu.Unlock()
		buf, err := node.Allocator.Allocate(h.iface.ByteSize(), memnode.AllocNormal)
		if err != nil {
			return nil, nil, err
		}
		return completedTransfer(nil), buf, nil
	}

	dest, ok := h.replicas[execNode]
	needCopy := mode&ModeR != 0 && (!ok || dest.state == Invalid)

	if !needCopy {
		defer h.mu.Unlock()
		if ok {
			if mode&ModeW != 0 {
				h.promoteOwnerLocked(execNode, reg)
			}
			return completedTransfer(nil), nil, nil
		}
		buf, err := node.Allocator.Allocate(h.iface.ByteSize(), memnode.AllocNormal)
		if err != nil {
			return nil, nil, err
		}
		h.replicas[execNode] = &replicaRecord{state: Owner, data: buf}
		h.invalidateOthersLocked(execNode, reg)
		return completedTransfer(nil), nil, nil
	}
	h.mu.Unlock()

	// Concurrent non-conflicting reads of the same not-yet-materialized
	// replica collapse onto one CopyAsync here instead of each independently
	// re-checking state, allocating a destination buffer, and overwriting
	// h.replicas[execNode] with its own in-flight transfer.
	key := fmt.Sprintf("%d:%d", h.id, execNode)
	v, err, _ := h.sf.Do(key, func() (interface{}, error) {
		return h.startCopy(reg, node, execNode, mode)
	})
	if err != nil {
		return nil, nil, err
	}
	return v.(*Transfer), nil, nil
}

// startCopy performs the locked decision-and-launch that used to live
// directly in FetchForTask's needCopy branch. It runs inside h.sf.Do, so at
// most one caller per (handle, node) key executes it at a time; callers that
// arrive while it is running share its return value instead of racing it.
func (h *Handle) startCopy(reg *memnode.Registry, node *memnode.Node, execNode int, mode AccessMode) (*Transfer, error) {
	h.mu.Lock()

	// Re-check: a sibling call that lost the singleflight race, or a plain
	// write that landed between FetchForTask's unlock and this lock, may
	// already have materialized or be materializing this replica.
	if dest, ok := h.replicas[execNode]; ok {
		if dest.pending != nil {
			pending := dest.pending
			h.mu.Unlock()
			return rideTransfer(pending), nil
		}
		if dest.state != Invalid {
			h.mu.Unlock()
			return completedTransfer(nil), nil
		}
	}

	srcNode := -1
	for n, r := range h.replicas {
		if r.state == Invalid {
			continue
		}
		switch {
		case srcNode == -1:
			srcNode = n
		case node.Copy.CanDirectAccess(n, execNode) && !node.Copy.CanDirectAccess(srcNode, execNode):
			srcNode = n
		case node.Copy.CanDirectAccess(n, execNode) == node.Copy.CanDirectAccess(srcNode, execNode) && n < srcNode:
			srcNode = n
		}
	}
	if srcNode == -1 {
		h.mu.Unlock()
		return nil, ErrInvalidHandle
	}
	srcRec := h.replicas[srcNode]
	destBuf, err := node.Allocator.Allocate(h.iface.ByteSize(), memnode.AllocNormal)
	if err != nil {
		h.mu.Unlock()
		return nil, err
	}

	raw, err := node.Copy.CopyAsync(&memnode.Replica{Data: destBuf}, &memnode.Replica{Data: srcRec.data}, &memnode.TransferRequest{Size: h.iface.ByteSize()})
	if err != nil {
		node.Allocator.Free(destBuf, memnode.AllocNormal)
		h.mu.Unlock()
		return nil, err
	}

	h.replicas[execNode] = &replicaRecord{state: Invalid, data: destBuf, pending: raw}
	h.mu.Unlock()

	out := newTransfer()
	go func() {
		cerr := raw.Wait()
		h.mu.Lock()
		defer h.mu.Unlock()
		rec := h.replicas[execNode]
		if cerr != nil {
			delete(h.replicas, execNode)
			out.complete(cerr)
			return
		}
		rec.pending = nil
		if mode&ModeW != 0 {
			rec.state = Owner
			h.invalidateOthersLocked(execNode, reg)
		} else {
			rec.state = Shared
		}
		out.complete(nil)
	}()
	return out, nil
}

// rideTransfer wraps an already in-flight memnode.Transfer so a fetch that
// lost the singleflight race waits on the same underlying copy rather than
// the replica-state finalization goroutine the original caller owns.
func rideTransfer(pending *memnode.Transfer) *Transfer {
	out := newTransfer()
	go func() { out.complete(pending.Wait()) }()
	return out
}

// promoteOwnerLocked transitions an already-valid replica to OWNER,
// invalidating every other replica. Called with h.mu held.
func (h *Handle) promoteOwnerLocked(node int, reg *memnode.Registry) {
	h.replicas[node].state = Owner
	h.invalidateOthersLocked(node, reg)
}

// invalidateOthersLocked frees and invalidates every replica but node.
// Called with h.mu held.
func (h *Handle) invalidateOthersLocked(node int, reg *memnode.Registry) {
	for n, r := range h.replicas {
		if n == node || r.state == Invalid {
			continue
		}
		if other := reg.Node(n); other != nil && r.data != nil {
			other.Allocator.Free(r.data, memnode.AllocNormal)
		}
		r.state = Invalid
		r.data = nil
	}
}

// Bytes returns the current replica bytes on node, or nil if invalid.
func (h *Handle) Bytes(node int) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.replicas[node]
	if !ok || r.state == Invalid {
		return nil
	}
	return r.data
}

// ReleaseScratch frees a private SCRATCH buffer obtained from FetchForTask.
func (h *Handle) ReleaseScratch(reg *memnode.Registry, node int, buf []byte) {
	if n := reg.Node(node); n != nil {
		n.Allocator.Free(buf, memnode.AllocNormal)
	}
}

// SetReduceFunc installs the reduction used to fold REDUX partial replicas
// into the canonical replica. Must be set before any REDUX-mode task runs.
func (h *Handle) SetReduceFunc(fn ReduceFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reduceFn = fn
}

// FoldRedux folds a private per-worker REDUX replica into the canonical
// owner replica and frees the private buffer. Called by the worker driver
// after a REDUX task completes.
func (h *Handle) FoldRedux(reg *memnode.Registry, node int, partial []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	owner := -1
	for n, r := range h.replicas {
		if r.state == Owner {
			owner = n
			break
		}
	}
	if owner == -1 || h.reduceFn == nil {
		return
	}
	h.reduceFn(h.replicas[owner].data, partial)
	if n := reg.Node(node); n != nil {
		n.Allocator.Free(partial, memnode.AllocNormal)
	}
}
