package datawizard

import (
	"sync"

	"github.com/cuemby/taskrunner/pkg/memnode"
)

// Arena is the package-level keyed store of handle records, indexed by
// HandleID. Handle id 0 is reserved; ids are assigned densely starting at 1.
// This plays the same "single authoritative keyed store" role a BoltDB
// bucket plays for persisted entities, except the arena lives purely
// in-memory for the lifetime of one runtime.Init/Shutdown window.
type Arena struct {
	reg *memnode.Registry

	mu      sync.Mutex
	nextID  HandleID
	handles map[HandleID]*Handle
}

func NewArena(reg *memnode.Registry) *Arena {
	return &Arena{reg: reg, nextID: 1, handles: make(map[HandleID]*Handle)}
}

func (a *Arena) allocID() HandleID {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	return id
}

// Get looks up a live handle by id.
func (a *Arena) Get(id HandleID) (*Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.handles[id]
	if !ok {
		return nil, ErrInvalidHandle
	}
	return h, nil
}

// Register makes the runtime aware of an existing buffer on node, with
// OWNER state there and INVALID everywhere else. The runtime keeps its own
// allocator-tracked copy of initial's bytes; initial itself is remembered so
// Unregister can copy the final state back into the caller's own slice.
func (a *Arena) Register(iface Interface, node int, initial []byte) (*Handle, error) {
	n := a.reg.Node(node)
	if n == nil {
		return nil, ErrInvalidHandle
	}
	buf, err := n.Allocator.Allocate(iface.ByteSize(), memnode.AllocNormal)
	if err != nil {
		return nil, err
	}
	copy(buf, initial)

	id := a.allocID()
	h := newHandle(id, iface, node)
	h.userBuf = initial
	h.replicas[node] = &replicaRecord{state: Owner, data: buf}

	a.mu.Lock()
	a.handles[id] = h
	a.mu.Unlock()
	return h, nil
}

// Unregister blocks until every task referencing h completes, optionally
// reconciles ownership back to h's home node, and frees all replicas.
func (a *Arena) Unregister(h *Handle, reconcileHome bool) error {
	h.mu.Lock()
	if h.state != lifecyclePlain {
		h.mu.Unlock()
		return ErrInvalidState
	}
	h.mu.Unlock()

	h.drainPending()

	h.mu.Lock()
	defer h.mu.Unlock()
	if reconcileHome {
		if owner, ok := h.replicas[h.home]; !ok || owner.state != Owner {
			for _, r := range h.replicas {
				if r.state != Owner {
					continue
				}
				home := a.reg.Node(h.home)
				buf, err := home.Allocator.Allocate(uint64(len(r.data)), memnode.AllocNormal)
				if err != nil {
					return err
				}
				copy(buf, r.data)
				h.invalidateOthersLocked(-1, a.reg)
				h.replicas[h.home] = &replicaRecord{state: Owner, data: buf}
				break
			}
		}
	}
	if reconcileHome && h.userBuf != nil {
		if owner, ok := h.replicas[h.home]; ok && owner.state == Owner {
			copy(h.userBuf, owner.data)
		}
	}

	for n, r := range h.replicas {
		if r.data != nil {
			if node := a.reg.Node(n); node != nil {
				node.Allocator.Free(r.data, memnode.AllocNormal)
			}
		}
	}

	a.mu.Lock()
	delete(a.handles, h.id)
	a.mu.Unlock()
	return nil
}

// drainPending waits for every access ticket issued before this call to
// complete, without blocking new tickets issued concurrently.
func (h *Handle) drainPending() {
	h.amu.Lock()
	snapshot := append([]*AccessTicket{}, h.pending...)
	h.amu.Unlock()
	for _, t := range snapshot {
		<-t.done
	}
}

// Partition carves h into a fixed-size ordered sequence of child handles.
// Children start materialized from h's current OWNER replica where one
// exists (so already-written data remains visible to readers of the
// children); they start fully INVALID only when no replica of h is in
// OWNER state. Register always gives a new handle an OWNER replica, so a
// handle partitioned before any task writes it still yields materialized
// children.
func (a *Arena) Partition(h *Handle, filter Filter) ([]*Handle, error) {
	h.mu.Lock()
	if h.state != lifecyclePlain {
		h.mu.Unlock()
		return nil, ErrAlreadyPartitioned
	}

	var ownerNode = -1
	var ownerBytes []byte
	for n, r := range h.replicas {
		if r.state == Owner {
			ownerNode, ownerBytes = n, r.data
		}
	}

	var ifaces []Interface
	var views [][]byte
	if ownerBytes != nil {
		ifaces, views = filter.Split(h.iface, ownerBytes)
	} else {
		ifaces, views = filter.Split(h.iface, nil)
	}

	var ownerMemNode *memnode.Node
	if ownerBytes != nil {
		ownerMemNode = a.reg.Node(ownerNode)
	}

	children := make([]*Handle, len(ifaces))
	ids := make([]HandleID, len(ifaces))
	for i, iface := range ifaces {
		id := a.allocID()
		ch := newHandle(id, iface, h.home)
		ch.parent = h.id
		if ownerBytes != nil {
			// views[i] is a plain Go slice from filter.Split, charged to
			// nothing; allocate the child's real replica through the node
			// allocator so Unpartition's matching Free balances against an
			// actual charge instead of drifting the allocated count negative.
			buf, err := ownerMemNode.Allocator.Allocate(uint64(len(views[i])), memnode.AllocNormal)
			if err != nil {
				h.mu.Unlock()
				return nil, err
			}
			copy(buf, views[i])
			ch.replicas[ownerNode] = &replicaRecord{state: Owner, data: buf}
		}
		children[i] = ch
		ids[i] = id
	}

	h.filter = filter
	h.children = ids
	h.state = lifecyclePartitioned
	h.mu.Unlock()

	a.mu.Lock()
	for _, ch := range children {
		a.handles[ch.id] = ch
	}
	a.mu.Unlock()
	return children, nil
}

// GetSubData returns the idx'th child of a partitioned handle.
func (a *Arena) GetSubData(h *Handle, idx int) (*Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != lifecyclePartitioned {
		return nil, ErrAlreadyPlain
	}
	if idx < 0 || idx >= len(h.children) {
		return nil, ErrBadChildIndex
	}
	return a.Get(h.children[idx])
}

// Unpartition reconciles children back into h, coalescing ownership onto
// targetNode, then destroys the children. Blocks until every task
// referencing any child has completed.
func (a *Arena) Unpartition(h *Handle, targetNode int) error {
	h.mu.Lock()
	if h.state != lifecyclePartitioned {
		h.mu.Unlock()
		return ErrAlreadyPlain
	}
	childIDs := append([]HandleID{}, h.children...)
	filter := h.filter
	h.state = lifecycleReconciling
	h.mu.Unlock()

	children := make([]*Handle, len(childIDs))
	for i, id := range childIDs {
		ch, err := a.Get(id)
		if err != nil {
			return err
		}
		children[i] = ch
		ch.drainPending()
	}

	childBytes := make([][]byte, len(children))
	for i, ch := range children {
		ch.mu.Lock()
		for _, r := range ch.replicas {
			if r.state == Owner {
				childBytes[i] = r.data
			}
		}
		ch.mu.Unlock()
	}

	target := a.reg.Node(targetNode)
	if target == nil {
		return ErrInvalidHandle
	}
	parentBuf, err := target.Allocator.Allocate(h.iface.ByteSize(), memnode.AllocNormal)
	if err != nil {
		return err
	}
	if filter != nil {
		filter.Merge(h.iface, parentBuf, childBytes)
	}

	for _, ch := range children {
		ch.mu.Lock()
		for n, r := range ch.replicas {
			if r.data != nil {
				if node := a.reg.Node(n); node != nil {
					node.Allocator.Free(r.data, memnode.AllocNormal)
				}
			}
		}
		ch.mu.Unlock()
	}

	a.mu.Lock()
	for _, id := range childIDs {
		delete(a.handles, id)
	}
	a.mu.Unlock()

	h.mu.Lock()
	for n, r := range h.replicas {
		if r.data != nil {
			if node := a.reg.Node(n); node != nil {
				node.Allocator.Free(r.data, memnode.AllocNormal)
			}
		}
	}
	h.replicas = map[int]*replicaRecord{targetNode: {state: Owner, data: parentBuf}}
	h.children = nil
	h.filter = nil
	h.state = lifecyclePlain
	h.mu.Unlock()
	return nil
}

// Acquire is the synchronous, main-thread-facing counterpart of
// FetchForTask: it blocks until h is coherent on node in mode and returns
// the current bytes. Release must be called exactly once to unblock
// anything serialized behind this access.
func (a *Arena) Acquire(h *Handle, node int, mode AccessMode) ([]byte, *AccessTicket, error) {
	ticket := h.TrackAccess(mode)
	<-ticket.Ready()
	transfer, scratch, err := h.FetchForTask(a.reg, node, mode)
	if err != nil {
		h.CompleteAccess(ticket)
		return nil, nil, err
	}
	if werr := transfer.Wait(); werr != nil {
		h.CompleteAccess(ticket)
		return nil, nil, werr
	}
	if scratch != nil {
		return scratch, ticket, nil
	}
	return h.Bytes(node), ticket, nil
}

// Release completes the ticket obtained from Acquire.
func (a *Arena) Release(h *Handle, ticket *AccessTicket) {
	h.CompleteAccess(ticket)
}
