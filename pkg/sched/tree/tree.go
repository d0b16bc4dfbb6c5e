// Package tree implements the scheduler-tree framework: a small node algebra
// (leaf workers, routing nodes) that aggregates cost estimates up from
// workers to the root, and supports several scheduling contexts sharing the
// same subtree simultaneously. Grounded on
// original_source/src/sched_policies/node_sched.c.
package tree

import (
	"sort"
	"sync"

	"github.com/cuemby/taskrunner/pkg/sched"
	"github.com/cuemby/taskrunner/pkg/task"
)

// ExecuteState classifies how confidently a node can predict a task's
// execution length.
type ExecuteState int

const (
	CannotExecute ExecuteState = iota
	Calibrating
	NoPerfModel
	PerfModel
)

// ExecutePred is the result of estimating a task's execution length at a
// node: a confidence state plus, when State == PerfModel, the predicted
// duration in seconds.
type ExecutePred struct {
	State          ExecuteState
	ExpectedLength float64
}

// Estimator supplies performance-model predictions to worker leaves. A nil
// Estimator makes every leaf report NoPerfModel, which still lets the tree
// route tasks (just without length-based balancing).
type Estimator interface {
	Estimate(symbol string, workerArch string, footprintBytes uint64) (seconds float64, ok bool)
	Calibrating(symbol string, workerArch string) bool
}

// Node is one vertex of the scheduler tree. Every node, worker leaves
// included, implements the same interface so routing nodes can aggregate
// over heterogeneous children uniformly.
type Node interface {
	PushTask(t *task.Task) error
	PopTask(ctxID int, workerID int) *task.Task
	Available()

	EstimatedFinishTime() float64
	EstimatedLoad() float64
	EstimatedExecuteLength(t *task.Task) ExecutePred
	EstimatedTransferLength(t *task.Task) float64
	CanExecute(t *task.Task) bool

	Children() []Node
	AddChild(child Node, ctxID int)
	RemoveChild(child Node, ctxID int)
	SetFather(ctxID int, father Node)
	Father(ctxID int) Node

	// WorkerIDs returns this node's cached set of worker ids reachable in
	// its subtree, deduplicated. Recomputed leaves-up whenever a child is
	// added or removed, not on every call.
	WorkerIDs() []int
	// IsHomogeneous reports whether every worker reachable in this node's
	// subtree shares the same architecture, from the same cache.
	IsHomogeneous() bool

	DestroyNode()
}

// base provides the child/father bookkeeping and the generic aggregation
// algebra shared by every non-leaf node kind. Embed it and override the
// leaf-specific methods (CanExecute, EstimatedExecuteLength, PushTask,
// PopTask) where a node has no children to recurse into.
type base struct {
	mu       sync.Mutex
	children []Node
	fathers  map[int]Node // sched ctx id -> father node

	// cachedWorkerIDs/cachedArch/cachedHomogeneous are the topology cache:
	// the deduplicated worker ids reachable in this node's subtree, the
	// single architecture shared by all of them when cachedHomogeneous is
	// true, and whether that single-architecture condition holds. Set at
	// construction for leaves, recomputed leaves-up on AddChild/RemoveChild
	// for routing nodes.
	cachedWorkerIDs   []int
	cachedArch        string
	cachedHomogeneous bool
}

func newBase() base {
	return base{fathers: make(map[int]Node)}
}

func (b *base) WorkerIDs() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int{}, b.cachedWorkerIDs...)
}

func (b *base) IsHomogeneous() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cachedHomogeneous
}

// subtreeArch returns the cached representative architecture and whether
// it is uniform across the whole subtree; used by a father's recomputeSelf
// to aggregate over children without knowing their concrete type.
func (b *base) subtreeArch() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cachedArch, b.cachedHomogeneous
}

func (b *base) setCache(ids []int, arch string, homogeneous bool) {
	b.mu.Lock()
	b.cachedWorkerIDs = ids
	b.cachedArch = arch
	b.cachedHomogeneous = homogeneous
	b.mu.Unlock()
}

func (b *base) Children() []Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Node{}, b.children...)
}

// doAddChild appends child and points it back at self (the concrete node
// embedding this base), since base cannot see its own embedder. Concrete
// node types implement the Node.AddChild method by calling this with
// themselves as self.
func (b *base) doAddChild(self Node, child Node, ctxID int) {
	b.mu.Lock()
	b.children = append(b.children, child)
	b.mu.Unlock()
	child.SetFather(ctxID, self)
}

func (b *base) doRemoveChild(child Node, ctxID int) {
	b.mu.Lock()
	for i, c := range b.children {
		if c == child {
			b.children = append(b.children[:i], b.children[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	child.SetFather(ctxID, nil)
}

func (b *base) SetFather(ctxID int, father Node) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fathers[ctxID] = father
}

func (b *base) Father(ctxID int) Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fathers[ctxID]
}

func (b *base) Available() {
	for _, c := range b.Children() {
		c.Available()
	}
}

// EstimatedFinishTime is max over children: the tree can only start the
// next task at this node once every busy child has drained.
func estimatedFinishTime(n Node) float64 {
	var max float64
	for _, c := range n.Children() {
		if v := c.EstimatedFinishTime(); v > max {
			max = v
		}
	}
	return max
}

// EstimatedLoad sums over children.
func estimatedLoad(n Node) float64 {
	var sum float64
	for _, c := range n.Children() {
		sum += c.EstimatedLoad()
	}
	return sum
}

// estimatedExecuteLength implements the tagged-sum algebra: a single
// Calibrating child short-circuits the whole estimate (we cannot yet trust
// any number from this subtree); PerfModel children average; a subtree with
// no PerfModel children anywhere reports NoPerfModel unless every child
// reports CannotExecute.
func estimatedExecuteLength(n Node, t *task.Task) ExecutePred {
	pred := ExecutePred{State: CannotExecute}
	var nb int
	for _, c := range n.Children() {
		tmp := c.EstimatedExecuteLength(t)
		switch tmp.State {
		case Calibrating:
			return tmp
		case NoPerfModel:
			if pred.State == CannotExecute {
				pred.State = NoPerfModel
			}
		case PerfModel:
			nb++
			pred.State = PerfModel
			pred.ExpectedLength += tmp.ExpectedLength
		case CannotExecute:
		}
	}
	if nb > 0 {
		pred.ExpectedLength /= float64(nb)
	}
	return pred
}

// estimatedTransferLength averages over children that can execute the task
// at all, since a child that cannot run it will never need the transfer.
func estimatedTransferLength(n Node, t *task.Task) float64 {
	var sum float64
	var nb int
	for _, c := range n.Children() {
		if c.CanExecute(t) {
			sum += c.EstimatedTransferLength(t)
			nb++
		}
	}
	if nb == 0 {
		return 0
	}
	return sum / float64(nb)
}

func canExecute(n Node, t *task.Task) bool {
	for _, c := range n.Children() {
		if c.CanExecute(t) {
			return true
		}
	}
	return false
}

// WorkerNode is a tree leaf wrapping one sched.WorkerHandle. It has no
// children; aggregation bottoms out here.
type WorkerNode struct {
	base
	Handle    sched.WorkerHandle
	Arch      string
	Estimator Estimator

	qmu   sync.Mutex
	queue []*task.Task
}

func NewWorkerNode(h sched.WorkerHandle, arch string, est Estimator) *WorkerNode {
	w := &WorkerNode{base: newBase(), Handle: h, Arch: arch, Estimator: est}
	w.setCache([]int{h.ID()}, arch, true)
	return w
}

func (w *WorkerNode) CanExecute(t *task.Task) bool {
	return t.Codelet.Where&w.Handle.Kind() != 0
}

func (w *WorkerNode) EstimatedExecuteLength(t *task.Task) ExecutePred {
	if !w.CanExecute(t) {
		return ExecutePred{State: CannotExecute}
	}
	if w.Estimator == nil || t.Codelet.PerfModelSymbol == "" {
		return ExecutePred{State: NoPerfModel}
	}
	if w.Estimator.Calibrating(t.Codelet.PerfModelSymbol, w.Arch) {
		return ExecutePred{State: Calibrating}
	}
	if seconds, ok := w.Estimator.Estimate(t.Codelet.PerfModelSymbol, w.Arch, t.ExpectedFootprint()); ok {
		return ExecutePred{State: PerfModel, ExpectedLength: seconds}
	}
	return ExecutePred{State: NoPerfModel}
}

func (w *WorkerNode) EstimatedTransferLength(t *task.Task) float64 { return 0 }

func (w *WorkerNode) EstimatedLoad() float64 {
	w.qmu.Lock()
	defer w.qmu.Unlock()
	return float64(len(w.queue))
}

func (w *WorkerNode) EstimatedFinishTime() float64 { return w.EstimatedLoad() }

func (w *WorkerNode) PushTask(t *task.Task) error {
	w.qmu.Lock()
	w.queue = append(w.queue, t)
	w.qmu.Unlock()
	w.Handle.Signal()
	return nil
}

func (w *WorkerNode) PopTask(ctxID int, workerID int) *task.Task {
	if workerID != w.Handle.ID() {
		return nil
	}
	w.qmu.Lock()
	defer w.qmu.Unlock()
	if len(w.queue) == 0 {
		return nil
	}
	t := w.queue[0]
	w.queue = w.queue[1:]
	return t
}

// Drain empties this leaf's queue and returns whatever was in it, used by
// Policy.PopEveryTask during context teardown.
func (w *WorkerNode) Drain() []*task.Task {
	w.qmu.Lock()
	defer w.qmu.Unlock()
	all := w.queue
	w.queue = nil
	return all
}

// AddChild/RemoveChild are no-ops: a worker leaf never gains children.
func (w *WorkerNode) AddChild(child Node, ctxID int)    {}
func (w *WorkerNode) RemoveChild(child Node, ctxID int) {}

func (w *WorkerNode) DestroyNode() {}

// RoutingNode fans a push out to one child, chosen by Select, and recurses
// pops toward whichever child owns workerID. Select defaults to the child
// with the lowest estimated finish time among those that CanExecute.
type RoutingNode struct {
	base
	Select func(children []Node, t *task.Task) Node
}

func NewRoutingNode() *RoutingNode {
	r := &RoutingNode{base: newBase(), Select: selectLeastLoaded}
	r.setCache(nil, "", true) // no children yet: vacuously homogeneous
	return r
}

// recomputeSelf recalculates this node's cached worker-id set and
// architecture homogeneity from its current children's own caches.
func (r *RoutingNode) recomputeSelf() {
	children := r.Children()
	idSet := make(map[int]struct{})
	var arch string
	homogeneous := true
	first := true
	for _, c := range children {
		for _, id := range c.WorkerIDs() {
			idSet[id] = struct{}{}
		}
		childArch, childHomogeneous := subtreeArch(c)
		if !childHomogeneous {
			homogeneous = false
			continue
		}
		if first {
			arch = childArch
			first = false
		} else if childArch != arch {
			homogeneous = false
		}
	}
	ids := make([]int, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	if len(children) == 0 {
		arch, homogeneous = "", true
	}
	r.setCache(ids, arch, homogeneous)
}

// subtreeArch reads n's cached architecture/homogeneity pair through the
// unexported base accessor every Node implementation in this package
// embeds.
func subtreeArch(n Node) (string, bool) {
	sn, ok := n.(interface{ subtreeArch() (string, bool) })
	if !ok {
		return "", false
	}
	return sn.subtreeArch()
}

// invalidate recomputes r's own cache and walks up ctxID's father chain to
// the root, recomputing every ancestor in turn, since adding or removing a
// leaf changes every ancestor's aggregate too.
func (r *RoutingNode) invalidate(ctxID int) {
	var walk func(n Node)
	walk = func(n Node) {
		if rn, ok := n.(*RoutingNode); ok {
			rn.recomputeSelf()
		}
		if father := n.Father(ctxID); father != nil {
			walk(father)
		}
	}
	walk(r)
}

func selectLeastLoaded(children []Node, t *task.Task) Node {
	var best Node
	var bestFinish float64
	for _, c := range children {
		if !c.CanExecute(t) {
			continue
		}
		f := c.EstimatedFinishTime()
		if best == nil || f < bestFinish {
			best = c
			bestFinish = f
		}
	}
	return best
}

func (r *RoutingNode) CanExecute(t *task.Task) bool { return canExecute(r, t) }
func (r *RoutingNode) EstimatedFinishTime() float64 { return estimatedFinishTime(r) }
func (r *RoutingNode) EstimatedLoad() float64       { return estimatedLoad(r) }
func (r *RoutingNode) EstimatedExecuteLength(t *task.Task) ExecutePred {
	return estimatedExecuteLength(r, t)
}
func (r *RoutingNode) EstimatedTransferLength(t *task.Task) float64 {
	return estimatedTransferLength(r, t)
}

func (r *RoutingNode) PushTask(t *task.Task) error {
	child := r.Select(r.Children(), t)
	if child == nil {
		return task.ErrNoDevice
	}
	return child.PushTask(t)
}

func (r *RoutingNode) PopTask(ctxID int, workerID int) *task.Task {
	for _, c := range r.Children() {
		if tk := c.PopTask(ctxID, workerID); tk != nil {
			return tk
		}
	}
	return nil
}

func (r *RoutingNode) AddChild(child Node, ctxID int) {
	r.doAddChild(r, child, ctxID)
	r.invalidate(ctxID)
}

func (r *RoutingNode) RemoveChild(child Node, ctxID int) {
	r.doRemoveChild(child, ctxID)
	r.invalidate(ctxID)
}

func (r *RoutingNode) DestroyNode() {}

// Tree is the root handle for one scheduling context's node graph.
type Tree struct {
	mu    sync.Mutex
	Root  Node
	CtxID int
}

func NewTree(ctxID int, root Node) *Tree {
	return &Tree{Root: root, CtxID: ctxID}
}

func (t *Tree) PushTask(tk *task.Task) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Root.PushTask(tk)
}

func (t *Tree) PopTask(workerID int) *task.Task {
	return t.Root.PopTask(t.CtxID, workerID)
}

// Destroy walks the subtree rooted at Root, calling DestroyNode on every
// node not reachable from any other scheduling context's father pointer.
// A node shared with another context (its fathers map has an entry besides
// CtxID) is left alone; everything else, including children that become
// unshared only once their parent is torn down, is destroyed.
func (t *Tree) Destroy() {
	destroyRec(t.Root, t.CtxID)
}

func destroyRec(n Node, ctxID int) {
	n.SetFather(ctxID, nil)
	if sharedAcrossOtherContexts(n, ctxID) {
		return
	}
	stack := []Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range cur.Children() {
			child.SetFather(ctxID, nil)
			if !sharedAcrossOtherContexts(child, ctxID) {
				stack = append(stack, child)
			}
		}
		cur.DestroyNode()
	}
}

// sharedAcrossOtherContexts reports whether n still has a live father
// pointer in some context other than ctxID. We cannot introspect base's
// private fathers map from outside the package for arbitrary Node
// implementations, so this relies on Father returning non-nil only for
// contexts that still reference n; callers that embed base get this for
// free via base's unexported fatherIDs method.
func sharedAcrossOtherContexts(n Node, excluding int) bool {
	sn, ok := n.(interface{ fatherIDs() []int })
	if !ok {
		return false
	}
	for _, id := range sn.fatherIDs() {
		if id != excluding {
			return true
		}
	}
	return false
}

func (b *base) fatherIDs() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]int, 0, len(b.fathers))
	for id, f := range b.fathers {
		if f != nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Policy adapts Tree into sched.Policy: it builds a single root RoutingNode
// per context, mounts one WorkerNode leaf per member worker, and delegates
// PushTask/PopTask straight to the tree. This is what makes the node
// algebra above reachable as an ordinary pluggable scheduler alongside
// pkg/sched/eager rather than a framework nothing ever drives.
type Policy struct {
	Estimator Estimator

	mu     sync.Mutex
	tree   *Tree
	leaves map[int]*WorkerNode
}

func NewPolicy(est Estimator) *Policy {
	return &Policy{Estimator: est, leaves: make(map[int]*WorkerNode)}
}

func (p *Policy) Name() string                 { return "tree" }
func (p *Policy) WorkerType() sched.WorkerType { return sched.WorkerTypeTree }

func (p *Policy) InitSched(ctx *sched.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tree = NewTree(ctx.ID, NewRoutingNode())
}

func (p *Policy) DeinitSched(ctx *sched.Context) {
	p.mu.Lock()
	tr := p.tree
	p.mu.Unlock()
	if tr != nil {
		tr.Destroy()
	}
}

func (p *Policy) AddWorkers(ctx *sched.Context, workerIDs []int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range workerIDs {
		w, ok := ctx.Worker(id)
		if !ok {
			continue
		}
		leaf := NewWorkerNode(w, ctx.PerfArch.Name, p.Estimator)
		p.leaves[id] = leaf
		p.tree.Root.AddChild(leaf, ctx.ID)
	}
}

func (p *Policy) RemoveWorkers(ctx *sched.Context, workerIDs []int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range workerIDs {
		leaf, ok := p.leaves[id]
		if !ok {
			continue
		}
		p.tree.Root.RemoveChild(leaf, ctx.ID)
		delete(p.leaves, id)
	}
}

func (p *Policy) PushTask(ctx *sched.Context, t *task.Task) error {
	p.mu.Lock()
	tr := p.tree
	p.mu.Unlock()
	return tr.PushTask(t)
}

func (p *Policy) PopTask(ctx *sched.Context, workerID int) *task.Task {
	p.mu.Lock()
	tr := p.tree
	p.mu.Unlock()
	return tr.PopTask(workerID)
}

// PopEveryTask drains every worker leaf's queue; tasks still buffered
// inside a routing node's own state (there is none in this tree, routing
// nodes never queue) would be lost, but WorkerNode is the only kind that
// ever holds ready tasks.
func (p *Policy) PopEveryTask(ctx *sched.Context) []*task.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	var all []*task.Task
	for _, leaf := range p.leaves {
		all = append(all, leaf.Drain()...)
	}
	return all
}

func (p *Policy) PreExecHook(ctx *sched.Context, t *task.Task)  {}
func (p *Policy) PostExecHook(ctx *sched.Context, t *task.Task) {}

func init() {
	sched.RegisterPolicy("tree", func() sched.Policy { return NewPolicy(nil) })
}
