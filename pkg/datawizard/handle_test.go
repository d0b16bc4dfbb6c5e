package datawizard

import (
	"testing"

	"github.com/cuemby/taskrunner/pkg/memnode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArena(t *testing.T, numNodes int) (*Arena, *memnode.Registry) {
	t.Helper()
	reg := memnode.NewRegistry()
	for i := 0; i < numNodes; i++ {
		reg.AddNode(memnode.KindHostRAM, memnode.KindCPU, memnode.NewArenaAllocator(0), memnode.NewMemcpyEngine())
	}
	return NewArena(reg), reg
}

func TestRegisterOwnerOnHomeNode(t *testing.T) {
	arena, _ := newTestArena(t, 1)
	vals := Float64sToBytes([]float64{1, 2, 3})
	h, err := arena.Register(&VectorInterface{NElem: 3, ElemSize: 8}, 0, vals)
	require.NoError(t, err)
	assert.Equal(t, 0, h.Owner())
	assert.Equal(t, Owner, h.replicaState(0))
	assert.Equal(t, Invalid, h.replicaState(1))
}

func TestFetchForTaskWPromotesOwnerAndInvalidatesOthers(t *testing.T) {
	arena, reg := newTestArena(t, 2)
	vals := Float64sToBytes([]float64{1, 2, 3})
	h, err := arena.Register(&VectorInterface{NElem: 3, ElemSize: 8}, 0, vals)
	require.NoError(t, err)

	transfer, scratch, err := h.FetchForTask(reg, 1, ModeRW)
	require.NoError(t, err)
	require.Nil(t, scratch)
	require.NoError(t, transfer.Wait())

	assert.Equal(t, Owner, h.replicaState(1))
	assert.Equal(t, Invalid, h.replicaState(0))
	assert.Equal(t, []float64{1, 2, 3}, BytesToFloat64s(h.Bytes(1)))
}

func TestFetchForTaskScratchIsUntracked(t *testing.T) {
	arena, reg := newTestArena(t, 1)
	h, err := arena.Register(&VectorInterface{NElem: 4, ElemSize: 8}, 0, Float64sToBytes([]float64{0, 0, 0, 0}))
	require.NoError(t, err)

	transfer, scratch, err := h.FetchForTask(reg, 0, ModeSCRATCH)
	require.NoError(t, err)
	require.NoError(t, transfer.Wait())
	assert.Len(t, scratch, 32)
	assert.Equal(t, Owner, h.replicaState(0))
}

func TestTrackAccessSerializesConflictingWrites(t *testing.T) {
	arena, _ := newTestArena(t, 1)
	h, err := arena.Register(&VectorInterface{NElem: 1, ElemSize: 8}, 0, Float64sToBytes([]float64{0}))
	require.NoError(t, err)

	t1 := h.TrackAccess(ModeW)
	t2 := h.TrackAccess(ModeR)
	t3 := h.TrackAccess(ModeW)

	select {
	case <-t1.Ready():
	default:
		t.Fatal("t1 should be immediately ready, nothing precedes it")
	}
	select {
	case <-t2.Ready():
		t.Fatal("t2 must wait for t1 (conflicting write)")
	default:
	}

	h.CompleteAccess(t1)
	<-t2.Ready()

	select {
	case <-t3.Ready():
		t.Fatal("t3 must wait for t2 (write after read)")
	default:
	}
	h.CompleteAccess(t2)
	<-t3.Ready()
	h.CompleteAccess(t3)
}

func TestPartitionUnpartitionRoundTripPreservesBytes(t *testing.T) {
	arena, reg := newTestArena(t, 1)
	original := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	h, err := arena.Register(&VectorInterface{NElem: 8, ElemSize: 8}, 0, Float64sToBytes(original))
	require.NoError(t, err)

	children, err := arena.Partition(h, &VectorBlockFilter{NBlocks: 4})
	require.NoError(t, err)
	require.Len(t, children, 4)
	for i, ch := range children {
		assert.Equal(t, 2, ch.Interface().(*VectorInterface).NElem)
		assert.Equal(t, Owner, ch.replicaState(0))
		_ = i
	}

	require.NoError(t, arena.Unpartition(h, 0))
	assert.Equal(t, Owner, h.replicaState(0))
	assert.Equal(t, original, BytesToFloat64s(h.Bytes(0)))

	require.NoError(t, arena.Unregister(h, true))

	_ = reg
}
