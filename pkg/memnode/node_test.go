package memnode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaAllocatorCapsAtCapacity(t *testing.T) {
	a := NewArenaAllocator(16)

	buf, err := a.Allocate(16, AllocNormal)
	require.NoError(t, err)
	assert.Len(t, buf, 16)
	assert.Equal(t, uint64(16), a.Allocated())

	_, err = a.Allocate(1, AllocNormal)
	assert.ErrorIs(t, err, ErrOutOfMemory)

	a.Free(buf, AllocNormal)
	assert.Equal(t, uint64(0), a.Allocated())

	buf2, err := a.Allocate(16, AllocNormal)
	require.NoError(t, err)
	assert.Len(t, buf2, 16)
}

func TestArenaAllocatorUnlimitedWhenZeroCapacity(t *testing.T) {
	a := NewArenaAllocator(0)
	_, err := a.Allocate(1<<30, AllocNormal)
	require.NoError(t, err)
}

func TestMemcpyEngineCopiesBytes(t *testing.T) {
	engine := NewMemcpyEngine()
	src := &Replica{Data: []byte{1, 2, 3, 4}}
	dst := &Replica{Data: make([]byte, 4)}

	transfer, err := engine.CopyAsync(dst, src, &TransferRequest{Size: 4})
	require.NoError(t, err)
	require.NoError(t, transfer.Wait())
	assert.Equal(t, src.Data, dst.Data)
}

func TestMemcpyEngineStridedCopy(t *testing.T) {
	engine := NewMemcpyEngine()
	src := &Replica{Data: []byte{1, 2, 0, 0, 3, 4, 0, 0}}
	dst := &Replica{Data: make([]byte, 4)}

	transfer, err := engine.CopyStridedAsync(dst, src, &StridedTransferRequest{
		BlockSize: 2, NumBlocks: 2, SrcStride: 4, DstStride: 2,
	})
	require.NoError(t, err)
	require.NoError(t, transfer.Wait())
	assert.Equal(t, []byte{1, 2, 3, 4}, dst.Data)
}

func TestRegistryNodeZeroIsHostRAM(t *testing.T) {
	reg := NewRegistry()
	id := reg.AddNode(KindHostRAM, KindCPU, NewArenaAllocator(0), NewMemcpyEngine())
	assert.Equal(t, 0, id)
	assert.Equal(t, KindHostRAM, reg.Node(0).Kind)
	assert.Equal(t, 1, reg.Count())
}

func TestSingleNUMAProbeScalesWithCores(t *testing.T) {
	p := NewSingleNUMAProbe()
	assert.Equal(t, 1, p.NUMACount())
	assert.Greater(t, p.GlobalMemSize(0), uint64(0))
	assert.Equal(t, uint64(0), p.GlobalMemSize(1))
}
