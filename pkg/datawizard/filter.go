package datawizard

// Filter carves a parent handle's current bytes into a fixed-size ordered
// sequence of child interfaces and child byte views. Children are returned
// as independent copies: this rendition has no true memory aliasing across
// handles, so Unpartition is responsible for writing child data back into
// the parent's buffer (Arena.Unpartition does this through Filter.Merge).
type Filter interface {
	NChildren() int
	Split(parent Interface, parentBytes []byte) ([]Interface, [][]byte)
	// Merge writes childBytes back into the corresponding range of a
	// (possibly freshly allocated) parent byte buffer.
	Merge(parent Interface, parentBytes []byte, childBytes [][]byte)
}

// VectorBlockFilter splits a vector into NBlocks contiguous, equal-sized
// blocks. NElem must be divisible by NBlocks.
type VectorBlockFilter struct {
	NBlocks int
}

func (f *VectorBlockFilter) NChildren() int { return f.NBlocks }

func (f *VectorBlockFilter) Split(parent Interface, parentBytes []byte) ([]Interface, [][]byte) {
	v := parent.(*VectorInterface)
	blockElems := v.NElem / f.NBlocks
	ifaces := make([]Interface, f.NBlocks)
	views := make([][]byte, f.NBlocks)
	for i := 0; i < f.NBlocks; i++ {
		ifaces[i] = &VectorInterface{NElem: blockElems, ElemSize: v.ElemSize}
		off := uint64(i*blockElems) * v.ElemSize
		length := uint64(blockElems) * v.ElemSize
		view := make([]byte, length)
		if uint64(len(parentBytes)) >= off+length {
			copy(view, parentBytes[off:off+length])
		}
		views[i] = view
	}
	return ifaces, views
}

func (f *VectorBlockFilter) Merge(parent Interface, parentBytes []byte, childBytes [][]byte) {
	v := parent.(*VectorInterface)
	blockElems := v.NElem / f.NBlocks
	for i := 0; i < f.NBlocks; i++ {
		off := uint64(i*blockElems) * v.ElemSize
		copy(parentBytes[off:off+uint64(len(childBytes[i]))], childBytes[i])
	}
}

// CSRRowBlockFilter splits a CSR matrix into row-contiguous blocks using a
// caller-supplied set of row boundaries (len(RowBoundaries) == NBlocks+1,
// RowBoundaries[0] == 0, RowBoundaries[NBlocks] == NRows).
type CSRRowBlockFilter struct {
	RowBoundaries []int
}

func (f *CSRRowBlockFilter) NChildren() int { return len(f.RowBoundaries) - 1 }

func (f *CSRRowBlockFilter) Split(parent Interface, parentBytes []byte) ([]Interface, [][]byte) {
	c := parent.(*CSRInterface)
	nzvalSize := uint64(c.NNZ) * c.ElemSize
	rowptr := BytesToInt64s(parentBytes[nzvalSize+uint64(c.NNZ)*c.IndexSize:])
	nzval := parentBytes[:nzvalSize]
	colind := BytesToInt64s(parentBytes[nzvalSize : nzvalSize+uint64(c.NNZ)*c.IndexSize])

	n := f.NChildren()
	ifaces := make([]Interface, n)
	views := make([][]byte, n)
	for i := 0; i < n; i++ {
		r0, r1 := f.RowBoundaries[i], f.RowBoundaries[i+1]
		nz0, nz1 := int(rowptr[r0]), int(rowptr[r1])
		nnz := nz1 - nz0
		nrows := r1 - r0

		childNzval := append([]byte{}, nzval[uint64(nz0)*c.ElemSize:uint64(nz1)*c.ElemSize]...)
		childColindVals := colind[nz0:nz1]
		childColind := Int64sToBytes(childColindVals)

		childRowptrVals := make([]int64, nrows+1)
		for j := 0; j <= nrows; j++ {
			childRowptrVals[j] = rowptr[r0+j] - rowptr[r0]
		}
		childRowptr := Int64sToBytes(childRowptrVals)

		view := append(append(childNzval, childColind...), childRowptr...)
		views[i] = view
		ifaces[i] = &CSRInterface{NRows: nrows, NNZ: nnz, ElemSize: c.ElemSize, IndexSize: c.IndexSize}
	}
	return ifaces, views
}

// Merge is a no-op for CSR row blocks in this runtime: SpMV-style codelets
// write their output through a separately partitioned (vector) output
// handle, never back into the sparse matrix itself.
func (f *CSRRowBlockFilter) Merge(parent Interface, parentBytes []byte, childBytes [][]byte) {}
