package datawizard

// Interface is a type-tagged descriptor for the logical shape of a handle's
// data. Each memory node materializes its own concrete replica sized by
// ByteSize; filters consult ElemSize to slice sub-views.
type Interface interface {
	Kind() string
	ByteSize() uint64
}

// VectorInterface describes a dense 1-D array of fixed-size elements.
type VectorInterface struct {
	NElem    int
	ElemSize uint64
}

func (v *VectorInterface) Kind() string     { return "vector" }
func (v *VectorInterface) ByteSize() uint64 { return uint64(v.NElem) * v.ElemSize }

// MatrixInterface describes a dense row-major 2-D array.
type MatrixInterface struct {
	NRows, NCols int
	ElemSize     uint64
	LD           int // leading dimension, in elements
}

func (m *MatrixInterface) Kind() string { return "matrix" }
func (m *MatrixInterface) ByteSize() uint64 {
	return uint64(m.NRows) * uint64(m.LD) * m.ElemSize
}

// CSRInterface describes a compressed-sparse-row matrix: nzval/colind share
// NNZ entries, rowptr has NRows+1 entries (one past the last row).
type CSRInterface struct {
	NRows, NNZ int
	ElemSize   uint64 // size of one nzval entry
	IndexSize  uint64 // size of one colind/rowptr entry
}

func (c *CSRInterface) Kind() string { return "csr" }
func (c *CSRInterface) ByteSize() uint64 {
	return uint64(c.NNZ)*c.ElemSize + uint64(c.NNZ)*c.IndexSize + uint64(c.NRows+1)*c.IndexSize
}

// BlockOfBlocksInterface describes a handle whose children are themselves
// partitionable matrices, used for two-level (block) partitioning.
type BlockOfBlocksInterface struct {
	NBlockRows, NBlockCols int
	BlockRows, BlockCols   int
	ElemSize               uint64
}

func (b *BlockOfBlocksInterface) Kind() string { return "block-of-blocks" }
func (b *BlockOfBlocksInterface) ByteSize() uint64 {
	return uint64(b.NBlockRows*b.BlockRows) * uint64(b.NBlockCols*b.BlockCols) * b.ElemSize
}
