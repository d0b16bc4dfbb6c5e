package scenario

import (
	"fmt"

	"github.com/cuemby/taskrunner/pkg/datawizard"
	"github.com/cuemby/taskrunner/pkg/memnode"
	"github.com/cuemby/taskrunner/pkg/runtime"
	"github.com/cuemby/taskrunner/pkg/task"
)

const spmvNBlocks = 4

func init() {
	task.RegisterCodelet(&task.Codelet{
		Name:  "spmv.row_block",
		Where: memnode.KindCPU,
		Implementations: map[memnode.WorkerKind]task.CPUFunc{
			memnode.KindCPU: spmvKernel,
		},
		NBuffers:        3,
		Modes:           []datawizard.AccessMode{datawizard.ModeR, datawizard.ModeR, datawizard.ModeW},
		PerfModelSymbol: "spmv.row_block",
	})
}

// spmvKernel computes one row block of y = A*x: buffer 0 is the CSR block
// (rowptr re-based to 0 by the partition filter, colind indexing the full
// vector_in), buffer 1 is the full vector_in, buffer 2 is this block's
// vector_out slice.
func spmvKernel(ctx *task.ExecContext) error {
	csr := ctx.Buffers[0].(*datawizard.CSRInterface)
	nzvalSize := uint64(csr.NNZ) * csr.ElemSize
	buf := ctx.Bytes[0]

	nzval := datawizard.BytesToFloat64s(buf[:nzvalSize])
	colind := datawizard.BytesToInt64s(buf[nzvalSize : nzvalSize+uint64(csr.NNZ)*csr.IndexSize])
	rowptr := datawizard.BytesToInt64s(buf[nzvalSize+uint64(csr.NNZ)*csr.IndexSize:])

	vecIn := datawizard.BytesToFloat64s(ctx.Bytes[1])
	vecOut := datawizard.BytesToFloat64s(ctx.Bytes[2])

	for r := 0; r < csr.NRows; r++ {
		var sum float64
		for k := rowptr[r]; k < rowptr[r+1]; k++ {
			sum += nzval[k] * vecIn[colind[k]]
		}
		vecOut[r] = sum
	}

	copy(ctx.Bytes[2], datawizard.Float64sToBytes(vecOut))
	return nil
}

// buildTridiagonal constructs the CSR encoding of a size-by-size
// tridiagonal matrix with diagonal 5 and off-diagonals 1, nnz = 3*size-2.
func buildTridiagonal(size int) (nzval []float64, colind []int64, rowptr []int64) {
	rowptr = make([]int64, size+1)
	for r := 0; r < size; r++ {
		if r > 0 {
			nzval = append(nzval, 1)
			colind = append(colind, int64(r-1))
		}
		nzval = append(nzval, 5)
		colind = append(colind, int64(r))
		if r < size-1 {
			nzval = append(nzval, 1)
			colind = append(colind, int64(r+1))
		}
		rowptr[r+1] = int64(len(nzval))
	}
	return nzval, colind, rowptr
}

// SpMVResult reports scenario B's single observable outcome.
type SpMVResult struct {
	VectorOut []float64
}

// SpMV reproduces scenario B: a tridiagonal matrix of the given size
// partitioned row-wise into spmvNBlocks blocks, vector_in = [2]*size left
// whole and read by every block, vector_out partitioned the same way and
// written by each block's task. size defaults to 16 when <= 0 and must be
// divisible by spmvNBlocks.
func SpMV(rt *runtime.Runtime, size int) (*SpMVResult, error) {
	if size <= 0 {
		size = 16
	}
	if size%spmvNBlocks != 0 {
		return nil, fmt.Errorf("scenario: size %d not divisible by %d blocks", size, spmvNBlocks)
	}

	nzval, colind, rowptr := buildTridiagonal(size)
	nnz := len(nzval)

	matBuf := append(append(
		datawizard.Float64sToBytes(nzval),
		datawizard.Int64sToBytes(colind)...),
		datawizard.Int64sToBytes(rowptr)...)

	matIface := &datawizard.CSRInterface{NRows: size, NNZ: nnz, ElemSize: 8, IndexSize: 8}
	matH, err := rt.Arena.Register(matIface, rt.HostNode(), matBuf)
	if err != nil {
		return nil, fmt.Errorf("scenario: register matrix: %w", err)
	}

	vecIn := make([]float64, size)
	for i := range vecIn {
		vecIn[i] = 2
	}
	vecInBuf := datawizard.Float64sToBytes(vecIn)
	vecInH, err := rt.Arena.Register(&datawizard.VectorInterface{NElem: size, ElemSize: 8}, rt.HostNode(), vecInBuf)
	if err != nil {
		return nil, fmt.Errorf("scenario: register vector_in: %w", err)
	}

	vecOutBuf := datawizard.Float64sToBytes(make([]float64, size))
	vecOutH, err := rt.Arena.Register(&datawizard.VectorInterface{NElem: size, ElemSize: 8}, rt.HostNode(), vecOutBuf)
	if err != nil {
		return nil, fmt.Errorf("scenario: register vector_out: %w", err)
	}

	rowsPerBlock := size / spmvNBlocks
	boundaries := make([]int, spmvNBlocks+1)
	for i := range boundaries {
		boundaries[i] = i * rowsPerBlock
	}

	matBlocks, err := rt.Arena.Partition(matH, &datawizard.CSRRowBlockFilter{RowBoundaries: boundaries})
	if err != nil {
		return nil, fmt.Errorf("scenario: partition matrix: %w", err)
	}
	outBlocks, err := rt.Arena.Partition(vecOutH, &datawizard.VectorBlockFilter{NBlocks: spmvNBlocks})
	if err != nil {
		return nil, fmt.Errorf("scenario: partition vector_out: %w", err)
	}

	cl, ok := task.LookupCodelet("spmv.row_block")
	if !ok {
		return nil, fmt.Errorf("scenario: codelet spmv.row_block not registered")
	}

	tasks := make([]*task.Task, spmvNBlocks)
	for i := 0; i < spmvNBlocks; i++ {
		buffers := []task.Buffer{
			{Handle: matBlocks[i], Mode: datawizard.ModeR},
			{Handle: vecInH, Mode: datawizard.ModeR},
			{Handle: outBlocks[i], Mode: datawizard.ModeW},
		}
		t := task.Create(cl, buffers, nil)
		if err := rt.Submit(t); err != nil {
			return nil, fmt.Errorf("scenario: submit block %d: %w", i, err)
		}
		tasks[i] = t
	}

	for i, t := range tasks {
		if err := t.Wait(); err != nil {
			return nil, fmt.Errorf("scenario: block %d failed: %w", i, err)
		}
	}

	if err := rt.Arena.Unpartition(matH, rt.HostNode()); err != nil {
		return nil, fmt.Errorf("scenario: unpartition matrix: %w", err)
	}
	if err := rt.Arena.Unpartition(vecOutH, rt.HostNode()); err != nil {
		return nil, fmt.Errorf("scenario: unpartition vector_out: %w", err)
	}

	if err := rt.Arena.Unregister(matH, false); err != nil {
		return nil, fmt.Errorf("scenario: unregister matrix: %w", err)
	}
	if err := rt.Arena.Unregister(vecInH, false); err != nil {
		return nil, fmt.Errorf("scenario: unregister vector_in: %w", err)
	}
	if err := rt.Arena.Unregister(vecOutH, true); err != nil {
		return nil, fmt.Errorf("scenario: unregister vector_out: %w", err)
	}

	return &SpMVResult{VectorOut: datawizard.BytesToFloat64s(vecOutBuf)}, nil
}
