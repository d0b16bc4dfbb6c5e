package scenario

import (
	"fmt"

	"github.com/cuemby/taskrunner/pkg/datawizard"
	"github.com/cuemby/taskrunner/pkg/memnode"
	"github.com/cuemby/taskrunner/pkg/runtime"
	"github.com/cuemby/taskrunner/pkg/task"
)

const scaleFactor = 3.14

func init() {
	task.RegisterCodelet(&task.Codelet{
		Name:  "vectorscal.scale",
		Where: memnode.KindCPU,
		Implementations: map[memnode.WorkerKind]task.CPUFunc{
			memnode.KindCPU: scaleKernel,
		},
		NBuffers:        1,
		Modes:           []datawizard.AccessMode{datawizard.ModeRW},
		PerfModelSymbol: "vectorscal.scale",
	})
}

func scaleKernel(ctx *task.ExecContext) error {
	vals := datawizard.BytesToFloat64s(ctx.Bytes[0])
	for i := range vals {
		vals[i] *= scaleFactor
	}
	copy(ctx.Bytes[0], datawizard.Float64sToBytes(vals))
	return nil
}

// VectorScalResult reports the scenario's single observable outcome: the
// buffer's final values and the node that held OWNER state at Unregister.
type VectorScalResult struct {
	Values   []float64
	TaskID   task.ID
	HomeNode int
}

// VectorScal reproduces scenario A: register [1.0]*N on the host node,
// submit one RW task applying x *= 3.14, wait, unregister. N defaults to
// 2048 when n <= 0.
func VectorScal(rt *runtime.Runtime, n int) (*VectorScalResult, error) {
	if n <= 0 {
		n = 2048
	}

	vals := make([]float64, n)
	for i := range vals {
		vals[i] = 1.0
	}
	raw := datawizard.Float64sToBytes(vals)

	h, err := rt.Arena.Register(&datawizard.VectorInterface{NElem: n, ElemSize: 8}, rt.HostNode(), raw)
	if err != nil {
		return nil, fmt.Errorf("scenario: register vector: %w", err)
	}

	cl, ok := task.LookupCodelet("vectorscal.scale")
	if !ok {
		return nil, fmt.Errorf("scenario: codelet vectorscal.scale not registered")
	}

	t := task.Create(cl, []task.Buffer{{Handle: h, Mode: datawizard.ModeRW}}, nil)
	if err := rt.Submit(t); err != nil {
		return nil, fmt.Errorf("scenario: submit: %w", err)
	}
	if err := t.Wait(); err != nil {
		return nil, fmt.Errorf("scenario: task failed: %w", err)
	}

	home := h.Owner()
	if err := rt.Arena.Unregister(h, true); err != nil {
		return nil, fmt.Errorf("scenario: unregister: %w", err)
	}

	return &VectorScalResult{
		Values:   datawizard.BytesToFloat64s(raw),
		TaskID:   t.ID,
		HomeNode: home,
	}, nil
}
