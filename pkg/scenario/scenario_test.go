package scenario

import (
	"testing"

	"github.com/cuemby/taskrunner/pkg/config"
	"github.com/cuemby/taskrunner/pkg/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T, ncpu int) *runtime.Runtime {
	t.Helper()
	cfg := config.Default()
	cfg.NCPU = ncpu
	rt, err := runtime.Init(cfg, "")
	require.NoError(t, err)
	t.Cleanup(rt.Shutdown)
	return rt
}

func TestVectorScalScenarioA(t *testing.T) {
	rt := newTestRuntime(t, 2)

	res, err := VectorScal(rt, 2048)
	require.NoError(t, err)

	assert.Len(t, res.Values, 2048)
	for i, v := range res.Values {
		assert.InDelta(t, scaleFactor, v, 1e-9, "element %d", i)
	}
	assert.Equal(t, rt.HostNode(), res.HomeNode)
}

func TestSpMVScenarioB(t *testing.T) {
	rt := newTestRuntime(t, 4)

	res, err := SpMV(rt, 16)
	require.NoError(t, err)

	want := []float64{12, 14, 14, 14, 14, 14, 14, 14, 14, 14, 14, 14, 14, 14, 14, 12}
	require.Len(t, res.VectorOut, len(want))
	for i, v := range want {
		assert.InDelta(t, v, res.VectorOut[i], 1e-9, "row %d", i)
	}
}

func TestSpMVRejectsUnevenBlockSize(t *testing.T) {
	rt := newTestRuntime(t, 1)

	_, err := SpMV(rt, 15)
	assert.Error(t, err)
}
