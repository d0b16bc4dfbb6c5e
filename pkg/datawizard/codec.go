package datawizard

import (
	"encoding/binary"
	"math"
)

// Float64sToBytes and BytesToFloat64s convert between a flat byte replica and
// its float64 interpretation. This package is pure Go and has no real device
// memory to address, so replicas are raw byte slices and codelets (and the
// filters below) move between the two views with these helpers rather than
// unsafe pointer casts.
func Float64sToBytes(vals []float64) []byte {
	out := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

func BytesToFloat64s(buf []byte) []float64 {
	n := len(buf) / 8
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out
}

func Int64sToBytes(vals []int64) []byte {
	out := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(out[i*8:], uint64(v))
	}
	return out
}

func BytesToInt64s(buf []byte) []int64 {
	n := len(buf) / 8
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		out[i] = int64(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out
}
