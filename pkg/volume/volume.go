package volume

import (
	"fmt"
)

// Axis identifies one of the three volume axes. Attribute transforms that
// operate along a single axis (Hilbert, windowed FFT) default to AxisDepth.
type Axis int

const (
	AxisInline Axis = iota
	AxisCrossline
	AxisDepth
)

// String returns the axis name.
func (a Axis) String() string {
	switch a {
	case AxisInline:
		return "inline"
	case AxisCrossline:
		return "crossline"
	case AxisDepth:
		return "depth"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// Volume is a dense 3D seismic data volume.
//
// Samples are stored in a flat row-major array ordered (inline, crossline,
// depth) with depth varying fastest, so each trace is a contiguous run of
// NDepth samples. The caller owns the data; engines never retain a reference
// to an input or output volume after a call returns.
type Volume struct {
	// Data holds the samples as a 1D array in row-major order.
	Data []float64

	// NInline, NCrossline and NDepth are the extents along each axis.
	NInline, NCrossline, NDepth int

	// Spacing is the physical sample spacing along each axis, used by
	// gradient operators. Defaults to unit spacing.
	Spacing [3]float64
}

// New allocates a zero-filled volume with the given extents and unit spacing.
func New(nInline, nCrossline, nDepth int) *Volume {
	return &Volume{
		Data:       make([]float64, nInline*nCrossline*nDepth),
		NInline:    nInline,
		NCrossline: nCrossline,
		NDepth:     nDepth,
		Spacing:    [3]float64{1, 1, 1},
	}
}

// FromFloat32 builds a volume from 32-bit samples, widening to the float64
// representation used by the engines. The input slice is copied.
func FromFloat32(data []float32, nInline, nCrossline, nDepth int) (*Volume, error) {
	if len(data) != nInline*nCrossline*nDepth {
		return nil, fmt.Errorf("volume: data length %d does not match shape %dx%dx%d",
			len(data), nInline, nCrossline, nDepth)
	}
	v := New(nInline, nCrossline, nDepth)
	for i, s := range data {
		v.Data[i] = float64(s)
	}
	return v, nil
}

// Float32 returns a narrowed copy of the volume samples.
func (v *Volume) Float32() []float32 {
	out := make([]float32, len(v.Data))
	for i, s := range v.Data {
		out[i] = float32(s)
	}
	return out
}

// Shape returns the extents as (inline, crossline, depth).
func (v *Volume) Shape() [3]int {
	return [3]int{v.NInline, v.NCrossline, v.NDepth}
}

// Len returns the total number of samples.
func (v *Volume) Len() int {
	return v.NInline * v.NCrossline * v.NDepth
}

// Idx converts (inline, crossline, depth) coordinates to a flat index.
func (v *Volume) Idx(i, x, d int) int {
	return (i*v.NCrossline+x)*v.NDepth + d
}

// At returns the sample at (inline, crossline, depth).
func (v *Volume) At(i, x, d int) float64 {
	return v.Data[(i*v.NCrossline+x)*v.NDepth+d]
}

// Set stores a sample at (inline, crossline, depth).
func (v *Volume) Set(i, x, d int, value float64) {
	v.Data[(i*v.NCrossline+x)*v.NDepth+d] = value
}

// Trace returns the contiguous depth trace at the given inline and crossline
// position. The returned slice aliases the volume data.
func (v *Volume) Trace(i, x int) []float64 {
	start := (i*v.NCrossline + x) * v.NDepth
	return v.Data[start : start+v.NDepth]
}

// Clone returns a deep copy of the volume.
func (v *Volume) Clone() *Volume {
	out := &Volume{
		Data:       make([]float64, len(v.Data)),
		NInline:    v.NInline,
		NCrossline: v.NCrossline,
		NDepth:     v.NDepth,
		Spacing:    v.Spacing,
	}
	copy(out.Data, v.Data)
	return out
}
