// Package window splits a volume into rectangular blocks with halo padding
// and reassembles per-block results into output volumes. Window interiors
// partition the volume exactly; halos may overlap between neighboring
// windows and exist only so that stencil-based attributes are correct at
// interior edges.
package window

import (
	"errors"
	"fmt"

	"seisattr/pkg/volume"
)

// ErrInvalidConfig is returned for bad window, halo, gray-level or taper
// parameters. All such errors surface before any window is computed.
var ErrInvalidConfig = errors.New("window: invalid window configuration")

// FullSupport marks an engine axis that must not be split: the transform
// along it is global (e.g. a full-trace Hilbert transform), so every window
// must span the whole axis.
const FullSupport = -1

// Config controls how a volume is split.
type Config struct {
	// Size is the interior window extent per axis. In a resolved config
	// every entry is in [1, extent]; Resolve treats zero as "whole axis".
	Size [3]int

	// Halo is the padding per axis included around each window interior
	// and discarded on reassembly. Resolve treats zero as "derive from the
	// engine's support".
	Halo [3]int
}

// Resolve normalizes cfg against a volume shape and an engine's support
// requirement: zero sizes become the whole axis, zero halos become the
// support. It fails with ErrInvalidConfig when an explicit halo is below the
// support or when an axis the engine needs whole is split.
func Resolve(cfg Config, shape, support [3]int) (Config, error) {
	out := cfg
	for a := 0; a < 3; a++ {
		axis := volume.Axis(a)
		if out.Size[a] == 0 {
			out.Size[a] = shape[a]
		}
		if support[a] == FullSupport {
			if out.Size[a] != shape[a] {
				return out, fmt.Errorf("%w: the %v axis cannot be split (window size %d, extent %d)",
					ErrInvalidConfig, axis, out.Size[a], shape[a])
			}
			if out.Halo[a] != 0 {
				return out, fmt.Errorf("%w: halo is meaningless along the unsplit %v axis",
					ErrInvalidConfig, axis)
			}
			continue
		}
		if out.Halo[a] == 0 {
			out.Halo[a] = support[a]
		} else if out.Halo[a] < support[a] {
			return out, fmt.Errorf("%w: halo %d along %v is below the required support %d",
				ErrInvalidConfig, out.Halo[a], axis, support[a])
		}
	}
	return out, nil
}

// Window identifies one block: the half-open interior [Start, End) per axis
// plus the halo that was padded around it.
type Window struct {
	Index      int
	Start, End [3]int
	Halo       [3]int
}

// InteriorDims returns the interior extent per axis.
func (w Window) InteriorDims() [3]int {
	return [3]int{
		w.End[0] - w.Start[0],
		w.End[1] - w.Start[1],
		w.End[2] - w.Start[2],
	}
}

// PaddedDims returns the extent of the padded block per axis. The interior
// always begins at offset Halo[a] along each axis.
func (w Window) PaddedDims() [3]int {
	in := w.InteriorDims()
	return [3]int{
		in[0] + 2*w.Halo[0],
		in[1] + 2*w.Halo[1],
		in[2] + 2*w.Halo[2],
	}
}

// Block is one padded sub-volume handed to an engine. Data is an independent
// copy laid out like a volume (depth fastest) with dims PaddedDims.
type Block struct {
	Window Window
	Dims   [3]int
	Data   []float64
}

// Idx converts padded-block coordinates to a flat index.
func (b *Block) Idx(i, x, d int) int {
	return (i*b.Dims[1]+x)*b.Dims[2] + d
}

// Trace returns the contiguous depth trace at padded-block position (i, x).
func (b *Block) Trace(i, x int) []float64 {
	start := (i*b.Dims[1] + x) * b.Dims[2]
	return b.Data[start : start+b.Dims[2]]
}

// Iterator produces the blocks of a volume lazily: each Next call extracts
// one padded block, so peak memory is bounded by the number of blocks in
// flight rather than the window count. The sequence is finite and
// restartable via Reset.
type Iterator struct {
	vol    *volume.Volume
	cfg    Config
	counts [3]int
	total  int
	cur    int
}

// NewIterator validates cfg against the volume shape and returns a fresh
// iterator positioned at the first window.
func NewIterator(vol *volume.Volume, cfg Config) (*Iterator, error) {
	shape := vol.Shape()
	for a := 0; a < 3; a++ {
		axis := volume.Axis(a)
		if cfg.Size[a] < 1 {
			return nil, fmt.Errorf("%w: window size %d along %v must be at least 1",
				ErrInvalidConfig, cfg.Size[a], axis)
		}
		if cfg.Size[a] > shape[a] {
			return nil, fmt.Errorf("%w: window size %d exceeds extent %d along %v",
				ErrInvalidConfig, cfg.Size[a], shape[a], axis)
		}
		if cfg.Halo[a] < 0 {
			return nil, fmt.Errorf("%w: halo %d along %v must be non-negative",
				ErrInvalidConfig, cfg.Halo[a], axis)
		}
	}

	it := &Iterator{vol: vol, cfg: cfg}
	it.total = 1
	for a := 0; a < 3; a++ {
		it.counts[a] = (shape[a] + cfg.Size[a] - 1) / cfg.Size[a]
		it.total *= it.counts[a]
	}
	return it, nil
}

// Count returns the total number of windows the iterator produces.
func (it *Iterator) Count() int {
	return it.total
}

// Reset rewinds the iterator to the first window.
func (it *Iterator) Reset() {
	it.cur = 0
}

// Next extracts the next padded block. It returns false after the last
// window.
func (it *Iterator) Next() (*Block, bool) {
	if it.cur >= it.total {
		return nil, false
	}
	idx := it.cur
	it.cur++

	// Decompose the flat window index, depth windows fastest.
	wd := idx % it.counts[2]
	wx := (idx / it.counts[2]) % it.counts[1]
	wi := idx / (it.counts[2] * it.counts[1])

	shape := it.vol.Shape()
	w := Window{Index: idx, Halo: it.cfg.Halo}
	for a, pos := range [3]int{wi, wx, wd} {
		w.Start[a] = pos * it.cfg.Size[a]
		w.End[a] = w.Start[a] + it.cfg.Size[a]
		if w.End[a] > shape[a] {
			w.End[a] = shape[a]
		}
	}
	return extract(it.vol, w), true
}

// extract copies the padded region of w out of the volume. Positions outside
// the volume replicate the nearest valid sample (no wraparound, no zero
// fill), so boundary voxels are computed from real data.
func extract(vol *volume.Volume, w Window) *Block {
	pd := w.PaddedDims()
	shape := vol.Shape()
	data := make([]float64, pd[0]*pd[1]*pd[2])

	pos := 0
	for i := 0; i < pd[0]; i++ {
		si := clamp(w.Start[0]-w.Halo[0]+i, shape[0]-1)
		for x := 0; x < pd[1]; x++ {
			sx := clamp(w.Start[1]-w.Halo[1]+x, shape[1]-1)
			rowBase := (si*shape[1] + sx) * shape[2]
			for d := 0; d < pd[2]; d++ {
				sd := clamp(w.Start[2]-w.Halo[2]+d, shape[2]-1)
				data[pos] = vol.Data[rowBase+sd]
				pos++
			}
		}
	}
	return &Block{Window: w, Dims: pd, Data: data}
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// Assembler collects per-window results into output volumes. Only the
// interior of each result is written, at the window's position, so every
// output voxel is written exactly once when the windows come from a valid
// iterator.
type Assembler struct {
	vols    []*volume.Volume
	shape   [3]int
	written int
}

// NewAssembler prepares n output volumes shaped and spaced like ref.
func NewAssembler(ref *volume.Volume, n int) *Assembler {
	a := &Assembler{shape: ref.Shape()}
	for i := 0; i < n; i++ {
		v := volume.New(a.shape[0], a.shape[1], a.shape[2])
		v.Spacing = ref.Spacing
		a.vols = append(a.vols, v)
	}
	return a
}

// Place writes the interior region of each result plane into the matching
// output volume. results must hold one padded-block-shaped plane per output
// volume.
func (a *Assembler) Place(w Window, results [][]float64) error {
	if len(results) != len(a.vols) {
		return fmt.Errorf("window: expected %d result planes, got %d", len(a.vols), len(results))
	}
	pd := w.PaddedDims()
	need := pd[0] * pd[1] * pd[2]
	for r, res := range results {
		if len(res) != need {
			return fmt.Errorf("window: result plane %d has %d samples, expected %d", r, len(res), need)
		}
	}

	in := w.InteriorDims()
	for r, res := range results {
		out := a.vols[r]
		for i := 0; i < in[0]; i++ {
			bi := i + w.Halo[0]
			for x := 0; x < in[1]; x++ {
				bx := x + w.Halo[1]
				src := (bi*pd[1]+bx)*pd[2] + w.Halo[2]
				dst := ((w.Start[0]+i)*a.shape[1]+w.Start[1]+x)*a.shape[2] + w.Start[2]
				copy(out.Data[dst:dst+in[2]], res[src:src+in[2]])
			}
		}
	}
	a.written += in[0] * in[1] * in[2]
	return nil
}

// Volumes returns the assembled outputs after verifying that the placed
// interiors covered the volume exactly once.
func (a *Assembler) Volumes() ([]*volume.Volume, error) {
	total := a.shape[0] * a.shape[1] * a.shape[2]
	if a.written != total {
		return nil, fmt.Errorf("window: reassembly covered %d of %d voxels", a.written, total)
	}
	return a.vols, nil
}
