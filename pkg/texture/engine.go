// Package texture implements gray-level co-occurrence (GLCM) attributes.
// Each voxel's neighborhood is quantized into gray levels, pair counts are
// accumulated over the configured offsets, and contrast, energy, entropy and
// homogeneity are derived from the normalized co-occurrence probabilities.
package texture

import (
	"fmt"
	"math"

	"seisattr/pkg/backend"
	"seisattr/pkg/volume"
	"seisattr/pkg/window"
)

// Attribute names emitted by the engine, in output order.
const (
	AttrContrast    = "contrast"
	AttrEnergy      = "energy"
	AttrEntropy     = "entropy"
	AttrHomogeneity = "homogeneity"
)

// Offset is a co-occurrence displacement in voxels.
type Offset struct {
	Inline, Crossline, Depth int
}

// Config controls the texture computation.
type Config struct {
	// GrayLevels is the number of quantization bins, >= 2.
	GrayLevels int

	// Window is the neighborhood extent per axis (odd, >= 1).
	Window [3]int

	// Offsets lists the co-occurrence displacements; counts accumulate over
	// all of them. Default is the three axis-unit offsets.
	Offsets []Offset

	// Symmetric counts each pair in both directions.
	Symmetric *bool

	// RangeMode selects the quantization range: "global" uses the volume
	// min/max computed once up front, "window" rescales per neighborhood.
	RangeMode string
}

// DefaultConfig returns the default texture configuration.
func DefaultConfig() Config {
	sym := true
	return Config{
		GrayLevels: 16,
		Window:     [3]int{3, 3, 9},
		Offsets:    []Offset{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		Symmetric:  &sym,
		RangeMode:  "global",
	}
}

// Engine computes GLCM texture attributes.
type Engine struct {
	cfg       Config
	symmetric bool
	lo, hi    float64
}

// NewEngine creates an engine for the given configuration. Zero-valued fields
// fall back to DefaultConfig values.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.GrayLevels == 0 {
		cfg.GrayLevels = def.GrayLevels
	}
	if cfg.Window == ([3]int{}) {
		cfg.Window = def.Window
	}
	if len(cfg.Offsets) == 0 {
		cfg.Offsets = def.Offsets
	}
	if cfg.Symmetric == nil {
		cfg.Symmetric = def.Symmetric
	}
	if cfg.RangeMode == "" {
		cfg.RangeMode = def.RangeMode
	}
	return &Engine{cfg: cfg, symmetric: *cfg.Symmetric}
}

// Name identifies the engine.
func (e *Engine) Name() string { return "texture" }

// Attributes returns the four GLCM attribute names.
func (e *Engine) Attributes() []string {
	return []string{AttrContrast, AttrEnergy, AttrEntropy, AttrHomogeneity}
}

// Support returns the window radius plus the largest offset reach per axis.
func (e *Engine) Support() [3]int {
	var s [3]int
	for a := 0; a < 3; a++ {
		s[a] = e.cfg.Window[a] / 2
	}
	for _, o := range e.cfg.Offsets {
		s[0] = max(s[0], e.cfg.Window[0]/2+absInt(o.Inline))
		s[1] = max(s[1], e.cfg.Window[1]/2+absInt(o.Crossline))
		s[2] = max(s[2], e.cfg.Window[2]/2+absInt(o.Depth))
	}
	return s
}

// Prepare validates the configuration and, in global range mode, fixes the
// quantization range from the volume extremes.
func (e *Engine) Prepare(be backend.Backend, vol *volume.Volume) error {
	if e.cfg.GrayLevels < 2 {
		return fmt.Errorf("%w: gray levels %d must be >= 2",
			window.ErrInvalidConfig, e.cfg.GrayLevels)
	}
	for a := 0; a < 3; a++ {
		if e.cfg.Window[a] < 1 || e.cfg.Window[a]%2 == 0 {
			return fmt.Errorf("%w: texture window %d along %v must be a positive odd integer",
				window.ErrInvalidConfig, e.cfg.Window[a], volume.Axis(a))
		}
	}
	for _, o := range e.cfg.Offsets {
		if o == (Offset{}) {
			return fmt.Errorf("%w: co-occurrence offset must be non-zero", window.ErrInvalidConfig)
		}
	}
	switch e.cfg.RangeMode {
	case "global":
		e.lo, e.hi = finiteRange(be, vol.Data)
	case "window":
	default:
		return fmt.Errorf("%w: unknown range mode %q", window.ErrInvalidConfig, e.cfg.RangeMode)
	}
	return nil
}

// finiteRange returns the min and max of data. The backend reductions serve
// the common all-finite case; volumes carrying NaN or Inf fall back to a scan
// over the finite samples only.
func finiteRange(be backend.Backend, data []float64) (lo, hi float64) {
	finite := true
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			finite = false
			break
		}
	}
	if finite {
		return be.Min(data), be.Max(data)
	}

	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}

// ComputeBlock derives the four texture planes for one block.
func (e *Engine) ComputeBlock(be backend.Backend, blk *window.Block) ([][]float64, error) {
	dims := blk.Dims
	total := dims[0] * dims[1] * dims[2]
	g := e.cfg.GrayLevels

	out := make([][]float64, 4)
	for a := range out {
		out[a] = make([]float64, total)
	}

	wi, wx, wd := e.cfg.Window[0], e.cfg.Window[1], e.cfg.Window[2]
	levels := make([]int, wi*wx*wd)
	glcm := make([]float64, g*g)

	for ci := 0; ci < dims[0]; ci++ {
		for cx := 0; cx < dims[1]; cx++ {
			for cd := 0; cd < dims[2]; cd++ {
				e.gatherLevels(blk, ci, cx, cd, levels)

				contrast, energy, entropy, homogeneity := e.cooccurrence(levels, glcm)
				idx := blk.Idx(ci, cx, cd)
				out[0][idx] = contrast
				out[1][idx] = energy
				out[2][idx] = entropy
				out[3][idx] = homogeneity
			}
		}
	}
	return out, nil
}

// gatherLevels quantizes the window centered on (ci, cx, cd) into levels.
// Reads beyond the block clamp to the block edge; non-finite samples are
// marked -1 so pair counting skips them.
func (e *Engine) gatherLevels(blk *window.Block, ci, cx, cd int, levels []int) {
	dims := blk.Dims
	wi, wx, wd := e.cfg.Window[0], e.cfg.Window[1], e.cfg.Window[2]
	g := e.cfg.GrayLevels

	lo, hi := e.lo, e.hi
	if e.cfg.RangeMode == "window" {
		lo, hi = math.Inf(1), math.Inf(-1)
		for oi := 0; oi < wi; oi++ {
			for ox := 0; ox < wx; ox++ {
				for od := 0; od < wd; od++ {
					v := blk.Data[blk.Idx(
						clampIdx(ci+oi-wi/2, dims[0]-1),
						clampIdx(cx+ox-wx/2, dims[1]-1),
						clampIdx(cd+od-wd/2, dims[2]-1),
					)]
					if math.IsNaN(v) || math.IsInf(v, 0) {
						continue
					}
					lo = math.Min(lo, v)
					hi = math.Max(hi, v)
				}
			}
		}
		if lo > hi {
			lo, hi = 0, 0
		}
	}

	span := hi - lo
	n := 0
	for oi := 0; oi < wi; oi++ {
		for ox := 0; ox < wx; ox++ {
			for od := 0; od < wd; od++ {
				v := blk.Data[blk.Idx(
					clampIdx(ci+oi-wi/2, dims[0]-1),
					clampIdx(cx+ox-wx/2, dims[1]-1),
					clampIdx(cd+od-wd/2, dims[2]-1),
				)]
				switch {
				case math.IsNaN(v) || math.IsInf(v, 0):
					levels[n] = -1
				case span <= 0:
					levels[n] = 0
				default:
					lv := int((v - lo) / span * float64(g))
					if lv >= g {
						lv = g - 1
					} else if lv < 0 {
						lv = 0
					}
					levels[n] = lv
				}
				n++
			}
		}
	}
}

// cooccurrence accumulates pair counts over the configured offsets and
// reduces them to the four GLCM features. A window with no countable pair
// returns all zeros.
func (e *Engine) cooccurrence(levels []int, glcm []float64) (contrast, energy, entropy, homogeneity float64) {
	wi, wx, wd := e.cfg.Window[0], e.cfg.Window[1], e.cfg.Window[2]
	g := e.cfg.GrayLevels

	for i := range glcm {
		glcm[i] = 0
	}

	pairs := 0
	for _, o := range e.cfg.Offsets {
		for ai := 0; ai < wi; ai++ {
			bi := ai + o.Inline
			if bi < 0 || bi >= wi {
				continue
			}
			for ax := 0; ax < wx; ax++ {
				bx := ax + o.Crossline
				if bx < 0 || bx >= wx {
					continue
				}
				for ad := 0; ad < wd; ad++ {
					bd := ad + o.Depth
					if bd < 0 || bd >= wd {
						continue
					}
					la := levels[(ai*wx+ax)*wd+ad]
					lb := levels[(bi*wx+bx)*wd+bd]
					if la < 0 || lb < 0 {
						continue
					}
					glcm[la*g+lb]++
					pairs++
					if e.symmetric {
						glcm[lb*g+la]++
						pairs++
					}
				}
			}
		}
	}
	if pairs == 0 {
		return 0, 0, 0, 0
	}

	norm := 1 / float64(pairs)
	for i := 0; i < g; i++ {
		for j := 0; j < g; j++ {
			p := glcm[i*g+j] * norm
			if p == 0 {
				continue
			}
			diff := float64(i - j)
			contrast += p * diff * diff
			energy += p * p
			entropy -= p * math.Log(p)
			homogeneity += p / (1 + math.Abs(diff))
		}
	}
	return contrast, energy, entropy, homogeneity
}

func clampIdx(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
