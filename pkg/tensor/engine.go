// Package tensor implements structure-tensor orientation attributes: local
// gradients are folded into per-voxel 3x3 tensors, smoothed over a window,
// and eigen-decomposed into dip, azimuth, planarity and curvature volumes.
package tensor

import (
	"errors"
	"fmt"
	"math"

	"seisattr/pkg/backend"
	"seisattr/pkg/volume"
	"seisattr/pkg/window"
)

// ErrDegenerate is returned when the gradient input contains NaN or Inf.
// Featureless (zero-gradient) regions are not degenerate: they produce the
// documented dip 0 / azimuth 0 convention instead.
var ErrDegenerate = errors.New("tensor: non-finite gradient input")

// Attribute names accepted by Config.Attributes.
const (
	AttrDip          = "dip"
	AttrAzimuth      = "azimuth"
	AttrPlanarity    = "planarity"
	AttrCurvMean     = "curv_mean"
	AttrCurvGaussian = "curv_gaussian"
	AttrCurvMax      = "curv_max"
	AttrCurvMin      = "curv_min"
)

// Config controls the structure-tensor computation.
type Config struct {
	// SmoothWindow is the tensor averaging window per axis (odd, >= 1).
	SmoothWindow [3]int

	// Smoothing selects the averaging weights: "box" or "gaussian".
	Smoothing string

	// CurvatureWindow is the second, typically larger window the slope
	// fields are averaged over before differentiation (odd, >= 1).
	CurvatureWindow [3]int

	// Attributes lists the output volumes to compute, in order.
	Attributes []string
}

// DefaultConfig returns the default structure-tensor configuration.
func DefaultConfig() Config {
	return Config{
		SmoothWindow:    [3]int{3, 3, 3},
		Smoothing:       "box",
		CurvatureWindow: [3]int{5, 5, 5},
		Attributes:      []string{AttrDip, AttrAzimuth},
	}
}

// Engine computes structure-tensor attributes. Create one per run with
// NewEngine and validate it against the input volume with Prepare before
// computing blocks.
type Engine struct {
	cfg      Config
	needCurv bool
	spacing  [3]float64
}

// NewEngine creates an engine for the given configuration. Zero-valued
// fields fall back to DefaultConfig values.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.SmoothWindow == ([3]int{}) {
		cfg.SmoothWindow = def.SmoothWindow
	}
	if cfg.Smoothing == "" {
		cfg.Smoothing = def.Smoothing
	}
	if cfg.CurvatureWindow == ([3]int{}) {
		cfg.CurvatureWindow = def.CurvatureWindow
	}
	if len(cfg.Attributes) == 0 {
		cfg.Attributes = def.Attributes
	}
	e := &Engine{cfg: cfg}
	for _, a := range cfg.Attributes {
		switch a {
		case AttrCurvMean, AttrCurvGaussian, AttrCurvMax, AttrCurvMin:
			e.needCurv = true
		}
	}
	return e
}

// Name identifies the engine.
func (e *Engine) Name() string { return "structure-tensor" }

// Attributes returns the configured output names in order.
func (e *Engine) Attributes() []string {
	return append([]string(nil), e.cfg.Attributes...)
}

// Support returns the halo each axis needs: one sample for the gradient
// stencil plus the smoothing radius, and when curvature is requested another
// gradient sample plus the curvature-window radius.
func (e *Engine) Support() [3]int {
	var s [3]int
	for a := 0; a < 3; a++ {
		s[a] = 1 + e.cfg.SmoothWindow[a]/2
		if e.needCurv {
			s[a] += 1 + e.cfg.CurvatureWindow[a]/2
		}
	}
	return s
}

// Prepare validates the configuration and scans the volume for non-finite
// samples, so every failure surfaces before the first window is computed.
func (e *Engine) Prepare(be backend.Backend, vol *volume.Volume) error {
	for a := 0; a < 3; a++ {
		if e.cfg.SmoothWindow[a] < 1 || e.cfg.SmoothWindow[a]%2 == 0 {
			return fmt.Errorf("%w: smoothing window %d along %v must be a positive odd integer",
				window.ErrInvalidConfig, e.cfg.SmoothWindow[a], volume.Axis(a))
		}
		if e.cfg.CurvatureWindow[a] < 1 || e.cfg.CurvatureWindow[a]%2 == 0 {
			return fmt.Errorf("%w: curvature window %d along %v must be a positive odd integer",
				window.ErrInvalidConfig, e.cfg.CurvatureWindow[a], volume.Axis(a))
		}
	}
	if e.cfg.Smoothing != "box" && e.cfg.Smoothing != "gaussian" {
		return fmt.Errorf("%w: unknown smoothing %q", window.ErrInvalidConfig, e.cfg.Smoothing)
	}
	for _, a := range e.cfg.Attributes {
		switch a {
		case AttrDip, AttrAzimuth, AttrPlanarity,
			AttrCurvMean, AttrCurvGaussian, AttrCurvMax, AttrCurvMin:
		default:
			return fmt.Errorf("tensor: unknown attribute %q", a)
		}
	}

	for idx, s := range vol.Data {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: sample %d is not finite", ErrDegenerate, idx)
		}
	}

	e.spacing = vol.Spacing
	return nil
}

// ComputeBlock runs the full attribute chain on one padded block and returns
// one padded-shape plane per configured attribute.
func (e *Engine) ComputeBlock(be backend.Backend, blk *window.Block) ([][]float64, error) {
	dims := blk.Dims
	n := len(blk.Data)

	// Directional gradients.
	gi := make([]float64, n)
	gx := make([]float64, n)
	gd := make([]float64, n)
	be.Gradient(gi, blk.Data, dims, volume.AxisInline, e.spacing[0])
	be.Gradient(gx, blk.Data, dims, volume.AxisCrossline, e.spacing[1])
	be.Gradient(gd, blk.Data, dims, volume.AxisDepth, e.spacing[2])

	// Outer products form the six distinct tensor components.
	comps := make([][]float64, 6)
	for i := range comps {
		comps[i] = make([]float64, n)
	}
	be.Mul(comps[0], gi, gi)
	be.Mul(comps[1], gx, gx)
	be.Mul(comps[2], gd, gd)
	be.Mul(comps[3], gi, gx)
	be.Mul(comps[4], gi, gd)
	be.Mul(comps[5], gx, gd)

	// Window-average each component.
	weights := e.axisWeights(e.cfg.SmoothWindow)
	for i := range comps {
		smoothSeparable(comps[i], dims, weights)
	}

	// Per-voxel eigen-decomposition into orientation attributes.
	dip := make([]float64, n)
	azimuth := make([]float64, n)
	var planarity []float64
	if e.wants(AttrPlanarity) {
		planarity = make([]float64, n)
	}
	var nrmI, nrmX, nrmD []float64
	if e.needCurv {
		nrmI = make([]float64, n)
		nrmX = make([]float64, n)
		nrmD = make([]float64, n)
	}

	solver := be.NewEigenSolver()
	for idx := 0; idx < n; idx++ {
		dec, ok := solver.DecomposeSym3(backend.SymTensor3{
			XX: comps[0][idx], YY: comps[1][idx], ZZ: comps[2][idx],
			XY: comps[3][idx], XZ: comps[4][idx], YZ: comps[5][idx],
		})
		if !ok {
			return nil, fmt.Errorf("%w: eigen decomposition failed at block sample %d", ErrDegenerate, idx)
		}

		// The gradient of a reflector points across the layering, so the
		// reflector normal is the leading eigenvector. Resolve its sign to
		// the canonical half-plane: inline component non-negative, ties
		// broken on crossline then depth.
		nv := dec.Vectors[0]
		if nv[0] < 0 || (nv[0] == 0 && (nv[1] < 0 || (nv[1] == 0 && nv[2] < 0))) {
			nv[0], nv[1], nv[2] = -nv[0], -nv[1], -nv[2]
		}

		horiz := math.Hypot(nv[0], nv[1])
		vert := math.Abs(nv[2])
		dip[idx] = math.Atan2(horiz, vert) * 180 / math.Pi
		if horiz > 1e-12 {
			az := math.Atan2(nv[1], nv[0]) * 180 / math.Pi
			if az < 0 {
				az += 360
			}
			azimuth[idx] = az
		}

		if planarity != nil {
			if dec.Values[0] > 1e-12 {
				planarity[idx] = (dec.Values[1] - dec.Values[2]) / dec.Values[0]
			}
		}
		if e.needCurv {
			nrmI[idx] = nv[0]
			nrmX[idx] = nv[1]
			nrmD[idx] = nv[2]
		}
	}

	var curv map[string][]float64
	if e.needCurv {
		curv = e.curvature(be, dims, nrmI, nrmX, nrmD)
	}

	out := make([][]float64, 0, len(e.cfg.Attributes))
	for _, a := range e.cfg.Attributes {
		switch a {
		case AttrDip:
			out = append(out, dip)
		case AttrAzimuth:
			out = append(out, azimuth)
		case AttrPlanarity:
			out = append(out, planarity)
		default:
			out = append(out, curv[a])
		}
	}
	return out, nil
}

// curvature derives the principal-curvature family from the normal field.
// The normals are converted to apparent reflector slopes p and q, averaged
// over the curvature window, differentiated, and combined with the standard
// surface-curvature relations.
func (e *Engine) curvature(be backend.Backend, dims [3]int, nrmI, nrmX, nrmD []float64) map[string][]float64 {
	n := len(nrmI)
	p := make([]float64, n)
	q := make([]float64, n)
	for idx := 0; idx < n; idx++ {
		// Stabilize the normal to point down-axis before taking slopes;
		// near-vertical reflectors are capped rather than divided to inf.
		ni, nx, nd := nrmI[idx], nrmX[idx], nrmD[idx]
		if nd < 0 {
			ni, nx, nd = -ni, -nx, -nd
		}
		if nd < 1e-6 {
			nd = 1e-6
		}
		p[idx] = -ni / nd
		q[idx] = -nx / nd
	}

	weights := e.axisWeights(e.cfg.CurvatureWindow)
	smoothSeparable(p, dims, weights)
	smoothSeparable(q, dims, weights)

	pi := make([]float64, n)
	px := make([]float64, n)
	qi := make([]float64, n)
	qx := make([]float64, n)
	be.Gradient(pi, p, dims, volume.AxisInline, e.spacing[0])
	be.Gradient(px, p, dims, volume.AxisCrossline, e.spacing[1])
	be.Gradient(qi, q, dims, volume.AxisInline, e.spacing[0])
	be.Gradient(qx, q, dims, volume.AxisCrossline, e.spacing[1])

	mean := make([]float64, n)
	gauss := make([]float64, n)
	kmax := make([]float64, n)
	kmin := make([]float64, n)
	for idx := 0; idx < n; idx++ {
		pv, qv := p[idx], q[idx]
		den := 1 + pv*pv + qv*qv
		cross := 0.5 * (px[idx] + qi[idx])

		h := ((1+qv*qv)*pi[idx] - 2*pv*qv*cross + (1+pv*pv)*qx[idx]) /
			(2 * math.Pow(den, 1.5))
		k := (pi[idx]*qx[idx] - cross*cross) / (den * den)

		disc := h*h - k
		if disc < 0 {
			disc = 0
		}
		root := math.Sqrt(disc)

		mean[idx] = h
		gauss[idx] = k
		kmax[idx] = h + root
		kmin[idx] = h - root
	}

	return map[string][]float64{
		AttrCurvMean:     mean,
		AttrCurvGaussian: gauss,
		AttrCurvMax:      kmax,
		AttrCurvMin:      kmin,
	}
}

func (e *Engine) wants(attr string) bool {
	for _, a := range e.cfg.Attributes {
		if a == attr {
			return true
		}
	}
	return false
}

// axisWeights builds the normalized 1D smoothing weights for each axis.
func (e *Engine) axisWeights(win [3]int) [3][]float64 {
	var w [3][]float64
	for a := 0; a < 3; a++ {
		w[a] = kernelWeights(win[a], e.cfg.Smoothing)
	}
	return w
}

func kernelWeights(width int, mode string) []float64 {
	w := make([]float64, width)
	if mode == "gaussian" && width > 1 {
		sigma := float64(width) / 6.0
		half := width / 2
		sum := 0.0
		for j := 0; j < width; j++ {
			d := float64(j - half)
			w[j] = math.Exp(-d * d / (2 * sigma * sigma))
			sum += w[j]
		}
		for j := range w {
			w[j] /= sum
		}
		return w
	}
	for j := range w {
		w[j] = 1 / float64(width)
	}
	return w
}

// smoothSeparable convolves data in place with the per-axis weight vectors,
// one axis at a time. Reads beyond the block clamp to the block edge, which
// matches the volume-wide replication policy at true boundaries and is
// absorbed by the halo elsewhere.
func smoothSeparable(data []float64, dims [3]int, weights [3][]float64) {
	tmp := make([]float64, len(data))
	src := data
	dst := tmp
	for a := 0; a < 3; a++ {
		if len(weights[a]) == 1 {
			continue
		}
		smoothAxis(dst, src, dims, a, weights[a])
		src, dst = dst, src
	}
	if &src[0] != &data[0] {
		copy(data, src)
	}
}

func smoothAxis(dst, src []float64, dims [3]int, axis int, w []float64) {
	ni, nx, nd := dims[0], dims[1], dims[2]
	half := len(w) / 2
	for i := 0; i < ni; i++ {
		for x := 0; x < nx; x++ {
			for d := 0; d < nd; d++ {
				sum := 0.0
				for j, wj := range w {
					ii, xx, dd := i, x, d
					switch axis {
					case 0:
						ii = clampIdx(i+j-half, ni-1)
					case 1:
						xx = clampIdx(x+j-half, nx-1)
					case 2:
						dd = clampIdx(d+j-half, nd-1)
					}
					sum += wj * src[(ii*nx+xx)*nd+dd]
				}
				dst[(i*nx+x)*nd+d] = sum
			}
		}
	}
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
