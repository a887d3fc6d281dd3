package backend

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"seisattr/pkg/volume"
)

// hostBackend computes on the CPU with gonum primitives.
type hostBackend struct{}

func newHostBackend() *hostBackend {
	return &hostBackend{}
}

func (*hostBackend) Kind() Kind   { return KindHost }
func (*hostBackend) Name() string { return "host" }

func (*hostBackend) Add(dst, a, b []float64) {
	floats.AddTo(dst, a, b)
}

func (*hostBackend) Sub(dst, a, b []float64) {
	floats.SubTo(dst, a, b)
}

func (*hostBackend) Mul(dst, a, b []float64) {
	floats.MulTo(dst, a, b)
}

func (*hostBackend) Scale(dst, a []float64, s float64) {
	floats.ScaleTo(dst, s, a)
}

func (*hostBackend) Sum(a []float64) float64 {
	return floats.Sum(a)
}

func (*hostBackend) Mean(a []float64) float64 {
	return stat.Mean(a, nil)
}

func (*hostBackend) Min(a []float64) float64 {
	return floats.Min(a)
}

func (*hostBackend) Max(a []float64) float64 {
	return floats.Max(a)
}

// Gradient writes the np.gradient-style derivative of src along the given
// axis: central differences in the interior, one-sided differences at the
// lane ends, all divided by the sample spacing.
func (*hostBackend) Gradient(dst, src []float64, dims [3]int, axis volume.Axis, spacing float64) {
	ni, nx, nd := dims[0], dims[1], dims[2]
	inv := 1.0 / spacing
	half := 0.5 / spacing

	switch axis {
	case volume.AxisInline:
		for x := 0; x < nx; x++ {
			for d := 0; d < nd; d++ {
				base := x*nd + d
				gradientLane(dst[base:], src[base:], nx*nd, ni, inv, half)
			}
		}
	case volume.AxisCrossline:
		for i := 0; i < ni; i++ {
			for d := 0; d < nd; d++ {
				base := i*nx*nd + d
				gradientLane(dst[base:], src[base:], nd, nx, inv, half)
			}
		}
	case volume.AxisDepth:
		for i := 0; i < ni; i++ {
			for x := 0; x < nx; x++ {
				base := (i*nx + x) * nd
				gradientLane(dst[base:base+nd], src[base:base+nd], 1, nd, inv, half)
			}
		}
	}
}

// gradientLane differentiates one strided lane of n samples.
func gradientLane(dst, src []float64, stride, n int, inv, half float64) {
	if n < 2 {
		dst[0] = 0
		return
	}
	dst[0] = (src[stride] - src[0]) * inv
	last := (n - 1) * stride
	dst[last] = (src[last] - src[last-stride]) * inv
	for t := 1; t < n-1; t++ {
		o := t * stride
		dst[o] = (src[o+stride] - src[o-stride]) * half
	}
}

func (*hostBackend) NewTransformer(n int) (TraceTransformer, error) {
	if n < 2 {
		return nil, fmt.Errorf("transform length %d: %w", n, ErrInsufficientSamples)
	}
	return &hostTransformer{
		n:     n,
		real:  fourier.NewFFT(n),
		cmplx: fourier.NewCmplxFFT(n),
		buf:   make([]complex128, n),
		coef:  make([]complex128, n),
		rcoef: make([]complex128, n/2+1),
	}, nil
}

// hostTransformer holds gonum FFT plans and scratch buffers for one trace
// length. Not safe for concurrent use.
type hostTransformer struct {
	n     int
	real  *fourier.FFT
	cmplx *fourier.CmplxFFT
	buf   []complex128
	coef  []complex128
	rcoef []complex128
}

func (t *hostTransformer) Len() int { return t.n }

// Analytic computes the analytic signal of src: forward FFT, zero the
// negative frequencies, double the positive frequencies (DC and Nyquist stay
// single), inverse FFT. The gonum transforms are unnormalized, so the inverse
// is scaled by 1/n.
func (t *hostTransformer) Analytic(dst []complex128, src []float64) {
	n := t.n
	for i, s := range src {
		t.buf[i] = complex(s, 0)
	}
	t.cmplx.Coefficients(t.coef, t.buf)

	half := n / 2
	if n%2 == 0 {
		for k := 1; k < half; k++ {
			t.coef[k] *= 2
		}
	} else {
		for k := 1; k <= half; k++ {
			t.coef[k] *= 2
		}
	}
	for k := half + 1; k < n; k++ {
		t.coef[k] = 0
	}

	t.cmplx.Sequence(t.buf, t.coef)
	inv := complex(1/float64(n), 0)
	for i := range src {
		dst[i] = t.buf[i] * inv
	}
}

// Magnitudes fills dst with the n/2+1 positive-frequency coefficient
// magnitudes of src.
func (t *hostTransformer) Magnitudes(dst []float64, src []float64) {
	t.real.Coefficients(t.rcoef, src)
	for i, c := range t.rcoef {
		dst[i] = cmplx.Abs(c)
	}
}

func (*hostBackend) NewEigenSolver() EigenSolver {
	return &hostEigenSolver{
		sym:  mat.NewSymDense(3, nil),
		vals: make([]float64, 3),
	}
}

// hostEigenSolver wraps gonum's symmetric eigen-decomposition with reusable
// scratch. Not safe for concurrent use.
type hostEigenSolver struct {
	sym  *mat.SymDense
	es   mat.EigenSym
	vecs mat.Dense
	vals []float64
}

func (s *hostEigenSolver) DecomposeSym3(t SymTensor3) (EigenDecomposition, bool) {
	s.sym.SetSym(0, 0, t.XX)
	s.sym.SetSym(1, 1, t.YY)
	s.sym.SetSym(2, 2, t.ZZ)
	s.sym.SetSym(0, 1, t.XY)
	s.sym.SetSym(0, 2, t.XZ)
	s.sym.SetSym(1, 2, t.YZ)

	if ok := s.es.Factorize(s.sym, true); !ok {
		return EigenDecomposition{}, false
	}
	s.es.Values(s.vals)
	s.es.VectorsTo(&s.vecs)

	// gonum orders eigenvalues ascending; flip to descending.
	var out EigenDecomposition
	for i := 0; i < 3; i++ {
		col := 2 - i
		out.Values[i] = s.vals[col]
		for r := 0; r < 3; r++ {
			out.Vectors[i][r] = s.vecs.At(r, col)
		}
	}
	return out, true
}
