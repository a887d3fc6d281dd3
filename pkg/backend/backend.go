// Package backend provides the numeric array backends the attribute engines
// compute with. Engines call only through the Backend interface and never
// assume a concrete array library, so host (CPU) and device (GPU) execution
// are interchangeable at call time.
package backend

import (
	"errors"
	"fmt"

	"seisattr/pkg/volume"
)

var (
	// ErrUnavailable is returned when the requested backend is not present,
	// e.g. the device backend on a machine without a compute device.
	ErrUnavailable = errors.New("backend: requested backend not available")

	// ErrInsufficientSamples is returned when a trace is shorter than the
	// minimal transform length of 2 samples.
	ErrInsufficientSamples = errors.New("backend: trace too short for transform")
)

// Kind identifies a backend implementation.
type Kind int

const (
	// KindAuto selects the best available backend (device when present,
	// host otherwise).
	KindAuto Kind = iota

	// KindHost computes on the CPU.
	KindHost

	// KindDevice computes on a GPU-class device.
	KindDevice
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAuto:
		return "auto"
	case KindHost:
		return "host"
	case KindDevice:
		return "device"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "auto", "":
		return KindAuto, nil
	case "host", "cpu":
		return KindHost, nil
	case "device", "gpu":
		return KindDevice, nil
	default:
		return KindAuto, fmt.Errorf("backend: unknown backend %q", s)
	}
}

// Capabilities describes one detected backend.
type Capabilities struct {
	Kind      Kind
	Name      string
	Available bool

	// Reason explains an unavailable backend; empty when available.
	Reason string
}

// SymTensor3 packs the six distinct components of a symmetric 3x3 tensor,
// indexed (inline, crossline, depth).
type SymTensor3 struct {
	XX, YY, ZZ, XY, XZ, YZ float64
}

// EigenDecomposition holds the eigenvalues of a symmetric 3x3 tensor in
// descending order with the matching unit eigenvectors; Vectors[i] pairs
// with Values[i].
type EigenDecomposition struct {
	Values  [3]float64
	Vectors [3][3]float64
}

// TraceTransformer applies FFT-based transforms to traces of a fixed length.
// A transformer holds plan state and is not safe for concurrent use; obtain
// one per worker goroutine.
type TraceTransformer interface {
	// Len returns the trace length the transformer was planned for.
	Len() int

	// Analytic fills dst with the analytic signal of src: the real FFT
	// spectrum with negative frequencies zeroed and positive frequencies
	// doubled, inverse transformed. len(dst) == len(src) == Len().
	Analytic(dst []complex128, src []float64)

	// Magnitudes fills dst with the magnitudes of the positive-frequency
	// Fourier coefficients of src. len(dst) == Len()/2+1.
	Magnitudes(dst []float64, src []float64)
}

// EigenSolver decomposes symmetric 3x3 tensors. A solver holds scratch state
// and is not safe for concurrent use; obtain one per worker goroutine.
type EigenSolver interface {
	// DecomposeSym3 returns the ordered eigen-decomposition of t. The
	// second return is false when the decomposition fails numerically
	// (non-finite input).
	DecomposeSym3(t SymTensor3) (EigenDecomposition, bool)
}

// Backend is the capability surface the attribute engines compute through:
// element-wise arithmetic, reductions, gradient stencils, trace transforms
// and small eigen-decompositions.
//
// Implementations must be safe for concurrent use; per-goroutine state lives
// in the TraceTransformer and EigenSolver objects a backend hands out. A
// device implementation acquires device memory for a window's data when the
// window is computed and releases it once results are copied back; no device
// state persists across windows.
type Backend interface {
	Kind() Kind
	Name() string

	// Element-wise operations. All slices must have equal length; dst may
	// alias a or b.
	Add(dst, a, b []float64)
	Sub(dst, a, b []float64)
	Mul(dst, a, b []float64)
	Scale(dst, a []float64, s float64)

	// Reductions.
	Sum(a []float64) float64
	Mean(a []float64) float64
	Min(a []float64) float64
	Max(a []float64) float64

	// Gradient estimates the derivative of a flat row-major volume along
	// the given axis: central differences in the interior, one-sided at
	// the ends, divided by the sample spacing.
	Gradient(dst, src []float64, dims [3]int, axis volume.Axis, spacing float64)

	// NewTransformer plans trace transforms for traces of length n.
	// Fails with ErrInsufficientSamples when n < 2.
	NewTransformer(n int) (TraceTransformer, error)

	// NewEigenSolver returns a solver for symmetric 3x3 tensors.
	NewEigenSolver() EigenSolver
}

// Detect probes every backend kind and reports its availability.
func Detect() []Capabilities {
	available, reason := probeDevice()
	return []Capabilities{
		{Kind: KindHost, Name: "host", Available: true},
		{Kind: KindDevice, Name: "device", Available: available, Reason: reason},
	}
}

// Select returns the backend for the requested kind. KindAuto picks the
// device backend when one is present and falls back to the host backend
// otherwise. Requesting an unavailable kind fails with ErrUnavailable.
func Select(kind Kind) (Backend, error) {
	switch kind {
	case KindAuto:
		if available, _ := probeDevice(); available {
			return Select(KindDevice)
		}
		return newHostBackend(), nil
	case KindHost:
		return newHostBackend(), nil
	case KindDevice:
		available, reason := probeDevice()
		if !available {
			return nil, fmt.Errorf("device backend: %s: %w", reason, ErrUnavailable)
		}
		// Device construction goes here once a device runtime is wired in;
		// probeDevice reporting true implies that code path exists.
		return nil, fmt.Errorf("device backend: no implementation: %w", ErrUnavailable)
	default:
		return nil, fmt.Errorf("backend: unknown kind %v: %w", kind, ErrUnavailable)
	}
}
