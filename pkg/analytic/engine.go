// Package analytic implements complex-trace attributes. Each depth trace is
// lifted to its analytic signal through the backend's FFT transformer, and
// instantaneous amplitude, phase and frequency families are derived from it.
package analytic

import (
	"fmt"
	"math"
	"math/cmplx"

	"seisattr/pkg/backend"
	"seisattr/pkg/volume"
	"seisattr/pkg/window"
)

// Attribute names accepted by Config.Attributes.
const (
	AttrEnvelope              = "envelope"
	AttrPhase                 = "phase"
	AttrCosPhase              = "cos_phase"
	AttrFrequency             = "frequency"
	AttrBandwidth             = "bandwidth"
	AttrDominantFrequency     = "dominant_frequency"
	AttrFrequencyChange       = "frequency_change"
	AttrRelAmplitudeChange    = "rel_amplitude_change"
	AttrAmplitudeAcceleration = "amplitude_acceleration"
	AttrSweetness             = "sweetness"
	AttrQualityFactor         = "quality_factor"
	AttrResponsePhase         = "response_phase"
	AttrResponseFrequency     = "response_frequency"
	AttrResponseAmplitude     = "response_amplitude"
	AttrApparentPolarity      = "apparent_polarity"
)

// sweetnessFloorHz caps the frequency divisor so low-frequency zones do not
// blow the sweetness ratio up.
const sweetnessFloorHz = 5.0

// Config controls the complex-trace computation.
type Config struct {
	// SampleIntervalMs is the depth/time sampling interval in milliseconds.
	// The sampling frequency fs = 1000 / SampleIntervalMs converts per-sample
	// phase differences to Hz.
	SampleIntervalMs float64

	// Attributes lists the output volumes to compute, in order.
	Attributes []string
}

// DefaultConfig returns the default complex-trace configuration.
func DefaultConfig() Config {
	return Config{
		SampleIntervalMs: 4,
		Attributes:       []string{AttrEnvelope, AttrPhase, AttrFrequency},
	}
}

// Engine computes complex-trace attributes trace by trace.
type Engine struct {
	cfg Config
	fs  float64
}

// NewEngine creates an engine for the given configuration. Zero-valued fields
// fall back to DefaultConfig values.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.SampleIntervalMs == 0 {
		cfg.SampleIntervalMs = def.SampleIntervalMs
	}
	if len(cfg.Attributes) == 0 {
		cfg.Attributes = def.Attributes
	}
	return &Engine{cfg: cfg}
}

// Name identifies the engine.
func (e *Engine) Name() string { return "complex-trace" }

// Attributes returns the configured output names in order.
func (e *Engine) Attributes() []string {
	return append([]string(nil), e.cfg.Attributes...)
}

// Support marks the depth axis as unsplittable: the Hilbert transform is a
// whole-trace operation, so windows must span the full trace.
func (e *Engine) Support() [3]int {
	return [3]int{0, 0, window.FullSupport}
}

// Prepare validates the configuration against the volume.
func (e *Engine) Prepare(be backend.Backend, vol *volume.Volume) error {
	if e.cfg.SampleIntervalMs <= 0 {
		return fmt.Errorf("%w: sample interval %v ms must be positive",
			window.ErrInvalidConfig, e.cfg.SampleIntervalMs)
	}
	for _, a := range e.cfg.Attributes {
		switch a {
		case AttrEnvelope, AttrPhase, AttrCosPhase, AttrFrequency, AttrBandwidth,
			AttrDominantFrequency, AttrFrequencyChange, AttrRelAmplitudeChange,
			AttrAmplitudeAcceleration, AttrSweetness, AttrQualityFactor,
			AttrResponsePhase, AttrResponseFrequency, AttrResponseAmplitude,
			AttrApparentPolarity:
		default:
			return fmt.Errorf("analytic: unknown attribute %q", a)
		}
	}
	if vol.NDepth < 2 {
		return fmt.Errorf("analytic: %d depth samples: %w", vol.NDepth, backend.ErrInsufficientSamples)
	}
	e.fs = 1000 / e.cfg.SampleIntervalMs
	return nil
}

// ComputeBlock derives the configured attribute planes for one block. The
// block always spans the full depth axis.
func (e *Engine) ComputeBlock(be backend.Backend, blk *window.Block) ([][]float64, error) {
	dims := blk.Dims
	nd := dims[2]
	total := dims[0] * dims[1] * nd

	tr, err := be.NewTransformer(nd)
	if err != nil {
		return nil, fmt.Errorf("analytic: planning trace transform: %w", err)
	}

	need := e.needs()
	sc := newScratch(nd, need)

	out := make([][]float64, len(e.cfg.Attributes))
	for a := range out {
		out[a] = make([]float64, total)
	}

	for i := 0; i < dims[0]; i++ {
		for x := 0; x < dims[1]; x++ {
			src := blk.Trace(i, x)
			e.computeTrace(be, tr, src, sc, need)

			off := (i*dims[1] + x) * nd
			for a, name := range e.cfg.Attributes {
				copy(out[a][off:off+nd], sc.series(name))
			}
		}
	}
	return out, nil
}

// needs reports which intermediate series the configured attributes require.
type needSet struct {
	freq     bool
	rac      bool
	band     bool
	response bool
}

func (e *Engine) needs() needSet {
	var n needSet
	for _, a := range e.cfg.Attributes {
		switch a {
		case AttrFrequency, AttrFrequencyChange, AttrSweetness:
			n.freq = true
		case AttrRelAmplitudeChange, AttrAmplitudeAcceleration:
			n.rac = true
		case AttrBandwidth, AttrDominantFrequency, AttrQualityFactor:
			n.band = true
		case AttrResponsePhase, AttrResponseFrequency, AttrResponseAmplitude, AttrApparentPolarity:
			n.response = true
		}
	}
	if n.band {
		n.freq = true
		n.rac = true
	}
	if n.response {
		n.freq = true
	}
	return n
}

// scratch holds the per-trace series buffers, reused across traces.
type scratch struct {
	z     []complex128
	input []float64

	env, phase, cosPhase []float64
	unwrapped, freq      []float64
	denv, rac            []float64
	band, domFreq        []float64
	freqChange, accel    []float64
	sweet, quality       []float64

	segments            []int
	respPhase, respFreq []float64
	respAmp, polarity   []float64
}

func newScratch(nd int, need needSet) *scratch {
	sc := &scratch{
		z:          make([]complex128, nd),
		input:      make([]float64, nd),
		env:        make([]float64, nd),
		phase:      make([]float64, nd),
		cosPhase:   make([]float64, nd),
		unwrapped:  make([]float64, nd),
		freq:       make([]float64, nd),
		denv:       make([]float64, nd),
		rac:        make([]float64, nd),
		band:       make([]float64, nd),
		domFreq:    make([]float64, nd),
		freqChange: make([]float64, nd),
		accel:      make([]float64, nd),
		sweet:      make([]float64, nd),
		quality:    make([]float64, nd),
	}
	if need.response {
		sc.segments = make([]int, nd)
		sc.respPhase = make([]float64, nd)
		sc.respFreq = make([]float64, nd)
		sc.respAmp = make([]float64, nd)
		sc.polarity = make([]float64, nd)
	}
	return sc
}

// series maps an attribute name to the scratch buffer holding it.
func (sc *scratch) series(name string) []float64 {
	switch name {
	case AttrEnvelope:
		return sc.env
	case AttrPhase:
		return sc.phase
	case AttrCosPhase:
		return sc.cosPhase
	case AttrFrequency:
		return sc.freq
	case AttrBandwidth:
		return sc.band
	case AttrDominantFrequency:
		return sc.domFreq
	case AttrFrequencyChange:
		return sc.freqChange
	case AttrRelAmplitudeChange:
		return sc.rac
	case AttrAmplitudeAcceleration:
		return sc.accel
	case AttrSweetness:
		return sc.sweet
	case AttrQualityFactor:
		return sc.quality
	case AttrResponsePhase:
		return sc.respPhase
	case AttrResponseFrequency:
		return sc.respFreq
	case AttrResponseAmplitude:
		return sc.respAmp
	case AttrApparentPolarity:
		return sc.polarity
	default:
		return sc.input
	}
}

// computeTrace fills the scratch series for one trace.
func (e *Engine) computeTrace(be backend.Backend, tr backend.TraceTransformer, src []float64, sc *scratch, need needSet) {
	nd := len(src)
	laneDims := [3]int{1, 1, nd}
	copy(sc.input, src)

	tr.Analytic(sc.z, src)
	for d, zv := range sc.z {
		sc.env[d] = cmplx.Abs(zv)
		p := cmplx.Phase(zv)
		if p == -math.Pi {
			p = math.Pi
		}
		sc.phase[d] = p
		sc.cosPhase[d] = math.Cos(p)
	}

	if need.freq {
		// Unwrap by accumulating single-step differences wrapped into
		// (-pi, pi], then differentiate the continuous phase.
		sc.unwrapped[0] = sc.phase[0]
		for d := 1; d < nd; d++ {
			dphi := sc.phase[d] - sc.phase[d-1]
			for dphi <= -math.Pi {
				dphi += 2 * math.Pi
			}
			for dphi > math.Pi {
				dphi -= 2 * math.Pi
			}
			sc.unwrapped[d] = sc.unwrapped[d-1] + dphi
		}
		be.Gradient(sc.freq, sc.unwrapped, laneDims, volume.AxisDepth, 1)
		for d := range sc.freq {
			sc.freq[d] = math.Abs(sc.freq[d]) / (2 * math.Pi) * e.fs
		}
	}

	if need.rac {
		be.Gradient(sc.denv, sc.env, laneDims, volume.AxisDepth, 1)
		for d := range sc.rac {
			env := sc.env[d]
			if env < 1e-30 {
				env = 1e-30
			}
			r := sc.denv[d] / env
			if r > 1 {
				r = 1
			} else if r < -1 {
				r = -1
			}
			sc.rac[d] = r
		}
	}

	if need.band {
		for d := range sc.band {
			sc.band[d] = math.Abs(sc.rac[d]) / (2 * math.Pi) * e.fs
			sc.domFreq[d] = math.Hypot(sc.freq[d], sc.band[d])
			if math.Abs(sc.rac[d]) < 1e-12 {
				sc.quality[d] = 0
			} else {
				sc.quality[d] = math.Pi * sc.freq[d] / sc.rac[d]
			}
		}
	}

	for _, a := range e.cfg.Attributes {
		switch a {
		case AttrFrequencyChange:
			be.Gradient(sc.freqChange, sc.freq, laneDims, volume.AxisDepth, 1)
		case AttrAmplitudeAcceleration:
			be.Gradient(sc.accel, sc.rac, laneDims, volume.AxisDepth, 1)
		case AttrSweetness:
			for d := range sc.sweet {
				f := sc.freq[d]
				if f < sweetnessFloorHz {
					f = sweetnessFloorHz
				}
				sc.sweet[d] = sc.env[d] / f
			}
		}
	}

	if need.response {
		e.computeResponse(sc, nd)
	}
}

// computeResponse splits the trace into trough-to-trough envelope segments
// and holds each segment's envelope-peak values across the segment.
func (e *Engine) computeResponse(sc *scratch, nd int) {
	label := 0
	sc.segments[0] = 0
	for d := 1; d < nd; d++ {
		if d < nd-1 && sc.env[d] < sc.env[d-1] && sc.env[d] < sc.env[d+1] {
			label++
		}
		sc.segments[d] = label
	}

	start := 0
	for start < nd {
		end := start + 1
		for end < nd && sc.segments[end] == sc.segments[start] {
			end++
		}

		peak := start
		for d := start + 1; d < end; d++ {
			if sc.env[d] > sc.env[peak] {
				peak = d
			}
		}

		sign := 0.0
		if sc.input[peak] > 0 {
			sign = 1
		} else if sc.input[peak] < 0 {
			sign = -1
		}
		for d := start; d < end; d++ {
			sc.respPhase[d] = sc.phase[peak]
			sc.respFreq[d] = sc.freq[peak]
			sc.respAmp[d] = sc.input[peak]
			sc.polarity[d] = sc.env[peak] * sign
		}
		start = end
	}
}
