// Package spectral implements frequency-decomposition attributes: a tapered
// FFT window slides along each trace and per-band spectral magnitudes are
// emitted as same-shape volumes, one per configured frequency band.
package spectral

import (
	"errors"
	"fmt"
	"math"

	dspwindow "gonum.org/v1/gonum/dsp/window"

	"seisattr/pkg/backend"
	"seisattr/pkg/volume"
	"seisattr/pkg/window"
)

// ErrInvalidBand is returned when a frequency band is empty, inverted, or
// reaches past the Nyquist frequency of the trace sampling.
var ErrInvalidBand = errors.New("spectral: invalid frequency band")

// Band is a half-open frequency interval [Low, High) in Hz.
type Band struct {
	Low, High float64
}

// Name returns the attribute name for the band's output volume.
func (b Band) Name() string {
	return fmt.Sprintf("band_%g_%ghz", b.Low, b.High)
}

// Config controls the frequency decomposition.
type Config struct {
	// WindowLength is the FFT window length in samples, >= 2 and at most
	// the trace length.
	WindowLength int

	// Hop computes spectra every Hop samples and holds the nearest computed
	// value in between. 1 computes every output sample.
	Hop int

	// Taper names the window function applied before the FFT: "none",
	// "hann", "hamming" or "blackman".
	Taper string

	// SampleIntervalMs is the depth/time sampling interval in milliseconds.
	SampleIntervalMs float64

	// Bands lists the frequency bands to emit, one output volume each.
	Bands []Band
}

// DefaultConfig returns the default frequency-decomposition configuration.
func DefaultConfig() Config {
	return Config{
		WindowLength:     64,
		Hop:              1,
		Taper:            "hann",
		SampleIntervalMs: 4,
		Bands:            []Band{{10, 30}, {30, 60}, {60, 90}},
	}
}

// Engine computes per-band spectral magnitude volumes.
type Engine struct {
	cfg   Config
	fs    float64
	taper []float64
	// bins[b] lists the FFT bin indices covered by cfg.Bands[b].
	bins [][]int
}

// NewEngine creates an engine for the given configuration. Zero-valued fields
// fall back to DefaultConfig values.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.WindowLength == 0 {
		cfg.WindowLength = def.WindowLength
	}
	if cfg.Hop == 0 {
		cfg.Hop = def.Hop
	}
	if cfg.Taper == "" {
		cfg.Taper = def.Taper
	}
	if cfg.SampleIntervalMs == 0 {
		cfg.SampleIntervalMs = def.SampleIntervalMs
	}
	if len(cfg.Bands) == 0 {
		cfg.Bands = def.Bands
	}
	return &Engine{cfg: cfg}
}

// Name identifies the engine.
func (e *Engine) Name() string { return "frequency" }

// Attributes returns one band_<low>_<high>hz name per configured band.
func (e *Engine) Attributes() []string {
	names := make([]string, len(e.cfg.Bands))
	for b, band := range e.cfg.Bands {
		names[b] = band.Name()
	}
	return names
}

// Support returns the window half-length along depth; the sliding window is
// local, so inline and crossline need no halo.
func (e *Engine) Support() [3]int {
	return [3]int{0, 0, e.cfg.WindowLength / 2}
}

// Prepare validates the configuration against the volume and resolves each
// band to the FFT bins it covers.
func (e *Engine) Prepare(be backend.Backend, vol *volume.Volume) error {
	w := e.cfg.WindowLength
	if w < 2 || w > vol.NDepth {
		return fmt.Errorf("%w: window length %d must be in [2, %d]",
			window.ErrInvalidConfig, w, vol.NDepth)
	}
	if e.cfg.Hop < 1 {
		return fmt.Errorf("%w: hop %d must be >= 1", window.ErrInvalidConfig, e.cfg.Hop)
	}
	if e.cfg.SampleIntervalMs <= 0 {
		return fmt.Errorf("%w: sample interval %v ms must be positive",
			window.ErrInvalidConfig, e.cfg.SampleIntervalMs)
	}

	taper, err := taperCoefficients(e.cfg.Taper, w)
	if err != nil {
		return err
	}
	e.taper = taper
	e.fs = 1000 / e.cfg.SampleIntervalMs
	nyquist := e.fs / 2

	e.bins = make([][]int, len(e.cfg.Bands))
	for b, band := range e.cfg.Bands {
		if band.Low < 0 || band.Low >= band.High || band.High > nyquist {
			return fmt.Errorf("%w: [%g, %g) Hz must satisfy 0 <= low < high <= %g",
				ErrInvalidBand, band.Low, band.High, nyquist)
		}
		for k := 0; k <= w/2; k++ {
			f := float64(k) * e.fs / float64(w)
			if f >= band.Low && f < band.High {
				e.bins[b] = append(e.bins[b], k)
			}
		}
		if len(e.bins[b]) == 0 {
			return fmt.Errorf("%w: [%g, %g) Hz covers no FFT bin at window length %d",
				ErrInvalidBand, band.Low, band.High, w)
		}
	}
	return nil
}

// ComputeBlock slides the tapered FFT window along every trace of the block
// and aggregates each band as the RMS magnitude over its bins.
func (e *Engine) ComputeBlock(be backend.Backend, blk *window.Block) ([][]float64, error) {
	dims := blk.Dims
	bd := dims[2]
	w := e.cfg.WindowLength
	hop := e.cfg.Hop
	total := dims[0] * dims[1] * bd

	tr, err := be.NewTransformer(w)
	if err != nil {
		return nil, fmt.Errorf("spectral: planning window transform: %w", err)
	}

	out := make([][]float64, len(e.cfg.Bands))
	for b := range out {
		out[b] = make([]float64, total)
	}

	buf := make([]float64, w)
	mags := make([]float64, w/2+1)
	nCenters := (bd + hop - 1) / hop
	centerVals := make([][]float64, len(e.cfg.Bands))
	for b := range centerVals {
		centerVals[b] = make([]float64, nCenters)
	}

	for i := 0; i < dims[0]; i++ {
		for x := 0; x < dims[1]; x++ {
			trace := blk.Trace(i, x)

			for ci := 0; ci < nCenters; ci++ {
				center := ci * hop
				start := center - w/2
				for j := 0; j < w; j++ {
					idx := start + j
					if idx < 0 {
						idx = 0
					} else if idx >= bd {
						idx = bd - 1
					}
					buf[j] = trace[idx] * e.taper[j]
				}
				tr.Magnitudes(mags, buf)

				for b, bins := range e.bins {
					sumsq := 0.0
					for _, k := range bins {
						sumsq += mags[k] * mags[k]
					}
					centerVals[b][ci] = math.Sqrt(sumsq / float64(len(bins)))
				}
			}

			off := (i*dims[1] + x) * bd
			for d := 0; d < bd; d++ {
				ci := (d + hop/2) / hop
				if ci >= nCenters {
					ci = nCenters - 1
				}
				for b := range out {
					out[b][off+d] = centerVals[b][ci]
				}
			}
		}
	}
	return out, nil
}

// taperCoefficients builds the window function as a coefficient vector by
// applying the gonum window to a vector of ones.
func taperCoefficients(name string, n int) ([]float64, error) {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	switch name {
	case "none":
	case "hann":
		dspwindow.Hann(w)
	case "hamming":
		dspwindow.Hamming(w)
	case "blackman":
		dspwindow.Blackman(w)
	default:
		return nil, fmt.Errorf("%w: unknown taper %q", window.ErrInvalidConfig, name)
	}
	return w, nil
}
