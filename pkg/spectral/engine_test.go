package spectral

import (
	"errors"
	"math"
	"testing"

	"seisattr/pkg/backend"
	"seisattr/pkg/volume"
	"seisattr/pkg/window"
)

func hostBackend(t *testing.T) backend.Backend {
	t.Helper()
	be, err := backend.Select(backend.KindHost)
	if err != nil {
		t.Fatalf("selecting host backend: %v", err)
	}
	return be
}

func wholeBlock(vol *volume.Volume) *window.Block {
	shape := vol.Shape()
	return &window.Block{
		Window: window.Window{End: shape},
		Dims:   shape,
		Data:   append([]float64(nil), vol.Data...),
	}
}

func toneVolume(ni, nx, nd int, amp, freqHz, fs float64) *volume.Volume {
	vol := volume.New(ni, nx, nd)
	for i := 0; i < ni; i++ {
		for x := 0; x < nx; x++ {
			tr := vol.Trace(i, x)
			for d := range tr {
				tr[d] = amp * math.Sin(2*math.Pi*freqHz*float64(d)/fs)
			}
		}
	}
	return vol
}

func compute(t *testing.T, vol *volume.Volume, cfg Config) (*Engine, [][]float64) {
	t.Helper()
	be := hostBackend(t)
	eng := NewEngine(cfg)
	if err := eng.Prepare(be, vol); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	out, err := eng.ComputeBlock(be, wholeBlock(vol))
	if err != nil {
		t.Fatalf("ComputeBlock failed: %v", err)
	}
	return eng, out
}

func TestToneIsolation(t *testing.T) {
	// 25 Hz at fs=250 with a 50-sample rectangular window puts exactly five
	// cycles in the window, so away from the trace ends the tone lands in a
	// single FFT bin with magnitude amp*W/2 and leaks nowhere else.
	const (
		amp = 2.0
		w   = 50
		nd  = 128
	)
	vol := toneVolume(2, 2, nd, amp, 25, 250)
	_, out := compute(t, vol, Config{
		WindowLength:     w,
		Taper:            "none",
		SampleIntervalMs: 4,
		Bands:            []Band{{20, 30}, {60, 80}},
	})

	// Band [20,30) covers bins 4 and 5; only bin 5 carries the tone.
	wantInBand := amp * w / 2 / math.Sqrt2
	for i := 0; i < 2; i++ {
		for x := 0; x < 2; x++ {
			off := vol.Idx(i, x, 0)
			for d := w / 2; d < nd-w/2; d++ {
				if got := out[0][off+d]; math.Abs(got-wantInBand) > 1e-9 {
					t.Fatalf("in-band magnitude at depth %d = %v, want %v", d, got, wantInBand)
				}
				if got := out[1][off+d]; got > 1e-9 {
					t.Fatalf("out-of-band magnitude at depth %d = %v, want 0", d, got)
				}
			}
		}
	}

	if len(out[0]) != vol.Len() {
		t.Errorf("output length %d, want input length %d", len(out[0]), vol.Len())
	}
}

func TestHannTaperConcentration(t *testing.T) {
	vol := toneVolume(1, 1, 128, 1, 25, 250)
	_, out := compute(t, vol, Config{
		WindowLength:     50,
		Taper:            "hann",
		SampleIntervalMs: 4,
		Bands:            []Band{{20, 30}, {60, 80}},
	})

	for d := 25; d < 128-25; d++ {
		inBand, outBand := out[0][d], out[1][d]
		if inBand < 100*outBand {
			t.Fatalf("at depth %d in-band %v not dominant over out-of-band %v", d, inBand, outBand)
		}
	}
}

func TestHopHoldsNearestCenter(t *testing.T) {
	const (
		nd  = 64
		hop = 4
	)
	vol := volume.New(1, 1, nd)
	tr := vol.Trace(0, 0)
	for d := range tr {
		// A chirp, so neighboring spectra differ.
		tr[d] = math.Sin(0.02 * float64(d) * float64(d))
	}

	_, out := compute(t, vol, Config{
		WindowLength:     16,
		Hop:              hop,
		Taper:            "hann",
		SampleIntervalMs: 4,
		Bands:            []Band{{10, 60}},
	})

	nCenters := (nd + hop - 1) / hop
	distinct := map[float64]bool{}
	for d := 0; d < nd; d++ {
		ci := (d + hop/2) / hop
		if ci >= nCenters {
			ci = nCenters - 1
		}
		if out[0][d] != out[0][ci*hop] {
			t.Fatalf("output at depth %d = %v, want held center value %v", d, out[0][d], out[0][ci*hop])
		}
		distinct[out[0][d]] = true
	}
	if len(distinct) < 2 {
		t.Error("hop hold produced a constant trace; expected varying spectra on a chirp")
	}
}

func TestPrepareValidation(t *testing.T) {
	be := hostBackend(t)
	vol := volume.New(2, 2, 64)

	for _, tc := range []struct {
		name string
		cfg  Config
		want error
	}{
		{"window too short", Config{WindowLength: 1}, window.ErrInvalidConfig},
		{"window longer than trace", Config{WindowLength: 200}, window.ErrInvalidConfig},
		{"negative hop", Config{Hop: -1}, window.ErrInvalidConfig},
		{"unknown taper", Config{Taper: "kaiser"}, window.ErrInvalidConfig},
		{"bad sample interval", Config{SampleIntervalMs: -4}, window.ErrInvalidConfig},
		{"inverted band", Config{Bands: []Band{{30, 20}}}, ErrInvalidBand},
		{"negative band", Config{Bands: []Band{{-5, 20}}}, ErrInvalidBand},
		{"band past nyquist", Config{Bands: []Band{{100, 130}}}, ErrInvalidBand},
		{"band covering no bin", Config{WindowLength: 50, Bands: []Band{{21, 24}}}, ErrInvalidBand},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := NewEngine(tc.cfg).Prepare(be, vol)
			if !errors.Is(err, tc.want) {
				t.Errorf("Prepare = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestBandNames(t *testing.T) {
	eng := NewEngine(Config{Bands: []Band{{10, 30}, {12.5, 62.5}}})
	got := eng.Attributes()
	want := []string{"band_10_30hz", "band_12.5_62.5hz"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Attributes()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSupportIsHalfWindow(t *testing.T) {
	eng := NewEngine(Config{WindowLength: 64})
	if got := eng.Support(); got != [3]int{0, 0, 32} {
		t.Errorf("Support = %v, want [0 0 32]", got)
	}
}
