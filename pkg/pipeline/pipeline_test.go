package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"seisattr/pkg/backend"
	"seisattr/pkg/spectral"
	"seisattr/pkg/tensor"
	"seisattr/pkg/texture"
	"seisattr/pkg/volume"
	"seisattr/pkg/window"
)

func TestMain(m *testing.M) {
	SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

// stubEngine lets tests script engine behavior.
type stubEngine struct {
	attrs   []string
	support [3]int
	prepare error
	compute func(*window.Block) ([][]float64, error)
	calls   atomic.Int32
}

func (s *stubEngine) Name() string         { return "stub" }
func (s *stubEngine) Attributes() []string { return s.attrs }
func (s *stubEngine) Support() [3]int      { return s.support }

func (s *stubEngine) Prepare(backend.Backend, *volume.Volume) error {
	return s.prepare
}
func (s *stubEngine) ComputeBlock(_ backend.Backend, blk *window.Block) ([][]float64, error) {
	s.calls.Add(1)
	return s.compute(blk)
}

func constPlanes(blk *window.Block, vals ...float64) [][]float64 {
	planes := make([][]float64, len(vals))
	for p, v := range vals {
		planes[p] = make([]float64, len(blk.Data))
		for i := range planes[p] {
			planes[p][i] = v
		}
	}
	return planes
}

func assertVolumesClose(t *testing.T, whole, split []*volume.Volume, tol float64) {
	t.Helper()
	if len(whole) != len(split) {
		t.Fatalf("output count differs: %d vs %d", len(whole), len(split))
	}
	for v := range whole {
		for idx := range whole[v].Data {
			a, b := whole[v].Data[idx], split[v].Data[idx]
			if math.Abs(a-b) > tol {
				t.Fatalf("output %d voxel %d: whole-volume %v vs windowed %v", v, idx, a, b)
			}
		}
	}
}

func TestWindowingTransparency(t *testing.T) {
	ctx := context.Background()

	t.Run("structure tensor", func(t *testing.T) {
		vol := volume.New(24, 16, 32)
		for i := 0; i < 24; i++ {
			for x := 0; x < 16; x++ {
				for d := 0; d < 32; d++ {
					phase := 2 * math.Pi / 16 * (float64(d) - 0.3*float64(i) + 0.2*float64(x))
					vol.Set(i, x, d, math.Sin(phase))
				}
			}
		}
		eng := tensor.NewEngine(tensor.Config{
			Attributes: []string{tensor.AttrDip, tensor.AttrAzimuth, tensor.AttrPlanarity},
		})

		whole, err := Run(ctx, vol, eng, Params{Workers: 2})
		if err != nil {
			t.Fatalf("whole-volume run failed: %v", err)
		}
		split, err := Run(ctx, vol, eng, Params{
			Workers: 4,
			Window:  window.Config{Size: [3]int{8, 8, 16}},
		})
		if err != nil {
			t.Fatalf("windowed run failed: %v", err)
		}
		assertVolumesClose(t, whole, split, 1e-6)
	})

	t.Run("frequency bands", func(t *testing.T) {
		vol := volume.New(7, 5, 32)
		for i := 0; i < 7; i++ {
			for x := 0; x < 5; x++ {
				tr := vol.Trace(i, x)
				gain := 1 + 0.1*float64(i+x)
				for d := range tr {
					tr[d] = gain * math.Sin(0.05*float64(d)*float64(d))
				}
			}
		}
		eng := spectral.NewEngine(spectral.Config{
			WindowLength:     16,
			SampleIntervalMs: 4,
			Bands:            []spectral.Band{{Low: 10, High: 60}, {Low: 60, High: 120}},
		})

		whole, err := Run(ctx, vol, eng, Params{Workers: 2})
		if err != nil {
			t.Fatalf("whole-volume run failed: %v", err)
		}
		split, err := Run(ctx, vol, eng, Params{
			Workers: 3,
			Window:  window.Config{Size: [3]int{3, 2, 8}},
		})
		if err != nil {
			t.Fatalf("windowed run failed: %v", err)
		}
		assertVolumesClose(t, whole, split, 1e-6)
	})

	t.Run("texture", func(t *testing.T) {
		vol := volume.New(12, 10, 16)
		for i := 0; i < 12; i++ {
			for x := 0; x < 10; x++ {
				for d := 0; d < 16; d++ {
					v := math.Sin(0.7*float64(i)) + math.Cos(0.4*float64(x)) + 0.5*math.Sin(1.3*float64(d))
					vol.Set(i, x, d, v)
				}
			}
		}
		eng := texture.NewEngine(texture.Config{
			GrayLevels: 8,
			Window:     [3]int{3, 3, 5},
		})

		whole, err := Run(ctx, vol, eng, Params{Workers: 2})
		if err != nil {
			t.Fatalf("whole-volume run failed: %v", err)
		}
		split, err := Run(ctx, vol, eng, Params{
			Workers: 4,
			Window:  window.Config{Size: [3]int{5, 4, 8}},
		})
		if err != nil {
			t.Fatalf("windowed run failed: %v", err)
		}
		assertVolumesClose(t, whole, split, 1e-6)
	})
}

func TestRepeatedRunsAreIdentical(t *testing.T) {
	vol := volume.New(10, 8, 24)
	for i := 0; i < 10; i++ {
		for x := 0; x < 8; x++ {
			for d := 0; d < 24; d++ {
				vol.Set(i, x, d, math.Sin(0.4*float64(d))+0.3*math.Cos(0.9*float64(i*8+x)))
			}
		}
	}
	eng := tensor.NewEngine(tensor.Config{
		Attributes: []string{tensor.AttrDip, tensor.AttrAzimuth, tensor.AttrCurvMean},
	})
	params := Params{
		Workers: 4,
		Window:  window.Config{Size: [3]int{4, 4, 12}},
	}

	first, err := Run(context.Background(), vol, eng, params)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := Run(context.Background(), vol, eng, params)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	for v := range first {
		for idx := range first[v].Data {
			if first[v].Data[idx] != second[v].Data[idx] {
				t.Fatalf("output %d voxel %d differs between identical runs: %v vs %v",
					v, idx, first[v].Data[idx], second[v].Data[idx])
			}
		}
	}
}

func TestCancellationBetweenWindows(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	eng := &stubEngine{
		attrs: []string{"a"},
		compute: func(blk *window.Block) ([][]float64, error) {
			once.Do(func() { close(started) })
			<-gate
			return constPlanes(blk, 1), nil
		},
	}

	vol := volume.New(8, 8, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		_, err := Run(ctx, vol, eng, Params{
			Workers: 1,
			Window:  window.Config{Size: [3]int{2, 8, 8}},
		})
		errCh <- err
	}()

	<-started
	cancel()
	close(gate)

	err := <-errCh
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if got := eng.calls.Load(); got != 1 {
		t.Errorf("engine computed %d windows after cancellation, want 1", got)
	}
}

func TestPrepareFailureIsFailFast(t *testing.T) {
	sentinel := errors.New("bad configuration")
	eng := &stubEngine{
		attrs:   []string{"a"},
		prepare: sentinel,
		compute: func(blk *window.Block) ([][]float64, error) {
			return constPlanes(blk, 1), nil
		},
	}

	_, err := Run(context.Background(), volume.New(8, 8, 8), eng, Params{})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Run = %v, want prepare error", err)
	}
	if got := eng.calls.Load(); got != 0 {
		t.Errorf("engine computed %d windows despite failed Prepare", got)
	}
}

func TestComputeErrorStopsRun(t *testing.T) {
	sentinel := errors.New("window exploded")
	eng := &stubEngine{
		attrs: []string{"a"},
		compute: func(blk *window.Block) ([][]float64, error) {
			if blk.Window.Index == 2 {
				return nil, sentinel
			}
			return constPlanes(blk, 1), nil
		},
	}

	outs, err := Run(context.Background(), volume.New(12, 4, 4), eng, Params{
		Workers: 2,
		Window:  window.Config{Size: [3]int{2, 4, 4}},
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Run = %v, want the window error", err)
	}
	if outs != nil {
		t.Error("Run returned partial output alongside an error")
	}
}

func TestDeviceBackendUnavailable(t *testing.T) {
	eng := &stubEngine{
		attrs: []string{"a"},
		compute: func(blk *window.Block) ([][]float64, error) {
			return constPlanes(blk, 1), nil
		},
	}

	_, err := Run(context.Background(), volume.New(4, 4, 4), eng, Params{
		Backend: backend.KindDevice,
	})
	if !errors.Is(err, backend.ErrUnavailable) {
		t.Fatalf("Run = %v, want ErrUnavailable", err)
	}
	if got := eng.calls.Load(); got != 0 {
		t.Errorf("engine computed %d windows on an unavailable backend", got)
	}
}

func TestOutputsFollowAttributeOrder(t *testing.T) {
	eng := &stubEngine{
		attrs:   []string{"first", "second"},
		support: [3]int{1, 1, 1},
		compute: func(blk *window.Block) ([][]float64, error) {
			return constPlanes(blk, 1, 2), nil
		},
	}

	vol := volume.New(6, 5, 4)
	vol.Spacing = [3]float64{25, 25, 4}
	outs, err := Run(context.Background(), vol, eng, Params{
		Workers: 3,
		Window:  window.Config{Size: [3]int{2, 3, 4}},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(outs) != 2 {
		t.Fatalf("got %d outputs, want 2", len(outs))
	}
	for v, want := range []float64{1, 2} {
		if outs[v].Shape() != vol.Shape() {
			t.Errorf("output %d shape %v, want %v", v, outs[v].Shape(), vol.Shape())
		}
		if outs[v].Spacing != vol.Spacing {
			t.Errorf("output %d spacing %v, want %v", v, outs[v].Spacing, vol.Spacing)
		}
		for idx, got := range outs[v].Data {
			if got != want {
				t.Fatalf("output %d voxel %d = %v, want %v", v, idx, got, want)
			}
		}
	}
}

func TestWindowConfigRejected(t *testing.T) {
	eng := &stubEngine{
		attrs:   []string{"a"},
		support: [3]int{2, 0, 0},
		compute: func(blk *window.Block) ([][]float64, error) {
			return constPlanes(blk, 1), nil
		},
	}

	t.Run("halo below support", func(t *testing.T) {
		_, err := Run(context.Background(), volume.New(8, 8, 8), eng, Params{
			Window: window.Config{Size: [3]int{4, 8, 8}, Halo: [3]int{1, 0, 0}},
		})
		if !errors.Is(err, window.ErrInvalidConfig) {
			t.Errorf("Run = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("splitting a whole-axis transform", func(t *testing.T) {
		pinned := &stubEngine{
			attrs:   []string{"a"},
			support: [3]int{0, 0, window.FullSupport},
			compute: func(blk *window.Block) ([][]float64, error) {
				return constPlanes(blk, 1), nil
			},
		}
		_, err := Run(context.Background(), volume.New(8, 8, 8), pinned, Params{
			Window: window.Config{Size: [3]int{8, 8, 4}},
		})
		if !errors.Is(err, window.ErrInvalidConfig) {
			t.Errorf("Run = %v, want ErrInvalidConfig", err)
		}
	})
}
