// Package pipeline orchestrates attribute computation: it selects a compute
// backend, validates the engine configuration up front, fans windows out to
// worker goroutines and reassembles the per-window results into output
// volumes.
package pipeline

import (
	"context"
	"fmt"
	"runtime"

	"seisattr/internal/parallel"
	"seisattr/pkg/backend"
	"seisattr/pkg/volume"
	"seisattr/pkg/window"
)

// Engine is one attribute computation. Implementations declare their outputs
// and stencil reach, validate configuration in Prepare, and compute padded
// blocks independently of each other.
type Engine interface {
	// Name identifies the engine in logs and errors.
	Name() string

	// Attributes lists the output volume names in order.
	Attributes() []string

	// Support returns the per-axis halo the engine's stencils need, or
	// window.FullSupport for an axis that must not be split.
	Support() [3]int

	// Prepare validates the configuration against the backend and volume.
	// It runs once per Run, before any window is computed.
	Prepare(be backend.Backend, vol *volume.Volume) error

	// ComputeBlock computes one padded block and returns one padded-shape
	// plane per attribute. It must be safe to call concurrently.
	ComputeBlock(be backend.Backend, blk *window.Block) ([][]float64, error)
}

// Params controls a pipeline run.
type Params struct {
	// Backend selects the compute backend; KindAuto picks the best
	// available one.
	Backend backend.Kind

	// Workers bounds the windows computed concurrently. Zero means
	// runtime.NumCPU().
	Workers int

	// Window is the split configuration. A zero Size spans the whole
	// volume; a zero Halo derives the halo from the engine's support.
	Window window.Config
}

type blockResult struct {
	win    window.Window
	planes [][]float64
	err    error
}

// Run computes eng over vol and returns one volume per attribute, ordered as
// eng.Attributes(). Windows are computed concurrently; cancellation is
// honored between windows, never mid-window, and the first failure cancels
// the remaining windows and is returned with no partial output.
func Run(ctx context.Context, vol *volume.Volume, eng Engine, params Params) ([]*volume.Volume, error) {
	if vol == nil || vol.Len() == 0 {
		return nil, fmt.Errorf("pipeline: empty input volume")
	}

	be, err := backend.Select(params.Backend)
	if err != nil {
		return nil, fmt.Errorf("pipeline: selecting backend: %w", err)
	}
	if err := eng.Prepare(be, vol); err != nil {
		return nil, fmt.Errorf("pipeline: preparing %s: %w", eng.Name(), err)
	}

	cfg, err := window.Resolve(params.Window, vol.Shape(), eng.Support())
	if err != nil {
		return nil, fmt.Errorf("pipeline: resolving windows for %s: %w", eng.Name(), err)
	}
	it, err := window.NewIterator(vol, cfg)
	if err != nil {
		return nil, fmt.Errorf("pipeline: splitting volume: %w", err)
	}

	attrs := eng.Attributes()
	asm := window.NewAssembler(vol, len(attrs))

	workers := params.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	slogger().Info("pipeline: run started",
		"engine", eng.Name(), "backend", be.Name(),
		"windows", it.Count(), "workers", workers, "attributes", len(attrs))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan blockResult, workers)
	lim := parallel.NewLimiter(workers)
	go func() {
		defer close(results)
		for {
			blk, ok := it.Next()
			if !ok {
				break
			}
			lim.Acquire()
			if ctx.Err() != nil {
				lim.Release()
				break
			}
			go func(blk *window.Block) {
				defer lim.Release()
				planes, err := eng.ComputeBlock(be, blk)
				select {
				case results <- blockResult{win: blk.Window, planes: planes, err: err}:
				case <-ctx.Done():
				}
			}(blk)
		}
		lim.Wait()
	}()

	var firstErr error
	placed := 0
	for res := range results {
		if firstErr != nil {
			continue
		}
		if res.err != nil {
			firstErr = fmt.Errorf("pipeline: window %d: %w", res.win.Index, res.err)
			cancel()
			continue
		}
		if err := asm.Place(res.win, res.planes); err != nil {
			firstErr = fmt.Errorf("pipeline: window %d: %w", res.win.Index, err)
			cancel()
			continue
		}
		placed++
		slogger().Debug("pipeline: window assembled",
			"engine", eng.Name(), "index", res.win.Index, "placed", placed, "total", it.Count())
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	outs, err := asm.Volumes()
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	slogger().Info("pipeline: run finished", "engine", eng.Name(), "windows", placed)
	return outs, nil
}
