// Package config provides configuration loading and management for seisattr.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"seisattr/pkg/analytic"
	"seisattr/pkg/backend"
	"seisattr/pkg/pipeline"
	"seisattr/pkg/spectral"
	"seisattr/pkg/tensor"
	"seisattr/pkg/texture"
	"seisattr/pkg/window"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Pipeline parameters
	Pipeline struct {
		// Backend selects the compute backend: "auto", "host" or "device"
		Backend string `yaml:"backend"`

		// Workers specifies how many windows are processed in parallel
		Workers int `yaml:"workers"`

		// WindowSize is the interior window extent per axis; zero means the
		// whole axis
		WindowSize [3]int `yaml:"windowSize"`

		// WindowHalo is the halo width per axis; zero derives it from the
		// engine's support
		WindowHalo [3]int `yaml:"windowHalo"`
	} `yaml:"pipeline"`

	// Structure-tensor parameters
	Tensor struct {
		// SmoothWindow is the tensor smoothing window per axis, odd entries
		SmoothWindow [3]int `yaml:"smoothWindow"`

		// Smoothing selects the smoothing kernel: "box" or "gaussian"
		Smoothing string `yaml:"smoothing"`

		// CurvatureWindow is the normal-field smoothing window for curvature
		CurvatureWindow [3]int `yaml:"curvatureWindow"`

		// Attributes lists the structure-tensor attributes to compute
		Attributes []string `yaml:"attributes"`
	} `yaml:"tensor"`

	// Complex-trace parameters
	Analytic struct {
		// SampleIntervalMs is the depth sample interval in milliseconds
		SampleIntervalMs float64 `yaml:"sampleIntervalMs"`

		// Attributes lists the complex-trace attributes to compute
		Attributes []string `yaml:"attributes"`
	} `yaml:"analytic"`

	// Spectral decomposition parameters
	Spectral struct {
		// WindowLength is the sliding transform length in samples
		WindowLength int `yaml:"windowLength"`

		// Hop is the center stride in samples along the depth axis
		Hop int `yaml:"hop"`

		// Taper selects the analysis taper: "hann", "hamming", "blackman"
		// or "none"
		Taper string `yaml:"taper"`

		// SampleIntervalMs is the depth sample interval in milliseconds
		SampleIntervalMs float64 `yaml:"sampleIntervalMs"`

		// Bands lists [low, high) frequency bands in Hz
		Bands [][2]float64 `yaml:"bands"`
	} `yaml:"spectral"`

	// Texture parameters
	Texture struct {
		// GrayLevels is the number of quantization levels
		GrayLevels int `yaml:"grayLevels"`

		// Window is the co-occurrence window per axis, odd entries
		Window [3]int `yaml:"window"`

		// Offsets lists co-occurrence offsets as [inline, crossline, depth]
		Offsets [][3]int `yaml:"offsets"`

		// Symmetric accumulates each sample pair in both directions
		Symmetric bool `yaml:"symmetric"`

		// RangeMode selects the quantization range: "global" or "window"
		RangeMode string `yaml:"rangeMode"`
	} `yaml:"texture"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default pipeline parameters
	cfg.Pipeline.Backend = backend.KindAuto.String()
	cfg.Pipeline.Workers = runtime.NumCPU() // Use all available cores by default
	cfg.Pipeline.WindowSize = [3]int{64, 64, 0}
	cfg.Pipeline.WindowHalo = [3]int{0, 0, 0}

	// Set default structure-tensor parameters
	td := tensor.DefaultConfig()
	cfg.Tensor.SmoothWindow = td.SmoothWindow
	cfg.Tensor.Smoothing = td.Smoothing
	cfg.Tensor.CurvatureWindow = td.CurvatureWindow
	cfg.Tensor.Attributes = td.Attributes

	// Set default complex-trace parameters
	ad := analytic.DefaultConfig()
	cfg.Analytic.SampleIntervalMs = ad.SampleIntervalMs
	cfg.Analytic.Attributes = ad.Attributes

	// Set default spectral parameters
	sd := spectral.DefaultConfig()
	cfg.Spectral.WindowLength = sd.WindowLength
	cfg.Spectral.Hop = sd.Hop
	cfg.Spectral.Taper = sd.Taper
	cfg.Spectral.SampleIntervalMs = sd.SampleIntervalMs
	for _, b := range sd.Bands {
		cfg.Spectral.Bands = append(cfg.Spectral.Bands, [2]float64{b.Low, b.High})
	}

	// Set default texture parameters
	xd := texture.DefaultConfig()
	cfg.Texture.GrayLevels = xd.GrayLevels
	cfg.Texture.Window = xd.Window
	for _, off := range xd.Offsets {
		cfg.Texture.Offsets = append(cfg.Texture.Offsets, [3]int{off.Inline, off.Crossline, off.Depth})
	}
	cfg.Texture.Symmetric = *xd.Symmetric
	cfg.Texture.RangeMode = xd.RangeMode

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate rejects values that are wrong regardless of the input volume.
// Limits that depend on the volume shape are checked by each engine's
// Prepare instead.
func (c *Config) Validate() error {
	if _, err := backend.ParseKind(c.Pipeline.Backend); err != nil {
		return err
	}
	if c.Pipeline.Workers < 0 {
		return fmt.Errorf("config: workers must be non-negative, got %d", c.Pipeline.Workers)
	}
	for axis := 0; axis < 3; axis++ {
		if c.Pipeline.WindowSize[axis] < 0 {
			return fmt.Errorf("config: window size entries must be non-negative, got %v", c.Pipeline.WindowSize)
		}
		if c.Pipeline.WindowHalo[axis] < 0 {
			return fmt.Errorf("config: window halo entries must be non-negative, got %v", c.Pipeline.WindowHalo)
		}
	}
	for _, b := range c.Spectral.Bands {
		if b[0] < 0 || b[1] <= b[0] {
			return fmt.Errorf("config: spectral band [%g, %g) is not an ordered non-negative pair", b[0], b[1])
		}
	}
	return nil
}

// PipelineParams converts the pipeline section to run parameters.
func (c *Config) PipelineParams() (pipeline.Params, error) {
	kind, err := backend.ParseKind(c.Pipeline.Backend)
	if err != nil {
		return pipeline.Params{}, err
	}
	return pipeline.Params{
		Backend: kind,
		Workers: c.Pipeline.Workers,
		Window: window.Config{
			Size: c.Pipeline.WindowSize,
			Halo: c.Pipeline.WindowHalo,
		},
	}, nil
}

// TensorConfig converts the tensor section to an engine configuration.
func (c *Config) TensorConfig() tensor.Config {
	return tensor.Config{
		SmoothWindow:    c.Tensor.SmoothWindow,
		Smoothing:       c.Tensor.Smoothing,
		CurvatureWindow: c.Tensor.CurvatureWindow,
		Attributes:      c.Tensor.Attributes,
	}
}

// AnalyticConfig converts the analytic section to an engine configuration.
func (c *Config) AnalyticConfig() analytic.Config {
	return analytic.Config{
		SampleIntervalMs: c.Analytic.SampleIntervalMs,
		Attributes:       c.Analytic.Attributes,
	}
}

// SpectralConfig converts the spectral section to an engine configuration.
func (c *Config) SpectralConfig() spectral.Config {
	bands := make([]spectral.Band, 0, len(c.Spectral.Bands))
	for _, b := range c.Spectral.Bands {
		bands = append(bands, spectral.Band{Low: b[0], High: b[1]})
	}
	return spectral.Config{
		WindowLength:     c.Spectral.WindowLength,
		Hop:              c.Spectral.Hop,
		Taper:            c.Spectral.Taper,
		SampleIntervalMs: c.Spectral.SampleIntervalMs,
		Bands:            bands,
	}
}

// TextureConfig converts the texture section to an engine configuration.
func (c *Config) TextureConfig() texture.Config {
	offsets := make([]texture.Offset, 0, len(c.Texture.Offsets))
	for _, off := range c.Texture.Offsets {
		offsets = append(offsets, texture.Offset{Inline: off[0], Crossline: off[1], Depth: off[2]})
	}
	sym := c.Texture.Symmetric
	return texture.Config{
		GrayLevels: c.Texture.GrayLevels,
		Window:     c.Texture.Window,
		Offsets:    offsets,
		Symmetric:  &sym,
		RangeMode:  c.Texture.RangeMode,
	}
}
