// Package dsp implements the direct frequency transform, peak picking and
// pitch mapping used by the spectrum display.
package dsp

import (
	"errors"
	"fmt"

	"github.com/mjibson/go-dsp/window"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// NoiseFloor is the magnitude below which no peak is reported.
const NoiseFloor = 0.001

var (
	// ErrInvalidFrameSize indicates the window length is below 2
	ErrInvalidFrameSize = errors.New("frame size must be at least 2")
	// ErrInvalidResolution indicates fewer than 2 output bins
	ErrInvalidResolution = errors.New("resolution must be at least 2")
	// ErrInvalidSampleRate indicates sample rate must be positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	// ErrInvalidRange indicates the frequency range is empty or negative
	ErrInvalidRange = errors.New("frequency range must satisfy 0 <= min_hz <= max_hz")
	// ErrUnknownWindow indicates an unsupported analysis taper name
	ErrUnknownWindow = errors.New("unknown window function")
	// ErrWindowLength indicates the input window does not match the frame size
	ErrWindowLength = errors.New("window length does not match frame size")
)

// Window names accepted in EngineConfig.Window.
const (
	WindowRectangular = "rectangular"
	WindowHann        = "hann"
	WindowHamming     = "hamming"
	WindowBlackman    = "blackman"
)

var tapers = map[string]func(int) []float64{
	WindowHann:     window.Hann,
	WindowHamming:  window.Hamming,
	WindowBlackman: window.Blackman,
}

// EngineConfig holds the transform parameters.
// All values should come from the application config file.
type EngineConfig struct {
	// SampleRate in Hz (from config: sample_rate)
	SampleRate float64
	// FrameSize is the analysis window length (from config: frame_size)
	FrameSize int
	// Resolution is the number of output bins (from config: resolution)
	Resolution int
	// MinHz is the frequency of the first bin (from config: min_hz)
	MinHz float64
	// MaxHz is the frequency of the last bin (from config: max_hz)
	MaxHz float64
	// Window is the optional analysis taper (from config: window).
	// Empty or "rectangular" leaves samples untouched.
	Window string
}

// Validate checks the configuration contract.
func (c EngineConfig) Validate() error {
	if c.FrameSize < 2 {
		return ErrInvalidFrameSize
	}
	if c.Resolution < 2 {
		return ErrInvalidResolution
	}
	if c.SampleRate <= 0 {
		return ErrInvalidSampleRate
	}
	if c.MinHz < 0 || c.MaxHz < c.MinHz {
		return ErrInvalidRange
	}
	if c.Window != "" && c.Window != WindowRectangular {
		if _, ok := tapers[c.Window]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownWindow, c.Window)
		}
	}
	return nil
}

// Peak is the strongest bin of a spectrum. Found is false when every
// magnitude is below NoiseFloor; Bin is then -1.
type Peak struct {
	Bin       int
	Hz        float64
	Magnitude float64
	Found     bool
}

// Engine projects analysis windows onto a precomputed sin/cos basis.
// It is not safe for concurrent use.
type Engine struct {
	cfg      EngineConfig
	axis     Axis
	basis    *Basis
	taper    []float64
	tapered  []float64
	spectrum []float64
	valid    bool // spectrum holds a transform result
	log      logrus.FieldLogger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for basis rebuild messages.
func WithLogger(l logrus.FieldLogger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine validates cfg and builds the basis matrix.
func NewEngine(cfg EngineConfig, opts ...EngineOption) (*Engine, error) {
	e := &Engine{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.Configure(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

// Configure rebuilds the basis when cfg differs from the current
// configuration. Calling it with identical parameters is a no-op.
func (e *Engine) Configure(cfg EngineConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if e.basis != nil && cfg == e.cfg {
		return nil
	}

	axis := Axis{MinHz: cfg.MinHz, MaxHz: cfg.MaxHz, Resolution: cfg.Resolution}
	e.cfg = cfg
	e.axis = axis
	e.basis = NewBasis(cfg.SampleRate, cfg.FrameSize, axis)
	e.spectrum = make([]float64, cfg.Resolution)
	e.valid = false

	e.taper, e.tapered = nil, nil
	if fn, ok := tapers[cfg.Window]; ok {
		e.taper = fn(cfg.FrameSize)
		e.tapered = make([]float64, cfg.FrameSize)
	}

	e.log.WithFields(logrus.Fields{
		"sample_rate": cfg.SampleRate,
		"frame_size":  cfg.FrameSize,
		"resolution":  cfg.Resolution,
		"min_hz":      cfg.MinHz,
		"max_hz":      cfg.MaxHz,
		"window":      cfg.Window,
	}).Debug("spectrum basis built")

	return nil
}

// Transform computes the magnitude of every bin for the given window:
// |Σ sample[i]·(sin, cos)(2π·hz(r)·i/rate)| / frameSize.
// The returned slice is reused by the next call.
func (e *Engine) Transform(samples []float64) ([]float64, error) {
	if len(samples) != e.cfg.FrameSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrWindowLength, len(samples), e.cfg.FrameSize)
	}

	if e.taper != nil {
		for i, s := range samples {
			e.tapered[i] = s * e.taper[i]
		}
		samples = e.tapered
	}

	n := float64(e.cfg.FrameSize)
	for r := range e.spectrum {
		var acc Coefficient
		for i, c := range e.basis.Row(r) {
			acc = acc.Add(c.Scale(samples[i]))
		}
		e.spectrum[r] = acc.Magnitude() / n
	}
	e.valid = true

	return e.spectrum, nil
}

// Peak returns the strongest bin of the last transform.
func (e *Engine) Peak() Peak {
	if !e.valid {
		return Peak{Bin: -1}
	}
	return FindPeak(e.spectrum, e.axis)
}

// FindPeak locates the maximum of spectrum and maps it onto axis. The first
// index wins on ties.
func FindPeak(spectrum []float64, axis Axis) Peak {
	if len(spectrum) == 0 {
		return Peak{Bin: -1}
	}
	i := floats.MaxIdx(spectrum)
	if spectrum[i] < NoiseFloor {
		return Peak{Bin: -1}
	}
	return Peak{
		Bin:       i,
		Hz:        axis.Hz(i),
		Magnitude: spectrum[i],
		Found:     true,
	}
}

// BinHz returns the frequency of bin r.
func (e *Engine) BinHz(r int) float64 {
	return e.axis.Hz(r)
}

// BinWidth returns the spacing between bins in Hz.
func (e *Engine) BinWidth() float64 {
	return e.axis.BinWidth()
}

// Axis returns the frequency axis.
func (e *Engine) Axis() Axis {
	return e.axis
}

// Basis returns the precomputed basis matrix.
func (e *Engine) Basis() *Basis {
	return e.basis
}

// Config returns the current configuration.
func (e *Engine) Config() EngineConfig {
	return e.cfg
}

// Spectrum returns the last transform result, or nil before the first call.
func (e *Engine) Spectrum() []float64 {
	if !e.valid {
		return nil
	}
	return e.spectrum
}
