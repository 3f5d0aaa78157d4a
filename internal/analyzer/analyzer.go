// Package analyzer runs the capture, transform and render loop.
package analyzer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ColonelBlimp/micspectrum/internal/audio"
	"github.com/ColonelBlimp/micspectrum/internal/dsp"
	"github.com/sirupsen/logrus"
)

var (
	// ErrSourceRequired indicates a nil source was passed to New
	ErrSourceRequired = errors.New("sample source is required")
	// ErrEngineRequired indicates a nil engine was passed to New
	ErrEngineRequired = errors.New("spectrum engine is required")
	// ErrRendererRequired indicates a nil renderer was passed to New
	ErrRendererRequired = errors.New("renderer is required")
)

// Source yields analysis windows.
type Source interface {
	Pull(ctx context.Context) ([]float64, error)
	Samples() []int16
	Overruns() uint64
}

// Renderer draws one frame.
type Renderer interface {
	Render(Frame) error
}

// Frame is everything produced by one loop iteration. Slices alias buffers
// owned by the source and engine and are only valid until the next iteration.
type Frame struct {
	Seq        uint64
	Spectrum   []float64 // one magnitude per bin
	Waveform   []float64 // normalized analysis window
	Samples    []int16   // raw analysis window
	Axis       dsp.Axis
	Peak       dsp.Peak
	PitchClass int // -1 when no peak was found
	Note       string
	Overruns   uint64
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.log = l
		}
	}
}

// WithMaxFrames stops Run after n frames. Zero means no limit.
func WithMaxFrames(n uint64) Option {
	return func(a *Analyzer) {
		a.maxFrames = n
	}
}

// Analyzer owns the single control loop. It is not safe for concurrent use.
type Analyzer struct {
	src       Source
	engine    *dsp.Engine
	out       Renderer
	log       logrus.FieldLogger
	maxFrames uint64
	seq       uint64
	overruns  uint64
}

// New creates an Analyzer.
func New(src Source, engine *dsp.Engine, out Renderer, opts ...Option) (*Analyzer, error) {
	if src == nil {
		return nil, ErrSourceRequired
	}
	if engine == nil {
		return nil, ErrEngineRequired
	}
	if out == nil {
		return nil, ErrRendererRequired
	}

	a := &Analyzer{
		src:    src,
		engine: engine,
		out:    out,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Step pulls one window, transforms it and locates the peak.
func (a *Analyzer) Step(ctx context.Context) (Frame, error) {
	window, err := a.src.Pull(ctx)
	if err != nil {
		return Frame{}, err
	}

	spectrum, err := a.engine.Transform(window)
	if err != nil {
		return Frame{}, fmt.Errorf("transform: %w", err)
	}

	a.seq++
	f := Frame{
		Seq:        a.seq,
		Spectrum:   spectrum,
		Waveform:   window,
		Samples:    a.src.Samples(),
		Axis:       a.engine.Axis(),
		Peak:       a.engine.Peak(),
		PitchClass: -1,
		Overruns:   a.src.Overruns(),
	}
	if f.Peak.Found && f.Peak.Hz > 0 {
		f.PitchClass = dsp.PitchClass(f.Peak.Hz)
		f.Note = dsp.Note(f.Peak.Hz)
	}

	if f.Overruns != a.overruns {
		a.overruns = f.Overruns
		a.log.WithFields(logrus.Fields{
			"frame":    f.Seq,
			"overruns": f.Overruns,
		}).Debug("frames dropped to catch up with capture")
	}
	return f, nil
}

// Run loops until ctx is cancelled, the source reaches the end of its stream
// or the frame limit is hit. Those three endings return nil.
func (a *Analyzer) Run(ctx context.Context) error {
	a.log.Debug("analysis loop started")
	defer func() {
		a.log.WithField("frames", a.seq).Debug("analysis loop stopped")
	}()

	for a.maxFrames == 0 || a.seq < a.maxFrames {
		f, err := a.Step(ctx)
		switch {
		case err == nil:
		case errors.Is(err, audio.ErrEndOfStream):
			a.log.Info("end of input stream")
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			return err
		}

		if err := a.out.Render(f); err != nil {
			return fmt.Errorf("render: %w", err)
		}
	}
	return nil
}

// Frames returns the number of frames produced so far.
func (a *Analyzer) Frames() uint64 {
	return a.seq
}
