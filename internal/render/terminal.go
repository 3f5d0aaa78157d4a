// Package render draws analyzer frames as text.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/ColonelBlimp/micspectrum/internal/analyzer"
	"github.com/ColonelBlimp/micspectrum/internal/audio"
	"github.com/ColonelBlimp/micspectrum/internal/dsp"
	"golang.org/x/term"
	"gonum.org/v1/gonum/floats"
)

// View names
const (
	ViewSpectrum = "spectrum"
	ViewWaveform = "waveform"
	ViewPitch    = "pitch"
)

const (
	// DefaultWidth is used when the output is not a terminal
	DefaultWidth = 80
	// DefaultHeight matches the classic 80x20 plot
	DefaultHeight = 20
	// WaveformGain magnifies quiet input in the waveform view
	WaveformGain = 10.0

	clearScreen = "\033[H\033[2J"
	noPeak      = "--"
)

var (
	// ErrUnknownView indicates an unsupported view name
	ErrUnknownView = errors.New("unknown view")
	// ErrInvalidSize indicates a non-positive plot size
	ErrInvalidSize = errors.New("plot width and height must be positive")
)

// Options configures a Terminal.
type Options struct {
	View   string
	Width  int // 0 detects the terminal width
	Height int
	AGC    dsp.AGCConfig
	Clear  bool // home the cursor and clear before each frame
}

// Terminal renders frames to a writer, one full screen per frame.
type Terminal struct {
	out    io.Writer
	view   string
	width  int
	height int
	clear  bool
	agc    *dsp.AGC

	buf     bytes.Buffer
	columns []float64
	scaled  []float64
}

// NewTerminal creates a renderer writing to out.
func NewTerminal(out io.Writer, opts Options) (*Terminal, error) {
	switch opts.View {
	case ViewSpectrum, ViewWaveform, ViewPitch:
	case "":
		opts.View = ViewSpectrum
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownView, opts.View)
	}

	if opts.Width == 0 {
		opts.Width = detectWidth(out)
	}
	if opts.Height == 0 {
		opts.Height = DefaultHeight
	}
	if opts.Width < 1 || opts.Height < 1 {
		return nil, ErrInvalidSize
	}

	agc, err := dsp.NewAGC(opts.AGC)
	if err != nil {
		return nil, err
	}

	return &Terminal{
		out:    out,
		view:   opts.View,
		width:  opts.Width,
		height: opts.Height,
		clear:  opts.Clear,
		agc:    agc,
	}, nil
}

// IsTerminal reports whether out is an interactive terminal.
func IsTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// detectWidth returns the width of out when it is a terminal.
func detectWidth(out io.Writer) int {
	if IsTerminal(out) {
		if w, _, err := term.GetSize(int(out.(*os.File).Fd())); err == nil && w > 0 {
			return w
		}
	}
	return DefaultWidth
}

// Width returns the plot width in columns.
func (t *Terminal) Width() int {
	return t.width
}

// Render draws f with the configured view.
func (t *Terminal) Render(f analyzer.Frame) error {
	t.buf.Reset()
	if t.clear {
		t.buf.WriteString(clearScreen)
	}

	switch t.view {
	case ViewWaveform:
		t.waveform(f.Samples)
	case ViewPitch:
		t.pitch(f)
	default:
		t.spectrum(f)
	}

	_, err := t.out.Write(t.buf.Bytes())
	return err
}

// spectrum draws gain-controlled vertical bars, one column per group of bins.
func (t *Terminal) spectrum(f analyzer.Frame) {
	t.columns = Columns(t.columns, f.Spectrum, t.width)
	t.scaled = t.agc.Apply(t.scaled, t.columns)

	for y := 0; y < t.height; y++ {
		for _, v := range t.scaled {
			if barHeight(v, t.height) >= t.height-y {
				t.buf.WriteByte('#')
			} else {
				t.buf.WriteByte(' ')
			}
		}
		t.buf.WriteByte('\n')
	}

	t.axisLine(f.Axis, len(t.scaled))
	t.buf.WriteString(peakLine(f))
	t.buf.WriteByte('\n')
}

// barHeight converts a [0, 1] level into whole rows.
func barHeight(v float64, height int) int {
	return int(math.Round(v * float64(height)))
}

func (t *Terminal) axisLine(axis dsp.Axis, cols int) {
	left := fmt.Sprintf("%.0f Hz", axis.MinHz)
	right := fmt.Sprintf("%.0f Hz", axis.MaxHz)
	gap := cols - len(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	t.buf.WriteString(left)
	t.buf.WriteString(strings.Repeat(" ", gap))
	t.buf.WriteString(right)
	t.buf.WriteByte('\n')
}

// waveform plots the raw window: dots fill from the sample level down to the
// bottom row, with WaveformGain applied around mid scale.
func (t *Terminal) waveform(samples []int16) {
	n := len(samples)
	for y := 0; y < t.height; y++ {
		for x := 0; x < t.width; x++ {
			if n == 0 {
				t.buf.WriteByte(' ')
				continue
			}
			if float64(t.height-1)-waveLevel(samples[x*n/t.width], t.height) < float64(y) {
				t.buf.WriteByte('.')
			} else {
				t.buf.WriteByte(' ')
			}
		}
		t.buf.WriteByte('\n')
	}
}

// waveLevel maps a sample onto [0, height] rows with WaveformGain.
func waveLevel(s int16, height int) float64 {
	v := float64(s) / (float64(audio.MaxSampleMagnitude-1) / WaveformGain)
	return (v*0.5 + 0.5) * float64(height)
}

func (t *Terminal) pitch(f analyzer.Frame) {
	t.buf.WriteString(peakLine(f))
	t.buf.WriteByte('\n')
}

// peakLine formats the strongest bin and its note, or "--" without a peak.
func peakLine(f analyzer.Frame) string {
	if !f.Peak.Found || f.PitchClass < 0 {
		return noPeak
	}
	return fmt.Sprintf("%8.1f Hz  %-4s (magnitude %.4f)", f.Peak.Hz, f.Note, f.Peak.Magnitude)
}

// Columns reduces spectrum to at most width values, each the maximum of its
// group of bins, and writes them into dst (grown if too short).
func Columns(dst, spectrum []float64, width int) []float64 {
	cols := min(len(spectrum), width)
	if cap(dst) < cols {
		dst = make([]float64, cols)
	}
	dst = dst[:cols]

	for c := range dst {
		lo := c * len(spectrum) / cols
		hi := (c + 1) * len(spectrum) / cols
		dst[c] = floats.Max(spectrum[lo:hi])
	}
	return dst
}
