package dsp

import "math"

// Coefficient is one (sin, cos) basis pair, or a running correlation sum.
type Coefficient struct {
	Sin float64
	Cos float64
}

// Add returns the component-wise sum.
func (c Coefficient) Add(o Coefficient) Coefficient {
	return Coefficient{Sin: c.Sin + o.Sin, Cos: c.Cos + o.Cos}
}

// Scale returns the pair multiplied by k.
func (c Coefficient) Scale(k float64) Coefficient {
	return Coefficient{Sin: c.Sin * k, Cos: c.Cos * k}
}

// Magnitude returns sqrt(sin² + cos²).
func (c Coefficient) Magnitude() float64 {
	return math.Hypot(c.Sin, c.Cos)
}

// Axis maps bin indices linearly onto [MinHz, MaxHz].
type Axis struct {
	MinHz      float64
	MaxHz      float64
	Resolution int
}

// Hz returns the frequency of bin r. The endpoints are exact:
// Hz(0) == MinHz and Hz(Resolution-1) == MaxHz.
func (a Axis) Hz(r int) float64 {
	last := a.Resolution - 1
	if r == 0 {
		return a.MinHz
	}
	if r == last {
		return a.MaxHz
	}
	t := float64(r) / float64(last)
	return (1-t)*a.MinHz + t*a.MaxHz
}

// BinWidth returns the spacing between neighbouring bins in Hz.
func (a Axis) BinWidth() float64 {
	return (a.MaxHz - a.MinHz) / float64(a.Resolution-1)
}

// Basis is the precomputed resolution x frameSize table of sin/cos pairs,
// stored row-major. It is immutable after construction.
type Basis struct {
	rows      int
	frameSize int
	coeffs    []Coefficient
}

// NewBasis evaluates sin/cos(2π·hz(r)·i/sampleRate) for every bin r and
// sample index i.
func NewBasis(sampleRate float64, frameSize int, axis Axis) *Basis {
	b := &Basis{
		rows:      axis.Resolution,
		frameSize: frameSize,
		coeffs:    make([]Coefficient, axis.Resolution*frameSize),
	}
	for r := 0; r < axis.Resolution; r++ {
		step := 2 * math.Pi * axis.Hz(r) / sampleRate
		row := b.coeffs[r*frameSize : (r+1)*frameSize]
		for i := range row {
			sin, cos := math.Sincos(step * float64(i))
			row[i] = Coefficient{Sin: sin, Cos: cos}
		}
	}
	return b
}

// Row returns the coefficients of bin r.
func (b *Basis) Row(r int) []Coefficient {
	return b.coeffs[r*b.frameSize : (r+1)*b.frameSize]
}

// Rows returns the number of bins.
func (b *Basis) Rows() int {
	return b.rows
}

// FrameSize returns the row length.
func (b *Basis) FrameSize() int {
	return b.frameSize
}
