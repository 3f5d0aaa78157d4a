package dsp

import (
	"errors"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrInvalidAGCDecay indicates AGC decay must be between 0 and 1
	ErrInvalidAGCDecay = errors.New("agc decay must be between 0.0 and 1.0")
	// ErrInvalidAGCAttack indicates AGC attack must be between 0 and 1
	ErrInvalidAGCAttack = errors.New("agc attack must be between 0.0 and 1.0")
)

// AGCConfig holds configuration for display gain control.
type AGCConfig struct {
	// Attack is how fast the tracked peak follows louder frames (from config: agc_attack)
	Attack float64
	// Decay is the per-frame peak decay factor (from config: agc_decay)
	Decay float64
}

// AGC normalizes successive spectra into [0, 1] for display by tracking a
// slowly decaying peak. It only affects presentation; peak picking always
// runs on the raw spectrum.
type AGC struct {
	config AGCConfig
	peak   float64
}

// NewAGC creates a gain control with the given configuration.
func NewAGC(cfg AGCConfig) (*AGC, error) {
	if cfg.Attack <= 0 || cfg.Attack > 1 {
		return nil, ErrInvalidAGCAttack
	}
	if cfg.Decay < 0 || cfg.Decay > 1 {
		return nil, ErrInvalidAGCDecay
	}
	return &AGC{config: cfg, peak: NoiseFloor}, nil
}

// Apply writes the normalized copy of src into dst (grown if too short) and
// returns it.
func (a *AGC) Apply(dst, src []float64) []float64 {
	if cap(dst) < len(src) {
		dst = make([]float64, len(src))
	}
	dst = dst[:len(src)]
	if len(src) == 0 {
		return dst
	}

	m := floats.Max(src)
	if m > a.peak {
		// Attack: fast response to louder frames
		a.peak += a.config.Attack * (m - a.peak)
	} else {
		a.peak *= a.config.Decay
	}
	// Never amplify silence into full scale bars
	if a.peak < NoiseFloor {
		a.peak = NoiseFloor
	}

	copy(dst, src)
	floats.Scale(1/a.peak, dst)
	for i, v := range dst {
		if v > 1 {
			dst[i] = 1
		}
	}
	return dst
}

// Peak returns the tracked peak (for debugging/monitoring).
func (a *AGC) Peak() float64 {
	return a.peak
}

// Reset forgets the tracked peak.
func (a *AGC) Reset() {
	a.peak = NoiseFloor
}
