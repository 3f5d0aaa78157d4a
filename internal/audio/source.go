// Package audio turns a poll-based capture device into a stream of fixed
// length analysis windows.
package audio

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultPollInterval is how long Pull sleeps when the device has no samples.
const DefaultPollInterval = 10 * time.Millisecond

// Option configures a Source.
type Option func(*Source)

// WithPollInterval overrides the empty-poll sleep.
func WithPollInterval(d time.Duration) Option {
	return func(s *Source) {
		if d >= 0 {
			s.pollInterval = d
		}
	}
}

// WithLogger sets the logger used for overrun and lifecycle messages.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Source) {
		if l != nil {
			s.log = l
		}
	}
}

// Source pulls samples from a Device into a Ring and hands out one analysis
// window per call. It is not safe for concurrent use.
type Source struct {
	dev          Device
	ring         *Ring
	chunk        []int16 // read scratch, one device buffer long
	pollInterval time.Duration
	log          logrus.FieldLogger
	closed       bool
}

// NewSource starts capture on dev and returns a source producing windows of
// frameSize samples. The device is closed again if it fails to start.
func NewSource(dev Device, frameSize int, opts ...Option) (*Source, error) {
	if dev == nil {
		return nil, ErrDeviceRequired
	}
	ring, err := NewRing(frameSize)
	if err != nil {
		return nil, err
	}

	s := &Source{
		dev:          dev,
		ring:         ring,
		chunk:        make([]int16, frameSize),
		pollInterval: DefaultPollInterval,
		log:          logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := dev.Start(); err != nil {
		_ = dev.Close()
		return nil, withKind(ErrDeviceStart, err)
	}
	s.log.WithField("frame_size", frameSize).Debug("capture started")

	return s, nil
}

// Pull blocks until frameSize fresh samples have arrived and returns the most
// recent frameSize samples normalized to [-1.0, 1.0). The returned slice is
// reused by the next call.
//
// The wait for samples has no timeout; only ctx cancellation ends it early.
func (s *Source) Pull(ctx context.Context) ([]float64, error) {
	if s.closed {
		return nil, ErrSourceClosed
	}

	if s.ring.Compact() {
		s.log.WithFields(logrus.Fields{
			"frame_size": s.ring.FrameSize(),
			"overruns":   s.ring.Overruns(),
		}).Warn("capture backlog overrun, buffer reset")
	}

	start := s.ring.Index()
	for s.ring.Index()-start < s.ring.FrameSize() {
		avail, err := s.dev.Available()
		if err != nil {
			return nil, withKind(ErrCapture, err)
		}
		if avail <= 0 {
			if err := s.wait(ctx); err != nil {
				return nil, err
			}
			continue
		}
		if err := s.drain(avail); err != nil {
			return nil, err
		}
	}

	return s.ring.Window(), nil
}

// drain reads avail samples in chunks no larger than the device buffer.
func (s *Source) drain(avail int) error {
	for avail > 0 {
		n := min(avail, len(s.chunk))
		buf := s.chunk[:n]
		if err := s.dev.Read(buf); err != nil {
			return withKind(ErrCapture, err)
		}
		s.ring.Write(buf)
		avail -= n
	}
	return nil
}

func (s *Source) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.pollInterval == 0 {
		return nil
	}
	t := time.NewTimer(s.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Samples returns the raw int16 samples of the last window (waveform view).
func (s *Source) Samples() []int16 {
	return s.ring.Samples()
}

// FrameSize returns the analysis window length.
func (s *Source) FrameSize() int {
	return s.ring.FrameSize()
}

// Overruns returns the number of discarded backlogs.
func (s *Source) Overruns() uint64 {
	return s.ring.Overruns()
}

// Close stops capture and releases the device. Safe to call more than once
// and on a nil Source.
func (s *Source) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	s.ring.Reset()
	if err := s.dev.Close(); err != nil {
		return withKind(ErrCapture, err)
	}
	return nil
}
