// Package wavfile replays a WAV file as a capture device. Samples are released
// at the file's sample rate against a wall clock so the analysis loop sees the
// same pacing as a live microphone.
package wavfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ColonelBlimp/micspectrum/internal/audio"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidFile indicates the input is not a PCM WAV file
	ErrInvalidFile = errors.New("not a valid PCM WAV file")
	// ErrEmptyFile indicates the file holds no samples
	ErrEmptyFile = errors.New("WAV file holds no samples")
	// ErrUnsupportedBitDepth indicates a bit depth other than 8, 16, 24 or 32
	ErrUnsupportedBitDepth = errors.New("unsupported WAV bit depth")
)

// Config holds replay configuration
type Config struct {
	Path     string
	Loop     bool // restart from the beginning instead of ending the stream
	Unpaced  bool // release the whole file at once
	Channel  int  // channel to replay from multichannel files
	MaxBurst int  // cap on samples released per poll, 0 for no cap
}

// Option configures a Device.
type Option func(*Device)

// WithClock replaces time.Now for pacing.
func WithClock(now func() time.Time) Option {
	return func(d *Device) {
		if now != nil {
			d.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(d *Device) {
		if log != nil {
			d.log = log
		}
	}
}

// Device replays decoded mono PCM16 samples.
type Device struct {
	config     Config
	log        logrus.FieldLogger
	now        func() time.Time
	samples    []int16
	sampleRate int

	started  bool
	closed   bool
	epoch    time.Time
	consumed int // total samples handed out, grows past len(samples) when looping
}

// Open decodes the file at cfg.Path. Failures match audio.ErrDeviceOpen.
func Open(cfg Config, opts ...Option) (*Device, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, audio.NewDeviceError(audio.ErrDeviceOpen, audio.NoCode, fmt.Errorf("open %s: %w", cfg.Path, err))
	}
	defer f.Close()

	samples, rate, err := Decode(f, cfg.Channel)
	if err != nil {
		return nil, audio.NewDeviceError(audio.ErrDeviceOpen, audio.NoCode, fmt.Errorf("decode %s: %w", cfg.Path, err))
	}

	d := New(samples, rate, cfg, opts...)
	d.log.WithFields(logrus.Fields{
		"file":        cfg.Path,
		"sample_rate": rate,
		"duration":    d.Duration().Round(time.Millisecond),
		"loop":        cfg.Loop,
	}).Info("WAV replay opened")
	return d, nil
}

// New wraps already decoded samples as a replay device.
func New(samples []int16, sampleRate int, cfg Config, opts ...Option) *Device {
	d := &Device{
		config:     cfg,
		log:        logrus.StandardLogger(),
		now:        time.Now,
		samples:    samples,
		sampleRate: sampleRate,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode reads a PCM WAV stream and returns one channel as 16-bit samples
// together with the sample rate.
func Decode(r io.ReadSeeker, channel int) ([]int16, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, ErrInvalidFile
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("read PCM data: %w", err)
	}
	return fromIntBuffer(buf, channel)
}

func fromIntBuffer(buf *goaudio.IntBuffer, channel int) ([]int16, int, error) {
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, 0, ErrEmptyFile
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	if channel < 0 || channel >= channels {
		return nil, 0, fmt.Errorf("channel %d out of range (file has %d)", channel, channels)
	}

	convert, err := converter(buf.SourceBitDepth)
	if err != nil {
		return nil, 0, err
	}

	frames := len(buf.Data) / channels
	if frames == 0 {
		return nil, 0, ErrEmptyFile
	}
	out := make([]int16, frames)
	for i := range out {
		out[i] = convert(buf.Data[i*channels+channel])
	}
	return out, buf.Format.SampleRate, nil
}

func converter(bitDepth int) (func(int) int16, error) {
	switch bitDepth {
	case 8:
		// 8-bit WAV is unsigned
		return func(v int) int16 { return int16((v - 128) << 8) }, nil
	case 16, 0:
		return func(v int) int16 { return int16(v) }, nil
	case 24:
		return func(v int) int16 { return int16(v >> 8) }, nil
	case 32:
		return func(v int) int16 { return int16(v >> 16) }, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}
}

// SampleRate returns the file's sample rate.
func (d *Device) SampleRate() int {
	return d.sampleRate
}

// Duration returns the playing time of one pass through the file.
func (d *Device) Duration() time.Duration {
	if d.sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(d.samples)) * time.Second / time.Duration(d.sampleRate)
}

// Start begins the replay clock.
func (d *Device) Start() error {
	if d.closed {
		return audio.NewDeviceError(audio.ErrDeviceStart, audio.NoCode, errors.New("replay closed"))
	}
	if len(d.samples) == 0 || d.sampleRate <= 0 {
		return audio.NewDeviceError(audio.ErrDeviceStart, audio.NoCode, ErrEmptyFile)
	}
	if !d.started {
		d.started = true
		d.epoch = d.now()
	}
	return nil
}

// Available returns the samples released by the replay clock and not yet read.
// A finished, non-looping replay returns audio.ErrEndOfStream.
func (d *Device) Available() (int, error) {
	if !d.started || d.closed {
		return 0, audio.NewDeviceError(audio.ErrCapture, audio.NoCode, errors.New("replay not running"))
	}

	released := d.released()
	if !d.config.Loop && released > len(d.samples) {
		released = len(d.samples)
	}

	n := released - d.consumed
	if n == 0 && !d.config.Loop && d.consumed >= len(d.samples) {
		return 0, audio.ErrEndOfStream
	}
	if n < 0 {
		n = 0
	}
	if d.config.MaxBurst > 0 && n > d.config.MaxBurst {
		n = d.config.MaxBurst
	}
	return n, nil
}

func (d *Device) released() int {
	if d.config.Unpaced {
		if d.config.Loop {
			return d.consumed + len(d.samples)
		}
		return len(d.samples)
	}
	elapsed := d.now().Sub(d.epoch)
	if elapsed < 0 {
		return 0
	}
	// whole seconds and the remainder are scaled separately so long
	// replays cannot overflow
	rate := time.Duration(d.sampleRate)
	return int(elapsed/time.Second)*d.sampleRate + int(elapsed%time.Second*rate/time.Second)
}

// Read copies the next len(dst) samples into dst, wrapping when looping.
func (d *Device) Read(dst []int16) error {
	if len(d.samples) == 0 {
		return audio.NewDeviceError(audio.ErrCapture, audio.NoCode, ErrEmptyFile)
	}
	if !d.config.Loop && d.consumed+len(dst) > len(d.samples) {
		return audio.NewDeviceError(audio.ErrCapture, audio.NoCode,
			fmt.Errorf("read past end: %d samples requested, %d left", len(dst), len(d.samples)-d.consumed))
	}

	for filled := 0; filled < len(dst); {
		pos := d.consumed % len(d.samples)
		n := copy(dst[filled:], d.samples[pos:])
		filled += n
		d.consumed += n
	}
	return nil
}

// Close stops the replay. Idempotent.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.started = false
	d.log.WithField("samples_replayed", d.consumed).Debug("WAV replay closed")
	return nil
}
