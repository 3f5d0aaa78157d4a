// Package portaudio provides a capture device on top of a blocking PortAudio
// input stream. Each poll reads whole host buffers that are already waiting
// and queues them until the analysis loop asks for them. Errors carry the
// native PaError code.
package portaudio

import (
	"errors"
	"fmt"
	"time"

	"github.com/ColonelBlimp/micspectrum/internal/audio"
	pa "github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotStarted indicates the device was polled before Start
	ErrNotStarted = errors.New("portaudio stream not started")
	// ErrNoInput indicates the selected device has no input channels
	ErrNoInput = errors.New("device has no input channels")
)

// Config holds stream configuration
type Config struct {
	DeviceIndex     int     // -1 for the host default input
	SampleRate      float64 // e.g., 44100
	FramesPerBuffer int     // host buffer size in frames
	BacklogBuffers  int     // queued host buffers before the oldest samples are dropped
	LowLatency      bool    // use the device's low input latency
}

// DefaultConfig returns sensible defaults for the spectrum display
func DefaultConfig() Config {
	return Config{
		DeviceIndex:     -1,
		SampleRate:      44100,
		FramesPerBuffer: 1024,
		BacklogBuffers:  4,
	}
}

// blockingStream is the subset of *pa.Stream used for blocking reads.
type blockingStream interface {
	Start() error
	Stop() error
	Close() error
	Read() error
	AvailableToRead() (int, error)
}

// Device captures mono S16 audio from a blocking PortAudio stream.
// It is polled from a single goroutine.
type Device struct {
	config  Config
	log     logrus.FieldLogger
	stream  blockingStream
	buf     []int16 // filled by stream.Read
	backlog *audio.Backlog

	overflows uint64
	started   bool
	closed    bool
	terminate func() error
}

// Open initializes PortAudio and opens the input stream without starting it.
// Failures match audio.ErrDeviceOpen.
func Open(cfg Config, log logrus.FieldLogger) (*Device, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.FramesPerBuffer < 1 {
		return nil, audio.NewDeviceError(audio.ErrDeviceOpen, audio.NoCode,
			fmt.Errorf("frames per buffer must be positive, got %d", cfg.FramesPerBuffer))
	}

	if err := pa.Initialize(); err != nil {
		return nil, audio.NewDeviceError(audio.ErrDeviceOpen, errorCode(err), fmt.Errorf("initialize portaudio: %w", err))
	}

	info, err := inputDevice(cfg.DeviceIndex)
	if err != nil {
		_ = pa.Terminate()
		return nil, audio.NewDeviceError(audio.ErrDeviceOpen, errorCode(err), err)
	}

	latency := info.DefaultHighInputLatency
	if cfg.LowLatency {
		latency = info.DefaultLowInputLatency
	}

	buf := make([]int16, cfg.FramesPerBuffer)
	params := pa.StreamParameters{
		Input: pa.StreamDeviceParameters{
			Device:   info,
			Channels: 1,
			Latency:  latency,
		},
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
	}
	stream, err := pa.OpenStream(params, buf)
	if err != nil {
		_ = pa.Terminate()
		return nil, audio.NewDeviceError(audio.ErrDeviceOpen, errorCode(err), fmt.Errorf("open stream on %q: %w", info.Name, err))
	}

	log.WithFields(logrus.Fields{
		"device":  info.Name,
		"latency": latency.Round(time.Microsecond),
	}).Debug("portaudio stream opened")

	return newDevice(cfg, log, stream, buf, pa.Terminate), nil
}

func newDevice(cfg Config, log logrus.FieldLogger, stream blockingStream, buf []int16, terminate func() error) *Device {
	if cfg.BacklogBuffers < 1 {
		cfg.BacklogBuffers = 1
	}
	return &Device{
		config:    cfg,
		log:       log,
		stream:    stream,
		buf:       buf,
		backlog:   audio.NewBacklog(len(buf) * cfg.BacklogBuffers),
		terminate: terminate,
	}
}

// Start begins capture.
func (d *Device) Start() error {
	if d.closed {
		return audio.NewDeviceError(audio.ErrDeviceStart, audio.NoCode, errors.New("stream closed"))
	}
	if d.started {
		return nil
	}
	if err := d.stream.Start(); err != nil {
		return audio.NewDeviceError(audio.ErrDeviceStart, errorCode(err), fmt.Errorf("start stream: %w", err))
	}
	d.started = true
	d.log.WithField("sample_rate", d.config.SampleRate).Info("portaudio capture started")
	return nil
}

// Available reads every complete host buffer that is already waiting and
// returns the number of queued samples. It never blocks on the stream.
func (d *Device) Available() (int, error) {
	if !d.started {
		return 0, audio.NewDeviceError(audio.ErrCapture, audio.NoCode, ErrNotStarted)
	}

	waiting, err := d.stream.AvailableToRead()
	if err != nil {
		return 0, audio.NewDeviceError(audio.ErrCapture, errorCode(err), fmt.Errorf("query stream: %w", err))
	}

	for ; waiting >= len(d.buf); waiting -= len(d.buf) {
		if err := d.stream.Read(); err != nil {
			// The buffer is still filled after an overflow; only history was lost.
			if !errors.Is(err, pa.InputOverflowed) {
				return 0, audio.NewDeviceError(audio.ErrCapture, errorCode(err), fmt.Errorf("read stream: %w", err))
			}
			d.overflows++
			d.log.WithField("overflows", d.overflows).Debug("portaudio input overflowed")
		}
		d.backlog.Push(d.buf)
	}

	return d.backlog.Len(), nil
}

// Read moves len(dst) queued samples into dst.
func (d *Device) Read(dst []int16) error {
	if n := d.backlog.Pop(dst); n != len(dst) {
		return audio.NewDeviceError(audio.ErrCapture, audio.NoCode,
			fmt.Errorf("short read: %d of %d samples", n, len(dst)))
	}
	return nil
}

// Overflows returns the number of host-side input overflows seen so far.
func (d *Device) Overflows() uint64 {
	return d.overflows
}

// Close stops and closes the stream and terminates PortAudio. Idempotent.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	var errs []error
	if d.started {
		if err := d.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop stream: %w", err))
		}
		d.started = false
	}
	if err := d.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stream: %w", err))
	}
	if d.terminate != nil {
		if err := d.terminate(); err != nil {
			errs = append(errs, fmt.Errorf("terminate portaudio: %w", err))
		}
	}
	d.backlog.Reset()

	return errors.Join(errs...)
}

// errorCode extracts the native PaError code, or audio.NoCode.
func errorCode(err error) int {
	var paErr pa.Error
	if errors.As(err, &paErr) {
		return int(paErr)
	}
	return audio.NoCode
}

func inputDevice(index int) (*pa.DeviceInfo, error) {
	if index < 0 {
		info, err := pa.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("default input device: %w", err)
		}
		return info, nil
	}

	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	if index >= len(devices) {
		return nil, fmt.Errorf("device index %d out of range (have %d devices)", index, len(devices))
	}
	if devices[index].MaxInputChannels < 1 {
		return nil, fmt.Errorf("%w: %s", ErrNoInput, devices[index].Name)
	}
	return devices[index], nil
}

// DeviceInfo describes one input-capable device.
type DeviceInfo struct {
	Index             int
	Name              string
	HostAPI           string
	InputChannels     int
	DefaultSampleRate float64
	LowLatency        time.Duration
	HighLatency       time.Duration
}

// ListDevices returns the input-capable devices, indexed as Open expects.
func ListDevices() ([]DeviceInfo, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	defer func() { _ = pa.Terminate() }()

	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	var out []DeviceInfo
	for i, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		info := DeviceInfo{
			Index:             i,
			Name:              dev.Name,
			InputChannels:     dev.MaxInputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			LowLatency:        dev.DefaultLowInputLatency,
			HighLatency:       dev.DefaultHighInputLatency,
		}
		if dev.HostApi != nil {
			info.HostAPI = dev.HostApi.Name
		}
		out = append(out, info)
	}
	return out, nil
}
