// Package device selects and opens a capture backend.
package device

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ColonelBlimp/micspectrum/internal/audio"
	"github.com/ColonelBlimp/micspectrum/internal/device/miniaudio"
	"github.com/ColonelBlimp/micspectrum/internal/device/portaudio"
	"github.com/ColonelBlimp/micspectrum/internal/device/wavfile"
	"github.com/sirupsen/logrus"
)

// Backend names
const (
	BackendMiniaudio = "miniaudio"
	BackendPortaudio = "portaudio"
	BackendWAV       = "wav"
)

// Backends lists the supported backend names.
var Backends = []string{BackendMiniaudio, BackendPortaudio, BackendWAV}

var (
	// ErrUnknownBackend indicates an unsupported backend name
	ErrUnknownBackend = errors.New("unknown capture backend")
	// ErrNoFile indicates the wav backend was selected without a file
	ErrNoFile = errors.New("wav backend requires a file")
	// ErrSampleRateMismatch indicates a WAV file recorded at another rate
	ErrSampleRateMismatch = errors.New("WAV sample rate does not match configured sample rate")
)

// Config selects a backend and its parameters.
type Config struct {
	Backend      string
	DeviceIndex  int
	SampleRate   int
	FrameSize    int
	BufferFrames int // queued device buffers before the oldest samples drop
	WAVFile      string
	WAVLoop      bool
}

// Open opens, but does not start, a capture device for cfg.Backend.
// Failures match audio.ErrDeviceOpen.
func Open(cfg Config, log logrus.FieldLogger) (audio.Device, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("backend", cfg.Backend)

	switch strings.ToLower(cfg.Backend) {
	case BackendMiniaudio, "":
		dev, err := miniaudio.Open(miniaudio.Config{
			DeviceIndex:   cfg.DeviceIndex,
			SampleRate:    uint32(cfg.SampleRate),
			PeriodFrames:  uint32(cfg.FrameSize),
			BacklogFrames: cfg.BufferFrames,
		}, log)
		if err != nil {
			return nil, err
		}
		return dev, nil

	case BackendPortaudio:
		dev, err := portaudio.Open(portaudio.Config{
			DeviceIndex:     cfg.DeviceIndex,
			SampleRate:      float64(cfg.SampleRate),
			FramesPerBuffer: cfg.FrameSize,
			BacklogBuffers:  cfg.BufferFrames,
		}, log)
		if err != nil {
			return nil, err
		}
		return dev, nil

	case BackendWAV:
		if cfg.WAVFile == "" {
			return nil, audio.NewDeviceError(audio.ErrDeviceOpen, audio.NoCode, ErrNoFile)
		}
		dev, err := wavfile.Open(wavfile.Config{
			Path:     cfg.WAVFile,
			Loop:     cfg.WAVLoop,
			MaxBurst: cfg.FrameSize * max(cfg.BufferFrames, 1),
		}, wavfile.WithLogger(log))
		if err != nil {
			return nil, err
		}
		if cfg.SampleRate > 0 && dev.SampleRate() != cfg.SampleRate {
			_ = dev.Close()
			return nil, audio.NewDeviceError(audio.ErrDeviceOpen, audio.NoCode,
				fmt.Errorf("%w: file %d Hz, configured %d Hz", ErrSampleRateMismatch, dev.SampleRate(), cfg.SampleRate))
		}
		return dev, nil

	default:
		return nil, audio.NewDeviceError(audio.ErrDeviceOpen, audio.NoCode,
			fmt.Errorf("%w: %q (want one of %s)", ErrUnknownBackend, cfg.Backend, strings.Join(Backends, ", ")))
	}
}

// Info describes a capture device in a backend-neutral way.
type Info struct {
	Index   int
	Name    string
	Details string
}

// List returns the capture devices of the named backend.
func List(backend string) ([]Info, error) {
	switch strings.ToLower(backend) {
	case BackendMiniaudio, "":
		devices, err := miniaudio.ListDevices()
		if err != nil {
			return nil, err
		}
		out := make([]Info, len(devices))
		for i, d := range devices {
			out[i] = Info{Index: d.Index, Name: d.Name}
		}
		return out, nil

	case BackendPortaudio:
		devices, err := portaudio.ListDevices()
		if err != nil {
			return nil, err
		}
		out := make([]Info, len(devices))
		for i, d := range devices {
			out[i] = Info{
				Index: d.Index,
				Name:  d.Name,
				Details: fmt.Sprintf("%s, %d ch, %.0f Hz, latency %v-%v",
					d.HostAPI, d.InputChannels, d.DefaultSampleRate,
					d.LowLatency.Round(time.Microsecond), d.HighLatency.Round(time.Microsecond)),
			}
		}
		return out, nil

	case BackendWAV:
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
