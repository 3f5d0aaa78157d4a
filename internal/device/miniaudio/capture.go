// Package miniaudio provides a capture device backed by miniaudio (malgo).
// Frames arrive on the audio thread and are queued in an audio.Backlog until
// the analysis loop polls for them. malgo translates native result codes into
// plain errors, so device errors from this backend carry audio.NoCode.
package miniaudio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ColonelBlimp/micspectrum/internal/audio"
	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotStarted indicates the device was polled before Start
	ErrNotStarted = errors.New("miniaudio device not started")
	// ErrStopped indicates the backend stopped the device on its own
	ErrStopped = errors.New("miniaudio device stopped unexpectedly")
)

// Config holds audio capture configuration
type Config struct {
	DeviceIndex   int    // -1 for default device
	SampleRate    uint32 // e.g., 44100
	PeriodFrames  uint32 // frames per callback, the analysis frame size
	BacklogFrames int    // queued periods before the oldest samples are dropped
}

// DefaultConfig returns sensible defaults for the spectrum display
func DefaultConfig() Config {
	return Config{
		DeviceIndex:   -1,
		SampleRate:    44100,
		PeriodFrames:  1024,
		BacklogFrames: 4,
	}
}

// Device captures mono S16 audio through miniaudio.
type Device struct {
	config  Config
	log     logrus.FieldLogger
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	backlog *audio.Backlog
	scratch []int16 // decode buffer, only touched by onData

	running atomic.Bool
	stopped atomic.Bool // set by the stop callback while running
	closed  atomic.Bool
}

// Open initializes the miniaudio context and the capture device without
// starting it. Failures match audio.ErrDeviceOpen.
func Open(cfg Config, log logrus.FieldLogger) (*Device, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.BacklogFrames < 1 {
		cfg.BacklogFrames = 1
	}

	d := &Device{
		config:  cfg,
		log:     log,
		backlog: audio.NewBacklog(int(cfg.PeriodFrames) * cfg.BacklogFrames),
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.WithField("backend", "miniaudio").Debug(message)
	})
	if err != nil {
		return nil, audio.NewDeviceError(audio.ErrDeviceOpen, audio.NoCode, fmt.Errorf("init audio context: %w", err))
	}
	d.ctx = ctx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.SampleRate = cfg.SampleRate
	deviceConfig.PeriodSizeInFrames = cfg.PeriodFrames
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1

	// Select specific device if requested
	if cfg.DeviceIndex >= 0 {
		infos, err := ctx.Devices(malgo.Capture)
		if err != nil {
			d.freeContext()
			return nil, audio.NewDeviceError(audio.ErrDeviceOpen, audio.NoCode, fmt.Errorf("enumerate devices: %w", err))
		}
		if cfg.DeviceIndex >= len(infos) {
			d.freeContext()
			return nil, audio.NewDeviceError(audio.ErrDeviceOpen, audio.NoCode,
				fmt.Errorf("device index %d out of range (have %d devices)", cfg.DeviceIndex, len(infos)))
		}
		deviceConfig.Capture.DeviceID = infos[cfg.DeviceIndex].ID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: d.onData,
		Stop: d.onStop,
	}
	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		d.freeContext()
		return nil, audio.NewDeviceError(audio.ErrDeviceOpen, audio.NoCode, fmt.Errorf("init device: %w", err))
	}
	d.device = device

	return d, nil
}

// onData runs on the audio thread; it only converts and queues. Callbacks
// are serialized, and Push copies, so the scratch buffer is reused.
func (d *Device) onData(_, input []byte, _ uint32) {
	if len(input) < 2 {
		return
	}
	d.scratch = bytesToInt16(d.scratch, input)
	d.backlog.Push(d.scratch)
}

// onStop may run on the audio thread or inside device.Stop; it must not lock.
func (d *Device) onStop() {
	if d.running.Load() {
		d.stopped.Store(true)
	}
}

// Start begins capture.
func (d *Device) Start() error {
	if d.closed.Load() || d.device == nil {
		return audio.NewDeviceError(audio.ErrDeviceStart, audio.NoCode, ErrStopped)
	}
	if d.running.Load() {
		return nil
	}
	if err := d.device.Start(); err != nil {
		return audio.NewDeviceError(audio.ErrDeviceStart, audio.NoCode, fmt.Errorf("start device: %w", err))
	}
	d.stopped.Store(false)
	d.running.Store(true)
	d.log.WithField("sample_rate", d.config.SampleRate).Info("miniaudio capture started")
	return nil
}

// Available returns the number of queued samples.
func (d *Device) Available() (int, error) {
	if !d.running.Load() {
		return 0, audio.NewDeviceError(audio.ErrCapture, audio.NoCode, ErrNotStarted)
	}
	if d.stopped.Load() {
		return 0, audio.NewDeviceError(audio.ErrCapture, audio.NoCode, ErrStopped)
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

// Dropped returns the number of samples lost because the backlog was full.
func (d *Device) Dropped() uint64 {
	return d.backlog.Dropped()
}

// Close stops capture and releases all miniaudio resources. Idempotent.
func (d *Device) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	wasRunning := d.running.Swap(false)
	if d.device != nil {
		if wasRunning {
			_ = d.device.Stop()
		}
		d.device.Uninit()
		d.device = nil
	}
	if dropped := d.backlog.Dropped(); dropped > 0 {
		d.log.WithField("dropped_samples", dropped).Debug("miniaudio backlog overflowed during capture")
	}
	d.backlog.Reset()

	return d.freeContext()
}

func (d *Device) freeContext() error {
	if d.ctx == nil {
		return nil
	}
	err := d.ctx.Uninit()
	d.ctx.Free()
	d.ctx = nil
	if err != nil {
		return fmt.Errorf("uninit context: %w", err)
	}
	return nil
}

// DeviceInfo describes one capture device.
type DeviceInfo struct {
	Index int
	Name  string
}

// ListDevices returns available capture devices
func ListDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	out := make([]DeviceInfo, len(infos))
	for i, info := range infos {
		out[i] = DeviceInfo{
			Index: i,
			Name:  info.Name(),
		}
	}
	return out, nil
}

// bytesToInt16 converts little-endian S16 bytes into dst, growing it only
// when it is too short.
func bytesToInt16(dst []int16, data []byte) []int16 {
	n := len(data) / 2
	if cap(dst) < n {
		dst = make([]int16, n)
	}
	samples := dst[:n]
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
