package audio

import (
	"errors"
	"fmt"
)

// scriptedDevice releases one scripted chunk per Available call. A zero entry
// simulates a stall. Every sample ever released is kept in emitted.
type scriptedDevice struct {
	script  []int
	pending []int16
	emitted []int16
	next    int16

	maxRead  int
	readCap  int // reject reads larger than this when > 0
	startErr error
	availErr error
	readErr  error

	started bool
	closes  int
}

func newScriptedDevice(script ...int) *scriptedDevice {
	return &scriptedDevice{script: script}
}

func (d *scriptedDevice) Start() error {
	if d.startErr != nil {
		return d.startErr
	}
	d.started = true
	return nil
}

func (d *scriptedDevice) Available() (int, error) {
	if d.availErr != nil {
		return 0, d.availErr
	}
	if len(d.script) > 0 {
		n := d.script[0]
		d.script = d.script[1:]
		d.emit(n)
	}
	return len(d.pending), nil
}

func (d *scriptedDevice) emit(n int) {
	for i := 0; i < n; i++ {
		d.pending = append(d.pending, d.next)
		d.emitted = append(d.emitted, d.next)
		d.next++
		if d.next > 30000 {
			d.next = -30000
		}
	}
}

func (d *scriptedDevice) Read(dst []int16) error {
	if d.readErr != nil {
		return d.readErr
	}
	if d.readCap > 0 && len(dst) > d.readCap {
		return fmt.Errorf("read of %d samples exceeds device buffer %d", len(dst), d.readCap)
	}
	if len(dst) > len(d.pending) {
		return errors.New("read past available samples")
	}
	copy(dst, d.pending)
	d.pending = d.pending[len(dst):]
	if len(dst) > d.maxRead {
		d.maxRead = len(dst)
	}
	return nil
}

func (d *scriptedDevice) Close() error {
	d.closes++
	return nil
}

// lastEmitted returns the newest n samples the device has released.
func (d *scriptedDevice) lastEmitted(n int) []int16 {
	if len(d.emitted) < n {
		return nil
	}
	return d.emitted[len(d.emitted)-n:]
}
