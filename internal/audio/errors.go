package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceOpen indicates no capture device could be opened
	ErrDeviceOpen = errors.New("capture device open failed")
	// ErrDeviceStart indicates the device reported an error when starting capture
	ErrDeviceStart = errors.New("capture device start failed")
	// ErrCapture indicates the device reported an error while polling or reading
	ErrCapture = errors.New("capture failed")
	// ErrEndOfStream indicates a finite device (file replay) has no more samples
	ErrEndOfStream = errors.New("end of sample stream")
	// ErrInvalidFrameSize indicates the frame size is too small for analysis
	ErrInvalidFrameSize = errors.New("frame size must be at least 2")
	// ErrDeviceRequired indicates a nil device was passed to NewSource
	ErrDeviceRequired = errors.New("capture device is required")
	// ErrSourceClosed indicates Pull was called after Close
	ErrSourceClosed = errors.New("audio source closed")
)

// NoCode is used when the backend has no native error code for a failure.
const NoCode = -1

// DeviceError carries the native backend code for a device failure.
// Kind is one of ErrDeviceOpen, ErrDeviceStart or ErrCapture.
type DeviceError struct {
	Kind error
	Code int
	Err  error
}

// NewDeviceError wraps err as a device failure of the given kind.
func NewDeviceError(kind error, code int, err error) *DeviceError {
	return &DeviceError{Kind: kind, Code: code, Err: err}
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v (code %d)", e.Kind, e.Code)
	}
	return fmt.Sprintf("%v (code %d): %v", e.Kind, e.Code, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *DeviceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// withKind wraps a backend failure as a DeviceError of the given kind,
// keeping the native code when the backend already supplied one.
// ErrEndOfStream passes through untouched.
func withKind(kind, err error) error {
	if err == nil || errors.Is(err, ErrEndOfStream) {
		return err
	}
	var de *DeviceError
	if errors.As(err, &de) {
		if de.Kind == kind {
			return de
		}
		return NewDeviceError(kind, de.Code, de.Err)
	}
	return NewDeviceError(kind, NoCode, err)
}
