package audio

import (
	"errors"
	"strings"
)

// ErrPermissionDenied is returned when the OS or the user refuses
// microphone access. Platform backends normalize their own refusal
// errors to this sentinel so callers can classify with errors.Is.
var ErrPermissionDenied = errors.New("microphone access denied")

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
}

// permissionError wraps a backend error whose text indicates an access
// refusal so it matches ErrPermissionDenied under errors.Is.
func permissionError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range []string{"access denied", "permission", "not authorized", "not allowed"} {
		if strings.Contains(msg, kw) {
			return errors.Join(ErrPermissionDenied, err)
		}
	}
	return err
}
