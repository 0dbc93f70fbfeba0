package camera

import (
	"errors"
	"fmt"
)

// ErrNoCamera is returned when no camera matches the requested facing.
var ErrNoCamera = errors.New("no camera with requested facing")

// ErrClosed is returned by operations on a closed device or session.
var ErrClosed = errors.New("camera closed")

// ErrorCode is a device error reported through DeviceCallbacks.OnError.
type ErrorCode int

// Device error codes.
const (
	ErrorCameraInUse ErrorCode = iota + 1
	ErrorMaxCamerasInUse
	ErrorCameraDisabled
	ErrorCameraDevice
	ErrorCameraService
)

// Reason returns the stable reason string used in logs and metrics.
func (c ErrorCode) Reason() string {
	switch c {
	case ErrorCameraDevice:
		return "fatal-device"
	case ErrorCameraDisabled:
		return "disabled-by-policy"
	case ErrorCameraInUse:
		return "in-use"
	case ErrorCameraService:
		return "fatal-service"
	case ErrorMaxCamerasInUse:
		return "max-cameras-exceeded"
	default:
		return "unknown"
	}
}

func (c ErrorCode) String() string {
	switch c {
	case ErrorCameraDevice:
		return "Fatal (device)"
	case ErrorCameraDisabled:
		return "Device policy"
	case ErrorCameraInUse:
		return "Camera in use"
	case ErrorCameraService:
		return "Fatal (service)"
	case ErrorMaxCamerasInUse:
		return "Maximum cameras in use"
	default:
		return "Unknown"
	}
}

// DeviceAcquisitionError is returned when a camera could not be opened.
type DeviceAcquisitionError struct {
	CameraID string
	Code     ErrorCode
}

func (e *DeviceAcquisitionError) Error() string {
	return fmt.Sprintf("camera %s error: (%d) %s", e.CameraID, e.Code, e.Code)
}

// Reason returns the failure reason, see ErrorCode.Reason.
func (e *DeviceAcquisitionError) Reason() string {
	return e.Code.Reason()
}

// SessionConfigurationError is returned when a capture session could not be
// configured with the requested outputs.
type SessionConfigurationError struct {
	CameraID string
	Err      error
}

func (e *SessionConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("camera %s session configuration failed: %v", e.CameraID, e.Err)
	}
	return fmt.Sprintf("camera %s session configuration failed", e.CameraID)
}

func (e *SessionConfigurationError) Unwrap() error {
	return e.Err
}
