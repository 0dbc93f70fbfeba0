// Package camera models the camera device/session lifecycle the capture
// manager drives.
//
// A Backend enumerates cameras and opens devices. Devices create sessions,
// and sessions run capture requests that deliver frames into gpu.Window
// targets. All backend callbacks are delivered on a Looper goroutine;
// OpenDevice and CreateSession wrap the callback protocol into blocking calls.
package camera

import (
	"fmt"
	"slices"
)

// Facing is the lens direction.
type Facing int

// Lens directions.
const (
	FacingBack Facing = iota
	FacingFront
)

func (f Facing) String() string {
	if f == FacingFront {
		return "front"
	}
	return "back"
}

// Size is a frame size in pixels.
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Long returns the longer edge.
func (s Size) Long() int {
	return max(s.Width, s.Height)
}

// Short returns the shorter edge.
func (s Size) Short() int {
	return min(s.Width, s.Height)
}

// Area returns Width*Height.
func (s Size) Area() int {
	return s.Width * s.Height
}

// DynamicRange is a dynamic range profile an output can be configured with.
type DynamicRange int

// Dynamic range profiles.
const (
	DynamicRangeStandard DynamicRange = iota
	DynamicRangeHLG10
	DynamicRangeHDR10
	DynamicRangeHDR10Plus
)

func (d DynamicRange) String() string {
	switch d {
	case DynamicRangeHLG10:
		return "HLG10"
	case DynamicRangeHDR10:
		return "HDR10"
	case DynamicRangeHDR10Plus:
		return "HDR10_PLUS"
	default:
		return "STANDARD"
	}
}

// Capabilities are the optional request controls a camera supports.
type Capabilities struct {
	// DynamicRangeProfiles is empty for cameras limited to standard range
	// on the legacy session path.
	DynamicRangeProfiles []DynamicRange
	// ZoomRatioRange is [min, max]; zero means zoom ratio is unsupported.
	ZoomRatioRange [2]float32
	// PreviewStabilization reports the preview stabilization mode.
	PreviewStabilization bool
	// MaxResolutionSensorMode reports the maximum-resolution pixel mode.
	MaxResolutionSensorMode bool
}

// SupportsDynamicRange reports whether d can be configured on an output.
func (c Capabilities) SupportsDynamicRange(d DynamicRange) bool {
	if d == DynamicRangeStandard {
		return true
	}
	return slices.Contains(c.DynamicRangeProfiles, d)
}

// Characteristics describe one camera.
type Characteristics struct {
	ID                string
	Facing            Facing
	SensorOrientation int
	// ActiveArray is the sensor's active pixel array; its aspect ratio is
	// the native aspect of the sensor.
	ActiveArray Size
	OutputSizes []Size
	// Profiles overrides the default recorder parameters per quality.
	Profiles map[Quality]RecorderParams
	Capabilities
}

// Rotation is a display rotation constant as reported by the platform.
type Rotation int

// Display rotations.
const (
	Rotation0 Rotation = iota
	Rotation90
	Rotation180
	Rotation270
)

// Degrees maps a rotation to degrees. Unknown values map to 0.
func (r Rotation) Degrees() int {
	switch r {
	case Rotation90:
		return 90
	case Rotation180:
		return 180
	case Rotation270:
		return 270
	default:
		return 0
	}
}

// RotationFromDegrees maps 0, 90, 180 or 270 degrees to a rotation.
func RotationFromDegrees(deg int) (Rotation, error) {
	switch deg {
	case 0:
		return Rotation0, nil
	case 90:
		return Rotation90, nil
	case 180:
		return Rotation180, nil
	case 270:
		return Rotation270, nil
	}
	return Rotation0, fmt.Errorf("invalid rotation %d", deg)
}

// OrientationTag is the value written to the orientation field of capture
// requests and photo metadata for an orientation in degrees.
func OrientationTag(degrees int) int {
	switch degrees {
	case 90, 180, 270:
		return degrees
	default:
		return 0
	}
}
