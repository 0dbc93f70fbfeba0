package camera

import (
	"fmt"

	"github.com/smazurov/shadercam/internal/gpu"
)

// DefaultZoomRatio is the zoom ratio requested when the camera supports it.
const DefaultZoomRatio float32 = 0.6

// Template is the capture request template.
type Template int

// Request templates.
const (
	TemplatePreview Template = iota
	TemplateRecord
	TemplateVideoSnapshot
)

func (t Template) String() string {
	switch t {
	case TemplateRecord:
		return "record"
	case TemplateVideoSnapshot:
		return "video-snapshot"
	default:
		return "preview"
	}
}

// CaptureRequest is a repeating capture request.
type CaptureRequest struct {
	Template Template
	Targets  []gpu.Window
	// FPSRange is the auto-exposure target frame rate range.
	FPSRange [2]int
	// ZoomRatio is zero when zoom is not requested.
	ZoomRatio     float32
	Stabilization bool
	// OrientationTag is the orientation in degrees stamped on captures.
	OrientationTag int
	MaxResolution  bool
}

func (r CaptureRequest) String() string {
	return fmt.Sprintf("%s targets=%d fps=[%d,%d] zoom=%.2f stab=%t orientation=%d maxres=%t",
		r.Template, len(r.Targets), r.FPSRange[0], r.FPSRange[1], r.ZoomRatio,
		r.Stabilization, r.OrientationTag, r.MaxResolution)
}

// Negotiated is the outcome of matching a camera's capabilities against the
// requested dynamic range. It is computed once per session build.
type Negotiated struct {
	Kind          SessionKind
	DynamicRange  DynamicRange
	ZoomRatio     float32
	Stabilization bool
	MaxResolution bool
}

// Negotiate resolves the session kind and the optional controls for ch.
// A dynamic range the camera cannot produce falls back to standard.
func Negotiate(ch Characteristics, want DynamicRange, stabilization bool) Negotiated {
	n := Negotiated{
		Kind:          SessionLegacy,
		DynamicRange:  DynamicRangeStandard,
		Stabilization: stabilization && ch.PreviewStabilization,
		MaxResolution: ch.MaxResolutionSensorMode,
	}
	if len(ch.DynamicRangeProfiles) > 0 {
		n.Kind = SessionDynamicRange
		if ch.SupportsDynamicRange(want) {
			n.DynamicRange = want
		}
	}
	if lo, hi := ch.ZoomRatioRange[0], ch.ZoomRatioRange[1]; hi > 0 {
		n.ZoomRatio = min(max(DefaultZoomRatio, lo), hi)
	}
	return n
}

// RequestBuilder builds session configurations and repeating requests from
// a negotiated capability set.
type RequestBuilder struct {
	caps Negotiated
	fps  int
}

// NewRequestBuilder returns a builder targeting fps frames per second.
func NewRequestBuilder(caps Negotiated, fps int) *RequestBuilder {
	return &RequestBuilder{caps: caps, fps: fps}
}

// Capabilities returns the negotiated capability set.
func (b *RequestBuilder) Capabilities() Negotiated {
	return b.caps
}

// SessionConfig configures every target with the negotiated dynamic range.
func (b *RequestBuilder) SessionConfig(targets []gpu.Window) SessionConfig {
	cfg := SessionConfig{Kind: b.caps.Kind}
	for _, w := range targets {
		dr := DynamicRangeStandard
		if b.caps.Kind == SessionDynamicRange {
			dr = b.caps.DynamicRange
		}
		cfg.Outputs = append(cfg.Outputs, OutputConfig{Window: w, DynamicRange: dr})
	}
	return cfg
}

// Build returns the repeating request for targets at the given orientation.
func (b *RequestBuilder) Build(targets []gpu.Window, orientation int) CaptureRequest {
	return CaptureRequest{
		Template:       TemplateVideoSnapshot,
		Targets:        targets,
		FPSRange:       [2]int{b.fps, b.fps},
		ZoomRatio:      b.caps.ZoomRatio,
		Stabilization:  b.caps.Stabilization,
		OrientationTag: OrientationTag(orientation),
		MaxResolution:  b.caps.MaxResolution,
	}
}
