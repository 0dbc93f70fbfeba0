package camera

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Quality is a recorder quality preset.
type Quality int

// Quality presets.
const (
	Quality720P Quality = iota
	Quality1080P
	Quality2160P
)

func (q Quality) String() string {
	switch q {
	case Quality720P:
		return "720p"
	case Quality2160P:
		return "2160p"
	default:
		return "1080p"
	}
}

// ParseQuality parses "720p", "1080p" or "2160p".
func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "720p":
		return Quality720P, nil
	case "", "1080p":
		return Quality1080P, nil
	case "2160p", "4k":
		return Quality2160P, nil
	}
	return Quality1080P, fmt.Errorf("unknown quality %q", s)
}

// RecorderParams are the encoder settings of a quality preset.
type RecorderParams struct {
	Width           int
	Height          int
	Bitrate         int
	FPS             int
	AudioBitrate    int
	AudioSampleRate int
}

var defaultProfiles = map[Quality]RecorderParams{
	Quality720P:  {Width: 1280, Height: 720, Bitrate: 6_000_000, FPS: 30, AudioBitrate: 96_000, AudioSampleRate: 48_000},
	Quality1080P: {Width: 1920, Height: 1080, Bitrate: 10_000_000, FPS: 30, AudioBitrate: 96_000, AudioSampleRate: 48_000},
	Quality2160P: {Width: 3840, Height: 2160, Bitrate: 40_000_000, FPS: 30, AudioBitrate: 96_000, AudioSampleRate: 48_000},
}

// RecorderParamsFor returns the recorder parameters for q. Per-camera
// profiles win over the defaults, except for the frame rate which always
// stays at the default.
func RecorderParamsFor(ch Characteristics, q Quality) RecorderParams {
	params := defaultProfiles[q]
	if p, ok := ch.Profiles[q]; ok {
		fps := params.FPS
		params = p
		params.FPS = fps
	}
	return params
}

// hd is the largest preview size worth rendering.
var hd = Size{Width: 1920, Height: 1080}

// BestPreviewSize returns the largest output size that fits within the
// viewport (capped at 1080p) and has the sensor's native aspect ratio. When
// no size has the native aspect, the largest fitting size is returned.
func BestPreviewSize(ch Characteristics, viewport Size) (Size, error) {
	bound := viewport
	if viewport.Long() >= hd.Long() || viewport.Short() >= hd.Short() {
		bound = hd
	}

	sizes := slices.Clone(ch.OutputSizes)
	slices.SortFunc(sizes, func(a, b Size) int { return cmp.Compare(b.Area(), a.Area()) })

	fits := func(s Size) bool {
		return s.Long() <= bound.Long() && s.Short() <= bound.Short()
	}

	var fallback *Size
	for i, s := range sizes {
		if !fits(s) {
			continue
		}
		if sameAspect(s, ch.ActiveArray) {
			return s, nil
		}
		if fallback == nil {
			fallback = &sizes[i]
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return Size{}, fmt.Errorf("no output size fits %s", viewport)
}

func sameAspect(a, b Size) bool {
	if a.Short() == 0 || b.Short() == 0 {
		return false
	}
	ra := float64(a.Long()) / float64(a.Short())
	rb := float64(b.Long()) / float64(b.Short())
	return math.Abs(ra-rb) < 0.01
}
