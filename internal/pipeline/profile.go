package pipeline

import (
	"fmt"
	"strings"

	"github.com/smazurov/shadercam/internal/gpu"
)

// ColorProfile is the dynamic-range profile of a pipeline. It is fixed for
// the life of a pipeline instance.
type ColorProfile int

// Color profiles.
const (
	ProfileStandard ColorProfile = iota
	ProfilePQ
	ProfileLinear
	ProfileHLG
	ProfileHLGWorkaround
)

func (c ColorProfile) String() string {
	switch c {
	case ProfilePQ:
		return "PQ"
	case ProfileLinear:
		return "LINEAR"
	case ProfileHLG:
		return "HLG"
	case ProfileHLGWorkaround:
		return "HLG (workaround)"
	default:
		return "STANDARD"
	}
}

// ParseColorProfile maps a config value to a profile.
func ParseColorProfile(s string) (ColorProfile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "sdr":
		return ProfileStandard, nil
	case "pq", "hdr10":
		return ProfilePQ, nil
	case "linear":
		return ProfileLinear, nil
	case "hlg":
		return ProfileHLG, nil
	case "hlg-workaround", "hlg_workaround":
		return ProfileHLGWorkaround, nil
	default:
		return ProfileStandard, fmt.Errorf("unknown color profile %q", s)
	}
}

// IsHDR reports whether the profile needs an HDR-capable context.
func (c ColorProfile) IsHDR() bool {
	return c != ProfileStandard
}

// requiredEGLExtensions lists the display extensions the profile needs.
func (c ColorProfile) requiredEGLExtensions() []string {
	if !c.IsHDR() {
		return nil
	}
	exts := []string{"EGL_KHR_gl_colorspace"}
	switch c {
	case ProfilePQ:
		exts = append(exts, "EGL_EXT_gl_colorspace_bt2020_pq")
	case ProfileLinear:
		exts = append(exts, "EGL_EXT_gl_colorspace_bt2020_linear")
	case ProfileHLG:
		exts = append(exts, "EGL_EXT_gl_colorspace_bt2020_hlg")
	}
	return exts
}

// configSpec returns the framebuffer configuration for the profile.
func (c ColorProfile) configSpec() gpu.ConfigSpec {
	if c.IsHDR() {
		return gpu.ConfigSpec{ClientVersion: 3, RedBits: 10, GreenBits: 10, BlueBits: 10, AlphaBits: 2}
	}
	return gpu.ConfigSpec{ClientVersion: 2, RedBits: 8, GreenBits: 8, BlueBits: 8, AlphaBits: 8}
}

// windowColorSpace returns the preview surface colorspace attribute.
func (c ColorProfile) windowColorSpace() gpu.ColorSpace {
	switch c {
	case ProfilePQ:
		return gpu.ColorSpaceBT2020PQ
	case ProfileLinear:
		return gpu.ColorSpaceBT2020Linear
	case ProfileHLG:
		return gpu.ColorSpaceBT2020HLG
	default:
		return gpu.ColorSpaceDefault
	}
}

// pqMetadata is the SMPTE2086 mastering metadata sent with PQ previews.
var pqMetadata = gpu.HDRMetadata{
	PrimaryRX:    0.708,
	PrimaryRY:    0.292,
	PrimaryGX:    0.170,
	PrimaryGY:    0.797,
	PrimaryBX:    0.131,
	PrimaryBY:    0.046,
	WhitePointX:  0.3127,
	WhitePointY:  0.3290,
	MaxLuminance: 10000,
	MinLuminance: 0,
}
