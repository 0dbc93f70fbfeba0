package soft

// Effect names understood by the rasterizer.
const (
	EffectPassthrough = "passthrough"
	EffectGrayscale   = "grayscale"
	EffectInvert      = "invert"
	EffectSepia       = "sepia"
)

func effectFor(name string) func(rgba) rgba {
	switch name {
	case EffectGrayscale:
		return grayscale
	case EffectInvert:
		return invert
	case EffectSepia:
		return sepia
	default:
		return func(c rgba) rgba { return c }
	}
}

func grayscale(c rgba) rgba {
	l := clampByte(0.299*float32(c[0]) + 0.587*float32(c[1]) + 0.114*float32(c[2]))
	return rgba{l, l, l, c[3]}
}

func invert(c rgba) rgba {
	return rgba{255 - c[0], 255 - c[1], 255 - c[2], c[3]}
}

func sepia(c rgba) rgba {
	r, g, b := float32(c[0]), float32(c[1]), float32(c[2])
	return rgba{
		clampByte(0.393*r + 0.769*g + 0.189*b),
		clampByte(0.349*r + 0.686*g + 0.168*b),
		clampByte(0.272*r + 0.534*g + 0.131*b),
		c[3],
	}
}

func clampByte(v float32) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return byte(v + 0.5)
	}
}
