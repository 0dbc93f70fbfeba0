// Package gpu abstracts the EGL/GLES surface used by the frame pipeline.
//
// The Device interface mirrors the subset of EGL and GLES calls the pipeline
// issues. Implementations are not safe for concurrent use: a Device belongs to
// exactly one goroutine, the one that created its context.
package gpu

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// Version is an EGL version.
type Version struct {
	Major int
	Minor int
}

// Number returns the version as major*10+minor (1.5 -> 15).
func (v Version) Number() int {
	return v.Major*10 + v.Minor
}

// Object handles. Zero is never a valid handle.
type (
	SurfaceID     uint32
	TextureID     uint32
	ShaderID      uint32
	ProgramID     uint32
	FramebufferID uint32
)

// NoSurface is the null surface handle.
const NoSurface SurfaceID = 0

// TextureTarget selects the texture binding point.
type TextureTarget int

// Texture targets.
const (
	TextureExternal TextureTarget = iota // GL_TEXTURE_EXTERNAL_OES
	Texture2D
)

// ShaderKind is the shader stage.
type ShaderKind int

// Shader stages.
const (
	VertexShader ShaderKind = iota
	FragmentShader
)

func (k ShaderKind) String() string {
	if k == VertexShader {
		return "vertex"
	}
	return "fragment"
}

// DrawMode is the primitive assembly mode.
type DrawMode int

// Draw modes.
const (
	TriangleStrip DrawMode = iota
	Triangles
)

// ColorSpace is the EGL_GL_COLORSPACE_KHR surface attribute.
type ColorSpace int

// Window surface color spaces.
const (
	ColorSpaceDefault ColorSpace = iota
	ColorSpaceBT2020PQ
	ColorSpaceBT2020Linear
	ColorSpaceBT2020HLG
)

func (c ColorSpace) String() string {
	switch c {
	case ColorSpaceBT2020PQ:
		return "bt2020-pq"
	case ColorSpaceBT2020Linear:
		return "bt2020-linear"
	case ColorSpaceBT2020HLG:
		return "bt2020-hlg"
	default:
		return "default"
	}
}

// Dataspace tags buffers handed to a compositor.
type Dataspace string

// Dataspaces.
const (
	DataspaceUnknown    Dataspace = ""
	DataspaceSRGB       Dataspace = "srgb"
	DataspaceBT2020PQ   Dataspace = "bt2020-pq-full"
	DataspaceBT2020HLG  Dataspace = "bt2020-hlg-full"
	DataspaceBT2020Lin  Dataspace = "bt2020-linear-full"
	DataspaceCameraYUV  Dataspace = "camera-yuv"
	DataspaceEncoderRGB Dataspace = "encoder-rgb"
)

// ConfigSpec describes the framebuffer configuration to choose.
type ConfigSpec struct {
	ClientVersion int // 2 or 3
	RedBits       int
	GreenBits     int
	BlueBits      int
	AlphaBits     int
}

// Config is a chosen framebuffer configuration.
type Config struct {
	ID   int
	Spec ConfigSpec
}

// SurfaceAttribs are window surface creation attributes.
type SurfaceAttribs struct {
	ColorSpace ColorSpace
}

// HDRMetadata carries SMPTE2086 mastering display metadata.
type HDRMetadata struct {
	PrimaryRX, PrimaryRY float32
	PrimaryGX, PrimaryGY float32
	PrimaryBX, PrimaryBY float32
	WhitePointX          float32
	WhitePointY          float32
	MaxLuminance         float32
	MinLuminance         float32
}

// Rect is a viewport rectangle in window coordinates (origin bottom-left).
type Rect struct {
	X, Y          int
	Width, Height int
}

// Buffer is a frame of RGBA8 pixels moving through a buffer queue.
type Buffer struct {
	Width     int
	Height    int
	Pix       []byte // row-major, top row first, stride Width*4
	Timestamp time.Duration
	Dataspace Dataspace
	// Transform is the sampling transform a consumer should apply. The zero
	// matrix means identity.
	Transform mgl32.Mat4
	// Program is the label of the program that rendered the buffer, empty for
	// producer-originated buffers.
	Program string
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(width, height int) *Buffer {
	return &Buffer{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*4),
	}
}

// At returns the RGBA value at x, y (top-left origin).
func (b *Buffer) At(x, y int) [4]byte {
	i := (y*b.Width + x) * 4
	return [4]byte{b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Pix[i+3]}
}

// Window is the consumer end of a platform buffer queue. Producers (the
// camera, or the GPU through a window surface) queue buffers into it.
type Window interface {
	Size() (width, height int)
	QueueBuffer(buf *Buffer) error
}

// PixelFormat of a hardware buffer.
type PixelFormat int

// Hardware buffer formats.
const (
	FormatRGBA8888 PixelFormat = iota
	FormatRGBA1010102
)

// HardwareBuffer is an off-screen platform buffer the GPU can render into.
type HardwareBuffer struct {
	Width  int
	Height int
	Format PixelFormat
	Pix    []byte
}

// NewHardwareBuffer allocates a hardware buffer.
func NewHardwareBuffer(width, height int, format PixelFormat) *HardwareBuffer {
	return &HardwareBuffer{
		Width:  width,
		Height: height,
		Format: format,
		Pix:    make([]byte, width*height*4),
	}
}

// Fence is a native sync fence signalled when the GPU finishes prior work.
type Fence interface {
	Signaled() bool
	Close() error
}

// Compositor accepts off-screen buffers for presentation with an explicit
// dataspace. It is the lower-level path used when a window surface cannot
// carry the required colorspace.
type Compositor interface {
	SetBuffer(buf *HardwareBuffer, fence Fence, ds Dataspace) error
}
