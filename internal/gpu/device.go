package gpu

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
)

// Device errors.
var (
	ErrNoDisplay         = errors.New("gpu: unable to get display")
	ErrNotInitialized    = errors.New("gpu: display not initialized")
	ErrNoContext         = errors.New("gpu: no current context")
	ErrNoConfig          = errors.New("gpu: no matching config")
	ErrBadSurface        = errors.New("gpu: bad surface")
	ErrBadTexture        = errors.New("gpu: bad texture")
	ErrFenceUnsupported  = errors.New("gpu: native fences unsupported")
	ErrInvalidOperation  = errors.New("gpu: invalid operation")
	ErrInvalidValue      = errors.New("gpu: invalid value")
	ErrWindowAbandoned   = errors.New("gpu: window abandoned")
	ErrSurfaceTexRelease = errors.New("gpu: surface texture released")
)

// Device is the EGL display plus GLES entry points for one context.
type Device interface {
	// EGL
	Initialize() (Version, error)
	Extensions() string
	ChooseConfig(spec ConfigSpec) (Config, error)
	CreateContext(cfg Config, clientVersion int) error
	ContextClientVersion() int
	HasContext() bool
	CreatePbufferSurface(width, height int) (SurfaceID, error)
	CreateWindowSurface(win Window, attrs SurfaceAttribs) (SurfaceID, error)
	SetSurfaceHDRMetadata(s SurfaceID, md HDRMetadata) error
	MakeCurrent(draw, read SurfaceID) error
	SwapBuffers(s SurfaceID) error
	DestroySurface(s SurfaceID) error
	CreateNativeFence() (Fence, error)
	DestroyContext() error
	Terminate()

	// GLES
	GLExtensions() string
	GenTexture(target TextureTarget) (TextureID, error)
	DeleteTexture(id TextureID)
	TexImage(id TextureID, buf *Buffer) error
	AttachHardwareBuffer(id TextureID, hb *HardwareBuffer) error
	GenFramebuffer() (FramebufferID, error)
	DeleteFramebuffer(id FramebufferID)
	FramebufferTexture(fb FramebufferID, tex TextureID) error
	BindFramebuffer(fb FramebufferID)
	CompileShader(kind ShaderKind, src string) (ShaderID, error)
	DeleteShader(id ShaderID)
	LinkProgram(vs, fs ShaderID) (ProgramID, error)
	DeleteProgram(id ProgramID)
	AttribLocation(p ProgramID, name string) int
	UniformLocation(p ProgramID, name string) int
	UseProgram(p ProgramID)
	ActiveTexture(unit int)
	BindTexture(target TextureTarget, id TextureID)
	UniformMatrix4(loc int, m mgl32.Mat4)
	Uniform1f(loc int, v float32)
	Uniform1i(loc int, v int32)
	VertexAttribPointer(loc, size int, data []float32)
	ClearColor(r, g, b, a float32)
	Clear()
	Viewport(r Rect)
	DrawArrays(mode DrawMode, first, count int)
	Flush()
	Finish()
	GetError() error
}

// FlipVertical is the texture transform that converts between window and
// hardware-buffer row order.
var FlipVertical = mgl32.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 1, 0,
	0, 1, 0, 1,
}
