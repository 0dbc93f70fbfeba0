// Package soft is a pure-Go reference implementation of gpu.Device.
//
// It rasterizes full-screen quads with nearest sampling, enforces the same
// object and state rules a GLES driver would (current context, bound
// program, bound texture) and records violations as GL errors. GLSL is not
// executed: a fragment shader may name a CPU effect with a
// "// @effect <name>" pragma (passthrough, grayscale, invert, sepia), and
// unknown or missing effects render as passthrough.
package soft

import (
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/smazurov/shadercam/internal/gpu"
)

// Default extension strings advertised by New.
var (
	DefaultEGLExtensions = []string{
		"EGL_KHR_gl_colorspace",
		"EGL_EXT_gl_colorspace_bt2020_pq",
		"EGL_EXT_gl_colorspace_bt2020_linear",
		"EGL_EXT_gl_colorspace_bt2020_hlg",
		"EGL_EXT_surface_SMPTE2086_metadata",
		"EGL_ANDROID_native_fence_sync",
		"EGL_ANDROID_image_native_buffer",
	}
	DefaultGLExtensions = []string{
		"GL_OES_EGL_image_external",
		"GL_OES_EGL_image_external_essl3",
		"GL_EXT_YUV_target",
	}
)

// Options configures a soft device.
type Options struct {
	EGLVersion       gpu.Version
	EGLExtensions    []string
	GLExtensions     []string
	MaxClientVersion int
	// Failures injects errors keyed by method name, e.g. "CreateWindowSurface".
	Failures map[string]error
}

// Device is a software gpu.Device.
type Device struct {
	opts Options

	initialized   bool
	clientVersion int
	nextID        uint32

	surfaces     map[gpu.SurfaceID]*surface
	textures     map[gpu.TextureID]*texture
	framebuffers map[gpu.FramebufferID]*framebuffer
	shaders      map[gpu.ShaderID]*shader
	programs     map[gpu.ProgramID]*program

	draw, read gpu.SurfaceID
	boundFB    gpu.FramebufferID
	activeUnit int
	boundTex   map[int]gpu.TextureID
	current    gpu.ProgramID
	viewport   gpu.Rect
	clearColor [4]byte
	pendingErr error

	errorCount atomic.Int64
	drawCount  atomic.Int64
}

type surface struct {
	window      gpu.Window
	pbuffer     bool
	width       int
	height      int
	pix         []byte
	attrs       gpu.SurfaceAttribs
	hdr         *gpu.HDRMetadata
	lastProgram string
}

type texture struct {
	target gpu.TextureTarget
	width  int
	height int
	pix    []byte
}

type framebuffer struct {
	color gpu.TextureID
}

// New creates a soft device. Zero-valued options get defaults: EGL 1.5, GLES 3,
// all HDR extensions present.
func New(opts Options) *Device {
	if opts.EGLVersion == (gpu.Version{}) {
		opts.EGLVersion = gpu.Version{Major: 1, Minor: 5}
	}
	if opts.EGLExtensions == nil {
		opts.EGLExtensions = DefaultEGLExtensions
	}
	if opts.GLExtensions == nil {
		opts.GLExtensions = DefaultGLExtensions
	}
	if opts.MaxClientVersion == 0 {
		opts.MaxClientVersion = 3
	}
	return &Device{
		opts:         opts,
		surfaces:     make(map[gpu.SurfaceID]*surface),
		textures:     make(map[gpu.TextureID]*texture),
		framebuffers: make(map[gpu.FramebufferID]*framebuffer),
		shaders:      make(map[gpu.ShaderID]*shader),
		programs:     make(map[gpu.ProgramID]*program),
		boundTex:     make(map[int]gpu.TextureID),
	}
}

// ErrorCount returns the number of GL errors recorded so far.
func (d *Device) ErrorCount() int64 {
	return d.errorCount.Load()
}

// DrawCount returns the number of successful draw calls.
func (d *Device) DrawCount() int64 {
	return d.drawCount.Load()
}

// LiveObjects reports surfaces, textures and programs still allocated.
// Only call it once the owning goroutine has stopped using the device.
func (d *Device) LiveObjects() (surfaces, textures, programs int) {
	return len(d.surfaces), len(d.textures), len(d.programs)
}

func (d *Device) fail(op string) error {
	if err, ok := d.opts.Failures[op]; ok {
		return err
	}
	return nil
}

func (d *Device) id() uint32 {
	d.nextID++
	return d.nextID
}

func (d *Device) recordError(err error) {
	d.errorCount.Add(1)
	if d.pendingErr == nil {
		d.pendingErr = err
	}
}

func (d *Device) requireContext() bool {
	if d.clientVersion == 0 {
		d.recordError(gpu.ErrNoContext)
		return false
	}
	return true
}

// Initialize implements gpu.Device.
func (d *Device) Initialize() (gpu.Version, error) {
	if err := d.fail("Initialize"); err != nil {
		return gpu.Version{}, err
	}
	d.initialized = true
	return d.opts.EGLVersion, nil
}

// Extensions implements gpu.Device.
func (d *Device) Extensions() string {
	return strings.Join(d.opts.EGLExtensions, " ")
}

// GLExtensions implements gpu.Device.
func (d *Device) GLExtensions() string {
	return strings.Join(d.opts.GLExtensions, " ")
}

// ChooseConfig implements gpu.Device.
func (d *Device) ChooseConfig(spec gpu.ConfigSpec) (gpu.Config, error) {
	if !d.initialized {
		return gpu.Config{}, gpu.ErrNotInitialized
	}
	if spec.ClientVersion > d.opts.MaxClientVersion {
		return gpu.Config{}, gpu.ErrNoConfig
	}
	return gpu.Config{ID: int(d.id()), Spec: spec}, nil
}

// CreateContext implements gpu.Device.
func (d *Device) CreateContext(cfg gpu.Config, clientVersion int) error {
	if err := d.fail("CreateContext"); err != nil {
		return err
	}
	if !d.initialized {
		return gpu.ErrNotInitialized
	}
	if clientVersion > d.opts.MaxClientVersion || cfg.ID == 0 {
		return gpu.ErrNoConfig
	}
	d.clientVersion = clientVersion
	return nil
}

// ContextClientVersion implements gpu.Device.
func (d *Device) ContextClientVersion() int {
	return d.clientVersion
}

// HasContext implements gpu.Device.
func (d *Device) HasContext() bool {
	return d.clientVersion != 0
}

// CreatePbufferSurface implements gpu.Device.
func (d *Device) CreatePbufferSurface(width, height int) (gpu.SurfaceID, error) {
	if !d.initialized {
		return gpu.NoSurface, gpu.ErrNotInitialized
	}
	id := gpu.SurfaceID(d.id())
	d.surfaces[id] = &surface{
		pbuffer: true,
		width:   width,
		height:  height,
		pix:     make([]byte, width*height*4),
	}
	return id, nil
}

// CreateWindowSurface implements gpu.Device.
func (d *Device) CreateWindowSurface(win gpu.Window, attrs gpu.SurfaceAttribs) (gpu.SurfaceID, error) {
	if err := d.fail("CreateWindowSurface"); err != nil {
		return gpu.NoSurface, err
	}
	if !d.initialized {
		return gpu.NoSurface, gpu.ErrNotInitialized
	}
	if win == nil {
		return gpu.NoSurface, gpu.ErrBadSurface
	}
	if attrs.ColorSpace != gpu.ColorSpaceDefault && !d.hasEGLExtension("EGL_KHR_gl_colorspace") {
		return gpu.NoSurface, fmt.Errorf("%w: colorspace %s", gpu.ErrInvalidValue, attrs.ColorSpace)
	}
	w, h := win.Size()
	if w <= 0 || h <= 0 {
		return gpu.NoSurface, fmt.Errorf("%w: window size %dx%d", gpu.ErrBadSurface, w, h)
	}
	id := gpu.SurfaceID(d.id())
	d.surfaces[id] = &surface{
		window: win,
		width:  w,
		height: h,
		pix:    make([]byte, w*h*4),
		attrs:  attrs,
	}
	return id, nil
}

// SetSurfaceHDRMetadata implements gpu.Device.
func (d *Device) SetSurfaceHDRMetadata(s gpu.SurfaceID, md gpu.HDRMetadata) error {
	surf, ok := d.surfaces[s]
	if !ok {
		return gpu.ErrBadSurface
	}
	surf.hdr = &md
	return nil
}

// MakeCurrent implements gpu.Device.
func (d *Device) MakeCurrent(draw, read gpu.SurfaceID) error {
	if d.clientVersion == 0 {
		return gpu.ErrNoContext
	}
	for _, s := range []gpu.SurfaceID{draw, read} {
		if s == gpu.NoSurface {
			continue
		}
		if _, ok := d.surfaces[s]; !ok {
			return gpu.ErrBadSurface
		}
	}
	d.draw, d.read = draw, read
	d.boundFB = 0
	return nil
}

// SwapBuffers implements gpu.Device.
func (d *Device) SwapBuffers(s gpu.SurfaceID) error {
	surf, ok := d.surfaces[s]
	if !ok {
		return gpu.ErrBadSurface
	}
	if surf.pbuffer {
		return nil
	}
	buf := &gpu.Buffer{
		Width:     surf.width,
		Height:    surf.height,
		Pix:       slices.Clone(surf.pix),
		Dataspace: dataspaceFor(surf.attrs.ColorSpace),
		Program:   surf.lastProgram,
	}
	if err := surf.window.QueueBuffer(buf); err != nil {
		return fmt.Errorf("%w: %v", gpu.ErrWindowAbandoned, err)
	}
	return nil
}

// DestroySurface implements gpu.Device.
func (d *Device) DestroySurface(s gpu.SurfaceID) error {
	if _, ok := d.surfaces[s]; !ok {
		return gpu.ErrBadSurface
	}
	delete(d.surfaces, s)
	if d.draw == s {
		d.draw = gpu.NoSurface
	}
	if d.read == s {
		d.read = gpu.NoSurface
	}
	return nil
}

// CreateNativeFence implements gpu.Device.
func (d *Device) CreateNativeFence() (gpu.Fence, error) {
	if d.opts.EGLVersion.Number() < 15 || !d.hasEGLExtension("EGL_ANDROID_native_fence_sync") {
		return nil, gpu.ErrFenceUnsupported
	}
	return signaledFence{}, nil
}

// DestroyContext implements gpu.Device. Objects owned by the context are freed.
func (d *Device) DestroyContext() error {
	if d.clientVersion == 0 {
		return gpu.ErrNoContext
	}
	d.clientVersion = 0
	d.textures = make(map[gpu.TextureID]*texture)
	d.framebuffers = make(map[gpu.FramebufferID]*framebuffer)
	d.shaders = make(map[gpu.ShaderID]*shader)
	d.programs = make(map[gpu.ProgramID]*program)
	d.boundTex = make(map[int]gpu.TextureID)
	d.current = 0
	d.boundFB = 0
	d.draw, d.read = gpu.NoSurface, gpu.NoSurface
	return nil
}

// Terminate implements gpu.Device.
func (d *Device) Terminate() {
	d.initialized = false
}

func (d *Device) hasEGLExtension(name string) bool {
	return slices.Contains(d.opts.EGLExtensions, name)
}

func (d *Device) hasGLExtension(name string) bool {
	return slices.Contains(d.opts.GLExtensions, name)
}

func dataspaceFor(cs gpu.ColorSpace) gpu.Dataspace {
	switch cs {
	case gpu.ColorSpaceBT2020PQ:
		return gpu.DataspaceBT2020PQ
	case gpu.ColorSpaceBT2020HLG:
		return gpu.DataspaceBT2020HLG
	case gpu.ColorSpaceBT2020Linear:
		return gpu.DataspaceBT2020Lin
	default:
		return gpu.DataspaceSRGB
	}
}

type signaledFence struct{}

func (signaledFence) Signaled() bool { return true }
func (signaledFence) Close() error   { return nil }

// GetError implements gpu.Device.
func (d *Device) GetError() error {
	err := d.pendingErr
	d.pendingErr = nil
	return err
}

// Flush implements gpu.Device.
func (d *Device) Flush() {}

// Finish implements gpu.Device.
func (d *Device) Finish() {}

var _ gpu.Device = (*Device)(nil)

// mat4 returns the uniform matrix at loc or identity.
func (p *program) mat4(loc int) mgl32.Mat4 {
	if m, ok := p.matrices[loc]; ok {
		return m
	}
	return mgl32.Ident4()
}
