package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/smazurov/shadercam/internal/gpu"
	"github.com/smazurov/shadercam/internal/metrics"
	"github.com/smazurov/shadercam/internal/shader"
)

// resources holds every GPU handle of the pipeline. Worker-owned.
type resources struct {
	pbuffer        gpu.SurfaceID
	supportsFences bool
	vertex         gpu.ShaderID

	cameraTex     gpu.TextureID
	cameraST      *gpu.SurfaceTexture
	renderTex     gpu.TextureID
	renderST      *gpu.SurfaceTexture
	renderSurface gpu.SurfaceID

	window         gpu.Window
	windowSurface  gpu.SurfaceID
	encoderWindow  gpu.Window
	encoderSurface gpu.SurfaceID
	photoWindow    gpu.Window
	photoSurface   gpu.SurfaceID

	// Off-screen preview path for ProfileHLGWorkaround.
	windowTex  gpu.TextureID
	windowFB   gpu.FramebufferID
	hwBuffers  [compositorBuffers]*gpu.HardwareBuffer
	nextBuffer int

	passthrough *shader.Program
	preview     *shader.Program
	encode      *shader.Program
	photo       *shader.Program
}

func (p *Pipeline) createResources(win gpu.Window) {
	err := p.buildResources(win)

	p.mu.Lock()
	p.resErr = err
	if err == nil {
		p.targets = []gpu.Window{p.res.cameraST}
	}
	p.mu.Unlock()

	if err != nil {
		p.markFailed(err)
	} else {
		p.state.Store(int32(StateResourcesCreated))
		p.logger.Info("Pipeline resources created",
			"size", fmt.Sprintf("%dx%d", p.cfg.Width, p.cfg.Height),
			"profile", p.cfg.Profile,
			"shader", p.Shader())
	}
	p.resourcesReady.Open()
}

func (p *Pipeline) buildResources(win gpu.Window) error {
	if !p.dev.HasContext() {
		if err := p.initContext(); err != nil {
			return err
		}
	}

	profile := p.cfg.Profile
	if profile == ProfileHLGWorkaround {
		// HLG cannot be signalled on a window surface; frames go to the
		// compositor through an off-screen buffer instead.
		if p.cfg.Compositor == nil {
			return &ResourceCreationError{Op: "preview compositor", Err: errors.New("profile needs a compositor")}
		}
		tex, err := p.dev.GenTexture(gpu.Texture2D)
		if err != nil {
			return &ResourceCreationError{Op: "window texture", Err: err}
		}
		p.res.windowTex = tex
		fb, err := p.dev.GenFramebuffer()
		if err != nil {
			return &ResourceCreationError{Op: "window framebuffer", Err: err}
		}
		p.res.windowFB = fb
		p.res.window = win
	} else {
		s, err := p.dev.CreateWindowSurface(win, gpu.SurfaceAttribs{ColorSpace: profile.windowColorSpace()})
		if err != nil {
			return &ResourceCreationError{Op: "window surface", Err: err}
		}
		p.res.window = win
		p.res.windowSurface = s
		if profile == ProfilePQ {
			if err := p.dev.SetSurfaceHDRMetadata(s, pqMetadata); err != nil {
				p.logger.Warn("Failed to set SMPTE2086 metadata", "error", err)
			}
		}
	}

	p.logger.Debug("Setting default buffer size", "width", p.cfg.Width, "height", p.cfg.Height)
	camTex, err := p.dev.GenTexture(gpu.TextureExternal)
	if err != nil {
		return &ResourceCreationError{Op: "camera texture", Err: err}
	}
	p.res.cameraTex = camTex
	p.res.cameraST = gpu.NewSurfaceTexture(p.dev, camTex)
	p.res.cameraST.SetDefaultBufferSize(p.cfg.Width, p.cfg.Height)

	renderTex, err := p.dev.GenTexture(gpu.TextureExternal)
	if err != nil {
		return &ResourceCreationError{Op: "render texture", Err: err}
	}
	p.res.renderTex = renderTex
	p.res.renderST = gpu.NewSurfaceTexture(p.dev, renderTex)
	p.res.renderST.SetDefaultBufferSize(p.cfg.Width, p.cfg.Height)

	rs, err := p.dev.CreateWindowSurface(p.res.renderST, gpu.SurfaceAttribs{})
	if err != nil {
		return &ResourceCreationError{Op: "render surface", Err: err}
	}
	p.res.renderSurface = rs

	if err := p.createShaderResources(); err != nil {
		return err
	}

	p.res.cameraST.SetOnFrameAvailable(p.onFrameAvailable)
	return nil
}

// initContext initializes the display, checks the profile's extensions and
// makes a context current on a 1x1 pbuffer.
func (p *Pipeline) initContext() error {
	profile := p.cfg.Profile

	version, err := p.dev.Initialize()
	if err != nil {
		return &ResourceCreationError{Op: "display", Err: err}
	}
	p.logger.Info("EGL initialized", "version", fmt.Sprintf("%d.%d", version.Major, version.Minor))

	if profile.IsHDR() {
		exts := strings.Fields(p.dev.Extensions())
		var missing []string
		for _, ext := range profile.requiredEGLExtensions() {
			if !slices.Contains(exts, ext) {
				missing = append(missing, ext)
			}
		}
		if len(missing) > 0 {
			p.logger.Error("EGL extensions not supported", "missing", missing, "supported", p.dev.Extensions())
			return &UnsupportedCapabilityError{Profile: profile, Missing: missing}
		}
		p.res.supportsFences = version.Number() >= 15 && slices.Contains(exts, "EGL_ANDROID_native_fence_sync")
		p.logger.Info("HDR preview", "transfer", profile, "native_fences", p.res.supportsFences)
	}

	spec := profile.configSpec()
	cfg, err := p.dev.ChooseConfig(spec)
	if err != nil {
		return &ResourceCreationError{Op: "config", Err: err}
	}
	if err := p.dev.CreateContext(cfg, spec.ClientVersion); err != nil {
		return &ResourceCreationError{Op: "context", Err: err}
	}
	if got := p.dev.ContextClientVersion(); got != spec.ClientVersion {
		return &ResourceCreationError{
			Op:  "context",
			Err: fmt.Errorf("client version %d, want %d", got, spec.ClientVersion),
		}
	}
	p.logger.Debug("EGL context created", "client_version", spec.ClientVersion)

	pb, err := p.dev.CreatePbufferSurface(1, 1)
	if err != nil {
		return &ResourceCreationError{Op: "pbuffer", Err: err}
	}
	p.res.pbuffer = pb
	if err := p.dev.MakeCurrent(pb, pb); err != nil {
		return &ResourceCreationError{Op: "make current", Err: err}
	}
	return nil
}

func (p *Pipeline) createShaderResources() error {
	if p.cfg.Profile.IsHDR() && !slices.Contains(strings.Fields(p.dev.GLExtensions()), "GL_EXT_YUV_target") {
		return &UnsupportedCapabilityError{Profile: p.cfg.Profile, Missing: []string{"GL_EXT_YUV_target"}}
	}

	base, err := shader.Builtin(shader.Default)
	if err != nil {
		return &ResourceCreationError{Op: "shader source", Err: err}
	}
	vs, err := shader.CompileVertex(p.dev, base.Vertex)
	if err != nil {
		metrics.RecordShaderFailure("vertex")
		return err
	}
	p.res.vertex = vs

	pass, err := shader.Build(p.dev, vs, base.Fragment, "camera-passthrough")
	if err != nil {
		metrics.RecordShaderFailure("passthrough")
		return err
	}
	p.res.passthrough = pass

	name := p.Shader()
	progs, err := p.buildStagePrograms(name)
	if err != nil {
		return err
	}
	p.res.preview, p.res.encode, p.res.photo = progs[0], progs[1], progs[2]
	return nil
}

// buildStagePrograms builds one program per user stage (preview, encode,
// photo) from the named shader. On error nothing stays allocated.
func (p *Pipeline) buildStagePrograms(name string) ([3]*shader.Program, error) {
	var progs [3]*shader.Program

	src, err := p.cfg.Library.Load(name)
	if err != nil {
		return progs, &ResourceCreationError{Op: "shader source", Err: err}
	}

	stages := [3]string{metrics.StagePreview, metrics.StageEncode, metrics.StagePhoto}
	for i, stage := range stages {
		prog, err := shader.Build(p.dev, p.res.vertex, src.Fragment, name)
		if err != nil {
			metrics.RecordShaderFailure(stage)
			for _, built := range progs[:i] {
				built.Delete()
			}
			return [3]*shader.Program{}, err
		}
		progs[i] = prog
	}
	return progs, nil
}

func (p *Pipeline) changeShader(name string) error {
	p.logger.Info("Changing shader", "shader", name)

	switch State(p.state.Load()) {
	case StateFailed:
		return ErrFailed
	case StateDestroyed:
		return ErrStopped
	case StateUninitialized:
		// Picked up by createResources.
		p.mu.Lock()
		p.shaderName = name
		p.mu.Unlock()
		return nil
	}

	progs, err := p.buildStagePrograms(name)
	if err != nil {
		p.markFailed(err)
		return err
	}

	old := [3]*shader.Program{p.res.preview, p.res.encode, p.res.photo}
	p.res.preview, p.res.encode, p.res.photo = progs[0], progs[1], progs[2]
	for _, prog := range old {
		prog.Delete()
	}

	p.mu.Lock()
	p.shaderName = name
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) actionDown(win gpu.Window) {
	if p.res.encoderSurface != gpu.NoSurface && p.res.encoderWindow == win {
		return
	}
	if p.res.encoderSurface != gpu.NoSurface {
		p.guard("destroy stale encoder surface", func() error { return p.dev.DestroySurface(p.res.encoderSurface) })
		p.res.encoderSurface = gpu.NoSurface
	}
	p.logger.Debug("Creating encoder surface")
	s, err := p.dev.CreateWindowSurface(win, gpu.SurfaceAttribs{})
	if err != nil {
		p.reportError(&ResourceCreationError{Op: "encoder surface", Err: err})
		return
	}
	p.res.encoderSurface = s
	p.res.encoderWindow = win
}

func (p *Pipeline) actionTakePhoto(win gpu.Window) {
	if p.res.photoSurface == gpu.NoSurface || p.res.photoWindow != win {
		if p.res.photoSurface != gpu.NoSurface {
			p.guard("destroy stale photo surface", func() error { return p.dev.DestroySurface(p.res.photoSurface) })
			p.res.photoSurface = gpu.NoSurface
		}
		p.logger.Debug("Creating photo surface")
		s, err := p.dev.CreateWindowSurface(win, gpu.SurfaceAttribs{})
		if err != nil {
			p.reportError(&ResourceCreationError{Op: "photo surface", Err: err})
			return
		}
		p.res.photoSurface = s
		p.res.photoWindow = win
	}
	p.photoPending.Store(true)
}

func (p *Pipeline) destroyWindowSurface() {
	if p.res.windowSurface != gpu.NoSurface {
		p.guard("destroy window surface", func() error { return p.dev.DestroySurface(p.res.windowSurface) })
	}
	p.res.windowSurface = gpu.NoSurface
	p.windowDestroyed.Open()
}

func (p *Pipeline) clearFrameListener() {
	if p.res.cameraST != nil {
		p.res.cameraST.SetOnFrameAvailable(nil)
	}
	p.listenerCleared.Open()
}

// markFailed puts the pipeline in the failed state. Frames are ignored until
// the pipeline is cleaned up.
func (p *Pipeline) markFailed(err error) {
	p.state.Store(int32(StateFailed))
	p.logger.Error("Pipeline failed", "error", err)
}

// reportError forwards an error with no waiting caller.
func (p *Pipeline) reportError(err error) {
	p.logger.Error("Pipeline error", "error", err)
	if p.cfg.OnError != nil {
		p.cfg.OnError(err)
	}
}
