package pipeline

import (
	"errors"
	"time"

	"github.com/smazurov/shadercam/internal/gpu"
	"github.com/smazurov/shadercam/internal/metrics"
	"github.com/smazurov/shadercam/internal/shader"
)

// processFrame runs every stage for the latest camera frame.
func (p *Pipeline) processFrame() {
	if State(p.state.Load()) != StateResourcesCreated {
		return
	}
	start := time.Now()

	latched, err := p.res.cameraST.UpdateTexImage()
	if err != nil {
		if !errors.Is(err, gpu.ErrSurfaceTexRelease) {
			p.logger.Warn("Failed to latch camera frame", "error", err)
		}
		return
	}
	if !latched {
		return
	}

	if p.res.renderSurface != gpu.NoSurface {
		if err := p.copyCameraToRender(); err != nil {
			p.stageError(metrics.StageRender, err)
			return
		}
	}

	if err := p.copyRenderToPreview(); err != nil {
		p.stageError(metrics.StagePreview, err)
	}

	if p.res.encoderSurface != gpu.NoSurface && p.recording.Load() {
		if err := p.copyRenderToEncode(); err != nil {
			p.stageError(metrics.StageEncode, err)
		}
	}

	if p.res.photoSurface != gpu.NoSurface && p.photoPending.Load() {
		p.photoPending.Store(false)
		if err := p.copyRenderToPhoto(); err != nil {
			p.stageError(metrics.StagePhoto, err)
		}
	}

	metrics.ObserveFrameDuration(time.Since(start))
}

func (p *Pipeline) stageError(stage string, err error) {
	metrics.RecordGLError(stage)
	p.logger.Warn("Stage failed", "stage", stage, "error", err)
}

// drawStage draws src through prog into whatever is current. toBuffer marks
// an off-screen hardware buffer target, whose rows run opposite to a window.
func (p *Pipeline) drawStage(tex gpu.TextureID, src *gpu.SurfaceTexture, vp gpu.Rect, prog *shader.Program, toBuffer bool) error {
	d := p.dev
	d.ClearColor(0, 0, 0, 1)
	d.Clear()

	prog.Use()
	d.ActiveTexture(0)
	d.BindTexture(gpu.TextureExternal, tex)

	m := src.TransformMatrix()
	if toBuffer {
		m = gpu.FlipVertical.Mul4(m)
	}
	prog.SetTexMatrix(m)
	prog.SetData(shader.FullscreenQuad, p.orientation)

	d.Viewport(vp)
	d.DrawArrays(gpu.TriangleStrip, 0, 4)
	return d.GetError()
}

func (p *Pipeline) copyCameraToRender() error {
	if err := p.dev.MakeCurrent(p.res.renderSurface, p.res.renderSurface); err != nil {
		return err
	}
	vp := gpu.Rect{Width: p.cfg.Width, Height: p.cfg.Height}
	if err := p.drawStage(p.res.cameraTex, p.res.cameraST, vp, p.res.passthrough, false); err != nil {
		return err
	}
	if err := p.dev.SwapBuffers(p.res.renderSurface); err != nil {
		return err
	}
	if _, err := p.res.renderST.UpdateTexImage(); err != nil {
		return err
	}
	metrics.RecordFrame(metrics.StageRender)
	return nil
}

func (p *Pipeline) copyRenderToPreview() error {
	pw, ph := p.previewSize()
	if (pw == 0 || ph == 0) && p.res.window != nil {
		pw, ph = p.res.window.Size()
	}
	vp := PreviewViewport(p.cfg.Width, p.cfg.Height, pw, ph)

	if p.cfg.Profile == ProfileHLGWorkaround {
		return p.copyRenderToCompositor(pw, ph, vp)
	}
	if p.res.windowSurface == gpu.NoSurface {
		return nil
	}

	if err := p.dev.MakeCurrent(p.res.windowSurface, p.res.renderSurface); err != nil {
		return err
	}
	if err := p.drawStage(p.res.renderTex, p.res.renderST, vp, p.res.preview, false); err != nil {
		return err
	}
	if err := p.dev.SwapBuffers(p.res.windowSurface); err != nil {
		return err
	}
	metrics.RecordFrame(metrics.StagePreview)
	return nil
}

// copyRenderToCompositor renders the preview into a fresh RGBA_1010102
// buffer and hands it to the compositor tagged BT2020/HLG/full range.
func (p *Pipeline) copyRenderToCompositor(pw, ph int, vp gpu.Rect) error {
	d := p.dev
	if err := d.MakeCurrent(gpu.NoSurface, gpu.NoSurface); err != nil {
		return err
	}

	hb := p.nextHardwareBuffer(pw, ph)
	if err := d.AttachHardwareBuffer(p.res.windowTex, hb); err != nil {
		return err
	}
	d.BindFramebuffer(p.res.windowFB)
	defer d.BindFramebuffer(0)
	if err := d.FramebufferTexture(p.res.windowFB, p.res.windowTex); err != nil {
		return err
	}

	if err := p.drawStage(p.res.renderTex, p.res.renderST, vp, p.res.preview, true); err != nil {
		return err
	}

	fence := p.createSyncFence()
	if fence == nil {
		d.Finish()
	}
	if err := p.cfg.Compositor.SetBuffer(hb, fence, gpu.DataspaceBT2020HLG); err != nil {
		return err
	}
	metrics.RecordFrame(metrics.StagePreview)
	return nil
}

// compositorBuffers is the size of the compositor buffer ring: one being
// rendered plus up to two held by the compositor.
const compositorBuffers = 3

// nextHardwareBuffer returns the next buffer of the ring, reallocating it
// when the preview size changed.
func (p *Pipeline) nextHardwareBuffer(w, h int) *gpu.HardwareBuffer {
	i := p.res.nextBuffer
	p.res.nextBuffer = (i + 1) % compositorBuffers
	hb := p.res.hwBuffers[i]
	if hb == nil || hb.Width != w || hb.Height != h {
		hb = gpu.NewHardwareBuffer(w, h, gpu.FormatRGBA1010102)
		p.res.hwBuffers[i] = hb
	}
	return hb
}

func (p *Pipeline) createSyncFence() gpu.Fence {
	if !p.res.supportsFences {
		return nil
	}
	fence, err := p.dev.CreateNativeFence()
	if err != nil {
		p.logger.Warn("Failed to create native fence", "error", err)
		return nil
	}
	p.dev.Flush()
	return fence
}

func (p *Pipeline) copyRenderToEncode() error {
	if err := p.dev.MakeCurrent(p.res.encoderSurface, p.res.renderSurface); err != nil {
		return err
	}
	// Encode output is portrait: the camera frame is rendered rotated.
	vp := gpu.Rect{Width: p.cfg.Height, Height: p.cfg.Width}
	if err := p.drawStage(p.res.renderTex, p.res.renderST, vp, p.res.encode, false); err != nil {
		return err
	}
	if err := p.dev.SwapBuffers(p.res.encoderSurface); err != nil {
		return err
	}
	if p.cfg.Encoder != nil {
		p.cfg.Encoder.FrameAvailable()
	}
	metrics.RecordFrame(metrics.StageEncode)
	return nil
}

func (p *Pipeline) copyRenderToPhoto() error {
	if err := p.dev.MakeCurrent(p.res.photoSurface, p.res.renderSurface); err != nil {
		return err
	}
	vp := gpu.Rect{Width: p.cfg.Height, Height: p.cfg.Width}
	if err := p.drawStage(p.res.renderTex, p.res.renderST, vp, p.res.photo, false); err != nil {
		return err
	}
	if err := p.dev.SwapBuffers(p.res.photoSurface); err != nil {
		return err
	}
	metrics.RecordFrame(metrics.StagePhoto)
	return nil
}
