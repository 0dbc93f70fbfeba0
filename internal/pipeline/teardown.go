package pipeline

import (
	"github.com/smazurov/shadercam/internal/gpu"
	"github.com/smazurov/shadercam/internal/shader"
	"github.com/sourcegraph/conc/panics"
)

// guard runs one teardown step. Errors and panics are logged and swallowed so
// the remaining steps still run.
func (p *Pipeline) guard(step string, fn func() error) {
	var pc panics.Catcher
	var err error
	pc.Try(func() { err = fn() })
	if r := pc.Recovered(); r != nil {
		p.logger.Error("Teardown step panicked", "step", step, "panic", r.Value)
		return
	}
	if err != nil {
		p.logger.Warn("Teardown step failed", "step", step, "error", err)
	}
}

func (p *Pipeline) destroySurface(step string, s *gpu.SurfaceID) {
	if *s == gpu.NoSurface {
		return
	}
	id := *s
	*s = gpu.NoSurface
	p.guard(step, func() error { return p.dev.DestroySurface(id) })
}

func (p *Pipeline) deleteProgram(prog **shader.Program) {
	if *prog == nil {
		return
	}
	victim := *prog
	*prog = nil
	p.guard("delete program "+victim.Label, func() error {
		victim.Delete()
		return nil
	})
}

// cleanup releases every resource, then opens all completion gates.
func (p *Pipeline) cleanup() {
	p.logger.Info("Pipeline cleanup")
	if p.recording.Load() {
		p.logger.Warn("Cleanup while recording, stopping recording first")
		p.StopRecording()
	}

	r := &p.res
	p.destroySurface("destroy encoder surface", &r.encoderSurface)
	p.destroySurface("destroy photo surface", &r.photoSurface)
	p.destroySurface("destroy render surface", &r.renderSurface)
	p.destroySurface("destroy window surface", &r.windowSurface)
	p.destroySurface("destroy pbuffer", &r.pbuffer)

	if r.cameraST != nil {
		p.guard("release camera texture", func() error {
			r.cameraST.Release()
			return nil
		})
	}
	if r.renderST != nil {
		p.guard("release render texture", func() error {
			r.renderST.Release()
			return nil
		})
	}

	p.deleteProgram(&r.passthrough)
	p.deleteProgram(&r.preview)
	p.deleteProgram(&r.encode)
	p.deleteProgram(&r.photo)
	if r.vertex != 0 {
		vs := r.vertex
		p.guard("delete vertex shader", func() error {
			p.dev.DeleteShader(vs)
			return nil
		})
	}

	for _, tex := range []gpu.TextureID{r.cameraTex, r.renderTex, r.windowTex} {
		if tex == 0 {
			continue
		}
		p.guard("delete texture", func() error {
			p.dev.DeleteTexture(tex)
			return nil
		})
	}
	if r.windowFB != 0 {
		fb := r.windowFB
		p.guard("delete framebuffer", func() error {
			p.dev.DeleteFramebuffer(fb)
			return nil
		})
	}

	if p.dev.HasContext() {
		p.guard("destroy context", p.dev.DestroyContext)
	}
	p.guard("terminate display", func() error {
		p.dev.Terminate()
		return nil
	})

	p.res = resources{}
	p.state.Store(int32(StateDestroyed))

	p.mu.Lock()
	if !p.resourcesReady.IsOpen() && p.resErr == nil {
		p.resErr = ErrStopped
	}
	p.targets = nil
	p.mu.Unlock()

	p.resourcesReady.Open()
	p.listenerCleared.Open()
	p.windowDestroyed.Open()
	p.cleanupDone.Open()
}
