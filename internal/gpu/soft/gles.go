package soft

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/smazurov/shadercam/internal/gpu"
)

var (
	declRe   = regexp.MustCompile(`(?m)^\s*(uniform|attribute|in)\s+(?:(?:lowp|mediump|highp)\s+)?\w+\s+(\w+)\s*;`)
	effectRe = regexp.MustCompile(`//\s*@effect\s+(\w+)`)
	mainRe   = regexp.MustCompile(`\bvoid\s+main\s*\(`)
)

type shader struct {
	kind     gpu.ShaderKind
	uniforms []string
	attribs  []string
	effect   string
}

type program struct {
	effect     string
	locations  map[string]int
	attribs    map[string]bool
	matrices   map[int]mgl32.Mat4
	floats     map[int]float32
	ints       map[int]int32
	attribData map[int][]float32
}

// GenTexture implements gpu.Device.
func (d *Device) GenTexture(target gpu.TextureTarget) (gpu.TextureID, error) {
	if err := d.fail("GenTexture"); err != nil {
		return 0, err
	}
	if d.clientVersion == 0 {
		return 0, gpu.ErrNoContext
	}
	id := gpu.TextureID(d.id())
	d.textures[id] = &texture{target: target}
	return id, nil
}

// DeleteTexture implements gpu.Device.
func (d *Device) DeleteTexture(id gpu.TextureID) {
	delete(d.textures, id)
	for unit, bound := range d.boundTex {
		if bound == id {
			delete(d.boundTex, unit)
		}
	}
}

// TexImage implements gpu.Device.
func (d *Device) TexImage(id gpu.TextureID, buf *gpu.Buffer) error {
	tex, ok := d.textures[id]
	if !ok {
		return gpu.ErrBadTexture
	}
	if buf == nil || len(buf.Pix) < buf.Width*buf.Height*4 {
		return gpu.ErrInvalidValue
	}
	tex.width, tex.height, tex.pix = buf.Width, buf.Height, buf.Pix
	return nil
}

// AttachHardwareBuffer implements gpu.Device. The texture aliases the buffer
// storage, so rendering into it writes the hardware buffer directly.
func (d *Device) AttachHardwareBuffer(id gpu.TextureID, hb *gpu.HardwareBuffer) error {
	tex, ok := d.textures[id]
	if !ok {
		return gpu.ErrBadTexture
	}
	if hb == nil {
		return gpu.ErrInvalidValue
	}
	tex.width, tex.height, tex.pix = hb.Width, hb.Height, hb.Pix
	return nil
}

// GenFramebuffer implements gpu.Device.
func (d *Device) GenFramebuffer() (gpu.FramebufferID, error) {
	if d.clientVersion == 0 {
		return 0, gpu.ErrNoContext
	}
	id := gpu.FramebufferID(d.id())
	d.framebuffers[id] = &framebuffer{}
	return id, nil
}

// DeleteFramebuffer implements gpu.Device.
func (d *Device) DeleteFramebuffer(id gpu.FramebufferID) {
	delete(d.framebuffers, id)
	if d.boundFB == id {
		d.boundFB = 0
	}
}

// FramebufferTexture implements gpu.Device.
func (d *Device) FramebufferTexture(fb gpu.FramebufferID, tex gpu.TextureID) error {
	f, ok := d.framebuffers[fb]
	if !ok {
		return gpu.ErrInvalidOperation
	}
	if _, ok := d.textures[tex]; !ok {
		return gpu.ErrBadTexture
	}
	f.color = tex
	return nil
}

// BindFramebuffer implements gpu.Device. Zero binds the current draw surface.
func (d *Device) BindFramebuffer(fb gpu.FramebufferID) {
	if fb != 0 {
		if _, ok := d.framebuffers[fb]; !ok {
			d.recordError(gpu.ErrInvalidOperation)
			return
		}
	}
	d.boundFB = fb
}

// CompileShader implements gpu.Device. The returned error text is the
// compiler info log.
func (d *Device) CompileShader(kind gpu.ShaderKind, src string) (gpu.ShaderID, error) {
	if d.clientVersion == 0 {
		return 0, gpu.ErrNoContext
	}
	if log := d.validate(src); log != "" {
		return 0, fmt.Errorf("%s shader: %s", kind, log)
	}

	sh := &shader{kind: kind}
	for _, m := range declRe.FindAllStringSubmatch(src, -1) {
		switch {
		case m[1] == "uniform":
			sh.uniforms = append(sh.uniforms, m[2])
		case kind == gpu.VertexShader:
			sh.attribs = append(sh.attribs, m[2])
		}
	}
	if m := effectRe.FindStringSubmatch(src); m != nil {
		sh.effect = m[1]
	}

	id := gpu.ShaderID(d.id())
	d.shaders[id] = sh
	return id, nil
}

func (d *Device) validate(src string) string {
	if !mainRe.MatchString(src) {
		return "ERROR: 0:1: 'main' : function not defined"
	}
	if strings.Count(src, "{") != strings.Count(src, "}") {
		return "ERROR: unbalanced braces"
	}
	if strings.Count(src, "(") != strings.Count(src, ")") {
		return "ERROR: unbalanced parentheses"
	}
	for i, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if msg, ok := strings.CutPrefix(trimmed, "#error"); ok {
			return fmt.Sprintf("ERROR: 0:%d: '#error' :%s", i+1, msg)
		}
		if strings.HasPrefix(trimmed, "#version 300") && d.clientVersion < 3 {
			return fmt.Sprintf("ERROR: 0:%d: version 300 es requires a GLES 3 context", i+1)
		}
		if ext, ok := strings.CutPrefix(trimmed, "#extension "); ok {
			name, _, _ := strings.Cut(ext, ":")
			name = strings.TrimSpace(name)
			if strings.HasSuffix(strings.TrimSpace(ext), "require") && !d.hasGLExtension(name) {
				return fmt.Sprintf("ERROR: 0:%d: '%s' : extension is not supported", i+1, name)
			}
		}
	}
	return ""
}

// DeleteShader implements gpu.Device.
func (d *Device) DeleteShader(id gpu.ShaderID) {
	delete(d.shaders, id)
}

// LinkProgram implements gpu.Device.
func (d *Device) LinkProgram(vs, fs gpu.ShaderID) (gpu.ProgramID, error) {
	if d.clientVersion == 0 {
		return 0, gpu.ErrNoContext
	}
	v, ok := d.shaders[vs]
	if !ok || v.kind != gpu.VertexShader {
		return 0, fmt.Errorf("link: %w: vertex shader %d", gpu.ErrInvalidValue, vs)
	}
	f, ok := d.shaders[fs]
	if !ok || f.kind != gpu.FragmentShader {
		return 0, fmt.Errorf("link: %w: fragment shader %d", gpu.ErrInvalidValue, fs)
	}

	names := slices.Concat(v.attribs, v.uniforms, f.uniforms)
	slices.Sort(names)
	names = slices.Compact(names)

	p := &program{
		effect:     f.effect,
		locations:  make(map[string]int, len(names)),
		attribs:    make(map[string]bool, len(v.attribs)),
		matrices:   make(map[int]mgl32.Mat4),
		floats:     make(map[int]float32),
		ints:       make(map[int]int32),
		attribData: make(map[int][]float32),
	}
	for i, name := range names {
		p.locations[name] = i
	}
	for _, name := range v.attribs {
		p.attribs[name] = true
	}

	id := gpu.ProgramID(d.id())
	d.programs[id] = p
	return id, nil
}

// DeleteProgram implements gpu.Device.
func (d *Device) DeleteProgram(id gpu.ProgramID) {
	delete(d.programs, id)
	if d.current == id {
		d.current = 0
	}
}

// AttribLocation implements gpu.Device.
func (d *Device) AttribLocation(id gpu.ProgramID, name string) int {
	p, ok := d.programs[id]
	if !ok {
		d.recordError(gpu.ErrInvalidValue)
		return -1
	}
	if !p.attribs[name] {
		return -1
	}
	return p.locations[name]
}

// UniformLocation implements gpu.Device.
func (d *Device) UniformLocation(id gpu.ProgramID, name string) int {
	p, ok := d.programs[id]
	if !ok {
		d.recordError(gpu.ErrInvalidValue)
		return -1
	}
	loc, ok := p.locations[name]
	if !ok || p.attribs[name] {
		return -1
	}
	return loc
}

// UseProgram implements gpu.Device.
func (d *Device) UseProgram(id gpu.ProgramID) {
	if !d.requireContext() {
		return
	}
	if id != 0 {
		if _, ok := d.programs[id]; !ok {
			d.recordError(gpu.ErrInvalidValue)
			return
		}
	}
	d.current = id
}

// ActiveTexture implements gpu.Device.
func (d *Device) ActiveTexture(unit int) {
	d.activeUnit = unit
}

// BindTexture implements gpu.Device.
func (d *Device) BindTexture(target gpu.TextureTarget, id gpu.TextureID) {
	if !d.requireContext() {
		return
	}
	if id == 0 {
		delete(d.boundTex, d.activeUnit)
		return
	}
	tex, ok := d.textures[id]
	if !ok || tex.target != target {
		d.recordError(gpu.ErrInvalidOperation)
		return
	}
	d.boundTex[d.activeUnit] = id
}

func (d *Device) currentProgram() *program {
	p, ok := d.programs[d.current]
	if !ok {
		d.recordError(gpu.ErrInvalidOperation)
		return nil
	}
	return p
}

// UniformMatrix4 implements gpu.Device.
func (d *Device) UniformMatrix4(loc int, m mgl32.Mat4) {
	if p := d.currentProgram(); p != nil && loc >= 0 {
		p.matrices[loc] = m
	}
}

// Uniform1f implements gpu.Device.
func (d *Device) Uniform1f(loc int, v float32) {
	if p := d.currentProgram(); p != nil && loc >= 0 {
		p.floats[loc] = v
	}
}

// Uniform1i implements gpu.Device.
func (d *Device) Uniform1i(loc int, v int32) {
	if p := d.currentProgram(); p != nil && loc >= 0 {
		p.ints[loc] = v
	}
}

// VertexAttribPointer implements gpu.Device.
func (d *Device) VertexAttribPointer(loc, size int, data []float32) {
	p := d.currentProgram()
	if p == nil {
		return
	}
	if loc < 0 || size != 2 {
		d.recordError(gpu.ErrInvalidValue)
		return
	}
	p.attribData[loc] = data
}

// ClearColor implements gpu.Device.
func (d *Device) ClearColor(r, g, b, a float32) {
	d.clearColor = [4]byte{unorm(r), unorm(g), unorm(b), unorm(a)}
}

// Clear implements gpu.Device.
func (d *Device) Clear() {
	pix, _, _, ok := d.target()
	if !ok {
		return
	}
	for i := 0; i+3 < len(pix); i += 4 {
		copy(pix[i:i+4], d.clearColor[:])
	}
}

// Viewport implements gpu.Device.
func (d *Device) Viewport(r gpu.Rect) {
	if r.Width < 0 || r.Height < 0 {
		d.recordError(gpu.ErrInvalidValue)
		return
	}
	d.viewport = r
}

// target returns the pixels of the current render target and whether the
// rows are stored bottom-up (framebuffer textures) or top-down (surfaces).
func (d *Device) target() (pix []byte, w, h int, ok bool) {
	if !d.requireContext() {
		return nil, 0, 0, false
	}
	if d.boundFB != 0 {
		fb := d.framebuffers[d.boundFB]
		tex, exists := d.textures[fb.color]
		if !exists || tex.pix == nil {
			d.recordError(gpu.ErrInvalidOperation)
			return nil, 0, 0, false
		}
		return tex.pix, tex.width, tex.height, true
	}
	surf, exists := d.surfaces[d.draw]
	if !exists {
		d.recordError(gpu.ErrInvalidOperation)
		return nil, 0, 0, false
	}
	return surf.pix, surf.width, surf.height, true
}

// DrawArrays implements gpu.Device. Only full-screen quads are rasterized:
// every fragment inside the viewport samples unit 0 through texMatrix.
func (d *Device) DrawArrays(mode gpu.DrawMode, first, count int) {
	p := d.currentProgram()
	if p == nil {
		return
	}
	posLoc, ok := p.locations["vPosition"]
	if !ok || len(p.attribData[posLoc]) < (first+count)*2 {
		d.recordError(gpu.ErrInvalidOperation)
		return
	}
	src, ok := d.textures[d.boundTex[0]]
	if !ok || src.pix == nil {
		d.recordError(gpu.ErrInvalidOperation)
		return
	}
	dst, w, h, ok := d.target()
	if !ok {
		return
	}

	texMatrix := mgl32.Ident4()
	if loc, ok := p.locations["texMatrix"]; ok {
		texMatrix = p.mat4(loc)
	}
	bottomUp := d.boundFB != 0
	fx := effectFor(p.effect)

	v := d.viewport
	x0, x1 := max(v.X, 0), min(v.X+v.Width, w)
	y0, y1 := max(v.Y, 0), min(v.Y+v.Height, h)
	for gy := y0; gy < y1; gy++ {
		row := h - 1 - gy
		if bottomUp {
			row = gy
		}
		t := (float32(gy-v.Y) + 0.5) / float32(v.Height)
		for gx := x0; gx < x1; gx++ {
			s := (float32(gx-v.X) + 0.5) / float32(v.Width)
			st := texMatrix.Mul4x1(mgl32.Vec4{s, t, 0, 1})
			c := sample(src, st.X(), st.Y())
			i := (row*w + gx) * 4
			copy(dst[i:i+4], fx(c).slice())
		}
	}

	if !bottomUp {
		if surf, ok := d.surfaces[d.draw]; ok {
			surf.lastProgram = p.effect
			if surf.lastProgram == "" {
				surf.lastProgram = "passthrough"
			}
		}
	}
	d.drawCount.Add(1)
}

type rgba [4]byte

func (c rgba) slice() []byte { return c[:] }

// sample does clamp-to-edge nearest sampling. Texture rows are stored top row
// first, so t=1 addresses row 0.
func sample(tex *texture, s, t float32) rgba {
	s = mgl32.Clamp(s, 0, 1)
	t = mgl32.Clamp(t, 0, 1)
	x := min(int(s*float32(tex.width)), tex.width-1)
	y := min(int((1-t)*float32(tex.height)), tex.height-1)
	i := (y*tex.width + x) * 4
	return rgba{tex.pix[i], tex.pix[i+1], tex.pix[i+2], tex.pix[i+3]}
}

func unorm(v float32) byte {
	return byte(mgl32.Clamp(v, 0, 1)*255 + 0.5)
}
