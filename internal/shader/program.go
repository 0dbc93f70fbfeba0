// Package shader builds the GPU programs used by the frame pipeline and
// resolves shader names to GLSL sources.
package shader

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/smazurov/shadercam/internal/gpu"
)

// Attribute and uniform names every program must declare.
const (
	AttribPosition     = "vPosition"
	UniformTexMatrix   = "texMatrix"
	UniformMVP         = "uMVPMatrix"
	UniformTime        = "iTime"
	UniformRand        = "iRand"
	UniformOrientation = "orientation"
)

// FullscreenQuad is the triangle-strip quad covering clip space.
var FullscreenQuad = []float32{
	-1, -1,
	1, -1,
	-1, 1,
	1, 1,
}

// CompilationError is returned when a shader fails to compile, link, or
// expose the required locations.
type CompilationError struct {
	Stage string // vertex, fragment, link or locations
	Label string
	Log   string
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("shader %q: %s failed: %s", e.Label, e.Stage, e.Log)
}

// Program is a linked program plus its cached locations.
type Program struct {
	dev   gpu.Device
	ID    gpu.ProgramID
	Label string

	position    int
	texMatrix   int
	mvp         int
	time        int
	rand        int
	orientation int

	start time.Time
}

// CompileVertex compiles the shared vertex shader.
func CompileVertex(dev gpu.Device, src string) (gpu.ShaderID, error) {
	id, err := dev.CompileShader(gpu.VertexShader, src)
	if err != nil {
		return 0, &CompilationError{Stage: "vertex", Label: "vertex", Log: err.Error()}
	}
	return id, nil
}

// Build compiles fragmentSrc, links it against vertex and resolves the six
// locations. Nothing is left allocated on failure.
func Build(dev gpu.Device, vertex gpu.ShaderID, fragmentSrc, label string) (*Program, error) {
	fs, err := dev.CompileShader(gpu.FragmentShader, fragmentSrc)
	if err != nil {
		return nil, &CompilationError{Stage: "fragment", Label: label, Log: err.Error()}
	}
	// The program keeps its own reference; the fragment object can go.
	defer dev.DeleteShader(fs)

	id, err := dev.LinkProgram(vertex, fs)
	if err != nil {
		return nil, &CompilationError{Stage: "link", Label: label, Log: err.Error()}
	}

	p := &Program{
		dev:         dev,
		ID:          id,
		Label:       label,
		position:    dev.AttribLocation(id, AttribPosition),
		texMatrix:   dev.UniformLocation(id, UniformTexMatrix),
		mvp:         dev.UniformLocation(id, UniformMVP),
		time:        dev.UniformLocation(id, UniformTime),
		rand:        dev.UniformLocation(id, UniformRand),
		orientation: dev.UniformLocation(id, UniformOrientation),
		start:       time.Now(),
	}

	var missing []string
	for name, loc := range map[string]int{
		AttribPosition:     p.position,
		UniformTexMatrix:   p.texMatrix,
		UniformMVP:         p.mvp,
		UniformTime:        p.time,
		UniformRand:        p.rand,
		UniformOrientation: p.orientation,
	} {
		if loc < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		dev.DeleteProgram(id)
		slices.Sort(missing)
		return nil, &CompilationError{
			Stage: "locations",
			Label: label,
			Log:   "missing " + strings.Join(missing, ", "),
		}
	}
	return p, nil
}

// Use binds the program.
func (p *Program) Use() {
	p.dev.UseProgram(p.ID)
}

// SetTexMatrix uploads the per-frame sampling transform.
func (p *Program) SetTexMatrix(m mgl32.Mat4) {
	p.dev.UniformMatrix4(p.texMatrix, m)
}

// SetData uploads the quad geometry, identity MVP, time, a fresh random
// seed and the orientation in degrees. The program must be in use.
func (p *Program) SetData(quad []float32, orientation int) {
	p.dev.VertexAttribPointer(p.position, 2, quad)
	p.dev.UniformMatrix4(p.mvp, mgl32.Ident4())
	p.dev.Uniform1f(p.time, float32(time.Since(p.start).Seconds()))
	p.dev.Uniform1f(p.rand, rand.Float32())
	p.dev.Uniform1f(p.orientation, float32(orientation))
}

// Delete releases the program.
func (p *Program) Delete() {
	if p == nil || p.ID == 0 {
		return
	}
	p.dev.DeleteProgram(p.ID)
	p.ID = 0
}
