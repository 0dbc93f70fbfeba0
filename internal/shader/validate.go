package shader

import (
	"errors"
	"os"
	"time"

	"github.com/smazurov/shadercam/internal/gpu"
)

// Origins of a shader source.
const (
	OriginBuiltin  = "builtin"
	OriginOverride = "override"
)

// Result is the outcome of compiling one shader.
type Result struct {
	Name     string        `toml:"name" json:"name"`
	Origin   string        `toml:"origin" json:"origin"`
	OK       bool          `toml:"ok" json:"ok"`
	Stage    string        `toml:"stage,omitempty" json:"stage,omitempty"`
	Error    string        `toml:"error,omitempty" json:"error,omitempty"`
	Duration time.Duration `toml:"-" json:"duration"`
}

// ValidateAll compiles and links every shader in l on dev, which must have a
// current context. A broken vertex shader fails the whole run.
func ValidateAll(dev gpu.Device, l *Library) ([]Result, error) {
	names, err := l.Names()
	if err != nil {
		return nil, err
	}
	src, err := Builtin(Default)
	if err != nil {
		return nil, err
	}
	vertex, err := CompileVertex(dev, src.Vertex)
	if err != nil {
		return nil, err
	}
	defer dev.DeleteShader(vertex)

	results := make([]Result, 0, len(names))
	for _, name := range names {
		results = append(results, l.validate(dev, vertex, name))
	}
	return results, nil
}

func (l *Library) validate(dev gpu.Device, vertex gpu.ShaderID, name string) Result {
	res := Result{Name: name, Origin: OriginBuiltin}
	if path := l.Path(name); path != "" {
		if _, err := os.Stat(path); err == nil {
			res.Origin = OriginOverride
		}
	}

	start := time.Now()
	src, err := l.Load(name)
	if err == nil {
		var p *Program
		if p, err = Build(dev, vertex, src.Fragment, name); err == nil {
			p.Delete()
		}
	}
	res.Duration = time.Since(start)

	if err != nil {
		res.Error = err.Error()
		var ce *CompilationError
		if errors.As(err, &ce) {
			res.Stage = ce.Stage
			res.Error = ce.Log
		}
		return res
	}
	res.OK = true
	return res
}
