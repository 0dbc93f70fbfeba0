package shader

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

//go:embed glsl/*.vert glsl/*.frag
var builtin embed.FS

// Default is the shader selected when none is configured.
const Default = "passthrough"

// ErrUnknownShader is returned for names with no source.
var ErrUnknownShader = errors.New("unknown shader")

var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Source is a resolved shader pair.
type Source struct {
	Name     string
	Vertex   string
	Fragment string
}

// Library resolves shader names. Fragment sources in Dir override the
// embedded set; the vertex shader is always the embedded one.
type Library struct {
	Dir string
}

// NewLibrary returns a library reading overrides from dir. An empty dir
// serves only the embedded shaders.
func NewLibrary(dir string) *Library {
	return &Library{Dir: dir}
}

// Path returns the on-disk override path for name, or "" without a Dir.
func (l *Library) Path(name string) string {
	if l.Dir == "" {
		return ""
	}
	return filepath.Join(l.Dir, name+".frag")
}

// Load resolves name to its vertex and fragment sources.
func (l *Library) Load(name string) (Source, error) {
	if !nameRe.MatchString(name) {
		return Source{}, fmt.Errorf("%w: invalid name %q", ErrUnknownShader, name)
	}

	vertex, err := builtin.ReadFile("glsl/camera.vert")
	if err != nil {
		return Source{}, fmt.Errorf("load vertex shader: %w", err)
	}
	fragment, err := l.read(name + ".frag")
	if errors.Is(err, fs.ErrNotExist) {
		return Source{}, fmt.Errorf("%w: %s", ErrUnknownShader, name)
	}
	if err != nil {
		return Source{}, fmt.Errorf("load shader %s: %w", name, err)
	}
	return Source{Name: name, Vertex: string(vertex), Fragment: fragment}, nil
}

func (l *Library) read(file string) (string, error) {
	if l.Dir != "" {
		data, err := os.ReadFile(filepath.Join(l.Dir, file))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	data, err := builtin.ReadFile("glsl/" + file)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Builtin resolves name from the embedded set only, ignoring overrides.
func Builtin(name string) (Source, error) {
	return (&Library{}).Load(name)
}

// Names lists every available fragment shader, sorted.
func (l *Library) Names() ([]string, error) {
	var names []string
	collect := func(entries []fs.DirEntry) {
		for _, e := range entries {
			if name, ok := strings.CutSuffix(e.Name(), ".frag"); ok && !e.IsDir() && nameRe.MatchString(name) {
				names = append(names, name)
			}
		}
	}

	entries, err := builtin.ReadDir("glsl")
	if err != nil {
		return nil, err
	}
	collect(entries)

	if l.Dir != "" {
		entries, err := os.ReadDir(l.Dir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read shader dir: %w", err)
		}
		collect(entries)
	}

	slices.Sort(names)
	return slices.Compact(names), nil
}
