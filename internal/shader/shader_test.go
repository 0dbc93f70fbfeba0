package shader

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/smazurov/shadercam/internal/gpu"
	"github.com/smazurov/shadercam/internal/gpu/soft"
)

func newDevice(t *testing.T) *soft.Device {
	t.Helper()
	dev := soft.New(soft.Options{})
	if _, err := dev.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	cfg, err := dev.ChooseConfig(gpu.ConfigSpec{ClientVersion: 2, RedBits: 8, GreenBits: 8, BlueBits: 8, AlphaBits: 8})
	if err != nil {
		t.Fatalf("ChooseConfig() error = %v", err)
	}
	if err := dev.CreateContext(cfg, 2); err != nil {
		t.Fatalf("CreateContext() error = %v", err)
	}
	return dev
}

func TestBuild_BuiltinShaders(t *testing.T) {
	dev := newDevice(t)
	lib := NewLibrary("")

	names, err := lib.Names()
	if err != nil {
		t.Fatalf("Names() error = %v", err)
	}
	want := []string{"grayscale", "invert", "noise", "passthrough", "sepia"}
	if !slices.Equal(names, want) {
		t.Errorf("Names() = %v, want %v", names, want)
	}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			src, err := lib.Load(name)
			if err != nil {
				t.Fatalf("Load(%q) error = %v", name, err)
			}
			vs, err := CompileVertex(dev, src.Vertex)
			if err != nil {
				t.Fatalf("CompileVertex() error = %v", err)
			}
			p, err := Build(dev, vs, src.Fragment, name)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			p.Use()
			p.SetTexMatrix(gpu.FlipVertical)
			p.SetData(FullscreenQuad, 90)
			if err := dev.GetError(); err != nil {
				t.Errorf("GetError() = %v, want nil", err)
			}
			p.Delete()
			p.Delete()
		})
	}
}

func TestBuild_Failures(t *testing.T) {
	dev := newDevice(t)
	src, err := NewLibrary("").Load(Default)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	vs, err := CompileVertex(dev, src.Vertex)
	if err != nil {
		t.Fatalf("CompileVertex() error = %v", err)
	}

	tests := []struct {
		name      string
		fragment  string
		wantStage string
		wantLog   string
	}{
		{
			name:      "syntax",
			fragment:  "void main() {",
			wantStage: "fragment",
		},
		{
			name: "missing uniforms",
			fragment: `precision mediump float;
uniform float iTime;
void main() {}`,
			wantStage: "locations",
			wantLog:   "iRand, orientation",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(dev, vs, tt.fragment, "broken")
			var compErr *CompilationError
			if !errors.As(err, &compErr) {
				t.Fatalf("Build() error = %v, want *CompilationError", err)
			}
			if compErr.Stage != tt.wantStage {
				t.Errorf("Stage = %q, want %q", compErr.Stage, tt.wantStage)
			}
			if compErr.Label != "broken" {
				t.Errorf("Label = %q, want %q", compErr.Label, "broken")
			}
			if tt.wantLog != "" && !strings.Contains(compErr.Log, tt.wantLog) {
				t.Errorf("Log = %q, want it to contain %q", compErr.Log, tt.wantLog)
			}
		})
	}

	_, _, programs := dev.LiveObjects()
	if programs != 0 {
		t.Errorf("live programs after failed builds = %d, want 0", programs)
	}
}

func TestLibrary_Override(t *testing.T) {
	dir := t.TempDir()
	custom := "// @effect invert\nvoid main() {}\n"
	if err := os.WriteFile(filepath.Join(dir, "mine.frag"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sepia.frag"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	lib := NewLibrary(dir)

	src, err := lib.Load("sepia")
	if err != nil {
		t.Fatalf("Load(sepia) error = %v", err)
	}
	if src.Fragment != custom {
		t.Errorf("Load(sepia) did not prefer the directory override")
	}
	if !strings.Contains(src.Vertex, "vPosition") {
		t.Errorf("Load(sepia) vertex = %q, want embedded vertex shader", src.Vertex)
	}

	names, err := lib.Names()
	if err != nil {
		t.Fatalf("Names() error = %v", err)
	}
	if !slices.Contains(names, "mine") {
		t.Errorf("Names() = %v, want it to include %q", names, "mine")
	}
	if got := lib.Path("mine"); got != filepath.Join(dir, "mine.frag") {
		t.Errorf("Path() = %q", got)
	}
}

func TestLibrary_UnknownNames(t *testing.T) {
	lib := NewLibrary(t.TempDir())
	for _, name := range []string{"missing", "../etc/passwd", "", "UPPER"} {
		if _, err := lib.Load(name); !errors.Is(err, ErrUnknownShader) {
			t.Errorf("Load(%q) error = %v, want ErrUnknownShader", name, err)
		}
	}
}

func TestValidateAll(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.frag"), []byte("void main() {"), 0o644); err != nil {
		t.Fatal(err)
	}
	sepia, err := Builtin("sepia")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sepia.frag"), []byte(sepia.Fragment), 0o644); err != nil {
		t.Fatal(err)
	}

	dev := newDevice(t)
	results, err := ValidateAll(dev, NewLibrary(dir))
	if err != nil {
		t.Fatalf("ValidateAll() error = %v", err)
	}

	byName := make(map[string]Result, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}
	if len(byName) != 6 {
		t.Fatalf("ValidateAll() returned %d results, want 6", len(byName))
	}

	tests := []struct {
		name       string
		wantOK     bool
		wantOrigin string
		wantStage  string
	}{
		{name: "broken", wantOK: false, wantOrigin: OriginOverride, wantStage: "fragment"},
		{name: "sepia", wantOK: true, wantOrigin: OriginOverride},
		{name: "invert", wantOK: true, wantOrigin: OriginBuiltin},
		{name: "passthrough", wantOK: true, wantOrigin: OriginBuiltin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := byName[tt.name]
			if !ok {
				t.Fatalf("no result for %q", tt.name)
			}
			if r.OK != tt.wantOK {
				t.Errorf("OK = %v, want %v (error %q)", r.OK, tt.wantOK, r.Error)
			}
			if r.Origin != tt.wantOrigin {
				t.Errorf("Origin = %q, want %q", r.Origin, tt.wantOrigin)
			}
			if r.Stage != tt.wantStage {
				t.Errorf("Stage = %q, want %q", r.Stage, tt.wantStage)
			}
			if !r.OK && r.Error == "" {
				t.Error("failed result has no error text")
			}
		})
	}

	_, _, programs := dev.LiveObjects()
	if programs != 0 {
		t.Errorf("live programs after validation = %d, want 0", programs)
	}
}
