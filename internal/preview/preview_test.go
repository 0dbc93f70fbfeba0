package preview

import (
	"bytes"
	"image/jpeg"
	"testing"

	"github.com/smazurov/shadercam/internal/gpu"
)

type testFence struct{ closed bool }

func (f *testFence) Signaled() bool { return true }
func (f *testFence) Close() error {
	f.closed = true
	return nil
}

func TestSinkWindow(t *testing.T) {
	s := NewSink(4, 2)
	if w, h := s.Size(); w != 4 || h != 2 {
		t.Errorf("Size() = %dx%d, want 4x2", w, h)
	}
	if err := s.WriteJPEG(&bytes.Buffer{}, 0); err != ErrNoFrame {
		t.Errorf("WriteJPEG() before frames = %v, want %v", err, ErrNoFrame)
	}

	buf := gpu.NewBuffer(4, 2)
	buf.Dataspace = gpu.DataspaceSRGB
	if err := s.QueueBuffer(buf); err != nil {
		t.Fatalf("QueueBuffer() failed: %v", err)
	}
	got, ds, ok := s.Latest()
	if !ok || got != buf || ds != gpu.DataspaceSRGB {
		t.Errorf("Latest() = %v, %q, %v", got, ds, ok)
	}
	if s.Frames() != 1 {
		t.Errorf("Frames() = %d, want 1", s.Frames())
	}

	var out bytes.Buffer
	if err := s.WriteJPEG(&out, 80); err != nil {
		t.Fatalf("WriteJPEG() failed: %v", err)
	}
	img, err := jpeg.Decode(&out)
	if err != nil {
		t.Fatalf("jpeg.Decode() failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 2 {
		t.Errorf("decoded size = %v, want 4x2", b)
	}

	s.Reset()
	if _, _, ok := s.Latest(); ok {
		t.Error("Latest() after Reset should be empty")
	}
}

func TestSinkCompositor(t *testing.T) {
	s := NewSink(2, 2)
	hb := gpu.NewHardwareBuffer(2, 2, gpu.FormatRGBA1010102)
	hb.Pix[0] = 255
	fence := &testFence{}

	if err := s.SetBuffer(hb, fence, gpu.DataspaceBT2020HLG); err != nil {
		t.Fatalf("SetBuffer() failed: %v", err)
	}
	if !fence.closed {
		t.Error("fence not closed")
	}
	got, ds, ok := s.Latest()
	if !ok || ds != gpu.DataspaceBT2020HLG {
		t.Fatalf("Latest() = %v, %q, %v", got, ds, ok)
	}
	if got.At(0, 0)[0] != 255 {
		t.Errorf("top-left = %v, want red channel 255", got.At(0, 0))
	}
	hb.Pix[0] = 0
	if got.At(0, 0)[0] != 255 {
		t.Error("SetBuffer() aliased the hardware buffer")
	}
}
