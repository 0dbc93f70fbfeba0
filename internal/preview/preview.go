// Package preview holds the most recent preview frame so it can be served
// as a still image.
package preview

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/disintegration/imaging"

	"github.com/smazurov/shadercam/internal/gpu"
	"github.com/smazurov/shadercam/internal/media"
)

// ErrNoFrame is returned before the first frame arrived.
var ErrNoFrame = errors.New("no preview frame yet")

// Sink is the preview consumer. It is both a window (regular path) and a
// compositor (HLG workaround path).
type Sink struct {
	width  int
	height int

	mu        sync.Mutex
	latest    *gpu.Buffer
	dataspace gpu.Dataspace
	frames    atomic.Uint64
}

// NewSink creates a preview sink of the given size.
func NewSink(width, height int) *Sink {
	return &Sink{width: width, height: height}
}

// Size implements gpu.Window.
func (s *Sink) Size() (int, int) {
	return s.width, s.height
}

// QueueBuffer implements gpu.Window.
func (s *Sink) QueueBuffer(buf *gpu.Buffer) error {
	s.mu.Lock()
	s.latest = buf
	s.dataspace = buf.Dataspace
	s.mu.Unlock()
	s.frames.Add(1)
	return nil
}

// SetBuffer implements gpu.Compositor.
func (s *Sink) SetBuffer(hb *gpu.HardwareBuffer, fence gpu.Fence, ds gpu.Dataspace) error {
	if fence != nil {
		defer fence.Close()
	}
	// The pipeline flips off-screen renders, so rows are already top-down.
	buf := gpu.NewBuffer(hb.Width, hb.Height)
	copy(buf.Pix, hb.Pix)
	buf.Dataspace = ds
	return s.QueueBuffer(buf)
}

// Frames returns the number of frames received.
func (s *Sink) Frames() uint64 {
	return s.frames.Load()
}

// Latest returns the most recent frame and its dataspace.
func (s *Sink) Latest() (*gpu.Buffer, gpu.Dataspace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.dataspace, s.latest != nil
}

// WriteJPEG encodes the latest frame.
func (s *Sink) WriteJPEG(w io.Writer, quality int) error {
	buf, _, ok := s.Latest()
	if !ok {
		return ErrNoFrame
	}
	if quality <= 0 {
		quality = media.DefaultJPEGQuality
	}
	return imaging.Encode(w, media.BufferImage(buf), imaging.JPEG, imaging.JPEGQuality(quality))
}

// Reset drops the latest frame, e.g. after the camera switched.
func (s *Sink) Reset() {
	s.mu.Lock()
	s.latest = nil
	s.dataspace = gpu.DataspaceUnknown
	s.mu.Unlock()
}
