package gpu

import (
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// SurfaceTexture is a buffer queue whose consumer is an external texture.
// Producers queue buffers from any goroutine; only the owning GPU goroutine
// may call UpdateTexImage.
//
// At most one buffer is pending: queueing a new buffer before the previous
// one was latched replaces it.
type SurfaceTexture struct {
	dev Device
	tex TextureID

	mu        sync.Mutex
	width     int
	height    int
	pending   *Buffer
	dropped   uint64
	listener  func()
	released  bool
	transform mgl32.Mat4
	timestamp time.Duration
}

// NewSurfaceTexture wraps an external texture in a buffer queue.
func NewSurfaceTexture(dev Device, tex TextureID) *SurfaceTexture {
	return &SurfaceTexture{
		dev:       dev,
		tex:       tex,
		transform: mgl32.Ident4(),
	}
}

// Texture returns the backing texture handle.
func (s *SurfaceTexture) Texture() TextureID {
	return s.tex
}

// SetDefaultBufferSize sets the size producers should render at.
func (s *SurfaceTexture) SetDefaultBufferSize(width, height int) {
	s.mu.Lock()
	s.width, s.height = width, height
	s.mu.Unlock()
}

// Size implements Window.
func (s *SurfaceTexture) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// SetOnFrameAvailable sets the callback invoked after each queued buffer.
// A nil listener clears it.
func (s *SurfaceTexture) SetOnFrameAvailable(fn func()) {
	s.mu.Lock()
	s.listener = fn
	s.mu.Unlock()
}

// QueueBuffer implements Window.
func (s *SurfaceTexture) QueueBuffer(buf *Buffer) error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return ErrSurfaceTexRelease
	}
	if s.pending != nil {
		s.dropped++
	}
	s.pending = buf
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		listener()
	}
	return nil
}

// Dropped returns the number of buffers replaced before being latched.
func (s *SurfaceTexture) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// UpdateTexImage latches the most recent buffer into the texture.
// Returns false when no new buffer was pending.
func (s *SurfaceTexture) UpdateTexImage() (bool, error) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return false, ErrSurfaceTexRelease
	}
	buf := s.pending
	s.pending = nil
	s.mu.Unlock()

	if buf == nil {
		return false, nil
	}
	if err := s.dev.TexImage(s.tex, buf); err != nil {
		return false, err
	}

	transform := buf.Transform
	if transform == (mgl32.Mat4{}) {
		transform = mgl32.Ident4()
	}

	s.mu.Lock()
	s.transform = transform
	s.timestamp = buf.Timestamp
	s.mu.Unlock()
	return true, nil
}

// TransformMatrix returns the sampling transform of the latched buffer.
func (s *SurfaceTexture) TransformMatrix() mgl32.Mat4 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transform
}

// Timestamp returns the timestamp of the latched buffer.
func (s *SurfaceTexture) Timestamp() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timestamp
}

// Release detaches the queue. Producers get ErrSurfaceTexRelease afterwards.
func (s *SurfaceTexture) Release() {
	s.mu.Lock()
	s.released = true
	s.pending = nil
	s.listener = nil
	s.mu.Unlock()
}
