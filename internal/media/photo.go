package media

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/smazurov/shadercam/internal/gpu"
	"github.com/smazurov/shadercam/internal/logging"
)

// ErrReaderClosed is returned when a buffer is queued on a closed reader.
var ErrReaderClosed = errors.New("photo reader closed")

// DefaultJPEGQuality is used when PhotoOptions.Quality is zero.
const DefaultJPEGQuality = 95

// Photo describes a saved photo.
type Photo struct {
	Path        string
	Width       int
	Height      int
	Orientation int
}

// PhotoOptions configure a PhotoReader.
type PhotoOptions struct {
	// Orientation returns the device orientation in degrees at save time.
	Orientation func() int
	OnPhoto     func(Photo)
	OnError     func(error)
	Quality     int
}

// PhotoReader is a two-deep buffer queue that saves every frame it receives
// as a JPEG. When frames arrive faster than they are saved only the latest
// pending one is kept.
type PhotoReader struct {
	width  int
	height int
	store  *Store
	opts   PhotoOptions
	logger logging.Logger

	mu     sync.Mutex
	closed bool
	queue  chan *gpu.Buffer
	done   chan struct{}
}

// NewPhotoReader creates a reader accepting width x height buffers.
func NewPhotoReader(width, height int, store *Store, opts PhotoOptions) *PhotoReader {
	if opts.Quality <= 0 {
		opts.Quality = DefaultJPEGQuality
	}
	r := &PhotoReader{
		width:  width,
		height: height,
		store:  store,
		opts:   opts,
		logger: logging.GetLogger("media"),
		queue:  make(chan *gpu.Buffer, 2),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Size implements gpu.Window.
func (r *PhotoReader) Size() (int, int) {
	return r.width, r.height
}

// QueueBuffer implements gpu.Window.
func (r *PhotoReader) QueueBuffer(buf *gpu.Buffer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrReaderClosed
	}
	select {
	case r.queue <- buf:
		return nil
	default:
	}
	// Full: discard the oldest pending frame.
	select {
	case <-r.queue:
		r.logger.Debug("Dropping stale photo frame")
	default:
	}
	r.queue <- buf
	return nil
}

// Close stops the reader after pending photos are saved.
func (r *PhotoReader) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *PhotoReader) run() {
	defer close(r.done)
	for buf := range r.queue {
		photo, err := r.save(buf)
		if err != nil {
			r.logger.Error("Failed to save photo", "error", err)
			if r.opts.OnError != nil {
				r.opts.OnError(err)
			}
			continue
		}
		r.logger.Info("Photo saved", "path", photo.Path, "orientation", photo.Orientation)
		if r.opts.OnPhoto != nil {
			r.opts.OnPhoto(photo)
		}
	}
}

func (r *PhotoReader) save(buf *gpu.Buffer) (Photo, error) {
	if buf.Width*buf.Height*4 > len(buf.Pix) || buf.Width <= 0 || buf.Height <= 0 {
		return Photo{}, fmt.Errorf("invalid photo buffer %dx%d", buf.Width, buf.Height)
	}
	orientation := 0
	if r.opts.Orientation != nil {
		orientation = r.opts.Orientation()
	}
	img := Orient(BufferImage(buf), orientation)
	path := r.store.PhotoPath()
	if err := imaging.Save(img, path, imaging.JPEGQuality(r.opts.Quality)); err != nil {
		return Photo{}, fmt.Errorf("write %s: %w", path, err)
	}
	b := img.Bounds()
	return Photo{Path: path, Width: b.Dx(), Height: b.Dy(), Orientation: orientation}, nil
}

// BufferImage wraps a frame's pixels without copying.
func BufferImage(buf *gpu.Buffer) *image.NRGBA {
	return &image.NRGBA{
		Pix:    buf.Pix,
		Stride: buf.Width * 4,
		Rect:   image.Rect(0, 0, buf.Width, buf.Height),
	}
}

// Orient rotates img clockwise by degrees so it displays upright, the way
// an EXIF orientation tag of the same value would.
func Orient(img image.Image, degrees int) *image.NRGBA {
	switch degrees {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return imaging.Clone(img)
	}
}
