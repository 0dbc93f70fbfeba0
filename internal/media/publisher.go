package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/smazurov/shadercam/internal/logging"
)

// Publisher makes a finished file visible to the user (gallery, share
// target, upload). It returns the published location.
type Publisher interface {
	Publish(ctx context.Context, path string, kind Kind) (string, error)
}

// DirPublisher copies files into per-kind subdirectories of a library
// directory: <root>/videos and <root>/photos.
type DirPublisher struct {
	root   string
	logger logging.Logger
}

// NewDirPublisher creates a publisher rooted at root.
func NewDirPublisher(root string) *DirPublisher {
	return &DirPublisher{root: root, logger: logging.GetLogger("media")}
}

// Publish implements Publisher.
func (p *DirPublisher) Publish(ctx context.Context, path string, kind Kind) (string, error) {
	dir := filepath.Join(p.root, string(kind)+"s")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create library dir: %w", err)
	}
	dst := filepath.Join(dir, filepath.Base(path))
	if dst == path {
		return dst, nil
	}

	n, err := copyFile(ctx, path, dst)
	if err != nil {
		_ = os.Remove(dst)
		return "", err
	}
	p.logger.Info("Published media", "kind", kind, "path", dst, "size", humanize.Bytes(uint64(n)))
	return dst, nil
}

func copyFile(ctx context.Context, src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, &ctxReader{ctx: ctx, r: in})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}
	return n, nil
}

// ctxReader aborts a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
