// Package mjpeg records clips as Motion-JPEG AVI files.
package mjpeg

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	aviwriter "github.com/icza/mjpeg"

	"github.com/kirillkom/virtual-fitting/internal/core/ports"
)

const MIMEType = "video/x-msvideo"

type Encoder struct {
	dir     string
	quality int
}

// New returns an encoder that spools clips under dir. An empty dir uses the
// system temp directory.
func New(dir string, quality int) *Encoder {
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &Encoder{dir: dir, quality: quality}
}

func (e *Encoder) MIMEType() string {
	return MIMEType
}

func (e *Encoder) Begin(width, height, fps int) (ports.ClipWriter, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("mjpeg: invalid frame size %dx%d", width, height)
	}
	if fps <= 0 {
		fps = 30
	}
	f, err := os.CreateTemp(e.dir, "clip-*.avi")
	if err != nil {
		return nil, fmt.Errorf("mjpeg: create spool file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("mjpeg: close spool file: %w", err)
	}

	aw, err := aviwriter.New(path, int32(width), int32(height), int32(fps))
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("mjpeg: open avi writer: %w", err)
	}
	return &writer{aw: aw, path: path, quality: e.quality}, nil
}

type writer struct {
	mu      sync.Mutex
	aw      aviwriter.AviWriter
	path    string
	quality int
	buf     bytes.Buffer
	closed  bool
}

func (w *writer) WriteFrame(img image.Image) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("mjpeg: writer closed")
	}
	w.buf.Reset()
	if err := imaging.Encode(&w.buf, img, imaging.JPEG, imaging.JPEGQuality(w.quality)); err != nil {
		return fmt.Errorf("mjpeg: encode frame: %w", err)
	}
	if err := w.aw.AddFrame(w.buf.Bytes()); err != nil {
		return fmt.Errorf("mjpeg: add frame: %w", err)
	}
	return nil
}

func (w *writer) Finish() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, errors.New("mjpeg: writer closed")
	}
	w.closed = true
	defer os.Remove(w.path)

	if err := w.aw.Close(); err != nil {
		return nil, fmt.Errorf("mjpeg: finalize avi: %w", err)
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("mjpeg: read clip: %w", err)
	}
	return data, nil
}

func (w *writer) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	_ = w.aw.Close()
	_ = os.Remove(w.path)
}
