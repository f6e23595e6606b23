package usecase

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
	"github.com/kirillkom/virtual-fitting/internal/core/ports"
)

type cameraFake struct {
	mu          sync.Mutex
	calls       []domain.StreamConstraints
	idealErr    error
	fallbackErr error
	stream      *streamFake
}

func (f *cameraFake) Open(_ context.Context, c domain.StreamConstraints) (ports.DeviceStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if c.Ideal != nil && f.idealErr != nil {
		return nil, f.idealErr
	}
	if c.Ideal == nil && f.fallbackErr != nil {
		return nil, f.fallbackErr
	}
	return f.stream, nil
}

func (f *cameraFake) openCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// streamFake delivers a solid frame every couple of milliseconds.
type streamFake struct {
	res       domain.Resolution
	readErr   error
	delivered atomic.Int64
	closed    atomic.Int64
	applied   atomic.Int64
	applyErr  error
}

func newStreamFake(w, h int) *streamFake {
	return &streamFake{res: domain.Resolution{Width: w, Height: h}}
}

func (s *streamFake) ReadFrame(ctx context.Context) (domain.Frame, error) {
	select {
	case <-ctx.Done():
		return domain.Frame{}, ctx.Err()
	case <-time.After(2 * time.Millisecond):
	}
	if s.readErr != nil {
		return domain.Frame{}, s.readErr
	}
	w, h := s.res.Width, s.res.Height
	if w <= 0 || h <= 0 {
		w, h = 4, 4
	}
	s.delivered.Add(1)
	return domain.Frame{Image: image.NewRGBA(image.Rect(0, 0, w, h)), CapturedAt: time.Now()}, nil
}

func (s *streamFake) Resolution() domain.Resolution { return s.res }

func (s *streamFake) Close() error {
	s.closed.Add(1)
	return nil
}

func (s *streamFake) ApplyConstraints(context.Context, domain.StreamConstraints) error {
	s.applied.Add(1)
	return s.applyErr
}

type encoderFake struct {
	beginErr  error
	writeErr  error
	written   atomic.Int64
	aborted   atomic.Int64
	lastBegin atomic.Pointer[domain.Resolution]
}

func (e *encoderFake) Begin(w, h, _ int) (ports.ClipWriter, error) {
	if e.beginErr != nil {
		return nil, e.beginErr
	}
	e.lastBegin.Store(&domain.Resolution{Width: w, Height: h})
	return &clipWriterFake{enc: e}, nil
}

func (e *encoderFake) MIMEType() string { return "video/x-msvideo" }

type clipWriterFake struct {
	enc    *encoderFake
	frames int
}

func (w *clipWriterFake) WriteFrame(image.Image) error {
	if w.enc.writeErr != nil {
		return w.enc.writeErr
	}
	w.frames++
	w.enc.written.Add(1)
	return nil
}

func (w *clipWriterFake) Finish() ([]byte, error) {
	if w.frames == 0 {
		return nil, errors.New("empty")
	}
	return []byte("RIFF-clip"), nil
}

func (w *clipWriterFake) Abort() { w.enc.aborted.Add(1) }

type projectorFake struct{}

func (projectorFake) Project(_ image.Image, target domain.Resolution) image.Image {
	return image.NewRGBA(image.Rect(0, 0, target.Width, target.Height))
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}
