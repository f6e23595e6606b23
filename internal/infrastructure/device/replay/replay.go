// Package replay serves a directory of still frames as a camera. It runs
// the capture pipeline on hosts without a video device.
package replay

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/time/rate"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
	"github.com/kirillkom/virtual-fitting/internal/core/ports"
)

var frameExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

type Camera struct {
	dir    string
	fps    int
	strict bool
	logger *slog.Logger
}

// New returns a replay camera. With strict set, an ideal size whose aspect
// ratio differs from the frames by more than 5% is refused the way a real
// device refuses unsatisfiable constraints.
func New(dir string, fps int, strict bool, logger *slog.Logger) *Camera {
	if fps <= 0 {
		fps = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Camera{dir: dir, fps: fps, strict: strict, logger: logger}
}

func (c *Camera) HasVideoInput(context.Context) (bool, error) {
	paths, err := c.listFrames()
	if errors.Is(err, domain.ErrDeviceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(paths) > 0, nil
}

func (c *Camera) Open(ctx context.Context, constraints domain.StreamConstraints) (ports.DeviceStream, error) {
	paths, err := c.listFrames()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no frames in %s", domain.ErrDeviceNotFound, c.dir)
	}

	frames := make([]image.Image, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := imaging.Open(p, imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("replay: load frame %s: %w", filepath.Base(p), err)
		}
		frames = append(frames, img)
	}

	b := frames[0].Bounds()
	res := domain.Resolution{Width: b.Dx(), Height: b.Dy()}
	if c.strict && constraints.Ideal != nil && res.AspectDeviation(constraints.Ideal.Aspect()) > 0.05 {
		return nil, fmt.Errorf("%w: frames are %dx%d, ideal %dx%d",
			domain.ErrConstraintUnsatisfied, res.Width, res.Height, constraints.Ideal.Width, constraints.Ideal.Height)
	}

	c.logger.Debug("replay_camera_opened", "dir", c.dir, "frames", len(frames), "width", res.Width, "height", res.Height)
	return &stream{
		frames:  frames,
		res:     res,
		limiter: rate.NewLimiter(rate.Limit(c.fps), 1),
	}, nil
}

func (c *Camera) listFrames() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %v", domain.ErrDeviceNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("%w: %v", domain.ErrDeviceDenied, err)
	case err != nil:
		return nil, fmt.Errorf("replay: read dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(c.dir, e.Name()))
	}
	return paths, nil
}

type stream struct {
	frames  []image.Image
	res     domain.Resolution
	limiter *rate.Limiter

	mu     sync.Mutex
	next   int
	closed bool
}

func (s *stream) ReadFrame(ctx context.Context) (domain.Frame, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return domain.Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.Frame{}, errors.New("replay: stream closed")
	}
	img := s.frames[s.next%len(s.frames)]
	s.next++
	return domain.Frame{Image: img, CapturedAt: time.Now()}, nil
}

func (s *stream) Resolution() domain.Resolution {
	return s.res
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
