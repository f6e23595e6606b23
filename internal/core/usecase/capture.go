package usecase

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
	"github.com/kirillkom/virtual-fitting/internal/core/ports"
)

const (
	capturePathDirect      = "direct"
	capturePathReprojected = "reprojected"
)

type CaptureConfig struct {
	Preferred       domain.Resolution
	TargetAspect    float64
	AspectTolerance float64
	Canvas          domain.Resolution
	FPS             int
	Duration        time.Duration
}

func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		Preferred:       domain.Resolution{Width: 720, Height: 1280},
		TargetAspect:    9.0 / 16.0,
		AspectTolerance: 0.05,
		Canvas:          domain.Resolution{Width: 720, Height: 1280},
		FPS:             30,
		Duration:        4 * time.Second,
	}
}

// CaptureController acquires camera streams and records fixed-length clips.
// Only one recording runs at a time per controller.
type CaptureController struct {
	camera    ports.Camera
	encoder   ports.ClipEncoder
	projector ports.FrameProjector
	clock     clockwork.Clock
	metrics   ports.ClientMetrics
	logger    *slog.Logger
	cfg       CaptureConfig

	recording atomic.Bool
}

func NewCaptureController(
	camera ports.Camera,
	encoder ports.ClipEncoder,
	projector ports.FrameProjector,
	clock clockwork.Clock,
	metrics ports.ClientMetrics,
	logger *slog.Logger,
	cfg CaptureConfig,
) *CaptureController {
	def := DefaultCaptureConfig()
	if !cfg.Preferred.Valid() {
		cfg.Preferred = def.Preferred
	}
	if cfg.TargetAspect <= 0 {
		cfg.TargetAspect = def.TargetAspect
	}
	if cfg.AspectTolerance <= 0 {
		cfg.AspectTolerance = def.AspectTolerance
	}
	if !cfg.Canvas.Valid() {
		cfg.Canvas = def.Canvas
	}
	if cfg.FPS <= 0 {
		cfg.FPS = def.FPS
	}
	if cfg.Duration <= 0 {
		cfg.Duration = def.Duration
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CaptureController{
		camera:    camera,
		encoder:   encoder,
		projector: projector,
		clock:     clock,
		metrics:   metricsOrNop(metrics),
		logger:    loggerOrDefault(logger),
		cfg:       cfg,
	}
}

func (c *CaptureController) Config() CaptureConfig {
	return c.cfg
}

// Acquire opens the camera with preferred as the ideal size. When the device
// cannot satisfy it and fallbackAllowed is set, an unconstrained stream is
// requested instead.
func (c *CaptureController) Acquire(ctx context.Context, preferred domain.Resolution, fallbackAllowed bool) (ports.DeviceStream, error) {
	if !preferred.Valid() {
		preferred = c.cfg.Preferred
	}
	constraints := domain.StreamConstraints{Ideal: &preferred, FacingMode: "user"}

	stream, err := c.camera.Open(ctx, constraints)
	if err != nil && fallbackAllowed && canFallback(ctx, err) {
		c.logger.Warn("camera_constraints_fallback", "width", preferred.Width, "height", preferred.Height, "error", err)
		stream, err = c.camera.Open(ctx, domain.Unconstrained())
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, mapCameraError(err)
	}

	if applier, ok := stream.(ports.ConstraintApplier); ok {
		if err := applier.ApplyConstraints(ctx, constraints); err != nil {
			c.logger.Warn("camera_apply_constraints_failed", "error", err)
		}
	}

	res := stream.Resolution()
	c.logger.Info("camera_acquired", "width", res.Width, "height", res.Height)
	return stream, nil
}

func canFallback(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, domain.ErrDeviceDenied) && !errors.Is(err, domain.ErrDeviceNotFound)
}

func mapCameraError(err error) *domain.AppError {
	switch {
	case errors.Is(err, domain.ErrDeviceDenied):
		return domain.CameraAccessDenied(err)
	case errors.Is(err, domain.ErrDeviceNotFound):
		return domain.CameraMissing(err)
	default:
		return domain.CameraStartFailed(err)
	}
}

// NeedsReprojection reports whether the stream aspect ratio deviates from the
// target by more than the relative tolerance.
func (c *CaptureController) NeedsReprojection(stream ports.DeviceStream) bool {
	if stream == nil {
		return true
	}
	return stream.Resolution().AspectDeviation(c.cfg.TargetAspect) > c.cfg.AspectTolerance
}

// Record captures one clip. The stop timer is armed before the first frame
// and does not depend on frame timing. The returned clip always reports the
// requested duration.
func (c *CaptureController) Record(ctx context.Context, stream ports.DeviceStream, duration time.Duration, reproject bool) (domain.CapturedClip, error) {
	if stream == nil {
		return domain.CapturedClip{}, domain.RecordingFailed(domain.WrapError(domain.ErrInvalidInput, "record", errors.New("nil stream")))
	}
	if !c.recording.CompareAndSwap(false, true) {
		return domain.CapturedClip{}, domain.RecordingFailed(domain.ErrRecordingActive)
	}
	defer c.recording.Store(false)

	if duration <= 0 {
		duration = c.cfg.Duration
	}
	path := capturePathDirect
	if reproject {
		path = capturePathReprojected
	}

	recCtx, stop := context.WithCancel(ctx)
	defer stop()
	timer := c.clock.AfterFunc(duration, stop)
	defer timer.Stop()

	sink := &clipSink{encoder: c.encoder, fps: c.cfg.FPS}
	c.logger.Info("recording_started", "path", path, "duration_ms", duration.Milliseconds())

	var loopErr error
	if reproject {
		loopErr = c.recordReprojected(recCtx, stream, sink)
	} else {
		loopErr = recordDirect(recCtx, stream, sink)
	}

	if err := ctx.Err(); err != nil {
		sink.abort()
		c.metrics.RecordCapture(path, "cancelled")
		return domain.CapturedClip{}, err
	}
	if loopErr != nil {
		sink.abort()
		c.metrics.RecordCapture(path, "failed")
		c.logger.Error("recording_failed", "path", path, "error", loopErr)
		return domain.CapturedClip{}, domain.RecordingFailed(loopErr)
	}

	data, err := sink.finish()
	if err != nil {
		c.metrics.RecordCapture(path, "failed")
		c.logger.Error("recording_failed", "path", path, "error", err)
		return domain.CapturedClip{}, domain.RecordingFailed(err)
	}

	c.metrics.RecordCapture(path, "ok")
	c.logger.Info("recording_finished", "path", path, "frames", sink.frames, "bytes", len(data))
	return domain.CapturedClip{
		Data:        data,
		Duration:    duration,
		MIMEType:    c.encoder.MIMEType(),
		Width:       sink.size.Width,
		Height:      sink.size.Height,
		Frames:      sink.frames,
		Reprojected: reproject,
	}, nil
}

// Release stops the device. Calling it twice is harmless.
func (c *CaptureController) Release(stream ports.DeviceStream) {
	if stream == nil {
		return
	}
	if err := stream.Close(); err != nil {
		c.logger.Warn("camera_release_failed", "error", err)
	}
}

// recordDirect encodes device frames as they arrive until ctx is done.
func recordDirect(ctx context.Context, stream ports.DeviceStream, sink *clipSink) error {
	for {
		frame, err := stream.ReadFrame(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		if err := sink.write(frame.Image); err != nil {
			return err
		}
	}
}

// recordReprojected keeps the latest device frame and paints it into the
// canvas at the configured frame rate.
func (c *CaptureController) recordReprojected(ctx context.Context, stream ports.DeviceStream, sink *clipSink) error {
	var latest atomic.Pointer[domain.Frame]
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			frame, err := stream.ReadFrame(gctx)
			if gctx.Err() != nil {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read frame: %w", err)
			}
			latest.Store(&frame)
		}
	})

	g.Go(func() error {
		limiter := rate.NewLimiter(rate.Limit(c.cfg.FPS), 1)
		for {
			if err := limiter.Wait(gctx); err != nil {
				return nil
			}
			frame := latest.Load()
			if frame == nil || frame.Image == nil {
				continue
			}
			if err := sink.write(c.projector.Project(frame.Image, c.cfg.Canvas)); err != nil {
				return err
			}
		}
	})

	return g.Wait()
}

// clipSink opens the encoder on the first frame so the clip geometry follows
// what the device actually delivers.
type clipSink struct {
	encoder ports.ClipEncoder
	fps     int

	writer ports.ClipWriter
	size   domain.Resolution
	frames int
}

func (s *clipSink) write(img image.Image) error {
	if img == nil {
		return nil
	}
	if s.writer == nil {
		b := img.Bounds()
		w, err := s.encoder.Begin(b.Dx(), b.Dy(), s.fps)
		if err != nil {
			return fmt.Errorf("begin clip: %w", err)
		}
		s.writer = w
		s.size = domain.Resolution{Width: b.Dx(), Height: b.Dy()}
	}
	if err := s.writer.WriteFrame(img); err != nil {
		return fmt.Errorf("write frame %d: %w", s.frames, err)
	}
	s.frames++
	return nil
}

func (s *clipSink) finish() ([]byte, error) {
	if s.writer == nil || s.frames == 0 {
		s.abort()
		return nil, errors.New("no frames captured")
	}
	data, err := s.writer.Finish()
	s.writer = nil
	if err != nil {
		return nil, fmt.Errorf("finish clip: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("encoder produced an empty clip")
	}
	return data, nil
}

func (s *clipSink) abort() {
	if s.writer != nil {
		s.writer.Abort()
		s.writer = nil
	}
}
