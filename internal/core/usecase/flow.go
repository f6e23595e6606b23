package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
	"github.com/kirillkom/virtual-fitting/internal/core/session"
)

// CaptureFlow runs one guided capture: acquire the camera, count down,
// record and hand the clip to the session.
type CaptureFlow struct {
	ctrl     *CaptureController
	timeline *Timeline
	store    *session.Store
	logger   *slog.Logger
	onChange func(TimelineSnapshot)
}

func NewCaptureFlow(ctrl *CaptureController, timeline *Timeline, store *session.Store, logger *slog.Logger) *CaptureFlow {
	return &CaptureFlow{
		ctrl:     ctrl,
		timeline: timeline,
		store:    store,
		logger:   loggerOrDefault(logger),
	}
}

// OnTimeline registers fn for timeline transitions. It runs on the timer
// goroutine and must return quickly.
func (f *CaptureFlow) OnTimeline(fn func(TimelineSnapshot)) {
	f.onChange = fn
}

// Run blocks until the clip is stored or ctx is cancelled. Cancellation
// releases the camera and leaves the session without a clip.
func (f *CaptureFlow) Run(ctx context.Context) (domain.CapturedClip, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lease := f.store.Lease()
	recordCh := make(chan struct{}, 1)
	doneCh := make(chan struct{}, 1)

	f.timeline.Start(TimelineHooks{
		OnChange: f.onChange,
		OnRecord: func() { signal(recordCh) },
		OnDone:   func() { signal(doneCh) },
	})
	finished := false
	defer func() {
		if !finished {
			f.timeline.Cancel()
		}
	}()

	cfg := f.ctrl.Config()
	stream, err := f.ctrl.Acquire(ctx, cfg.Preferred, true)
	if err != nil {
		return domain.CapturedClip{}, f.fail(lease, err)
	}
	defer f.ctrl.Release(stream)

	reproject := f.ctrl.NeedsReprojection(stream)
	if reproject {
		res := stream.Resolution()
		f.logger.Info("capture_reprojection_enabled", "width", res.Width, "height", res.Height)
	}

	if err := f.timeline.DeviceReady(); err != nil {
		return domain.CapturedClip{}, fmt.Errorf("arm countdown: %w", err)
	}

	select {
	case <-ctx.Done():
		return domain.CapturedClip{}, ctx.Err()
	case <-recordCh:
	}

	clip, err := f.ctrl.Record(ctx, stream, cfg.Duration, reproject)
	if err != nil {
		return domain.CapturedClip{}, f.fail(lease, err)
	}

	select {
	case <-ctx.Done():
		return domain.CapturedClip{}, ctx.Err()
	case <-doneCh:
		finished = true
	}

	if err := lease.Apply(session.SetClip(clip)); err != nil {
		f.logger.Warn("capture_result_dropped", "error", err)
		return domain.CapturedClip{}, err
	}
	return clip, nil
}

func (f *CaptureFlow) fail(lease session.Lease, err error) error {
	if appErr, ok := domain.AsAppError(err); ok {
		if applyErr := lease.Apply(session.SetError(appErr)); applyErr != nil {
			f.logger.Warn("capture_error_dropped", "error", applyErr)
		}
	}
	return err
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
