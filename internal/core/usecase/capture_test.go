package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
)

func newTestController(camera *cameraFake, enc *encoderFake, clock clockwork.Clock) *CaptureController {
	return NewCaptureController(camera, enc, projectorFake{}, clock, nil, nil, DefaultCaptureConfig())
}

func TestAcquireFallsBackToUnconstrained(t *testing.T) {
	stream := newStreamFake(640, 480)
	camera := &cameraFake{idealErr: domain.ErrConstraintUnsatisfied, stream: stream}
	ctrl := newTestController(camera, &encoderFake{}, clockwork.NewFakeClock())

	got, err := ctrl.Acquire(context.Background(), domain.Resolution{Width: 720, Height: 1280}, true)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if camera.openCalls() != 2 {
		t.Fatalf("expected ideal then fallback open, got %d calls", camera.openCalls())
	}
	if camera.calls[1].Ideal != nil {
		t.Fatalf("expected fallback without ideal constraints")
	}
	if !ctrl.NeedsReprojection(got) {
		t.Fatalf("expected 4:3 stream to need reprojection")
	}
	if stream.applied.Load() != 1 {
		t.Fatalf("expected preferred constraints to be re-applied once, got %d", stream.applied.Load())
	}
}

func TestAcquireWithoutFallbackReportsStartFailure(t *testing.T) {
	camera := &cameraFake{idealErr: domain.ErrConstraintUnsatisfied, stream: newStreamFake(640, 480)}
	ctrl := newTestController(camera, &encoderFake{}, clockwork.NewFakeClock())

	_, err := ctrl.Acquire(context.Background(), domain.Resolution{Width: 720, Height: 1280}, false)
	appErr, ok := domain.AsAppError(err)
	if !ok || appErr.Kind != domain.KindCameraNotAvailable || !appErr.Retryable {
		t.Fatalf("expected retryable CAMERA_NOT_AVAILABLE, got %v", err)
	}
	if camera.openCalls() != 1 {
		t.Fatalf("expected a single open, got %d", camera.openCalls())
	}
}

func TestAcquireMapsDeviceErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      domain.ErrorKind
		retryable bool
	}{
		{name: "denied", err: domain.ErrDeviceDenied, kind: domain.KindCameraAccessDenied, retryable: true},
		{name: "missing", err: domain.ErrDeviceNotFound, kind: domain.KindCameraNotAvailable, retryable: false},
		{name: "other", err: errors.New("device busy"), kind: domain.KindCameraNotAvailable, retryable: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			camera := &cameraFake{idealErr: tt.err, fallbackErr: tt.err}
			ctrl := newTestController(camera, &encoderFake{}, clockwork.NewFakeClock())

			_, err := ctrl.Acquire(context.Background(), domain.Resolution{Width: 720, Height: 1280}, true)
			appErr, ok := domain.AsAppError(err)
			if !ok {
				t.Fatalf("expected AppError, got %v", err)
			}
			if appErr.Kind != tt.kind || appErr.Retryable != tt.retryable {
				t.Fatalf("expected %s retryable=%v, got %s retryable=%v", tt.kind, tt.retryable, appErr.Kind, appErr.Retryable)
			}
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected cause to be preserved")
			}
		})
	}
}

func TestNeedsReprojection(t *testing.T) {
	ctrl := newTestController(&cameraFake{}, &encoderFake{}, clockwork.NewFakeClock())
	tests := []struct {
		w, h int
		want bool
	}{
		{720, 1280, false},
		{1080, 1920, false},
		{700, 1280, false},
		{640, 480, true},
		{1280, 720, true},
		{0, 0, true},
	}
	for _, tt := range tests {
		if got := ctrl.NeedsReprojection(newStreamFake(tt.w, tt.h)); got != tt.want {
			t.Fatalf("NeedsReprojection(%dx%d) = %v, want %v", tt.w, tt.h, got, tt.want)
		}
	}
}

type recordResult struct {
	clip domain.CapturedClip
	err  error
}

func startRecording(ctx context.Context, ctrl *CaptureController, stream *streamFake, reproject bool) <-chan recordResult {
	out := make(chan recordResult, 1)
	go func() {
		clip, err := ctrl.Record(ctx, stream, 4*time.Second, reproject)
		out <- recordResult{clip: clip, err: err}
	}()
	return out
}

func awaitRecording(t *testing.T, ch <-chan recordResult) recordResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(3 * time.Second):
		t.Fatalf("recording did not stop")
		return recordResult{}
	}
}

func TestRecordDurationEqualsRequestedOnBothPaths(t *testing.T) {
	for _, reproject := range []bool{false, true} {
		clock := clockwork.NewFakeClock()
		enc := &encoderFake{}
		stream := newStreamFake(640, 480)
		ctrl := newTestController(&cameraFake{stream: stream}, enc, clock)

		done := startRecording(context.Background(), ctrl, stream, reproject)
		blockUntil(t, clock, 1)
		if !waitFor(func() bool { return enc.written.Load() >= 2 }) {
			t.Fatalf("reproject=%v: expected frames to be written", reproject)
		}
		clock.Advance(4 * time.Second)

		res := awaitRecording(t, done)
		if res.err != nil {
			t.Fatalf("reproject=%v: Record() error = %v", reproject, res.err)
		}
		if res.clip.Duration != 4*time.Second {
			t.Fatalf("reproject=%v: expected 4s duration, got %s", reproject, res.clip.Duration)
		}
		if res.clip.Reprojected != reproject {
			t.Fatalf("expected reprojected=%v", reproject)
		}
		if len(res.clip.Data) == 0 || res.clip.Frames < 2 {
			t.Fatalf("expected clip data and frames, got %d bytes %d frames", len(res.clip.Data), res.clip.Frames)
		}
		wantW, wantH := 640, 480
		if reproject {
			wantW, wantH = 720, 1280
		}
		if res.clip.Width != wantW || res.clip.Height != wantH {
			t.Fatalf("reproject=%v: expected %dx%d, got %dx%d", reproject, wantW, wantH, res.clip.Width, res.clip.Height)
		}
	}
}

func TestRecordRejectsSecondConcurrentRecording(t *testing.T) {
	clock := clockwork.NewFakeClock()
	enc := &encoderFake{}
	stream := newStreamFake(720, 1280)
	ctrl := newTestController(&cameraFake{stream: stream}, enc, clock)

	done := startRecording(context.Background(), ctrl, stream, false)
	blockUntil(t, clock, 1)

	_, err := ctrl.Record(context.Background(), stream, 4*time.Second, false)
	if !errors.Is(err, domain.ErrRecordingActive) {
		t.Fatalf("expected ErrRecordingActive, got %v", err)
	}
	if appErr, ok := domain.AsAppError(err); !ok || appErr.Kind != domain.KindRecordingFailed {
		t.Fatalf("expected RECORDING_FAILED, got %v", err)
	}

	waitFor(func() bool { return enc.written.Load() >= 1 })
	clock.Advance(4 * time.Second)
	if res := awaitRecording(t, done); res.err != nil {
		t.Fatalf("first recording error = %v", res.err)
	}
}

func TestRecordEncoderFailureAbortsClip(t *testing.T) {
	clock := clockwork.NewFakeClock()
	enc := &encoderFake{writeErr: errors.New("jpeg encode")}
	stream := newStreamFake(720, 1280)
	ctrl := newTestController(&cameraFake{stream: stream}, enc, clock)

	res := awaitRecording(t, startRecording(context.Background(), ctrl, stream, false))
	appErr, ok := domain.AsAppError(res.err)
	if !ok || appErr.Kind != domain.KindRecordingFailed || !appErr.Retryable {
		t.Fatalf("expected retryable RECORDING_FAILED, got %v", res.err)
	}
	if enc.aborted.Load() != 1 {
		t.Fatalf("expected writer to be aborted once, got %d", enc.aborted.Load())
	}
}

func TestRecordCancelledByCaller(t *testing.T) {
	clock := clockwork.NewFakeClock()
	enc := &encoderFake{}
	stream := newStreamFake(720, 1280)
	ctrl := newTestController(&cameraFake{stream: stream}, enc, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := startRecording(ctx, ctrl, stream, false)
	blockUntil(t, clock, 1)
	waitFor(func() bool { return enc.written.Load() >= 1 })
	cancel()

	res := awaitRecording(t, done)
	if !errors.Is(res.err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", res.err)
	}
	if len(res.clip.Data) != 0 {
		t.Fatalf("expected no clip after cancel")
	}
}
