package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
	"github.com/kirillkom/virtual-fitting/internal/core/session"
)

type flowResult struct {
	clip domain.CapturedClip
	err  error
}

func newTestFlow(clock *clockwork.FakeClock, camera *cameraFake, enc *encoderFake, store *session.Store) *CaptureFlow {
	ctrl := newTestController(camera, enc, clock)
	return NewCaptureFlow(ctrl, NewTimeline(clock, DefaultTimelineConfig()), store, nil)
}

func runFlow(ctx context.Context, flow *CaptureFlow) <-chan flowResult {
	out := make(chan flowResult, 1)
	go func() {
		clip, err := flow.Run(ctx)
		out <- flowResult{clip: clip, err: err}
	}()
	return out
}

func awaitFlow(t *testing.T, ch <-chan flowResult) flowResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(3 * time.Second):
		t.Fatalf("capture flow did not finish")
		return flowResult{}
	}
}

func TestCaptureFlowStoresClip(t *testing.T) {
	clock := clockwork.NewFakeClock()
	stream := newStreamFake(720, 1280)
	enc := &encoderFake{}
	store := session.NewStore()
	flow := newTestFlow(clock, &cameraFake{stream: stream}, enc, store)

	done := runFlow(context.Background(), flow)

	// settle delay, then three countdown ticks
	for i := 0; i < 4; i++ {
		blockUntil(t, clock, 1)
		clock.Advance(time.Second)
	}
	// recording: timeline tick plus the recorder stop timer
	for i := 0; i < 4; i++ {
		blockUntil(t, clock, 2)
		if i == 3 && !waitFor(func() bool { return enc.written.Load() >= 1 }) {
			t.Fatalf("expected frames before stop")
		}
		clock.Advance(time.Second)
	}

	res := awaitFlow(t, done)
	if res.err != nil {
		t.Fatalf("Run() error = %v", res.err)
	}
	if res.clip.Duration != 4*time.Second || res.clip.Reprojected {
		t.Fatalf("unexpected clip %+v", res.clip)
	}
	snap := store.Snapshot()
	if snap.Clip == nil || len(snap.Clip.Data) == 0 {
		t.Fatalf("expected clip in session")
	}
	if stream.closed.Load() == 0 {
		t.Fatalf("expected camera to be released")
	}
}

func TestCaptureFlowCancelDuringCountdown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	stream := newStreamFake(720, 1280)
	store := session.NewStore()
	flow := newTestFlow(clock, &cameraFake{stream: stream}, &encoderFake{}, store)

	var states []TimelineState
	stateCh := make(chan TimelineState, 32)
	flow.OnTimeline(func(s TimelineSnapshot) { stateCh <- s.State })

	ctx, cancel := context.WithCancel(context.Background())
	done := runFlow(ctx, flow)
	blockUntil(t, clock, 1)
	clock.Advance(time.Second)
	blockUntil(t, clock, 1)
	cancel()

	res := awaitFlow(t, done)
	if !errors.Is(res.err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", res.err)
	}
	if store.Snapshot().Clip != nil {
		t.Fatalf("expected no clip after cancel")
	}
	if stream.closed.Load() == 0 {
		t.Fatalf("expected camera to be released")
	}

	clock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	close(stateCh)
	for s := range stateCh {
		states = append(states, s)
	}
	if last := states[len(states)-1]; last != TimelineCancelled {
		t.Fatalf("expected cancelled as last state, got %v", states)
	}
	for _, s := range states {
		if s == TimelineRecording {
			t.Fatalf("expected no recording after cancel, got %v", states)
		}
	}
}

func TestCaptureFlowCameraDeniedSetsSessionError(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := session.NewStore()
	camera := &cameraFake{idealErr: domain.ErrDeviceDenied, fallbackErr: domain.ErrDeviceDenied}
	flow := newTestFlow(clock, camera, &encoderFake{}, store)

	res := awaitFlow(t, runFlow(context.Background(), flow))
	appErr, ok := domain.AsAppError(res.err)
	if !ok || appErr.Kind != domain.KindCameraAccessDenied {
		t.Fatalf("expected CAMERA_ACCESS_DENIED, got %v", res.err)
	}
	snap := store.Snapshot()
	if snap.Error == nil || snap.Error.Kind != domain.KindCameraAccessDenied {
		t.Fatalf("expected session error, got %+v", snap.Error)
	}
}

func TestCaptureFlowDropsClipAfterReset(t *testing.T) {
	clock := clockwork.NewFakeClock()
	stream := newStreamFake(720, 1280)
	enc := &encoderFake{}
	store := session.NewStore()
	flow := newTestFlow(clock, &cameraFake{stream: stream}, enc, store)

	done := runFlow(context.Background(), flow)
	for i := 0; i < 4; i++ {
		blockUntil(t, clock, 1)
		clock.Advance(time.Second)
	}
	blockUntil(t, clock, 2)
	store.Reset()
	waitFor(func() bool { return enc.written.Load() >= 1 })
	for i := 0; i < 4; i++ {
		blockUntil(t, clock, 2)
		clock.Advance(time.Second)
	}

	res := awaitFlow(t, done)
	if !errors.Is(res.err, session.ErrStaleLease) {
		t.Fatalf("expected stale lease, got %v", res.err)
	}
	if store.Snapshot().Clip != nil {
		t.Fatalf("expected reset session to stay empty")
	}
}
