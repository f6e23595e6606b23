package usecase

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
	"github.com/kirillkom/virtual-fitting/internal/core/session"
)

type pollResult struct {
	status domain.GenerationStatus
	err    error
}

func sessionWithJob(jobID string) *session.Store {
	store := sessionWithClip("red")
	_ = store.Apply(session.BeginSubmission())
	_ = store.Apply(session.AttachJob(domain.GenerationJob{ID: jobID, Status: domain.JobProcessing}))
	return store
}

func startAwait(ctx context.Context, uc *PollUseCase, jobID string) <-chan pollResult {
	out := make(chan pollResult, 1)
	go func() {
		status, err := uc.Await(ctx, jobID)
		out <- pollResult{status: status, err: err}
	}()
	return out
}

func awaitPoll(t *testing.T, ch <-chan pollResult) pollResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatalf("poll did not finish")
		return pollResult{}
	}
}

func TestAwaitStopsAfterCompletion(t *testing.T) {
	gen := &generationFake{statuses: []domain.GenerationStatus{
		{Status: domain.JobProcessing},
		{Status: domain.JobProcessing},
		{Status: domain.JobCompleted, ResultURL: "https://cdn/x.mp4"},
	}}
	store := sessionWithJob("job-1")
	clock := clockwork.NewFakeClock()
	uc := NewPollUseCase(gen, store, clock, nil, nil, 0)

	done := startAwait(context.Background(), uc, "job-1")
	for i := 0; i < 2; i++ {
		blockUntil(t, clock, 1)
		clock.Advance(DefaultPollInterval)
	}
	res := awaitPoll(t, done)
	if res.err != nil {
		t.Fatalf("Await() error = %v", res.err)
	}
	if res.status.ResultURL != "https://cdn/x.mp4" {
		t.Fatalf("unexpected status %+v", res.status)
	}

	clock.Advance(10 * DefaultPollInterval)
	time.Sleep(10 * time.Millisecond)
	if got := gen.polls(); got != 3 {
		t.Fatalf("expected exactly 3 polls, got %d", got)
	}

	snap := store.Snapshot()
	if snap.ResultURL != "https://cdn/x.mp4" || snap.Processing || snap.Job.Status != domain.JobCompleted {
		t.Fatalf("unexpected session %+v", snap)
	}

	again, err := uc.Await(context.Background(), "job-1")
	if err != nil || again.ResultURL != "https://cdn/x.mp4" {
		t.Fatalf("expected stored result, got %+v %v", again, err)
	}
	if gen.polls() != 3 {
		t.Fatalf("expected terminal job to skip polling")
	}
}

func TestAwaitPollsImmediately(t *testing.T) {
	gen := &generationFake{statuses: []domain.GenerationStatus{{Status: domain.JobCompleted, ResultURL: "https://cdn/y.mp4"}}}
	uc := NewPollUseCase(gen, sessionWithJob("job-1"), clockwork.NewFakeClock(), nil, nil, 0)

	res := awaitPoll(t, startAwait(context.Background(), uc, "job-1"))
	if res.err != nil || gen.polls() != 1 {
		t.Fatalf("expected a single immediate poll, got %d polls err=%v", gen.polls(), res.err)
	}
}

func TestAwaitKeepsPollingWhenCompletedWithoutURL(t *testing.T) {
	gen := &generationFake{statuses: []domain.GenerationStatus{
		{Status: domain.JobCompleted},
		{Status: domain.JobCompleted, ResultURL: "https://cdn/z.mp4"},
	}}
	store := sessionWithJob("job-1")
	clock := clockwork.NewFakeClock()
	uc := NewPollUseCase(gen, store, clock, nil, nil, 0)

	done := startAwait(context.Background(), uc, "job-1")
	blockUntil(t, clock, 1)
	if snap := store.Snapshot(); snap.Job.Status != domain.JobProcessing || !snap.Processing || snap.Error != nil {
		t.Fatalf("expected session untouched while url is missing, got %+v", snap)
	}
	clock.Advance(DefaultPollInterval)

	res := awaitPoll(t, done)
	if res.err != nil {
		t.Fatalf("Await() error = %v", res.err)
	}
	if gen.polls() != 2 {
		t.Fatalf("expected 2 polls, got %d", gen.polls())
	}
	snap := store.Snapshot()
	if snap.ResultURL != "https://cdn/z.mp4" || snap.Job.Status != domain.JobCompleted {
		t.Fatalf("unexpected session %+v", snap)
	}
}

func TestAwaitFailedJob(t *testing.T) {
	gen := &generationFake{statuses: []domain.GenerationStatus{{Status: domain.JobFailed, Error: "model crashed"}}}
	store := sessionWithJob("job-1")
	uc := NewPollUseCase(gen, store, clockwork.NewFakeClock(), nil, nil, 0)

	res := awaitPoll(t, startAwait(context.Background(), uc, "job-1"))
	appErr, ok := domain.AsAppError(res.err)
	if !ok || appErr.Kind != domain.KindGenerationFailed {
		t.Fatalf("expected GENERATION_FAILED, got %v", res.err)
	}
	snap := store.Snapshot()
	if snap.Job.Status != domain.JobFailed || snap.ResultURL != "" || snap.Processing {
		t.Fatalf("unexpected session %+v", snap)
	}
}

func TestAwaitTransportErrorStopsPolling(t *testing.T) {
	gen := &generationFake{pollErr: errors.New("connection reset")}
	store := sessionWithJob("job-1")
	clock := clockwork.NewFakeClock()
	uc := NewPollUseCase(gen, store, clock, nil, nil, 0)

	res := awaitPoll(t, startAwait(context.Background(), uc, "job-1"))
	appErr, ok := domain.AsAppError(res.err)
	if !ok || appErr.Kind != domain.KindNetworkError {
		t.Fatalf("expected NETWORK_ERROR, got %v", res.err)
	}
	clock.Advance(time.Minute)
	if gen.polls() != 1 {
		t.Fatalf("expected polling to stop after error, got %d polls", gen.polls())
	}
	if store.Snapshot().Error == nil {
		t.Fatalf("expected session error")
	}
}

func TestAwaitCancelledByTeardown(t *testing.T) {
	gen := &generationFake{}
	clock := clockwork.NewFakeClock()
	uc := NewPollUseCase(gen, sessionWithJob("job-1"), clock, nil, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := startAwait(ctx, uc, "job-1")
	blockUntil(t, clock, 1)
	cancel()

	res := awaitPoll(t, done)
	if !errors.Is(res.err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", res.err)
	}
	clock.Advance(time.Minute)
	if gen.polls() != 1 {
		t.Fatalf("expected no polls after cancel, got %d", gen.polls())
	}
}

func TestAwaitAfterResetDropsResult(t *testing.T) {
	gen := &generationFake{statuses: []domain.GenerationStatus{
		{Status: domain.JobProcessing},
		{Status: domain.JobCompleted, ResultURL: "https://cdn/late.mp4"},
	}}
	store := sessionWithJob("job-1")
	clock := clockwork.NewFakeClock()
	uc := NewPollUseCase(gen, store, clock, nil, nil, 0)

	done := startAwait(context.Background(), uc, "job-1")
	blockUntil(t, clock, 1)
	store.Reset()
	clock.Advance(DefaultPollInterval)

	res := awaitPoll(t, done)
	if !errors.Is(res.err, session.ErrStaleLease) {
		t.Fatalf("expected stale lease, got %v", res.err)
	}
	if store.Snapshot().ResultURL != "" {
		t.Fatalf("expected late result to be dropped")
	}
}

func TestAwaitUnknownStatus(t *testing.T) {
	gen := &generationFake{statuses: []domain.GenerationStatus{{Status: "queued"}}}
	store := sessionWithJob("job-1")
	uc := NewPollUseCase(gen, store, clockwork.NewFakeClock(), nil, nil, 0)

	res := awaitPoll(t, startAwait(context.Background(), uc, "job-1"))
	if appErr, ok := domain.AsAppError(res.err); !ok || appErr.Kind != domain.KindNetworkError {
		t.Fatalf("expected NETWORK_ERROR, got %v", res.err)
	}
	if snap := store.Snapshot(); snap.Error == nil || snap.Error.Kind != domain.KindNetworkError {
		t.Fatalf("expected session error, got %+v", snap.Error)
	}
}

func TestAwaitUnknownStatusAfterResetLogsDrop(t *testing.T) {
	gen := &generationFake{statuses: []domain.GenerationStatus{
		{Status: domain.JobProcessing},
		{Status: "queued"},
	}}
	store := sessionWithJob("job-1")
	clock := clockwork.NewFakeClock()
	var logs bytes.Buffer
	uc := NewPollUseCase(gen, store, clock, nil, slog.New(slog.NewTextHandler(&logs, nil)), 0)

	done := startAwait(context.Background(), uc, "job-1")
	blockUntil(t, clock, 1)
	store.Reset()
	clock.Advance(DefaultPollInterval)

	res := awaitPoll(t, done)
	if appErr, ok := domain.AsAppError(res.err); !ok || appErr.Kind != domain.KindNetworkError {
		t.Fatalf("expected NETWORK_ERROR, got %v", res.err)
	}
	if !strings.Contains(logs.String(), "poll_error_dropped") {
		t.Fatalf("expected dropped error to be logged, got %q", logs.String())
	}
	if store.Snapshot().Error != nil {
		t.Fatalf("expected reset session to stay clean")
	}
}
