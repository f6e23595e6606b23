package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
)

func TestBuildEventCarriesJobAndError(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	ev := buildEvent("job.failed", domain.SessionState{
		ID:    "s1",
		Job:   &domain.GenerationJob{ID: "j1", Status: domain.JobFailed},
		Error: domain.GenerationFailed(errors.New("boom")),
	}, at)

	if ev.SessionID != "s1" || ev.JobID != "j1" || ev.Status != "failed" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.ErrorKind != string(domain.KindGenerationFailed) {
		t.Fatalf("expected error kind, got %q", ev.ErrorKind)
	}
	if ev.At.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", ev.At)
	}
}

func TestEventSubject(t *testing.T) {
	if got := eventSubject("fitting.session", "job.completed"); got != "fitting.session.job.completed" {
		t.Fatalf("unexpected subject %q", got)
	}
	if got := eventSubject("fitting.session", " "); got != "fitting.session.unknown" {
		t.Fatalf("unexpected subject %q", got)
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		temporary bool
	}{
		{name: "no servers", err: fmt.Errorf("nats publish: %w", nats.ErrNoServers), temporary: true},
		{name: "closed", err: nats.ErrConnectionClosed, temporary: true},
		{name: "open circuit", err: gobreaker.ErrOpenState, temporary: true},
		{name: "bad subject", err: nats.ErrBadSubject, temporary: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapTemporaryIfNeeded(tt.err)
			if domain.IsKind(got, domain.ErrTemporary) != tt.temporary {
				t.Fatalf("expected temporary=%v, got %v", tt.temporary, got)
			}
			if !errors.Is(got, tt.err) {
				t.Fatalf("expected original error to be preserved, got %v", got)
			}
		})
	}
}

func TestClassifyIgnoresCancellation(t *testing.T) {
	if classifyNATSError(context.Canceled).RecordFailure {
		t.Fatalf("expected cancellation not to count against the breaker")
	}
	if !classifyNATSError(nats.ErrTimeout).RecordFailure {
		t.Fatalf("expected timeout to count against the breaker")
	}
}
