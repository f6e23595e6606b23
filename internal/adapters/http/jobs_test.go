package httpadapter

import (
	"context"
	"testing"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
)

func TestMemoryJobStoreCompletesOnThirdPoll(t *testing.T) {
	store := NewMemoryJobStore()
	ctx := context.Background()
	if err := store.CreateJob(ctx, domain.StubJob{ID: "j1", Kind: domain.StubJobVideo, Status: domain.JobProcessing}); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	for i := 1; i <= 4; i++ {
		job, completed, err := store.AdvanceJob(ctx, "j1", 3)
		if err != nil {
			t.Fatalf("AdvanceJob() error = %v", err)
		}
		if completed != (i == 3) {
			t.Fatalf("poll %d: expected completed=%v, got %v", i, i == 3, completed)
		}
		wantStatus := domain.JobProcessing
		if i >= 3 {
			wantStatus = domain.JobCompleted
		}
		if job.Status != wantStatus || job.Polls != min(i, 3) {
			t.Fatalf("poll %d: unexpected job %+v", i, job)
		}
	}
}

func TestMemoryJobStoreErrors(t *testing.T) {
	store := NewMemoryJobStore()
	ctx := context.Background()
	if _, _, err := store.AdvanceJob(ctx, "missing", 1); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	job := domain.StubJob{ID: "j1", Status: domain.JobCompleted}
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if err := store.CreateJob(ctx, job); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected duplicate id to be rejected, got %v", err)
	}
	if _, completed, _ := store.AdvanceJob(ctx, "j1", 1); completed {
		t.Fatalf("expected a finished job not to complete twice")
	}
}
