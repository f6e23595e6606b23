package httpadapter

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
)

// MemoryJobStore keeps dev jobs in process memory.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.StubJob
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*domain.StubJob)}
}

func (s *MemoryJobStore) CreateJob(_ context.Context, job domain.StubJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return domain.WrapError(domain.ErrInvalidInput, "create job", fmt.Errorf("duplicate job id %q", job.ID))
	}
	j := job
	s.jobs[job.ID] = &j
	return nil
}

func (s *MemoryJobStore) AdvanceJob(_ context.Context, id string, completeAfter int) (domain.StubJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return domain.StubJob{}, false, domain.WrapError(domain.ErrNotFound, "advance job", fmt.Errorf("job %q", id))
	}
	completed := advance(j, completeAfter)
	return *j, completed, nil
}

// advance completes a processing job on the poll that reaches completeAfter.
func advance(j *domain.StubJob, completeAfter int) bool {
	if j.Status != domain.JobProcessing {
		return false
	}
	j.Polls++
	if j.Polls < max(1, completeAfter) {
		return false
	}
	j.Status = domain.JobCompleted
	return true
}

func (rt *Router) createJob(r *http.Request, kind, objectKey, garmentID string, status domain.JobStatus) (domain.StubJob, error) {
	job := domain.StubJob{
		ID:        rt.newID(),
		Kind:      kind,
		ObjectKey: objectKey,
		GarmentID: garmentID,
		Status:    status,
	}
	if err := rt.cfg.Jobs.CreateJob(r.Context(), job); err != nil {
		return domain.StubJob{}, err
	}
	return job, nil
}

func newJobID() string {
	return uuid.NewString()
}
