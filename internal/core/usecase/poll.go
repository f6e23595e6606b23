package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
	"github.com/kirillkom/virtual-fitting/internal/core/ports"
	"github.com/kirillkom/virtual-fitting/internal/core/session"
)

const DefaultPollInterval = 2 * time.Second

// PollUseCase waits for a generation job to leave the processing state.
type PollUseCase struct {
	service  ports.GenerationService
	store    *session.Store
	clock    clockwork.Clock
	metrics  ports.ClientMetrics
	logger   *slog.Logger
	interval time.Duration
}

func NewPollUseCase(
	service ports.GenerationService,
	store *session.Store,
	clock clockwork.Clock,
	metrics ports.ClientMetrics,
	logger *slog.Logger,
	interval time.Duration,
) *PollUseCase {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollUseCase{
		service:  service,
		store:    store,
		clock:    clock,
		metrics:  metricsOrNop(metrics),
		logger:   loggerOrDefault(logger),
		interval: interval,
	}
}

// Await polls immediately and then once per interval. It stops on the first
// terminal status, on a transport error, or when ctx is cancelled.
func (uc *PollUseCase) Await(ctx context.Context, jobID string) (domain.GenerationStatus, error) {
	if strings.TrimSpace(jobID) == "" {
		return domain.GenerationStatus{}, domain.WrapError(domain.ErrInvalidInput, "await job", errors.New("empty job id"))
	}

	lease := uc.store.Lease()
	if status, ok := terminalFromSession(uc.store.Snapshot(), jobID); ok {
		if status.Status == domain.JobFailed {
			return status, domain.GenerationFailed(errors.New(status.Error))
		}
		return status, nil
	}

	for attempt := 1; ; attempt++ {
		status, err := uc.service.PollStatus(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return domain.GenerationStatus{}, ctx.Err()
			}
			uc.metrics.RecordPoll("error")
			appErr := domain.NetworkError(fmt.Errorf("poll status: %w", err), "Lost connection while waiting for the video.")
			uc.logger.Error("poll_status_failed", "job_id", jobID, "attempt", attempt, "error", err)
			if applyErr := lease.Apply(session.SetError(appErr)); applyErr != nil {
				uc.logger.Warn("poll_error_dropped", "error", applyErr)
			}
			return domain.GenerationStatus{}, appErr
		}
		uc.metrics.RecordPoll(string(status.Status))
		uc.logger.Debug("poll_status", "job_id", jobID, "attempt", attempt, "status", status.Status)

		switch status.Status {
		case domain.JobCompleted:
			if strings.TrimSpace(status.ResultURL) != "" {
				return uc.complete(lease, jobID, status)
			}
			// Result not published yet; keep waiting like processing.
			uc.logger.Debug("poll_completed_without_url", "job_id", jobID, "attempt", attempt)
		case domain.JobFailed:
			return uc.failed(lease, jobID, status)
		case domain.JobProcessing:
		default:
			appErr := domain.NetworkError(fmt.Errorf("unknown job status %q", status.Status), "")
			if err := lease.Apply(session.SetError(appErr)); err != nil {
				uc.logger.Warn("poll_error_dropped", "error", err)
			}
			return domain.GenerationStatus{}, appErr
		}

		select {
		case <-ctx.Done():
			return domain.GenerationStatus{}, ctx.Err()
		case <-uc.clock.After(uc.interval):
		}
	}
}

func (uc *PollUseCase) complete(lease session.Lease, jobID string, status domain.GenerationStatus) (domain.GenerationStatus, error) {
	err := lease.Apply(session.CompleteJob(status.ResultURL))
	switch {
	case err == nil:
		uc.logger.Info("generation_completed", "job_id", jobID, "result_url", status.ResultURL)
	case errors.Is(err, session.ErrResultAlreadySet):
	default:
		return status, err
	}
	return status, nil
}

func (uc *PollUseCase) failed(lease session.Lease, jobID string, status domain.GenerationStatus) (domain.GenerationStatus, error) {
	reason := status.Error
	if reason == "" {
		reason = "generation failed"
	}
	appErr := domain.GenerationFailed(errors.New(reason))
	uc.logger.Error("generation_failed", "job_id", jobID, "error", reason)
	if err := lease.Apply(session.FailJob(appErr)); err != nil {
		uc.logger.Warn("generation_failure_dropped", "error", err)
	}
	return status, appErr
}

func terminalFromSession(snap domain.SessionState, jobID string) (domain.GenerationStatus, bool) {
	if snap.Job == nil || snap.Job.ID != jobID || !snap.Job.Status.Terminal() {
		return domain.GenerationStatus{}, false
	}
	resultURL := snap.ResultURL
	if resultURL == "" {
		resultURL = snap.Job.ResultURL
	}
	return domain.GenerationStatus{Status: snap.Job.Status, ResultURL: resultURL, Error: snap.Job.Error}, true
}
