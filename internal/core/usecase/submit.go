package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
	"github.com/kirillkom/virtual-fitting/internal/core/ports"
	"github.com/kirillkom/virtual-fitting/internal/core/session"
)

const (
	submissionClip  = "clip"
	submissionImage = "image"
)

// SubmitUseCase hands the captured media of the session to the generation
// service. The session holds a job id only after a successful start.
type SubmitUseCase struct {
	service ports.GenerationService
	catalog ports.GarmentCatalog
	store   *session.Store
	metrics ports.ClientMetrics
	logger  *slog.Logger
	newID   func() string
}

func NewSubmitUseCase(
	service ports.GenerationService,
	catalog ports.GarmentCatalog,
	store *session.Store,
	metrics ports.ClientMetrics,
	logger *slog.Logger,
) *SubmitUseCase {
	return &SubmitUseCase{
		service: service,
		catalog: catalog,
		store:   store,
		metrics: metricsOrNop(metrics),
		logger:  loggerOrDefault(logger),
		newID:   uuid.NewString,
	}
}

// SubmitClip requests an upload target, uploads the clip and starts
// generation. Progress is reported in percent: target 0-10, upload 10-70,
// start 70-100.
func (uc *SubmitUseCase) SubmitClip(ctx context.Context, onProgress func(float64)) (domain.GenerationJob, error) {
	snap := uc.store.Snapshot()
	if snap.Clip == nil {
		return domain.GenerationJob{}, domain.WrapError(domain.ErrInvalidInput, "submit clip", domain.ErrNoCapture)
	}
	garment, err := uc.resolveGarment(snap)
	if err != nil {
		return domain.GenerationJob{}, err
	}

	lease := uc.store.Lease()
	if err := lease.Apply(session.BeginSubmission()); err != nil {
		return domain.GenerationJob{}, fmt.Errorf("begin submission: %w", err)
	}

	report := newProgress(onProgress)
	report(0)

	clip := snap.Clip
	fileName := fmt.Sprintf("video-%s.%s", uc.newID(), clip.FileExtension())
	target, err := uc.service.RequestUploadTarget(ctx, fileName, clip.MIMEType)
	if err != nil {
		return uc.fail(ctx, lease, submissionClip, domain.NetworkError(
			fmt.Errorf("request upload target: %w", err),
			"Could not prepare the upload. Check your connection and try again.",
		))
	}
	report(10)
	uc.logger.Info("upload_target_received", "object_key", target.ObjectKey, "expires_in", target.ExpiresIn)

	err = uc.service.UploadBinary(ctx, target.UploadURL, clip.MIMEType, clip.Data, func(fraction float64) {
		report(10 + 60*clampFraction(fraction))
	})
	if err != nil {
		return uc.fail(ctx, lease, submissionClip, domain.UploadFailed(fmt.Errorf("upload clip: %w", err)))
	}
	uc.metrics.AddUploadBytes(len(clip.Data))
	if err := lease.Apply(session.RecordUpload(target.ObjectKey)); err != nil {
		return domain.GenerationJob{}, err
	}
	report(70)

	job, err := uc.service.StartGeneration(ctx, target.ObjectKey, garment.ID)
	if err != nil {
		return uc.fail(ctx, lease, submissionClip, domain.GenerationFailed(fmt.Errorf("start generation: %w", err)))
	}
	return uc.attach(ctx, lease, submissionClip, job, report)
}

// SubmitImage sends the normalized image inline with a single call.
func (uc *SubmitUseCase) SubmitImage(ctx context.Context, onProgress func(float64)) (domain.GenerationJob, error) {
	snap := uc.store.Snapshot()
	if snap.Image == nil {
		return domain.GenerationJob{}, domain.WrapError(domain.ErrInvalidInput, "submit image", domain.ErrNoCapture)
	}
	garment, err := uc.resolveGarment(snap)
	if err != nil {
		return domain.GenerationJob{}, err
	}

	lease := uc.store.Lease()
	if err := lease.Apply(session.BeginSubmission()); err != nil {
		return domain.GenerationJob{}, fmt.Errorf("begin submission: %w", err)
	}

	report := newProgress(onProgress)
	report(0)

	payload := base64.StdEncoding.EncodeToString(snap.Image.Data)
	job, err := uc.service.StartImageGeneration(ctx, payload, garment.ID)
	if err != nil {
		return uc.fail(ctx, lease, submissionImage, domain.GenerationFailed(fmt.Errorf("start image generation: %w", err)))
	}
	uc.metrics.AddUploadBytes(len(snap.Image.Data))
	return uc.attach(ctx, lease, submissionImage, job, report)
}

func (uc *SubmitUseCase) resolveGarment(snap domain.SessionState) (domain.Garment, error) {
	if snap.Garment == nil {
		return domain.Garment{}, domain.WrapError(domain.ErrInvalidInput, "resolve garment", errors.New("no garment selected"))
	}
	garment, ok := uc.catalog.Lookup(snap.Garment.ID)
	if !ok {
		return domain.Garment{}, domain.WrapError(domain.ErrInvalidInput, "resolve garment", fmt.Errorf("%w: %q", domain.ErrUnknownGarment, snap.Garment.ID))
	}
	return garment, nil
}

func (uc *SubmitUseCase) attach(ctx context.Context, lease session.Lease, kind string, job domain.GenerationJob, report func(float64)) (domain.GenerationJob, error) {
	if err := lease.Apply(session.AttachJob(job)); err != nil {
		if errors.Is(err, session.ErrStaleLease) {
			uc.metrics.RecordSubmission(kind, "dropped")
			return domain.GenerationJob{}, err
		}
		return uc.fail(ctx, lease, kind, domain.GenerationFailed(fmt.Errorf("attach job: %w", err)))
	}
	report(100)
	uc.metrics.RecordSubmission(kind, "ok")
	uc.logger.Info("generation_started", "kind", kind, "job_id", job.ID, "status", job.Status)
	return job, nil
}

func (uc *SubmitUseCase) fail(ctx context.Context, lease session.Lease, kind string, appErr *domain.AppError) (domain.GenerationJob, error) {
	if ctx.Err() != nil {
		if err := lease.Apply(session.SubmissionFailed(nil)); err != nil {
			uc.logger.Warn("submission_cancel_dropped", "error", err)
		}
		uc.metrics.RecordSubmission(kind, "cancelled")
		return domain.GenerationJob{}, ctx.Err()
	}
	uc.metrics.RecordSubmission(kind, "failed")
	uc.logger.Error("submission_failed", "kind", kind, "error_type", appErr.Kind, "error", appErr.Err)
	if err := lease.Apply(session.SubmissionFailed(appErr)); err != nil {
		uc.logger.Warn("submission_error_dropped", "error", err)
	}
	return domain.GenerationJob{}, appErr
}

// newProgress wraps fn so that reported values never decrease.
func newProgress(fn func(float64)) func(float64) {
	if fn == nil {
		return func(float64) {}
	}
	var (
		mu   sync.Mutex
		last = -1.0
	)
	return func(v float64) {
		mu.Lock()
		defer mu.Unlock()
		if v <= last {
			return
		}
		last = v
		fn(v)
	}
}

func clampFraction(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
