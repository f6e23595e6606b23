package ports

import (
	"context"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
)

// CaptureRunner records one clip end to end and stores it in the session.
type CaptureRunner interface {
	Run(ctx context.Context) (domain.CapturedClip, error)
}

// Submitter hands captured media to the generation service.
type Submitter interface {
	SubmitClip(ctx context.Context, onProgress func(float64)) (domain.GenerationJob, error)
	SubmitImage(ctx context.Context, onProgress func(float64)) (domain.GenerationJob, error)
}

// StatusAwaiter polls a job until it leaves processing.
type StatusAwaiter interface {
	Await(ctx context.Context, jobID string) (domain.GenerationStatus, error)
}

// Selector fills the session with a garment choice or a still image.
type Selector interface {
	SelectGarment(id string) (domain.Garment, error)
	LoadImage(ctx context.Context, src domain.SourceImage) (domain.UploadedImage, error)
}
