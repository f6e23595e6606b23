package ports

import (
	"context"
	"image"
	"io"
	"time"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
)

// Camera opens live device streams.
type Camera interface {
	Open(ctx context.Context, constraints domain.StreamConstraints) (DeviceStream, error)
}

// DeviceStream is a live camera stream. Close must be called to release the
// device.
type DeviceStream interface {
	// ReadFrame blocks until the next frame is available.
	ReadFrame(ctx context.Context) (domain.Frame, error)
	Resolution() domain.Resolution
	Close() error
}

// ConstraintApplier is implemented by streams that can renegotiate after
// being opened.
type ConstraintApplier interface {
	ApplyConstraints(ctx context.Context, constraints domain.StreamConstraints) error
}

// DeviceProber reports whether any capture device is present.
type DeviceProber interface {
	HasVideoInput(ctx context.Context) (bool, error)
}

// ClipEncoder starts an encoded clip of fixed frame geometry.
type ClipEncoder interface {
	Begin(width, height, fps int) (ClipWriter, error)
	MIMEType() string
}

// ClipWriter accumulates frames for one clip.
type ClipWriter interface {
	WriteFrame(img image.Image) error
	Finish() ([]byte, error)
	Abort()
}

// FrameProjector re-renders a frame into a canvas of the target size.
type FrameProjector interface {
	Project(src image.Image, target domain.Resolution) image.Image
}

// ImageNormalizer converts a user-supplied image into a supported raster format.
type ImageNormalizer interface {
	Normalize(ctx context.Context, src domain.SourceImage) (domain.UploadedImage, error)
}

// GenerationService is the remote generation contract.
type GenerationService interface {
	RequestUploadTarget(ctx context.Context, fileName, contentType string) (domain.UploadTarget, error)
	UploadBinary(ctx context.Context, uploadURL, contentType string, body []byte, onProgress func(float64)) error
	StartGeneration(ctx context.Context, objectKey, garmentID string) (domain.GenerationJob, error)
	StartImageGeneration(ctx context.Context, imageBase64, garmentID string) (domain.GenerationJob, error)
	PollStatus(ctx context.Context, jobID string) (domain.GenerationStatus, error)
}

// GarmentCatalog lists the known garments.
type GarmentCatalog interface {
	List() []domain.Garment
	Lookup(id string) (domain.Garment, bool)
}

// EventPublisher forwards session lifecycle events.
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, eventType string, snapshot domain.SessionState) error
}

// ObjectStorage stores uploaded media for the development server.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// ClientMetrics receives client side counters. Implementations must be safe
// for concurrent use.
type ClientMetrics interface {
	RecordCapture(path, status string)
	RecordSubmission(kind, status string)
	AddUploadBytes(n int)
	RecordPoll(status string)
	ObserveNormalize(d time.Duration, status string)
}

// UploadSigner issues time-limited URLs for stored objects.
type UploadSigner interface {
	PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// JobStore keeps development server jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job domain.StubJob) error
	// AdvanceJob counts one status request. completed reports whether this
	// call moved the job from processing to completed. Unknown ids return
	// domain.ErrNotFound.
	AdvanceJob(ctx context.Context, id string, completeAfter int) (job domain.StubJob, completed bool, err error)
}
