package domain

type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobProcessing, JobCompleted, JobFailed:
		return true
	default:
		return false
	}
}

// CanTransition allows only processing -> {completed, failed}.
func (s JobStatus) CanTransition(to JobStatus) bool {
	if s == to {
		return true
	}
	return s == JobProcessing && to.Terminal()
}

// GenerationJob is a unit of server-side work. ID is assigned only after a
// successful submission.
type GenerationJob struct {
	ID        string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	ResultURL string    `json:"result_url,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// GenerationStatus is the result of a single status check.
type GenerationStatus struct {
	Status    JobStatus `json:"status"`
	ResultURL string    `json:"result_url,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// UploadTarget is where raw media is PUT before generation starts.
type UploadTarget struct {
	UploadURL string `json:"upload_url"`
	ObjectKey string `json:"object_key"`
	ExpiresIn int    `json:"expires_in,omitempty"`
}

const (
	StubJobVideo = "video"
	StubJobImage = "image"
)

// StubJob is a job of the development generation server. Its result is the
// input media itself.
type StubJob struct {
	ID        string
	Kind      string
	ObjectKey string
	GarmentID string
	Status    JobStatus
	Polls     int
}
