package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
)

var ErrResultAlreadySet = errors.New("result url already set")

// SetClip stores a recorded clip and drops any previously supplied image.
func SetClip(clip domain.CapturedClip) Mutation {
	return Mutation{Event: "capture.clip", apply: func(s *domain.SessionState) error {
		if len(clip.Data) == 0 {
			return domain.WrapError(domain.ErrInvalidInput, "set clip", errors.New("empty clip"))
		}
		c := clip
		c.Data = append([]byte(nil), clip.Data...)
		s.Clip = &c
		s.Image = nil
		clearSubmission(s)
		return nil
	}}
}

// SetImage stores a normalized image and drops any previously recorded clip.
func SetImage(img domain.UploadedImage) Mutation {
	return Mutation{Event: "capture.image", apply: func(s *domain.SessionState) error {
		if len(img.Data) == 0 {
			return domain.WrapError(domain.ErrInvalidInput, "set image", errors.New("empty image"))
		}
		if strings.Contains(strings.ToLower(img.MIMEType), "heic") || strings.Contains(strings.ToLower(img.MIMEType), "heif") {
			return domain.WrapError(domain.ErrInvalidInput, "set image", fmt.Errorf("unsupported mime %q", img.MIMEType))
		}
		i := img
		i.Data = append([]byte(nil), img.Data...)
		s.Image = &i
		s.Clip = nil
		clearSubmission(s)
		return nil
	}}
}

func SelectGarment(g domain.Garment) Mutation {
	return Mutation{Event: "garment.selected", apply: func(s *domain.SessionState) error {
		if strings.TrimSpace(g.ID) == "" {
			return domain.WrapError(domain.ErrInvalidInput, "select garment", errors.New("empty garment id"))
		}
		garment := g
		s.Garment = &garment
		return nil
	}}
}

// BeginSubmission raises the in-flight flag.
func BeginSubmission() Mutation {
	return Mutation{Event: "submission.started", apply: func(s *domain.SessionState) error {
		if !s.HasCapture() {
			return domain.ErrNoCapture
		}
		if s.Garment == nil {
			return domain.WrapError(domain.ErrInvalidInput, "begin submission", errors.New("no garment selected"))
		}
		if s.Processing {
			return domain.WrapError(domain.ErrInvalidInput, "begin submission", errors.New("submission already in flight"))
		}
		clearSubmission(s)
		s.Processing = true
		return nil
	}}
}

func RecordUpload(objectKey string) Mutation {
	return Mutation{Event: "submission.uploaded", apply: func(s *domain.SessionState) error {
		if strings.TrimSpace(objectKey) == "" {
			return domain.WrapError(domain.ErrInvalidInput, "record upload", errors.New("empty object key"))
		}
		s.UploadKey = objectKey
		return nil
	}}
}

// AttachJob stores a job identifier. Only called after a successful start.
func AttachJob(job domain.GenerationJob) Mutation {
	return Mutation{Event: "job.started", apply: func(s *domain.SessionState) error {
		if strings.TrimSpace(job.ID) == "" {
			return domain.WrapError(domain.ErrInvalidInput, "attach job", errors.New("empty job id"))
		}
		if !job.Status.Valid() {
			return domain.WrapError(domain.ErrInvalidInput, "attach job", fmt.Errorf("unknown status %q", job.Status))
		}
		j := job
		s.Job = &j
		if job.Status == domain.JobCompleted && job.ResultURL != "" {
			s.ResultURL = job.ResultURL
			s.Processing = false
		}
		return nil
	}}
}

// CompleteJob records the result URL. It succeeds exactly once per job.
func CompleteJob(resultURL string) Mutation {
	return Mutation{Event: "job.completed", apply: func(s *domain.SessionState) error {
		if s.Job == nil {
			return domain.WrapError(domain.ErrInvalidInput, "complete job", errors.New("no job attached"))
		}
		if s.ResultURL != "" {
			return ErrResultAlreadySet
		}
		if !s.Job.Status.CanTransition(domain.JobCompleted) {
			return domain.ErrJobTransitionForbidden
		}
		if strings.TrimSpace(resultURL) == "" {
			return domain.WrapError(domain.ErrInvalidInput, "complete job", errors.New("empty result url"))
		}
		s.Job.Status = domain.JobCompleted
		s.Job.ResultURL = resultURL
		s.ResultURL = resultURL
		s.Processing = false
		return nil
	}}
}

func FailJob(appErr *domain.AppError) Mutation {
	return Mutation{Event: "job.failed", apply: func(s *domain.SessionState) error {
		if s.Job == nil {
			return domain.WrapError(domain.ErrInvalidInput, "fail job", errors.New("no job attached"))
		}
		if !s.Job.Status.CanTransition(domain.JobFailed) {
			return domain.ErrJobTransitionForbidden
		}
		s.Job.Status = domain.JobFailed
		if appErr != nil {
			s.Job.Error = appErr.Message
		}
		s.Processing = false
		s.Error = appErr
		return nil
	}}
}

// SubmissionFailed clears the in-flight flag and never leaves a job behind.
func SubmissionFailed(appErr *domain.AppError) Mutation {
	return Mutation{Event: "submission.failed", apply: func(s *domain.SessionState) error {
		s.Processing = false
		s.Job = nil
		s.UploadKey = ""
		s.Error = appErr
		return nil
	}}
}

func SetError(appErr *domain.AppError) Mutation {
	return Mutation{Event: "error", apply: func(s *domain.SessionState) error {
		s.Error = appErr
		s.Processing = false
		return nil
	}}
}

func ClearError() Mutation {
	return Mutation{Event: "error.cleared", apply: func(s *domain.SessionState) error {
		s.Error = nil
		return nil
	}}
}

func clearSubmission(s *domain.SessionState) {
	s.Job = nil
	s.UploadKey = ""
	s.ResultURL = ""
	s.Error = nil
}
