package generation

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
	"github.com/kirillkom/virtual-fitting/internal/infrastructure/resilience"
)

const (
	ActionCreateUpload = "create_upload"
	ActionProcess      = "process"
	ActionImageOnly    = "image-only"
)

// ActionClient speaks the single-endpoint contract where the request body
// names the action. Processing is synchronous: a started job is already
// completed and PollStatus answers from memory.
type ActionClient struct {
	t    *transport
	path string

	mu      sync.Mutex
	results map[string]domain.GenerationStatus
}

// NewActionClient posts every action to baseURL+path.
func NewActionClient(baseURL, path string, httpClient *http.Client, guard *resilience.Guard) (*ActionClient, error) {
	t, err := newTransport(baseURL, httpClient, guard)
	if err != nil {
		return nil, err
	}
	return &ActionClient{
		t:       t,
		path:    path,
		results: make(map[string]domain.GenerationStatus),
	}, nil
}

type actionRequest struct {
	Action      string `json:"action"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	InputKey    string `json:"inputKey,omitempty"`
	GarmentID   string `json:"garmentId,omitempty"`
	ImageBytes  string `json:"imageBytes,omitempty"`
}

type actionUploadResponse struct {
	UploadURL string `json:"uploadUrl"`
	InputKey  string `json:"inputKey"`
}

type actionJobResponse struct {
	JobID     string `json:"jobId"`
	OutputKey string `json:"outputKey"`
	ResultURL string `json:"resultUrl"`
}

func (c *ActionClient) RequestUploadTarget(ctx context.Context, fileName, contentType string) (domain.UploadTarget, error) {
	var resp actionUploadResponse
	err := c.t.postJSON(ctx, c.path, actionRequest{
		Action:      ActionCreateUpload,
		Filename:    fileName,
		ContentType: contentType,
	}, "ActionUploadResponse", &resp, "upload_target")
	if err != nil {
		return domain.UploadTarget{}, err
	}
	return domain.UploadTarget{UploadURL: resp.UploadURL, ObjectKey: resp.InputKey}, nil
}

func (c *ActionClient) UploadBinary(ctx context.Context, uploadURL, contentType string, body []byte, onProgress func(float64)) error {
	return c.t.upload(ctx, uploadURL, contentType, body, onProgress)
}

func (c *ActionClient) StartGeneration(ctx context.Context, objectKey, garmentID string) (domain.GenerationJob, error) {
	return c.process(ctx, actionRequest{
		Action:    ActionProcess,
		InputKey:  objectKey,
		GarmentID: garmentID,
	}, "start_generation")
}

func (c *ActionClient) StartImageGeneration(ctx context.Context, imageBase64, garmentID string) (domain.GenerationJob, error) {
	return c.process(ctx, actionRequest{
		Action:     ActionImageOnly,
		ImageBytes: imageBase64,
		GarmentID:  garmentID,
	}, "start_image_generation")
}

func (c *ActionClient) process(ctx context.Context, req actionRequest, operation string) (domain.GenerationJob, error) {
	var resp actionJobResponse
	if err := c.t.postJSON(ctx, c.path, req, "ActionJobResponse", &resp, operation); err != nil {
		return domain.GenerationJob{}, err
	}

	c.mu.Lock()
	c.results[resp.JobID] = domain.GenerationStatus{Status: domain.JobCompleted, ResultURL: resp.ResultURL}
	c.mu.Unlock()

	return domain.GenerationJob{
		ID:        resp.JobID,
		Status:    domain.JobCompleted,
		ResultURL: resp.ResultURL,
	}, nil
}

func (c *ActionClient) PollStatus(_ context.Context, jobID string) (domain.GenerationStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, ok := c.results[jobID]
	if !ok {
		return domain.GenerationStatus{}, domain.WrapError(domain.ErrNotFound, "poll status", fmt.Errorf("job %q was not started by this client", jobID))
	}
	return status, nil
}
