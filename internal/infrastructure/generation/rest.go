package generation

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
	"github.com/kirillkom/virtual-fitting/internal/infrastructure/resilience"
)

// RESTClient speaks the multi-endpoint contract.
type RESTClient struct {
	t *transport
}

func NewRESTClient(baseURL string, httpClient *http.Client, guard *resilience.Guard) (*RESTClient, error) {
	t, err := newTransport(baseURL, httpClient, guard)
	if err != nil {
		return nil, err
	}
	return &RESTClient{t: t}, nil
}

type uploadTargetRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

type uploadTargetResponse struct {
	UploadURL string `json:"uploadUrl"`
	VideoKey  string `json:"videoKey"`
	ExpiresIn int    `json:"expiresIn"`
}

type generationRequest struct {
	VideoKey   string `json:"videoKey"`
	ClothingID string `json:"clothingId"`
}

type imageGenerationRequest struct {
	ImageBytes string `json:"imageBytes"`
	GarmentID  string `json:"garmentId"`
}

type jobResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

type statusResponse struct {
	Status   string `json:"status"`
	VideoURL string `json:"videoUrl"`
	Error    string `json:"error"`
}

func (c *RESTClient) RequestUploadTarget(ctx context.Context, fileName, contentType string) (domain.UploadTarget, error) {
	var resp uploadTargetResponse
	err := c.t.postJSON(ctx, "/upload/presigned-url", uploadTargetRequest{
		FileName:    fileName,
		ContentType: contentType,
	}, "UploadTargetResponse", &resp, "upload_target")
	if err != nil {
		return domain.UploadTarget{}, err
	}
	return domain.UploadTarget{
		UploadURL: resp.UploadURL,
		ObjectKey: resp.VideoKey,
		ExpiresIn: resp.ExpiresIn,
	}, nil
}

func (c *RESTClient) UploadBinary(ctx context.Context, uploadURL, contentType string, body []byte, onProgress func(float64)) error {
	return c.t.upload(ctx, uploadURL, contentType, body, onProgress)
}

func (c *RESTClient) StartGeneration(ctx context.Context, objectKey, garmentID string) (domain.GenerationJob, error) {
	var resp jobResponse
	err := c.t.postJSON(ctx, "/generate", generationRequest{
		VideoKey:   objectKey,
		ClothingID: garmentID,
	}, "JobResponse", &resp, "start_generation")
	if err != nil {
		return domain.GenerationJob{}, err
	}
	return domain.GenerationJob{ID: resp.JobID, Status: domain.JobStatus(resp.Status)}, nil
}

func (c *RESTClient) StartImageGeneration(ctx context.Context, imageBase64, garmentID string) (domain.GenerationJob, error) {
	var resp jobResponse
	err := c.t.postJSON(ctx, "/generate/image", imageGenerationRequest{
		ImageBytes: imageBase64,
		GarmentID:  garmentID,
	}, "JobResponse", &resp, "start_image_generation")
	if err != nil {
		return domain.GenerationJob{}, err
	}
	return domain.GenerationJob{ID: resp.JobID, Status: domain.JobStatus(resp.Status)}, nil
}

func (c *RESTClient) PollStatus(ctx context.Context, jobID string) (domain.GenerationStatus, error) {
	if strings.TrimSpace(jobID) == "" {
		return domain.GenerationStatus{}, domain.WrapError(domain.ErrInvalidInput, "poll status", fmt.Errorf("job id is required"))
	}
	param, err := runtime.StyleParamWithLocation("simple", false, "jobId", runtime.ParamLocationPath, jobID)
	if err != nil {
		return domain.GenerationStatus{}, fmt.Errorf("encode job id: %w", err)
	}

	var resp statusResponse
	if err := c.t.getJSON(ctx, "/generate/status/"+param, "StatusResponse", &resp, "poll_status"); err != nil {
		return domain.GenerationStatus{}, err
	}
	return domain.GenerationStatus{
		Status:    domain.JobStatus(resp.Status),
		ResultURL: resp.VideoURL,
		Error:     resp.Error,
	}, nil
}
