package httpadapter

import (
	"bytes"
	"encoding/base64"
	"net/http"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
)

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
	VideoURL string `json:"videoUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (rt *Router) createUploadTarget(w http.ResponseWriter, r *http.Request) {
	var req uploadTargetRequest
	if err := rt.decodeValidated(r, "UploadTargetRequest", &req); err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	key := newObjectKey("videos", req.FileName)
	uploadURL, err := rt.cfg.Signer.PresignUpload(r.Context(), key, req.ContentType, rt.cfg.UploadTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, uploadTargetResponse{
		UploadURL: uploadURL,
		VideoKey:  key,
		ExpiresIn: int(rt.cfg.UploadTTL.Seconds()),
	})
}

func (rt *Router) startGeneration(w http.ResponseWriter, r *http.Request) {
	var req generationRequest
	if err := rt.decodeValidated(r, "GenerationRequest", &req); err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	if err := rt.lookupGarment(req.ClothingID); err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	if err := rt.requireObject(r, req.VideoKey); err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	job, err := rt.createJob(r, domain.StubJobVideo, req.VideoKey, req.ClothingID, domain.JobProcessing)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, jobResponse{JobID: job.ID, Status: string(job.Status)})
}

func (rt *Router) startImageGeneration(w http.ResponseWriter, r *http.Request) {
	var req imageGenerationRequest
	if err := rt.decodeValidated(r, "ImageGenerationRequest", &req); err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	if err := rt.lookupGarment(req.GarmentID); err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	key, err := rt.storeInlineImage(r, req.ImageBytes)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	job, err := rt.createJob(r, domain.StubJobImage, key, req.GarmentID, domain.JobProcessing)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, jobResponse{JobID: job.ID, Status: string(job.Status)})
}

func (rt *Router) getStatus(w http.ResponseWriter, r *http.Request) {
	job, completed, err := rt.cfg.Jobs.AdvanceJob(r.Context(), r.PathValue("jobId"), rt.cfg.CompleteAfter)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	resp := statusResponse{Status: string(job.Status)}
	if job.Status == domain.JobCompleted {
		url, err := rt.resultURL(r, job)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.VideoURL = url
	}
	if completed {
		rt.recordJob(job)
	}
	writeJSON(w, http.StatusOK, resp)
}

// storeInlineImage keeps a base64 still so the job can echo it back.
func (rt *Router) storeInlineImage(r *http.Request, encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(data) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "decode image", domain.ErrUndecodableImage)
	}
	ext := ".bin"
	switch http.DetectContentType(data) {
	case "image/png":
		ext = ".png"
	case "image/jpeg":
		ext = ".jpg"
	}
	key := newObjectKey("images", "image"+ext)
	if err := rt.cfg.Storage.Save(r.Context(), key, bytes.NewReader(data)); err != nil {
		return "", err
	}
	return key, nil
}
