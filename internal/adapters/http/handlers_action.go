package httpadapter

import (
	"fmt"
	"net/http"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
	"github.com/kirillkom/virtual-fitting/internal/infrastructure/generation"
)

type actionRequest struct {
	Action      string `json:"action"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	InputKey    string `json:"inputKey"`
	GarmentID   string `json:"garmentId"`
	ImageBytes  string `json:"imageBytes"`
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

// action dispatches on the action field. Processing completes before the
// response is written.
func (rt *Router) action(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := rt.decodeValidated(r, "ActionRequest", &req); err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	switch req.Action {
	case generation.ActionCreateUpload:
		rt.actionCreateUpload(w, r, req)
	case generation.ActionProcess:
		rt.actionProcess(w, r, req)
	case generation.ActionImageOnly:
		rt.actionImageOnly(w, r, req)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
	}
}

func (rt *Router) actionCreateUpload(w http.ResponseWriter, r *http.Request, req actionRequest) {
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}
	key := newObjectKey("videos", req.Filename)
	uploadURL, err := rt.cfg.Signer.PresignUpload(r.Context(), key, req.ContentType, rt.cfg.UploadTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, actionUploadResponse{UploadURL: uploadURL, InputKey: key})
}

func (rt *Router) actionProcess(w http.ResponseWriter, r *http.Request, req actionRequest) {
	if req.InputKey == "" {
		writeError(w, http.StatusBadRequest, "inputKey is required")
		return
	}
	if err := rt.lookupGarment(req.GarmentID); err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	if err := rt.requireObject(r, req.InputKey); err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	rt.writeCompleted(w, r, domain.StubJobVideo, req.InputKey, req.GarmentID)
}

func (rt *Router) actionImageOnly(w http.ResponseWriter, r *http.Request, req actionRequest) {
	if err := rt.lookupGarment(req.GarmentID); err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	key, err := rt.storeInlineImage(r, req.ImageBytes)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	rt.writeCompleted(w, r, domain.StubJobImage, key, req.GarmentID)
}

// writeCompleted records a job that finished synchronously.
func (rt *Router) writeCompleted(w http.ResponseWriter, r *http.Request, kind, objectKey, garmentID string) {
	job, err := rt.createJob(r, kind, objectKey, garmentID, domain.JobCompleted)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	url, err := rt.resultURL(r, job)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rt.recordJob(job)
	writeJSON(w, http.StatusOK, actionJobResponse{JobID: job.ID, OutputKey: job.ObjectKey, ResultURL: url})
}
