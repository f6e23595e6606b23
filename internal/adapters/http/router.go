package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
	"github.com/kirillkom/virtual-fitting/internal/core/ports"
	"github.com/kirillkom/virtual-fitting/internal/infrastructure/generation"
	"github.com/kirillkom/virtual-fitting/internal/observability/metrics"
)

const (
	maxJSONBody   = 32 << 20
	maxUploadBody = 256 << 20
)

type RouterConfig struct {
	Service        string
	Storage        ports.ObjectStorage
	Signer         ports.UploadSigner
	Catalog        ports.GarmentCatalog
	Metrics        *metrics.HTTPServerMetrics
	Jobs           ports.JobStore
	UploadTTL      time.Duration
	CompleteAfter  int
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	QueueTimeout   time.Duration
}

// Router serves a development stand-in for the generation service. It
// speaks both the multi-endpoint and the single action protocol.
type Router struct {
	cfg      RouterConfig
	contract *generation.Contract
	newID    func() string
}

// uploadAuthorizer is implemented by signers whose upload URLs point back at
// this server.
type uploadAuthorizer interface {
	Authorize(key, token, contentType string) error
}

func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Storage == nil || cfg.Signer == nil || cfg.Catalog == nil {
		return nil, fmt.Errorf("router: storage, signer and catalog are required")
	}
	contract, err := generation.LoadContract()
	if err != nil {
		return nil, err
	}
	if cfg.Service == "" {
		cfg.Service = "devserver"
	}
	if cfg.UploadTTL <= 0 {
		cfg.UploadTTL = 15 * time.Minute
	}
	if cfg.Jobs == nil {
		cfg.Jobs = NewMemoryJobStore()
	}
	if cfg.CompleteAfter <= 0 {
		cfg.CompleteAfter = 1
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = 2 * time.Second
	}
	return &Router{
		cfg:      cfg,
		contract: contract,
		newID:    newJobID,
	}, nil
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", rt.openapi)
	mux.HandleFunc("GET /garments", rt.listGarments)
	mux.HandleFunc("POST /upload/presigned-url", rt.createUploadTarget)
	mux.HandleFunc("PUT /uploads/{key...}", rt.receiveUpload)
	mux.HandleFunc("GET /media/{key...}", rt.serveMedia)
	mux.HandleFunc("POST /generate", rt.startGeneration)
	mux.HandleFunc("POST /generate/image", rt.startImageGeneration)
	mux.HandleFunc("GET /generate/status/{jobId}", rt.getStatus)
	mux.HandleFunc("POST /action", rt.action)
	if rt.cfg.Metrics != nil {
		mux.Handle("GET /metrics", rt.cfg.Metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.MaxInFlight, rt.cfg.QueueTimeout)
	handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	if rt.cfg.Metrics != nil {
		handler = rt.cfg.Metrics.Middleware(rt.cfg.Service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openapi(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(generation.ContractDocument())
}

func (rt *Router) listGarments(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"garments": rt.cfg.Catalog.List()})
}

func (rt *Router) receiveUpload(w http.ResponseWriter, r *http.Request) {
	authorizer, ok := rt.cfg.Signer.(uploadAuthorizer)
	if !ok {
		writeError(w, http.StatusNotFound, "uploads go directly to the bucket")
		return
	}
	key := r.PathValue("key")
	if err := authorizer.Authorize(key, r.URL.Query().Get("token"), r.Header.Get("Content-Type")); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}

	body := &countingReader{r: http.MaxBytesReader(w, r.Body, maxUploadBody)}
	if err := rt.cfg.Storage.Save(r.Context(), key, body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload is too large")
			return
		}
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	if rt.cfg.Metrics != nil {
		rt.cfg.Metrics.AddStoredBytes(rt.cfg.Service, body.n)
	}
	slog.Info("upload_stored", "request_id", requestIDFromContext(r.Context()), "key", key, "bytes", body.n)
	w.WriteHeader(http.StatusOK)
}

func (rt *Router) serveMedia(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	rc, err := rt.cfg.Storage.Open(r.Context(), key)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", contentTypeForKey(key))
	_, _ = io.Copy(w, rc)
}

// decodeValidated reads a JSON body, checks it against the named contract
// schema and decodes it into out.
func (rt *Router) decodeValidated(r *http.Request, schema string, out any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "read request", err)
	}
	if err := rt.contract.Validate(schema, raw); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "validate request", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request", err)
	}
	return nil
}

func (rt *Router) lookupGarment(id string) error {
	if _, ok := rt.cfg.Catalog.Lookup(id); !ok {
		return domain.WrapError(domain.ErrInvalidInput, "lookup garment", fmt.Errorf("%w: %q", domain.ErrUnknownGarment, id))
	}
	return nil
}

func (rt *Router) requireObject(r *http.Request, key string) error {
	rc, err := rt.cfg.Storage.Open(r.Context(), key)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return domain.WrapError(domain.ErrInvalidInput, "start generation", fmt.Errorf("object %q has not been uploaded", key))
		}
		return err
	}
	return rc.Close()
}

func (rt *Router) resultURL(r *http.Request, job domain.StubJob) (string, error) {
	return rt.cfg.Signer.PresignDownload(r.Context(), job.ObjectKey, rt.cfg.UploadTTL)
}

func (rt *Router) recordJob(job domain.StubJob) {
	if rt.cfg.Metrics != nil {
		rt.cfg.Metrics.RecordJob(rt.cfg.Service, job.Kind, string(job.Status))
	}
	slog.Info("job_completed", "job_id", job.ID, "kind", job.Kind, "garment_id", job.GarmentID)
}

func newObjectKey(prefix, fileName string) string {
	return prefix + "/" + uuid.NewString() + safeExt(fileName)
}

func safeExt(fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	if ext == "" || len(ext) > 6 {
		return ".bin"
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ".bin"
		}
	}
	return ext
}

func contentTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".avi":
		return "video/x-msvideo"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
