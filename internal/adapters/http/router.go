package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"golang.org/x/time/rate"

	"github.com/kirillkom/loan-intake/internal/config"
	"github.com/kirillkom/loan-intake/internal/core/domain"
	"github.com/kirillkom/loan-intake/internal/core/ports"
	"github.com/kirillkom/loan-intake/internal/observability/metrics"
)

const (
	serviceName        = "api"
	queueStreamPath    = "/v1/verification-queue/stream"
	maxMultipartMemory = 32 << 20
	backpressureWait   = 250 * time.Millisecond
)

// FileServer serves objects behind signed download tokens. Only the local
// storage backend implements it; S3 links point at the bucket directly.
type FileServer interface {
	Resolve(token string) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

type RouterOptions struct {
	Files   FileServer
	Metrics *metrics.HTTPServerMetrics
	OpenAPI *openapi3.T
	Logger  *slog.Logger
}

type Router struct {
	cfg      config.Config
	uploads  ports.DocumentUploader
	queue    ports.VerificationQueue
	activity ports.ActivityFeed
	files    FileServer
	metrics  *metrics.HTTPServerMetrics
	openapi  *openapi3.T
	logger   *slog.Logger

	heartbeat time.Duration
}

func NewRouter(
	cfg config.Config,
	uploads ports.DocumentUploader,
	queue ports.VerificationQueue,
	activity ports.ActivityFeed,
	opts RouterOptions,
) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:       cfg,
		uploads:   uploads,
		queue:     queue,
		activity:  activity,
		files:     opts.Files,
		metrics:   opts.Metrics,
		openapi:   opts.OpenAPI,
		logger:    logger,
		heartbeat: sseHeartbeatInterval,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.json", rt.openAPI)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("GET /v1/document-types", rt.listDocumentTypes)
	mux.HandleFunc("POST /v1/leads/{leadID}/documents", rt.uploadDocuments)
	mux.HandleFunc("GET /v1/uploads", rt.listUploads)
	mux.HandleFunc("POST /v1/uploads/{correlationID}/override", rt.overrideUpload)
	mux.HandleFunc("DELETE /v1/uploads/{correlationID}", rt.removeUpload)
	mux.HandleFunc("GET /v1/documents/{documentID}/url", rt.documentURL)
	mux.HandleFunc("POST /v1/documents/{documentID}/verify", rt.verifyDocument)
	mux.HandleFunc("POST /v1/documents/{documentID}/reject", rt.rejectDocument)
	mux.HandleFunc("GET /v1/verification-queue", rt.listPending)
	mux.HandleFunc("GET "+queueStreamPath, rt.streamQueue)
	mux.HandleFunc("GET /v1/activity", rt.listActivity)
	if rt.files != nil {
		mux.HandleFunc("GET /v1/files/{token}", rt.serveFile)
	}

	var api http.Handler = mux
	if rt.metrics != nil {
		api = rt.metrics.Middleware(serviceName, mux)
	}

	// Long-lived streams bypass the in-flight gate so they cannot starve
	// regular requests of slots.
	guarded := backpressureMiddleware(api, rt.cfg.APIMaxInFlight, backpressureWait, rt.recordRejected)
	gated := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == queueStreamPath {
			api.ServeHTTP(w, r)
			return
		}
		guarded.ServeHTTP(w, r)
	})

	var limiter *rate.Limiter
	if rt.cfg.APIRateLimitRPS > 0 {
		burst := rt.cfg.APIRateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rt.cfg.APIRateLimitRPS), burst)
	}

	handler := rateLimitMiddleware(gated, limiter, rt.recordRejected)
	handler = accessLogMiddleware(rt.logger, handler)
	handler = recoverMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) recordRejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) listDocumentTypes(w http.ResponseWriter, r *http.Request) {
	types, err := rt.uploads.DocumentTypes(r.Context())
	if err != nil {
		rt.writeError(w, r, err, mapErrorToHTTPStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": types})
}

type uploadResponse struct {
	Entry    domain.UploadEntry     `json:"entry"`
	Document *domain.DocumentRecord `json:"document,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

func (rt *Router) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	form, ok := rt.parseUploadForm(w, r)
	if !ok {
		return
	}
	files := form.File["file"]
	if len(files) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}

	leadID := r.PathValue("leadID")
	documentTypeID := formValue(form, "document_type_id")
	actorID := strings.TrimSpace(r.Header.Get(actorIDHeader))

	candidates := make([]domain.UploadCandidate, 0, len(files))
	for i, header := range files {
		candidate, err := readCandidate(header)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read uploaded file: " + err.Error()})
			return
		}
		candidate.LeadID = leadID
		candidate.DocumentTypeID = documentTypeID
		candidate.UploadedBy = actorID
		if ids := form.Value["correlation_id"]; i < len(ids) {
			candidate.CorrelationID = strings.TrimSpace(ids[i])
		}
		candidates = append(candidates, candidate)
	}

	if len(candidates) == 1 {
		outcome, err := rt.uploads.Upload(r.Context(), candidates[0])
		rt.writeUploadOutcome(w, r, outcome, err)
		return
	}

	outcomes := rt.uploads.UploadBatch(r.Context(), candidates)
	items := make([]uploadResponse, len(outcomes))
	for i, outcome := range outcomes {
		items[i] = uploadResponse{Entry: outcome.Entry, Document: outcome.Document}
		if outcome.Err != nil {
			items[i].Error = errorMessage(outcome.Err, mapUploadErrorToHTTPStatus(outcome.Err))
		}
	}
	writeJSON(w, http.StatusMultiStatus, map[string]any{"items": items})
}

func (rt *Router) overrideUpload(w http.ResponseWriter, r *http.Request) {
	form, ok := rt.parseUploadForm(w, r)
	if !ok {
		return
	}
	files := form.File["file"]
	if len(files) != 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "exactly one multipart field 'file' is required"})
		return
	}
	candidate, err := readCandidate(files[0])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read uploaded file: " + err.Error()})
		return
	}
	candidate.LeadID = formValue(form, "lead_id")
	candidate.DocumentTypeID = formValue(form, "document_type_id")
	candidate.UploadedBy = strings.TrimSpace(r.Header.Get(actorIDHeader))

	outcome, err := rt.uploads.Override(r.Context(), r.PathValue("correlationID"), candidate)
	rt.writeUploadOutcome(w, r, outcome, err)
}

func (rt *Router) parseUploadForm(w http.ResponseWriter, r *http.Request) (*multipart.Form, bool) {
	if rt.cfg.UploadMaxRequestSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.UploadMaxRequestSize)
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body is too large"})
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form is required"})
		return nil, false
	}
	return r.MultipartForm, true
}

func (rt *Router) writeUploadOutcome(w http.ResponseWriter, r *http.Request, outcome *domain.UploadOutcome, err error) {
	if err != nil {
		status := mapUploadErrorToHTTPStatus(err)
		rt.logFailure(r, err, status)
		resp := map[string]any{"error": errorMessage(err, status)}
		if outcome != nil {
			resp["entry"] = outcome.Entry
		}
		writeJSON(w, status, resp)
		return
	}

	status := http.StatusCreated
	if outcome.Entry.State == domain.UploadRejected {
		status = http.StatusOK
	}
	writeJSON(w, status, uploadResponse{Entry: outcome.Entry, Document: outcome.Document})
}

func (rt *Router) listUploads(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": rt.uploads.InFlight()})
}

func (rt *Router) removeUpload(w http.ResponseWriter, r *http.Request) {
	if !rt.uploads.Remove(r.PathValue("correlationID")) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "upload not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) documentURL(w http.ResponseWriter, r *http.Request) {
	url, err := rt.uploads.SignedURL(r.Context(), r.PathValue("documentID"))
	if err != nil {
		rt.writeError(w, r, err, mapErrorToHTTPStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type reviewRequest struct {
	Notes string `json:"notes"`
}

func (rt *Router) verifyDocument(w http.ResponseWriter, r *http.Request) {
	rt.review(w, r, rt.queue.Verify)
}

func (rt *Router) rejectDocument(w http.ResponseWriter, r *http.Request) {
	rt.review(w, r, rt.queue.Reject)
}

func (rt *Router) review(
	w http.ResponseWriter,
	r *http.Request,
	action func(ctx context.Context, documentID, reviewerID, notes string) (*domain.DocumentRecord, error),
) {
	var req reviewRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
	}
	reviewerID := strings.TrimSpace(r.Header.Get(actorIDHeader))
	if reviewerID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": actorIDHeader + " header is required"})
		return
	}

	record, err := action(r.Context(), r.PathValue("documentID"), reviewerID, req.Notes)
	if err != nil {
		rt.writeError(w, r, err, mapErrorToHTTPStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func pendingView(pending []domain.PendingDocument) map[string]any {
	if pending == nil {
		pending = []domain.PendingDocument{}
	}
	return map[string]any{"items": pending, "count": len(pending)}
}

func (rt *Router) listPending(w http.ResponseWriter, r *http.Request) {
	pending, err := rt.queue.ListPending(r.Context())
	if err != nil {
		rt.writeError(w, r, err, mapErrorToHTTPStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, pendingView(pending))
}

func (rt *Router) listActivity(w http.ResponseWriter, r *http.Request) {
	query := domain.ActivityQuery{LeadID: r.URL.Query().Get("lead_id")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		query.Limit = limit
	}

	events, err := rt.activity.Recent(r.Context(), query)
	if err != nil {
		rt.writeError(w, r, err, mapErrorToHTTPStatus(err))
		return
	}
	if events == nil {
		events = []domain.ActivityEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": events})
}

func (rt *Router) serveFile(w http.ResponseWriter, r *http.Request) {
	objectPath, err := rt.files.Resolve(r.PathValue("token"))
	if err != nil {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "download link is invalid or expired"})
		return
	}
	body, err := rt.files.Open(r.Context(), objectPath)
	if err != nil {
		rt.writeError(w, r, err, mapErrorToHTTPStatus(err))
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(objectPath)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		rt.logger.Warn("file_download_interrupted",
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
	}
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error, status int) {
	rt.logFailure(r, err, status)
	writeJSON(w, status, map[string]string{"error": errorMessage(err, status)})
}

func (rt *Router) logFailure(r *http.Request, err error, status int) {
	if status < http.StatusInternalServerError {
		return
	}
	rt.logger.Error("http_handler_failed",
		"request_id", requestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"status", status,
		"error", err,
	)
}

func readCandidate(header *multipart.FileHeader) (domain.UploadCandidate, error) {
	file, err := header.Open()
	if err != nil {
		return domain.UploadCandidate{}, err
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		return domain.UploadCandidate{}, err
	}
	mimeType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(body)
	}
	return domain.UploadCandidate{
		Filename: header.Filename,
		MimeType: mimeType,
		Body:     body,
	}, nil
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
