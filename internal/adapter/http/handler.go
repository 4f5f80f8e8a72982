package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bnema/scribe/internal/adapter/http/ratelimit"
	"github.com/bnema/scribe/internal/adapter/http/validation"
	"github.com/bnema/scribe/internal/domain"
	"github.com/bnema/scribe/internal/infrastructure/logger"
	"github.com/bnema/scribe/internal/port"
	"github.com/bnema/scribe/internal/service"
)

// JobIDHeader carries the job ID of an upload so clients can correlate the
// event stream with the response.
const JobIDHeader = "X-Job-ID"

const (
	multipartMemory   = 32 << 20
	jsonBodyLimit     = 1 << 20
	errorDetailLength = 300
)

type Pipeline interface {
	Transcribe(ctx context.Context, req service.Request) (*domain.Result, error)
	RetrySave(ctx context.Context, pe *domain.PersistenceError) (*domain.Result, error)
	PendingSave(id int64) (*domain.PersistenceError, bool)
}

type Handlers struct {
	pipeline    Pipeline
	store       port.TranscriptStore
	annotations port.AnnotationStore
	uploadDir   string
	maxSizeMB   int
	limiter     *ratelimit.Limiter
	behindProxy bool
}

func NewHandlers(pipeline Pipeline, store port.TranscriptStore, annotations port.AnnotationStore, uploadDir string, maxSizeMB int, limiter *ratelimit.Limiter, behindProxy bool) *Handlers {
	return &Handlers{
		pipeline:    pipeline,
		store:       store,
		annotations: annotations,
		uploadDir:   uploadDir,
		maxSizeMB:   maxSizeMB,
		limiter:     limiter,
		behindProxy: behindProxy,
	}
}

type errorResponse struct {
	Error        string `json:"error"`
	Detail       string `json:"detail,omitempty"`
	Cause        string `json:"cause,omitempty"`
	SegmentIndex *int   `json:"segment_index,omitempty"`
	ID           int64  `json:"id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// Upload accepts one media file and answers once the transcript is saved.
// The pipeline runs detached from the request context so a dropped client
// does not waste the work already done. A JSON body saves a transcript typed
// by hand instead.
func (h *Handlers) Upload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if isJSON(r) {
			h.saveManual(w, r)
			return
		}
		if h.limiter != nil {
			if ok, wait := h.limiter.Allow(ratelimit.ClientIP(r, h.behindProxy)); !ok {
				setRetryAfter(w, wait)
				writeError(w, http.StatusTooManyRequests, "too many uploads")
				return
			}
		}

		maxBytes := int64(h.maxSizeMB) * 1024 * 1024
		if r.ContentLength > maxBytes {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d MB", h.maxSizeMB))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d MB", h.maxSizeMB))
				return
			}
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		file, header, err := r.FormFile("video")
		if errors.Is(err, http.ErrMissingFile) {
			file, header, err = r.FormFile("file")
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing media file")
			return
		}
		defer file.Close() //nolint:errcheck

		container, err := validation.DetectContainer(file)
		if err != nil {
			if errors.Is(err, validation.ErrDisallowedFileType) {
				writeJSON(w, http.StatusUnsupportedMediaType, errorResponse{
					Error:  "unsupported media type",
					Detail: container.MIME,
				})
				return
			}
			logger.Error.Printf("read upload %s: %v", logger.SanitizeForLog(header.Filename), err)
			writeError(w, http.StatusBadRequest, "unreadable upload")
			return
		}

		jobID, err := jobIDFrom(r.FormValue("job_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "job_id must be a UUID")
			return
		}

		consultant, err := consultantFrom(r.FormValue("consultant_name"), r.FormValue("consultant_rating"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		name := strings.TrimSpace(r.FormValue("name"))
		if name == "" {
			name = validation.SanitizeFilename(header.Filename)
		}

		sourcePath := filepath.Join(h.uploadDir, jobID+container.Ext)
		if err := saveUpload(file, sourcePath); err != nil {
			if errors.Is(err, os.ErrExist) {
				writeError(w, http.StatusConflict, "job_id already in use")
				return
			}
			logger.Error.Printf("store upload for job %s: %v", jobID, err)
			msg := "failed to store upload"
			if strings.Contains(err.Error(), "no space left") {
				msg = "failed to store upload: disk full"
			}
			writeError(w, http.StatusInternalServerError, msg)
			return
		}

		w.Header().Set(JobIDHeader, jobID)
		logger.Info.Printf("upload %s (%s, %d bytes) queued as job %s",
			logger.SanitizeForLog(header.Filename), container.MIME, header.Size, jobID)

		result, err := h.pipeline.Transcribe(context.WithoutCancel(r.Context()), service.Request{
			SourcePath: sourcePath,
			Name:       name,
			Consultant: consultant,
			JobID:      jobID,
		})
		if err != nil {
			writeJobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// transcriptBody is the JSON form of a transcript. Filename is accepted as an
// alias for name.
type transcriptBody struct {
	Name             string   `json:"name"`
	Filename         string   `json:"filename"`
	Content          string   `json:"content"`
	Lines            []string `json:"lines"`
	ConsultantName   string   `json:"consultant_name"`
	ConsultantRating *float64 `json:"consultant_rating"`
}

func (b transcriptBody) name() string {
	if name := strings.TrimSpace(b.Name); name != "" {
		return name
	}
	return strings.TrimSpace(b.Filename)
}

func (b transcriptBody) consultant() (*domain.Consultant, error) {
	rating := ""
	if b.ConsultantRating != nil {
		rating = strconv.FormatFloat(*b.ConsultantRating, 'f', -1, 64)
	}
	return consultantFrom(b.ConsultantName, rating)
}

func (h *Handlers) saveManual(w http.ResponseWriter, r *http.Request) {
	var body transcriptBody
	if !decodeJSON(w, r, int64(h.maxSizeMB)*1024*1024, &body) {
		return
	}
	name := body.name()
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	text, err := domain.ManualText(body.Content, body.Lines)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	consultant, err := body.consultant()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.store.Create(r.Context(), domain.Placeholder{Name: name, Consultant: consultant}, text)
	if err != nil {
		logger.Error.Printf("save manual transcript %s: %v", logger.SanitizeForLog(name), err)
		writeError(w, http.StatusInternalServerError, "failed to save transcript")
		return
	}
	logger.Info.Printf("manual transcript %d saved (%d chars)", rec.ID, len(text))
	writeJSON(w, http.StatusCreated, rec)
}

// Update replaces a transcript's name and consultant. The content is left
// alone.
func (h *Handlers) Update() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r, "transcript")
		if !ok {
			return
		}
		var body transcriptBody
		if !decodeJSON(w, r, jsonBodyLimit, &body) {
			return
		}
		name := body.name()
		if name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		consultant, err := body.consultant()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := h.store.UpdateMetadata(r.Context(), id, name, consultant); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "transcript not found")
				return
			}
			logger.Error.Printf("update transcript %d: %v", id, err)
			writeError(w, http.StatusInternalServerError, "update failed")
			return
		}
		rec, ok := h.lookup(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func (h *Handlers) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := h.store.List(r.Context())
		if err != nil {
			logger.Error.Printf("list transcripts: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to list transcripts")
			return
		}
		if records == nil {
			records = []*domain.TranscriptRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func (h *Handlers) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := h.lookup(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

// Text serves the transcript content as a plain text download.
func (h *Handlers) Text() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := h.lookup(w, r)
		if !ok {
			return
		}
		if !rec.IsComplete() {
			writeJSON(w, http.StatusConflict, errorResponse{Error: "transcript not complete", ID: rec.ID})
			return
		}

		inline := r.URL.Query().Get("inline") == "1"
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", validation.ContentDisposition(validation.TranscriptFilename(rec.Name), inline))
		_, _ = io.WriteString(w, rec.Content)
	}
}

func (h *Handlers) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r, "transcript")
		if !ok {
			return
		}
		if err := h.store.Delete(r.Context(), id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "transcript not found")
				return
			}
			logger.Error.Printf("delete transcript %d: %v", id, err)
			writeError(w, http.StatusInternalServerError, "delete failed")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// RetrySave persists a transcript whose final save failed, using the text
// kept from the original run.
func (h *Handlers) RetrySave() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r, "transcript")
		if !ok {
			return
		}
		pe, found := h.pipeline.PendingSave(id)
		if !found {
			writeError(w, http.StatusNotFound, "no pending save for transcript")
			return
		}
		result, err := h.pipeline.RetrySave(r.Context(), pe)
		if err != nil {
			writeJobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (h *Handlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) (*domain.TranscriptRecord, bool) {
	id, ok := parseID(w, r, "transcript")
	if !ok {
		return nil, false
	}
	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transcript not found")
			return nil, false
		}
		logger.Error.Printf("get transcript %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to load transcript")
		return nil, false
	}
	return rec, true
}

func parseID(w http.ResponseWriter, r *http.Request, noun string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+noun+" id")
		return 0, false
	}
	return id, true
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

// decodeJSON reads one JSON value from the body, writing the error response
// itself when that fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}

	var (
		tooLarge  *http.MaxBytesError
		typeError *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.As(err, &typeError) && typeError.Field != "":
		writeError(w, http.StatusBadRequest, typeError.Field+" has the wrong type")
	default:
		writeError(w, http.StatusBadRequest, "invalid JSON body")
	}
	return false
}

// writeJobError maps pipeline failures onto HTTP statuses. The segment index
// is reported whenever a segment caused the failure.
func writeJobError(w http.ResponseWriter, err error) {
	resp := errorResponse{Detail: logger.Preview(err.Error(), errorDetailLength)}
	if idx, ok := domain.SegmentIndexOf(err); ok {
		resp.SegmentIndex = &idx
	}

	var (
		segErr     *domain.SegmentationError
		extractErr *domain.AudioExtractionError
		transErr   *domain.TranscriptionError
		persistErr *domain.PersistenceError
		wsErr      *domain.WorkspaceError
	)
	status := http.StatusInternalServerError

	switch {
	case errors.As(err, &segErr):
		status = http.StatusUnprocessableEntity
		resp.Error = "media could not be segmented"
	case errors.As(err, &extractErr):
		status = http.StatusBadGateway
		resp.Error = "audio extraction failed"
	case errors.As(err, &transErr):
		status = http.StatusBadGateway
		resp.Error = "transcription failed"
		resp.Cause = string(transErr.Cause)
		if transErr.Cause == domain.CauseRateLimited {
			status = http.StatusTooManyRequests
			setRetryAfter(w, transErr.RetryAfter)
		}
	case errors.As(err, &persistErr):
		resp.Error = "transcript could not be saved"
		resp.ID = persistErr.TranscriptID
	case errors.As(err, &wsErr):
		resp.Error = "workspace unavailable"
	default:
		resp.Error = "transcription job failed"
	}

	logger.Error.Printf("job failed with %d: %s", status, logger.SanitizeForLog(resp.Detail))
	writeJSON(w, status, resp)
}

func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	if d <= 0 {
		return
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
}

// jobIDFrom lets a client pick the job ID so it can subscribe to the event
// stream before uploading.
func jobIDFrom(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return uuid.NewString(), nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func consultantFrom(name, rating string) (*domain.Consultant, error) {
	name = strings.TrimSpace(name)
	rating = strings.TrimSpace(rating)
	if name == "" {
		if rating != "" {
			return nil, errors.New("consultant_rating requires consultant_name")
		}
		return nil, nil
	}

	c := &domain.Consultant{Name: name}
	if rating != "" {
		v, err := strconv.ParseFloat(rating, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("consultant_rating must be a number")
		}
		c.Rating = &v
	}
	return c, nil
}

func saveUpload(src io.Reader, path string) error {
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}
