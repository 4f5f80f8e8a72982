package http

import (
	"net/http"
	"time"

	"github.com/bnema/scribe/internal/adapter/http/middleware"
	"github.com/bnema/scribe/internal/adapter/http/ratelimit"
	"github.com/bnema/scribe/internal/port"
)

type Server struct {
	mux        *http.ServeMux
	handler    http.Handler
	handlers   *Handlers
	sseHandler *SSEHandler
	limiter    *ratelimit.Limiter
}

// NewServer wires the intake API. uploadsPerHour bounds uploads per client;
// zero disables the limit.
func NewServer(pipeline Pipeline, store port.TranscriptStore, annotations port.AnnotationStore, events EventSource, uploadDir string, maxSizeMB, uploadsPerHour int, behindProxy bool) *Server {
	var limiter *ratelimit.Limiter
	if uploadsPerHour > 0 {
		limiter = ratelimit.NewLimiter(uploadsPerHour, time.Hour)
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:        mux,
		handlers:   NewHandlers(pipeline, store, annotations, uploadDir, maxSizeMB, limiter, behindProxy),
		sseHandler: NewSSEHandler(events),
		limiter:    limiter,
	}
	s.registerRoutes()
	s.handler = middleware.RequestLog(middleware.SecurityHeaders(mux))

	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handlers.Health())

	s.mux.HandleFunc("POST /transcripts", s.handlers.Upload())
	s.mux.HandleFunc("GET /transcripts", s.handlers.List())
	s.mux.HandleFunc("GET /transcripts/{id}", s.handlers.Get())
	s.mux.HandleFunc("PUT /transcripts/{id}", s.handlers.Update())
	s.mux.HandleFunc("GET /transcripts/{id}/text", s.handlers.Text())
	s.mux.HandleFunc("DELETE /transcripts/{id}", s.handlers.Delete())
	s.mux.HandleFunc("POST /transcripts/{id}/save", s.handlers.RetrySave())

	s.mux.HandleFunc("GET /transcripts/{id}/annotations", s.handlers.ListAnnotations())
	s.mux.HandleFunc("POST /transcripts/{id}/annotations", s.handlers.CreateAnnotation())
	s.mux.HandleFunc("PUT /annotations/{id}", s.handlers.UpdateAnnotation())
	s.mux.HandleFunc("DELETE /annotations/{id}", s.handlers.DeleteAnnotation())

	s.mux.HandleFunc("GET /jobs/{id}/events", s.sseHandler.Events())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops the upload limiter's background cleanup.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}
