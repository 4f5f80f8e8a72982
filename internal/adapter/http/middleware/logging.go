package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/bnema/scribe/internal/infrastructure/logger"
)

const RequestIDHeader = "X-Request-ID"

// RequestLog tags each request with an ID, echoed in the response, and logs
// the method, path, status and duration once the handler returns. An ID set
// by an upstream proxy is kept.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(wrapped, r)

		logger.Info.Printf("request_id=%s method=%s path=%s status=%d duration_ms=%d",
			logger.SanitizeForLog(requestID), r.Method, logger.SanitizeForLog(r.URL.Path),
			wrapped.statusCode, time.Since(start).Milliseconds())
	})
}

// responseWriter captures the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode    int
	headerWritten bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.headerWritten {
		rw.statusCode = code
		rw.headerWritten = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(data []byte) (int, error) {
	if !rw.headerWritten {
		rw.statusCode = http.StatusOK
		rw.headerWritten = true
	}
	return rw.ResponseWriter.Write(data)
}

// Flush keeps event streams working through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
