package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"ubillity/internal/log"
	"ubillity/internal/metrics"
)

type ContextKey string

const RequestIDKey ContextKey = "request_id"

// RequestIDHeader echoes the request id back to the client.
const RequestIDHeader = "X-Request-ID"

// Middleware handles request tracing, logging and HTTP metrics.
// Handlers between it and the router must pass the request pointer through
// unchanged so the matched route pattern is visible after the handler returns.
type Middleware struct {
	extractIP func(*http.Request) string
	logger    *log.StructuredLogger
	total     int64
}

func NewMiddleware(extractIP func(*http.Request) string) *Middleware {
	return &Middleware{extractIP: extractIP}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		requestID := GenerateRequestID()
		logger := log.FromContext(r.Context()).With(log.FieldRequestID, requestID)
		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		ctx = log.WithLogger(ctx, logger)
		r = r.WithContext(ctx)

		w.Header().Set(RequestIDHeader, requestID)

		sl := log.NewStructuredLogger(logger)
		sl.LogHTTPStart(ctx, r, "", clientIP)
		atomic.AddInt64(&m.total, 1)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		elapsed := time.Since(start)
		sl.LogHTTPEnd(ctx, r, "", rw.statusCode, elapsed.Milliseconds(), clientIP)
		metrics.ObserveHTTP(r.Method, r.Pattern, rw.statusCode, elapsed)
	})
}

// TotalRequests returns the number of requests seen since start.
func (m *Middleware) TotalRequests() int64 {
	return atomic.LoadInt64(&m.total)
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
