package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithTraceContext adds a trace ID to the context and returns a logger with it
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := Default().WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// DecisionContext creates a logger context for per-horizon decisions
func DecisionContext(symbol, timeframe, decision string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe,
		"decision":  decision,
	}).WithComponent("decision")
}

// EvaluationContext creates a logger context for one tick evaluation
func EvaluationContext(symbol string, tickTime time.Time) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":    symbol,
		"tick_time": tickTime.Format(time.RFC3339),
	}).WithComponent("engine")
}

// ThresholdContext creates a logger context for threshold operations
func ThresholdContext(version string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"version": version,
	}).WithComponent("thresholds")
}

// FetchContext creates a logger context for market-data fetches
func FetchContext(endpoint, symbol string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"endpoint": endpoint,
		"symbol":   symbol,
	}).WithComponent("binance")
}

// StreamContext creates a logger context for websocket streaming
func StreamContext(remoteAddr string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"remote_addr": remoteAddr,
	}).WithComponent("ws")
}

// HTTPMiddleware is a middleware that adds logging to HTTP requests
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = GenerateTraceID()
		}

		l := Default().WithTraceID(traceID).WithFields(map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"remote_addr": r.RemoteAddr,
		}).WithComponent("http")

		ctx := NewContext(r.Context(), l)
		r = r.WithContext(ctx)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		l.WithDuration(duration).WithField("status_code", wrapped.statusCode).Info("Request completed")
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
