package logging

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ContextKey is a type for context keys
type ContextKey string

// LoggerContextKey is the key for the request scope in the context
const LoggerContextKey ContextKey = "logger"

// requestScope holds the request logger. Handlers further down the chain can
// enrich it, and the completion line picks up whatever they added.
type requestScope struct {
	mu     sync.Mutex
	logger *Logger
}

func (s *requestScope) current() *Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

func (s *requestScope) add(fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = s.logger.WithFields(fields)
}

// RequestLogger logs one line per request with status, size, duration and the
// matched route. Fields added through AddFields show up on that line too.
func RequestLogger(logger *Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi's RequestID middleware runs before this one
			scope := &requestScope{logger: logger.WithFields(map[string]any{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"remote_ip":  r.RemoteAddr,
			})}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), LoggerContextKey, scope)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}

			args := []any{
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					args = append(args, "route", pattern)
				}
			}

			scope.current().Log(r.Context(), level, "request completed", args...)
		})
	}
}

// WithLogger starts a request scope around logger
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, &requestScope{logger: logger})
}

// AddFields attaches fields to the request logger for the rest of the request.
// Without a scope in ctx it does nothing.
func AddFields(ctx context.Context, fields map[string]any) {
	if scope, ok := ctx.Value(LoggerContextKey).(*requestScope); ok {
		scope.add(fields)
	}
}

// GetLoggerFromContext retrieves the logger from the request context
func GetLoggerFromContext(ctx context.Context) *Logger {
	if scope, ok := ctx.Value(LoggerContextKey).(*requestScope); ok {
		return scope.current()
	}
	return NewLogger(true)
}
