package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const requestInfoKey contextKey = "requestInfo"

// requestInfo is filled in while the request travels down the chain so the
// access log can report who made it.
type requestInfo struct {
	logger *log.Logger
	userID uuid.UUID
}

// RequestLogger writes one line per request with its time, user and path.
func RequestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := &requestInfo{logger: logger}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestInfoKey, info)))

			user := "anonymous"
			if info.userID != uuid.Nil {
				user = info.userID.String()
			}
			logger.Info("request",
				"time", start.UTC().Format(time.RFC3339),
				"user", user,
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func markUser(ctx context.Context, id uuid.UUID) {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		info.userID = id
	}
}

func loggerFrom(r *http.Request) *log.Logger {
	if info, ok := r.Context().Value(requestInfoKey).(*requestInfo); ok && info.logger != nil {
		return info.logger
	}
	return log.Default()
}
