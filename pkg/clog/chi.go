package clog

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type chiConfig struct {
	Filter func(r *http.Request) bool
}

type ChiOption func(*chiConfig)

// WithChiFilter drops the access line for requests where filter returns
// false. The request attributes are still collected for handler logs.
func WithChiFilter(filter func(r *http.Request) bool) ChiOption {
	return func(cfg *chiConfig) {
		cfg.Filter = filter
	}
}

// SlogChiMiddleware gives every request an attribute bag and writes one
// access line when the handler returns, at a level derived from the status.
func SlogChiMiddleware(opts ...ChiOption) func(http.Handler) http.Handler {
	var cfg chiConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ctx := ContextWithSlog(r.Context())
			AddAttributes(ctx, map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			if reqID := middleware.GetReqID(ctx); reqID != "" {
				AddAttribute(ctx, "request_id", reqID)
			}

			next.ServeHTTP(ww, r.WithContext(ctx))

			if cfg.Filter != nil && !cfg.Filter(r) {
				return
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := map[string]any{
				"status":        status,
				"bytes_written": ww.BytesWritten(),
				"duration":      time.Since(start),
			}
			if rc := chi.RouteContext(ctx); rc != nil && rc.RoutePattern() != "" {
				attrs["route"] = rc.RoutePattern()
			}
			AddAttributes(ctx, attrs)

			slog.Log(ctx, HTTPStatusToLevel(status), http.StatusText(status))
		})
	}
}
