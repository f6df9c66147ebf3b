package internal

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kazz187/urgentsync/internal/channel"
	"github.com/kazz187/urgentsync/internal/completion"
	"github.com/kazz187/urgentsync/internal/config"
	"github.com/kazz187/urgentsync/internal/metrics"
	"github.com/kazz187/urgentsync/internal/reconcile"
	"github.com/kazz187/urgentsync/pkg/cerr"
	"github.com/kazz187/urgentsync/pkg/clog"
)

type Server struct {
	server           *http.Server
	env              *config.Env
	reconcileServer  *reconcile.Server
	completionServer *completion.Server
	channelServer    *channel.Server
	metrics          *metrics.Metrics
}

func NewServer(
	env *config.Env,
	reconcileServer *reconcile.Server,
	completionServer *completion.Server,
	channelServer *channel.Server,
	m *metrics.Metrics,
) *Server {
	return &Server{
		env:              env,
		reconcileServer:  reconcileServer,
		completionServer: completionServer,
		channelServer:    channelServer,
		metrics:          m,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(
			clog.SlogChiMiddleware(clog.WithChiFilter(quietStatus)),
			cerr.NewJSONResponseChiMiddleware(),
		)
		s.reconcileServer.Mount(r)
		s.completionServer.Mount(r)
		r.Group(func(r chi.Router) {
			r.Use(s.apiKeyMiddleware)
			s.reconcileServer.MountAdmin(r)
			s.channelServer.Mount(r)
		})
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
	})
	return r
}

// ListenAndServe starts the HTTP server. ctx becomes the base context of
// every request, so cancelling it cancels running syncs as well.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// quietStatus keeps uptime probes of /api/status out of the access log.
func quietStatus(r *http.Request) bool {
	return !(r.Method == http.MethodGet && r.URL.Path == "/api/status")
}

// apiKeyMiddleware guards the routes that change the channel. With no key
// configured they are open.
func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.env.AdminAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.env.AdminAPIKey)) != 1 {
			cerr.SetNewJSONError(r.Context(), cerr.Unauthenticated, "unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
