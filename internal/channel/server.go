package channel

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/urgentsync/pkg/cerr"
	"github.com/kazz187/urgentsync/pkg/clog"
)

// Cleaner performs the administrative cleanup. The service implementation
// holds the channel lease while it runs.
type Cleaner interface {
	Cleanup(ctx context.Context) (*CleanupStats, error)
}

type Server struct {
	cleaner Cleaner
}

func NewServer(cleaner Cleaner) *Server {
	return &Server{cleaner: cleaner}
}

func (s *Server) Mount(r chi.Router) {
	r.Post("/cleanup", s.Cleanup)
}

type cleanupResponse struct {
	Success   bool          `json:"success"`
	Message   string        `json:"message"`
	Stats     *CleanupStats `json:"stats"`
	Timestamp string        `json:"timestamp"`
}

func (s *Server) Cleanup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := s.cleaner.Cleanup(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	clog.AddAttributes(ctx, map[string]any{
		"cleanup": map[string]any{"deleted": stats.Deleted, "failed": stats.Failed, "skipped": stats.Skipped},
	})
	cerr.SetJSONResponse(ctx, &cleanupResponse{
		Success:   true,
		Message:   "Manual cleanup completed",
		Stats:     stats,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
