package reconcile

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/urgentsync/internal/lease"
	"github.com/kazz187/urgentsync/internal/task"
	"github.com/kazz187/urgentsync/pkg/cerr"
)

// StatusInfo is the static part of the status endpoint.
type StatusInfo struct {
	Version         string
	Roster          task.Roster
	Caps            Caps
	HorizonDays     int
	SyncSchedule    string
	CleanupSchedule string
	ScheduleZone    string
	Location        *time.Location
}

type Server struct {
	service *Service
	leases  *lease.Manager
	info    StatusInfo
}

func NewServer(service *Service, leases *lease.Manager, info StatusInfo) *Server {
	return &Server{service: service, leases: leases, info: info}
}

// Mount registers the public routes.
func (s *Server) Mount(r chi.Router) {
	r.Get("/status", s.Status)
}

// MountAdmin registers the routes that change the channel.
func (s *Server) MountAdmin(r chi.Router) {
	r.Get("/sync", s.Sync)
	r.Post("/sync", s.Sync)
	r.Post("/notion-webhook", s.NotionWebhook)
}

func (s *Server) Sync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summary, err := s.service.Resync(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, runError(err))
		return
	}
	cerr.SetJSONResponse(ctx, summary)
}

func (s *Server) NotionWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summary, err := s.service.TopUp(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, runError(err))
		return
	}
	cerr.SetJSONResponse(ctx, summary)
}

// runError keeps lease conflicts as 409 and turns everything else into a 500
// that carries the cause and stack for the operator.
func runError(err error) error {
	switch cerr.CodeOf(err) {
	case cerr.Aborted, cerr.Canceled:
		return err
	}
	return cerr.NewError(cerr.Internal, "sync failed", err).WithExposedDetail()
}

type statusResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	CurrentTime map[string]string `json:"currentTime"`
	Schedules   map[string]string `json:"schedules"`
	Endpoints   map[string]string `json:"endpoints"`
	Features    statusFeatures    `json:"features"`
	Lease       *statusLease      `json:"lease,omitempty"`
}

type statusFeatures struct {
	MaxTasks          int               `json:"maxTasks"`
	MaxTasksPerPerson int               `json:"maxTasksPerPerson"`
	DayLimit          int               `json:"dayLimit"`
	PersonMapping     map[string]string `json:"personMapping"`
}

type statusLease struct {
	Owner     string `json:"owner"`
	ExpiresAt string `json:"expiresAt"`
}

func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now()
	loc := s.info.Location
	if loc == nil {
		loc = time.UTC
	}
	mapping := map[string]string{}
	for _, m := range s.info.Roster.Members() {
		mapping[m.FullName] = string(m.Code)
	}
	resp := &statusResponse{
		Status:  "healthy",
		Version: s.info.Version,
		CurrentTime: map[string]string{
			"utc":   now.UTC().Format(time.RFC3339),
			"local": now.In(loc).Format(time.RFC3339),
		},
		Schedules: map[string]string{
			"sync":     s.info.SyncSchedule,
			"cleanup":  s.info.CleanupSchedule,
			"timezone": s.info.ScheduleZone,
		},
		Endpoints: map[string]string{
			"sync":         "/api/sync",
			"interactions": "/api/slack-interactions",
			"status":       "/api/status",
			"cleanup":      "/api/cleanup",
			"notion":       "/api/notion-webhook",
		},
		Features: statusFeatures{
			MaxTasks:          s.info.Caps.Global,
			MaxTasksPerPerson: s.info.Caps.PerRecipient,
			DayLimit:          s.info.HorizonDays,
			PersonMapping:     mapping,
		},
	}
	if s.leases != nil {
		if rec, err := s.leases.Current(ctx); err == nil && rec != nil && now.Before(rec.ExpiresAt) {
			resp.Lease = &statusLease{Owner: rec.Owner, ExpiresAt: rec.ExpiresAt.UTC().Format(time.RFC3339)}
		}
	}
	cerr.SetJSONResponse(ctx, resp)
}
