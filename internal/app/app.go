package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jomei/notionapi"
	"github.com/slack-go/slack"

	server "github.com/kazz187/urgentsync/internal"
	"github.com/kazz187/urgentsync/internal/channel"
	"github.com/kazz187/urgentsync/internal/channel/slackimpl"
	"github.com/kazz187/urgentsync/internal/completion"
	"github.com/kazz187/urgentsync/internal/config"
	"github.com/kazz187/urgentsync/internal/lease"
	"github.com/kazz187/urgentsync/internal/metrics"
	"github.com/kazz187/urgentsync/internal/reconcile"
	"github.com/kazz187/urgentsync/internal/scheduler"
	"github.com/kazz187/urgentsync/internal/task"
	"github.com/kazz187/urgentsync/internal/task/sourceimpl"
	"github.com/kazz187/urgentsync/pkg/clog"
	"github.com/kazz187/urgentsync/pkg/storage"
)

const Version = "v2026.10.19"

// App holds the wired components of the service.
type App struct {
	Env        *config.Env
	Roster     task.Roster
	Metrics    *metrics.Metrics
	Leases     *lease.Manager
	Reconcile  *reconcile.Service
	Completion *completion.Service
	Server     *server.Server
}

// SetupLogger installs the default logger: colored text locally, JSON
// everywhere else.
func SetupLogger(env *config.Env, w io.Writer) {
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(w, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))
}

func NewStorage(ctx context.Context, env *config.Env) (storage.Storage, error) {
	switch env.StorageEnv.Type {
	case "s3":
		store, err := storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 storage: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewLocalStorage(env.StorageEnv.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create local storage: %w", err)
		}
		return store, nil
	}
}

func New(ctx context.Context, env *config.Env) (*App, error) {
	roster, err := task.NewRoster(env.Roster)
	if err != nil {
		return nil, err
	}
	loc, err := env.Location()
	if err != nil {
		return nil, err
	}
	store, err := NewStorage(ctx, env)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	notion := notionapi.NewClient(notionapi.Token(env.NotionAPIKey), notionapi.WithHTTPClient(httpClient))
	source := sourceimpl.NewNotionSource(notion, env.NotionDatabaseID, sourceimpl.Properties{
		Done:     env.DoneProperty,
		Due:      env.DueProperty,
		Assignee: env.AssigneeProperty,
	})
	client := slackimpl.NewClient(slack.New(env.SlackBotToken, slack.OptionHTTPClient(httpClient)), env.SlackChannelID)

	m := metrics.New()
	codec := channel.NewCodec(roster)
	reader := channel.NewReader(client, codec)
	writer := channel.NewWriter(client, codec,
		channel.WithPostInterval(env.PostInterval),
		channel.WithDeleteInterval(env.DeleteInterval),
		channel.WithCleanupInterval(env.CleanupInterval),
	)
	leases := lease.NewManager(store, env.SlackChannelID, env.LeaseTTL)
	caps := reconcile.Caps{PerRecipient: env.MaxTasksPerPerson, Global: env.MaxTasks}
	rs := reconcile.NewService(source, task.NewNormalizer(roster), reader, writer, leases, m, reconcile.Config{
		HorizonDays: env.HorizonDays,
		Caps:        caps,
		Location:    loc,
		LeaseWait:   env.LeaseWait,
	})
	cs := completion.NewService(source, writer, codec, rs, m)

	srv := server.NewServer(env,
		reconcile.NewServer(rs, leases, reconcile.StatusInfo{
			Version:         Version,
			Roster:          roster,
			Caps:            caps,
			HorizonDays:     env.HorizonDays,
			SyncSchedule:    env.SyncSchedule,
			CleanupSchedule: env.CleanupSchedule,
			ScheduleZone:    env.ScheduleTimeZone,
			Location:        loc,
		}),
		completion.NewServer(cs, env.SlackSigningSecret, env.VerifySignatures),
		channel.NewServer(rs),
		m,
	)

	return &App{
		Env:        env,
		Roster:     roster,
		Metrics:    m,
		Leases:     leases,
		Reconcile:  rs,
		Completion: cs,
		Server:     srv,
	}, nil
}

// Scheduler registers the periodic resync and cleanup.
func (a *App) Scheduler() (*scheduler.Scheduler, error) {
	loc, err := time.LoadLocation(a.Env.ScheduleTimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULE_TIMEZONE %q: %w", a.Env.ScheduleTimeZone, err)
	}
	s := scheduler.New(loc)
	if err := s.Add("sync", a.Env.SyncSchedule, func(ctx context.Context) error {
		_, err := a.Reconcile.Resync(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	if err := s.Add("cleanup", a.Env.CleanupSchedule, func(ctx context.Context) error {
		_, err := a.Reconcile.Cleanup(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	return s, nil
}
