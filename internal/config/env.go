package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3000"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// AdminAPIKey guards sync, cleanup and the Notion webhook when set.
	AdminAPIKey string `envconfig:"ADMIN_API_KEY"`
}

type NotionEnv struct {
	NotionAPIKey     string `envconfig:"NOTION_API_KEY" required:"true"`
	NotionDatabaseID string `envconfig:"NOTION_DATABASE_ID" required:"true"`
	DoneProperty     string `envconfig:"NOTION_DONE_PROPERTY" default:"Checkbox"`
	DueProperty      string `envconfig:"NOTION_DUE_PROPERTY" default:"Due Date"`
	AssigneeProperty string `envconfig:"NOTION_ASSIGNEE_PROPERTY" default:"Assigned To"`
}

type SlackEnv struct {
	SlackBotToken      string `envconfig:"SLACK_BOT_TOKEN" required:"true"`
	SlackSigningSecret string `envconfig:"SLACK_SIGNING_SECRET"`
	SlackChannelID     string `envconfig:"SLACK_CHANNEL_ID" required:"true"`
	VerifySignatures   bool   `envconfig:"SLACK_VERIFY_SIGNATURES" default:"true"`
}

type SyncEnv struct {
	HorizonDays       int               `envconfig:"HORIZON_DAYS" default:"5"`
	MaxTasks          int               `envconfig:"MAX_TASKS" default:"9"`
	MaxTasksPerPerson int               `envconfig:"MAX_TASKS_PER_PERSON" default:"3"`
	Roster            map[string]string `envconfig:"ROSTER" default:"Robert Schok:ROB,Samuel Robertson:SAM,Anna Schuster:ANNA"`
	TimeZone          string            `envconfig:"TIMEZONE" default:"UTC"`
	PostInterval      time.Duration     `envconfig:"POST_INTERVAL" default:"100ms"`
	DeleteInterval    time.Duration     `envconfig:"DELETE_INTERVAL" default:"50ms"`
	CleanupInterval   time.Duration     `envconfig:"CLEANUP_INTERVAL" default:"200ms"`
}

type ScheduleEnv struct {
	// Empty schedules disable the in-process cron entry.
	SyncSchedule     string `envconfig:"SYNC_SCHEDULE" default:"0 6-22 * * *"`
	CleanupSchedule  string `envconfig:"CLEANUP_SCHEDULE" default:"45 9 * * *"`
	ScheduleTimeZone string `envconfig:"SCHEDULE_TIMEZONE" default:"America/New_York"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".urgentsync/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"urgentsync/"`
	S3Region string `envconfig:"S3_REGION" default:"us-east-1"`
}

type LeaseEnv struct {
	LeaseTTL  time.Duration `envconfig:"LEASE_TTL" default:"2m"`
	LeaseWait time.Duration `envconfig:"LEASE_WAIT" default:"30s"`
}

type Env struct {
	BaseEnv
	NotionEnv
	SlackEnv
	SyncEnv
	ScheduleEnv
	StorageEnv
	LeaseEnv
}

const namespace = "URGENTSYNC"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *Env) Validate() error {
	if e.HorizonDays < 0 {
		return fmt.Errorf("HORIZON_DAYS must not be negative: %d", e.HorizonDays)
	}
	if e.MaxTasks <= 0 || e.MaxTasksPerPerson <= 0 {
		return fmt.Errorf("MAX_TASKS and MAX_TASKS_PER_PERSON must be positive")
	}
	if e.VerifySignatures && e.SlackSigningSecret == "" {
		return fmt.Errorf("SLACK_SIGNING_SECRET is required when SLACK_VERIFY_SIGNATURES is true")
	}
	if e.StorageEnv.Type == "s3" && e.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when STORAGE_TYPE is s3")
	}
	if _, err := e.Location(); err != nil {
		return err
	}
	return nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Location is the zone in which "today" is computed for due dates.
func (e *SyncEnv) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(e.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", e.TimeZone, err)
	}
	return loc, nil
}
