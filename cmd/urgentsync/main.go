package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/kazz187/urgentsync/internal/app"
	"github.com/kazz187/urgentsync/internal/config"
	"github.com/kazz187/urgentsync/internal/lease"
)

var (
	cli = kingpin.New("urgentsync", "Sync urgent Notion tasks into a Slack channel")

	syncCmd    = cli.Command("sync", "Clear the channel and post the current urgent tasks")
	topUpCmd   = cli.Command("topup", "Post new urgent tasks without clearing the channel")
	cleanupCmd = cli.Command("cleanup", "Delete bot messages and human messages older than a day")
	planCmd    = cli.Command("plan", "Show what a sync would post without touching the channel")
	statusCmd  = cli.Command("status", "Show configuration, the lease holder and the next scheduled runs")
)

func main() {
	command := kingpin.MustParse(cli.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env: %v\n", err)
		os.Exit(1)
	}
	app.SetupLogger(env, os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := app.New(ctx, env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up: %v\n", err)
		os.Exit(1)
	}

	switch command {
	case syncCmd.FullCommand():
		err = handleSync(ctx, a)
	case topUpCmd.FullCommand():
		err = handleTopUp(ctx, a)
	case cleanupCmd.FullCommand():
		err = handleCleanup(ctx, a)
	case planCmd.FullCommand():
		err = handlePlan(ctx, a)
	case statusCmd.FullCommand():
		err = handleStatus(ctx, a)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func handleSync(ctx context.Context, a *app.App) error {
	summary, err := a.Reconcile.Resync(ctx)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func handleTopUp(ctx context.Context, a *app.App) error {
	summary, err := a.Reconcile.TopUp(ctx)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func handleCleanup(ctx context.Context, a *app.App) error {
	stats, err := a.Reconcile.Cleanup(ctx)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func handlePlan(ctx context.Context, a *app.App) error {
	tasks, err := a.Reconcile.Plan(ctx)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks to post.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BUCKET\tURGENCY\tDUE\tID\tTITLE")
	for _, t := range tasks {
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.Recipient.Bucket, t.Urgency, due, t.ID, t.Title)
	}
	return w.Flush()
}

func handleStatus(ctx context.Context, a *app.App) error {
	fmt.Printf("Version:   %s\n", app.Version)
	fmt.Printf("Channel:   %s\n", a.Env.SlackChannelID)
	fmt.Printf("Caps:      %d per person, %d total\n", a.Env.MaxTasksPerPerson, a.Env.MaxTasks)
	fmt.Printf("Horizon:   %d days (%s)\n", a.Env.HorizonDays, a.Env.TimeZone)
	fmt.Println("Roster:")
	for _, m := range a.Roster.Members() {
		fmt.Printf("  %-6s %s\n", m.Code, m.FullName)
	}

	rec, err := a.Leases.Current(ctx)
	if err != nil {
		return err
	}
	fmt.Println(leaseLine(rec, time.Now()))

	sched, err := a.Scheduler()
	if err != nil {
		return err
	}
	next := sched.Next()
	for i, name := range sched.Jobs() {
		fmt.Printf("Next %-8s %s\n", name+":", next[i].Format("2006-01-02 15:04:05 MST"))
	}
	return nil
}

// leaseLine describes the stored lease. An expired record is free for the
// next run to take over.
func leaseLine(rec *lease.Record, now time.Time) string {
	if rec == nil || !now.Before(rec.ExpiresAt) {
		return "Lease:     free"
	}
	return fmt.Sprintf("Lease:     held by %s (%s) until %s", rec.Owner, rec.Holder, rec.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
