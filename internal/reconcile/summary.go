package reconcile

import (
	"time"

	"github.com/kazz187/urgentsync/internal/channel"
	"github.com/kazz187/urgentsync/internal/task"
)

// Summary reports the result of a resync or top-up.
type Summary struct {
	Success       bool                `json:"success"`
	Message       string              `json:"message"`
	TasksPosted   int                 `json:"tasksPosted"`
	TasksByPerson map[task.Bucket]int `json:"tasksByPerson"`
	OverdueTasks  int                 `json:"overdueTasks"`
	DueTodayTasks int                 `json:"dueTodayTasks"`
	UpcomingTasks int                 `json:"upcomingTasks"`
	Deleted       int                 `json:"deleted"`
	Failed        int                 `json:"failed"`
	Posted        []PostedTask        `json:"posted"`
	Timestamp     string              `json:"timestamp"`
}

type PostedTask struct {
	ID      string      `json:"id"`
	Person  task.Bucket `json:"person"`
	Title   string      `json:"title"`
	Urgency string      `json:"urgency"`
}

func newSummary(now time.Time) *Summary {
	by := make(map[task.Bucket]int, len(task.Buckets))
	for _, b := range task.Buckets {
		by[b] = 0
	}
	return &Summary{
		Success:       true,
		Message:       "Sync completed successfully",
		TasksByPerson: by,
		Posted:        []PostedTask{},
		Timestamp:     now.UTC().Format(time.RFC3339),
	}
}

func (s *Summary) add(res *channel.PostResult) {
	s.Failed += res.Failed
	for _, t := range res.Posted {
		s.TasksPosted++
		s.TasksByPerson[t.Recipient.Bucket]++
		switch t.Urgency {
		case task.Overdue:
			s.OverdueTasks++
		case task.DueToday:
			s.DueTodayTasks++
		default:
			s.UpcomingTasks++
		}
		s.Posted = append(s.Posted, PostedTask{ID: t.ID, Person: t.Recipient.Bucket, Title: t.Title, Urgency: t.Urgency.String()})
	}
}
