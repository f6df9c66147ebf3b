package task

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

const UntitledTitle = "Untitled Task"

type Normalizer struct {
	roster Roster
}

func NewNormalizer(roster Roster) *Normalizer {
	return &Normalizer{roster: roster}
}

func (n *Normalizer) Normalize(r *Record, today time.Time) *Task {
	t := &Task{
		ID:    r.ID,
		Title: strings.TrimSpace(r.Title),
		URL:   r.URL,
	}
	if t.Title == "" {
		t.Title = UntitledTitle
	}
	var assignee string
	if len(r.Assignees) > 0 {
		assignee = r.Assignees[0]
	}
	t.Recipient = n.roster.Classify(assignee)
	if r.DueDate != nil {
		due := DateOf(*r.DueDate)
		t.DueDate = &due
	}
	t.Urgency = UrgencyOf(t.DueDate, DateOf(today))
	return t
}

// NormalizeAll normalizes records, dropping done ones, those due after the
// window and repeats of an id already seen. The source is expected to filter
// all three already.
func (n *Normalizer) NormalizeAll(records []*Record, w Window) []*Task {
	today := DateOf(w.Today)
	last := DateOf(w.Last())
	tasks := make([]*Task, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.Done {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		t := n.Normalize(r, today)
		if t.DueDate != nil && t.DueDate.After(last) {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks
}

func UrgencyOf(due *time.Time, today time.Time) Urgency {
	if due == nil {
		return Upcoming
	}
	switch {
	case due.Before(today):
		return Overdue
	case due.Equal(today):
		return DueToday
	default:
		return Upcoming
	}
}

// Compare orders tasks by urgency, then by due date with undated tasks last.
func Compare(a, b *Task) int {
	if c := cmp.Compare(a.Urgency, b.Urgency); c != 0 {
		return c
	}
	switch {
	case a.DueDate == nil && b.DueDate == nil:
		return 0
	case a.DueDate == nil:
		return 1
	case b.DueDate == nil:
		return -1
	}
	return a.DueDate.Compare(*b.DueDate)
}

// GroupByBucket splits tasks into buckets, each stably sorted with Compare.
func GroupByBucket(tasks []*Task) map[Bucket][]*Task {
	groups := make(map[Bucket][]*Task, len(Buckets))
	for _, t := range tasks {
		b := t.Recipient.Bucket
		if !b.Valid() {
			b = BucketUnassigned
		}
		groups[b] = append(groups[b], t)
	}
	for _, g := range groups {
		slices.SortStableFunc(g, Compare)
	}
	return groups
}
