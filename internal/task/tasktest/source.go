// Package tasktest provides an in-memory task.Source for tests.
package tasktest

import (
	"context"
	"slices"
	"sync"

	"github.com/kazz187/urgentsync/internal/task"
)

// Source serves records from memory, applying the same range filters the
// Notion adapter asks the database for.
type Source struct {
	mu      sync.Mutex
	records []*task.Record

	QueryErr    error
	MarkDoneErr error
	Queries     int
	MarkedDone  []string
}

func NewSource(records ...*task.Record) *Source {
	return &Source{records: records}
}

func (s *Source) Add(records ...*task.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
}

func (s *Source) Get(id string) *task.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (s *Source) Query(_ context.Context, w task.Window) (*task.Partition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Queries++
	if s.QueryErr != nil {
		return nil, s.QueryErr
	}
	today := task.DateOf(w.Today)
	last := task.DateOf(w.Last())
	p := &task.Partition{}
	for _, r := range s.records {
		if r.Done || r.DueDate == nil {
			continue
		}
		cp := *r
		due := task.DateOf(*r.DueDate)
		switch {
		case due.Before(today):
			p.Overdue = append(p.Overdue, &cp)
		case due.Equal(today):
			p.DueToday = append(p.DueToday, &cp)
		case !due.After(last):
			p.Upcoming = append(p.Upcoming, &cp)
		}
	}
	for _, list := range [][]*task.Record{p.Overdue, p.DueToday, p.Upcoming} {
		slices.SortStableFunc(list, func(a, b *task.Record) int {
			return a.DueDate.Compare(*b.DueDate)
		})
	}
	return p, nil
}

func (s *Source) MarkDone(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.MarkDoneErr != nil {
		return s.MarkDoneErr
	}
	for _, r := range s.records {
		if r.ID == id {
			r.Done = true
		}
	}
	s.MarkedDone = append(s.MarkedDone, id)
	return nil
}
