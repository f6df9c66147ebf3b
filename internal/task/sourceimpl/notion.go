package sourceimpl

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"

	"github.com/kazz187/urgentsync/internal/task"
	"github.com/kazz187/urgentsync/pkg/cerr"
)

// Properties names the database columns the adapter reads and writes.
type Properties struct {
	Done     string
	Due      string
	Assignee string
}

// NotionSource implements task.Source on a Notion database.
type NotionSource struct {
	client     *notionapi.Client
	databaseID notionapi.DatabaseID
	props      Properties
}

var _ task.Source = (*NotionSource)(nil)

func NewNotionSource(client *notionapi.Client, databaseID string, props Properties) *NotionSource {
	return &NotionSource{
		client:     client,
		databaseID: notionapi.DatabaseID(databaseID),
		props:      props,
	}
}

// Query issues one filtered request per range. Notion filters have no OR of
// date ranges that keeps the three lists apart, so three passes it is.
func (s *NotionSource) Query(ctx context.Context, w task.Window) (*task.Partition, error) {
	today := notionapi.Date(task.DateOf(w.Today))
	last := notionapi.Date(task.DateOf(w.Last()))

	overdue, err := s.queryAll(ctx, "overdue", &notionapi.DateFilterCondition{Before: &today})
	if err != nil {
		return nil, err
	}
	dueToday, err := s.queryAll(ctx, "due today", &notionapi.DateFilterCondition{Equals: &today})
	if err != nil {
		return nil, err
	}
	// A date condition holds a single operator; each bound gets its own filter.
	upcoming, err := s.queryAll(ctx, "upcoming",
		&notionapi.DateFilterCondition{After: &today},
		&notionapi.DateFilterCondition{OnOrBefore: &last},
	)
	if err != nil {
		return nil, err
	}
	return &task.Partition{Overdue: overdue, DueToday: dueToday, Upcoming: upcoming}, nil
}

func (s *NotionSource) queryAll(ctx context.Context, label string, due ...*notionapi.DateFilterCondition) ([]*task.Record, error) {
	filter := notionapi.AndCompoundFilter{
		// "equals: false" would be dropped as a zero value, so ask for not-true.
		notionapi.PropertyFilter{Property: s.props.Done, Checkbox: &notionapi.CheckboxFilterCondition{DoesNotEqual: true}},
	}
	for _, d := range due {
		filter = append(filter, notionapi.PropertyFilter{Property: s.props.Due, Date: d})
	}
	req := &notionapi.DatabaseQueryRequest{
		Filter: filter,
		Sorts:  []notionapi.SortObject{{Property: s.props.Due, Direction: notionapi.SortOrderASC}},
	}
	var records []*task.Record
	for {
		resp, err := s.client.Database.Query(ctx, s.databaseID, req)
		if err != nil {
			return nil, cerr.NewError(cerr.Unavailable, "task database query failed", fmt.Errorf("query %s tasks: %w", label, err))
		}
		for i := range resp.Results {
			records = append(records, s.toRecord(&resp.Results[i]))
		}
		if !resp.HasMore || resp.NextCursor == "" {
			return records, nil
		}
		req.StartCursor = resp.NextCursor
	}
}

func (s *NotionSource) MarkDone(ctx context.Context, id string) error {
	_, err := s.client.Page.Update(ctx, notionapi.PageID(id), &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{
			s.props.Done: notionapi.CheckboxProperty{Type: notionapi.PropertyTypeCheckbox, Checkbox: true},
		},
	})
	if err != nil {
		return cerr.NewError(cerr.Unavailable, "failed to mark task done", fmt.Errorf("update page %s: %w", id, err))
	}
	return nil
}

func (s *NotionSource) toRecord(p *notionapi.Page) *task.Record {
	r := &task.Record{
		ID:    p.ID.String(),
		URL:   p.URL,
		Title: titleOf(p.Properties),
	}
	if prop, ok := p.Properties[s.props.Due].(*notionapi.DateProperty); ok && prop.Date != nil && prop.Date.Start != nil {
		due := time.Time(*prop.Date.Start)
		r.DueDate = &due
	}
	if prop, ok := p.Properties[s.props.Assignee].(*notionapi.PeopleProperty); ok {
		for _, u := range prop.People {
			r.Assignees = append(r.Assignees, u.Name)
		}
	}
	if prop, ok := p.Properties[s.props.Done].(*notionapi.CheckboxProperty); ok {
		r.Done = prop.Checkbox
	}
	return r
}

// titleOf returns the plain text of the database's title column. A Notion
// database has exactly one.
func titleOf(props notionapi.Properties) string {
	for _, prop := range props {
		tp, ok := prop.(*notionapi.TitleProperty)
		if !ok || len(tp.Title) == 0 {
			continue
		}
		return tp.Title[0].PlainText
	}
	return ""
}
