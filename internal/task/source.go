package task

import "context"

// Source is the task database.
type Source interface {
	// Query returns open records due up to w.Last(). Each range is fetched
	// with its own filtered request; any failure fails the whole query.
	Query(ctx context.Context, w Window) (*Partition, error)
	// MarkDone flips the record's done flag to true.
	MarkDone(ctx context.Context, id string) error
}
