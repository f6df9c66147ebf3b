package channel

import (
	"context"
	"fmt"

	"github.com/kazz187/urgentsync/internal/task"
	"github.com/kazz187/urgentsync/pkg/cerr"
)

// HistoryLimit is how many recent messages one state read looks at.
const HistoryLimit = 200

// State is the channel's view of which tasks are posted for whom.
type State struct {
	PostedTaskIDs map[string]struct{}
	CountByBucket map[task.Bucket]int
	// Messages are the bot-authored task messages the state was built from.
	Messages []*Message
}

func (s *State) Posted(id string) bool {
	_, ok := s.PostedTaskIDs[id]
	return ok
}

// Total is the number of task messages across all buckets.
func (s *State) Total() int {
	n := 0
	for _, c := range s.CountByBucket {
		n += c
	}
	return n
}

// Add records a task message posted after the state was read.
func (s *State) Add(b task.Bucket, id string) {
	s.CountByBucket[b]++
	if id != "" {
		s.PostedTaskIDs[id] = struct{}{}
	}
}

type Reader struct {
	client Client
	codec  *Codec
}

func NewReader(client Client, codec *Codec) *Reader {
	return &Reader{client: client, codec: codec}
}

// CurrentState reads the last HistoryLimit messages. Only bot messages with
// blocks count; one without a completion button counts for its bucket but
// adds no id.
func (r *Reader) CurrentState(ctx context.Context) (*State, error) {
	page, err := r.client.History(ctx, HistoryLimit, "")
	if err != nil {
		return nil, cerr.NewError(cerr.Unavailable, "failed to read channel history", fmt.Errorf("history: %w", err))
	}
	s := &State{
		PostedTaskIDs: map[string]struct{}{},
		CountByBucket: map[task.Bucket]int{},
	}
	for _, m := range page.Messages {
		if !m.FromBot() || len(m.Blocks) == 0 {
			continue
		}
		d := r.codec.Decode(m)
		s.Add(d.Bucket, d.TaskID)
		s.Messages = append(s.Messages, m)
	}
	return s, nil
}
