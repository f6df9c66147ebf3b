package reconcile

import (
	"github.com/kazz187/urgentsync/internal/channel"
	"github.com/kazz187/urgentsync/internal/task"
)

// Caps bound how many task messages the channel shows.
type Caps struct {
	PerRecipient int
	Global       int
}

var DefaultCaps = Caps{PerRecipient: 3, Global: 9}

// Allocate picks the tasks a cleared channel shows, in posting order. Named
// buckets take up to PerRecipient each in bucket order; UNASSIGNED takes only
// urgent tasks from whatever global capacity is left. groups must be sorted
// with task.Compare, as GroupByBucket returns them.
func Allocate(groups map[task.Bucket][]*task.Task, caps Caps) []*task.Task {
	remaining := caps.Global
	var out []*task.Task
	for _, b := range task.Buckets {
		if remaining <= 0 {
			break
		}
		if b == task.BucketUnassigned {
			for _, t := range groups[b] {
				if remaining == 0 {
					break
				}
				if !t.Urgency.Urgent() {
					continue
				}
				out = append(out, t)
				remaining--
			}
			continue
		}
		n := min(len(groups[b]), caps.PerRecipient, remaining)
		out = append(out, groups[b][:n]...)
		remaining -= n
	}
	return out
}

// PlanBackfill picks at most one task to fill the slot a completion freed.
// The search starts at seed, then goes through the named buckets in order and
// ends with urgent UNASSIGNED tasks. Tasks already in the channel and
// excludeID are skipped; a bucket at its cap is passed over.
func PlanBackfill(groups map[task.Bucket][]*task.Task, state *channel.State, seed task.Bucket, excludeID string, caps Caps) *task.Task {
	if state.Total() >= caps.Global {
		return nil
	}
	for _, b := range backfillOrder(seed) {
		if b != task.BucketUnassigned && state.CountByBucket[b] >= caps.PerRecipient {
			continue
		}
		for _, t := range groups[b] {
			if t.ID == excludeID || state.Posted(t.ID) {
				continue
			}
			if b == task.BucketUnassigned && !t.Urgency.Urgent() {
				continue
			}
			return t
		}
	}
	return nil
}

func backfillOrder(seed task.Bucket) []task.Bucket {
	if !seed.Valid() {
		return task.Buckets
	}
	order := []task.Bucket{seed}
	for _, b := range task.Buckets {
		if b != seed {
			order = append(order, b)
		}
	}
	return order
}

// PlanTopUp picks urgent tasks not yet in the channel, filling each bucket up
// to PerRecipient against its current count and never going past Global.
func PlanTopUp(groups map[task.Bucket][]*task.Task, state *channel.State, caps Caps) []*task.Task {
	remaining := caps.Global - state.Total()
	var out []*task.Task
	for _, b := range task.Buckets {
		free := caps.PerRecipient - state.CountByBucket[b]
		for _, t := range groups[b] {
			if remaining <= 0 || free <= 0 {
				break
			}
			if !t.Urgency.Urgent() || state.Posted(t.ID) {
				continue
			}
			out = append(out, t)
			free--
			remaining--
		}
	}
	return out
}
