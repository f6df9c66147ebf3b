package task

import "time"

// Bucket is the recipient class a task is posted under.
type Bucket string

const (
	BucketROB        Bucket = "ROB"
	BucketSAM        Bucket = "SAM"
	BucketANNA       Bucket = "ANNA"
	BucketUnassigned Bucket = "UNASSIGNED"
)

// Buckets lists every bucket in allocation order.
var Buckets = []Bucket{BucketROB, BucketSAM, BucketANNA, BucketUnassigned}

func (b Bucket) Valid() bool {
	switch b {
	case BucketROB, BucketSAM, BucketANNA, BucketUnassigned:
		return true
	}
	return false
}

type Urgency int

const (
	Overdue Urgency = iota
	DueToday
	Upcoming
)

func (u Urgency) String() string {
	switch u {
	case Overdue:
		return "OVERDUE"
	case DueToday:
		return "DUE_TODAY"
	default:
		return "UPCOMING"
	}
}

// Urgent reports whether the task is overdue or due today.
func (u Urgency) Urgent() bool {
	return u == Overdue || u == DueToday
}

// Recipient is the classified assignee of a task.
type Recipient struct {
	Bucket Bucket
	// Label is what the channel shows: the roster code for known people, the
	// upper-cased first name for other assignees, "UNASSIGNED" otherwise.
	Label    string
	FullName string
}

// Task is derived from a source record on every run and never stored.
type Task struct {
	ID        string
	Title     string
	DueDate   *time.Time
	URL       string
	Recipient Recipient
	Urgency   Urgency
}

// Record is a raw row of the task database.
type Record struct {
	ID        string
	URL       string
	Title     string
	DueDate   *time.Time
	Assignees []string
	Done      bool
}

// Window is the date range a sync looks at.
type Window struct {
	Today       time.Time
	HorizonDays int
}

// Last is the last day, inclusive, of the upcoming range.
func (w Window) Last() time.Time {
	return w.Today.AddDate(0, 0, w.HorizonDays)
}

// Partition is the answer of a Source query: three disjoint lists, each
// sorted by due date ascending.
type Partition struct {
	Overdue  []*Record
	DueToday []*Record
	Upcoming []*Record
}

// All returns overdue, due-today and upcoming records in that order.
func (p *Partition) All() []*Record {
	all := make([]*Record, 0, len(p.Overdue)+len(p.DueToday)+len(p.Upcoming))
	all = append(all, p.Overdue...)
	all = append(all, p.DueToday...)
	return append(all, p.Upcoming...)
}

// DateOf truncates t to its calendar date in t's own location and returns
// that date at midnight UTC, so that dates compare with == and Before.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
