package channel

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kazz187/urgentsync/internal/task"
)

const (
	dateLayout   = "2006-01-02"
	noDueDate    = "No due date"
	doneLabel    = "✅ Done"
	viewInNotion = "View in Notion"
)

// summaryLine matches "<LABEL>: <title> - <due text>". The title may itself
// contain " - ", so the due text is the part after the last separator.
var summaryLine = regexp.MustCompile(`^(\S+): (.*) - ([^\n]*)$`)

// Codec converts tasks to messages and recovers bucket and task id from
// messages already in the channel.
type Codec struct {
	roster task.Roster
}

func NewCodec(roster task.Roster) *Codec {
	return &Codec{roster: roster}
}

// Decoded is what a message tells about the task it represents.
type Decoded struct {
	Bucket task.Bucket
	// TaskID is empty when the message carries no completion button.
	TaskID string
	// Structured is false when the text did not follow the summary line
	// format and the bucket came from the substring fallback.
	Structured bool
}

func (c *Codec) Encode(t *task.Task) *Post {
	due := noDueDate
	if t.DueDate != nil {
		due = t.DueDate.Format(dateLayout)
	}
	var prefix string
	style := StylePrimary
	switch {
	case t.DueDate == nil:
		prefix = "📅 Due: " + due
	case t.Urgency == task.Overdue:
		prefix = "🔴 *overdue*: " + due
	case t.Urgency == task.DueToday:
		prefix = "🟡 *due today*: " + due
	default:
		prefix = "📅 *upcoming*: " + due
		style = ""
	}
	return &Post{
		Text: fmt.Sprintf("%s: %s - %s", t.Recipient.Label, oneLine(t.Title), due),
		Blocks: []Block{
			{
				Type: BlockSection,
				Text: fmt.Sprintf("*%s* 📌 *%s*\n%s", t.Recipient.Label, t.Title, prefix),
				Accessory: &Button{
					ActionID: MarkDoneActionID,
					Value:    t.ID,
					Label:    doneLabel,
					Style:    style,
				},
			},
			{
				Type:     BlockContext,
				Elements: []string{fmt.Sprintf("<%s|%s>", t.URL, viewInNotion)},
			},
		},
	}
}

// Decode reads a message posted by Encode. The task id comes from the
// completion button; the bucket from the summary text.
func (c *Codec) Decode(m *Message) Decoded {
	d := Decoded{}
	d.Bucket, d.Structured = c.DecodeText(m.Text)
	if b := m.Button(); b != nil && b.ActionID == MarkDoneActionID {
		d.TaskID = b.Value
	}
	return d
}

// DecodeText recovers the bucket from a summary line. A label equal to a
// roster code is that bucket and any other label is UNASSIGNED, so an
// unassigned "Rob Jones" (label ROB) reads back as ROB. Text that is not a
// summary line falls back to looking for a code anywhere in it, in bucket
// order, which also matches codes inside longer words.
func (c *Codec) DecodeText(text string) (task.Bucket, bool) {
	if m := summaryLine.FindStringSubmatch(text); m != nil {
		if b, ok := c.roster.IsCode(m[1]); ok {
			return b, true
		}
		return task.BucketUnassigned, true
	}
	for _, b := range task.Buckets {
		if b == task.BucketUnassigned {
			continue
		}
		if _, ok := c.roster.IsCode(string(b)); ok && strings.Contains(text, string(b)) {
			return b, false
		}
	}
	return task.BucketUnassigned, false
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
