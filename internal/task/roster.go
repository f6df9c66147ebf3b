package task

import (
	"fmt"
	"slices"
	"strings"
)

type Member struct {
	FullName string
	Code     Bucket
}

// Roster is the closed table of known people.
type Roster struct {
	members []Member
}

// DefaultRoster is the team the channel was built for.
var DefaultRoster = Roster{members: []Member{
	{FullName: "Robert Schok", Code: BucketROB},
	{FullName: "Samuel Robertson", Code: BucketSAM},
	{FullName: "Anna Schuster", Code: BucketANNA},
}}

// NewRoster builds a roster from full name to code. Codes must be one of the
// named buckets and each may appear once.
func NewRoster(byName map[string]string) (Roster, error) {
	var members []Member
	seen := map[Bucket]bool{}
	for name, code := range byName {
		b := Bucket(strings.ToUpper(strings.TrimSpace(code)))
		if !b.Valid() || b == BucketUnassigned {
			return Roster{}, fmt.Errorf("roster: %q is not a recipient code", code)
		}
		if seen[b] {
			return Roster{}, fmt.Errorf("roster: code %s assigned twice", b)
		}
		seen[b] = true
		members = append(members, Member{FullName: strings.TrimSpace(name), Code: b})
	}
	slices.SortFunc(members, func(a, b Member) int {
		return slices.Index(Buckets, a.Code) - slices.Index(Buckets, b.Code)
	})
	return Roster{members: members}, nil
}

// Members returns the roster in bucket order.
func (r Roster) Members() []Member {
	return slices.Clone(r.members)
}

// Classify maps an assignee display name to a recipient.
func (r Roster) Classify(name string) Recipient {
	name = strings.TrimSpace(name)
	if name == "" {
		return Recipient{Bucket: BucketUnassigned, Label: string(BucketUnassigned), FullName: "Unassigned"}
	}
	for _, m := range r.members {
		if name == m.FullName {
			return Recipient{Bucket: m.Code, Label: string(m.Code), FullName: m.FullName}
		}
	}
	for _, m := range r.members {
		first, last, ok := strings.Cut(m.FullName, " ")
		if ok && strings.Contains(name, first) && strings.Contains(name, last) {
			return Recipient{Bucket: m.Code, Label: string(m.Code), FullName: name}
		}
	}
	firstToken, _, _ := strings.Cut(name, " ")
	return Recipient{Bucket: BucketUnassigned, Label: strings.ToUpper(firstToken), FullName: name}
}

// IsCode reports whether label is the code of a roster member.
func (r Roster) IsCode(label string) (Bucket, bool) {
	for _, m := range r.members {
		if string(m.Code) == label {
			return m.Code, true
		}
	}
	return "", false
}
