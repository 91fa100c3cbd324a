package status

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a consolidation. It is persisted as a SMALLINT.
type Status int

const (
	Draft Status = iota
	Finalized
	Invoiced
)

var names = map[Status]string{
	Draft:     "draft",
	Finalized: "finalized",
	Invoiced:  "invoiced",
}

// transitions is the complete table of legal status changes.
var transitions = map[Status][]Status{
	Draft:     {Finalized},
	Finalized: {Draft, Invoiced},
	Invoiced:  {},
}

func (s Status) String() string {
	if name, ok := names[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) IsValid() bool {
	_, ok := names[s]
	return ok
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Parse matches a status name case-insensitively.
func Parse(value string) (Status, bool) {
	for s, name := range names {
		if strings.EqualFold(value, name) {
			return s, true
		}
	}
	return 0, false
}
