package activity

import (
	"sort"
	"time"
)

type EventKind string

const (
	EventJoin  EventKind = "join"
	EventLeave EventKind = "leave"
)

type Event struct {
	Kind EventKind
	At   time.Time
}

// Record is the join/leave history of one user in the monitored group.
type Record struct {
	UserID      int64
	DisplayName string
	Handle      string

	JoinTimes  []time.Time
	LeaveTimes []time.Time

	TotalJoins  int
	TotalLeaves int
}

func (r *Record) RecordJoin(at time.Time) {
	r.JoinTimes = append(r.JoinTimes, at)
	r.TotalJoins = len(r.JoinTimes)
}

func (r *Record) RecordLeave(at time.Time) {
	r.LeaveTimes = append(r.LeaveTimes, at)
	r.TotalLeaves = len(r.LeaveTimes)
}

// History merges joins and leaves in time order.
func (r *Record) History() []Event {
	events := make([]Event, 0, len(r.JoinTimes)+len(r.LeaveTimes))
	for _, t := range r.JoinTimes {
		events = append(events, Event{Kind: EventJoin, At: t})
	}
	for _, t := range r.LeaveTimes {
		events = append(events, Event{Kind: EventLeave, At: t})
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].At.Before(events[j].At)
	})
	return events
}
