package sendwindow

import "context"

// Counters is the persisted quota state for one day. The Date field is
// the reset key: a stored date other than "today" in the configured
// timezone means the counters are stale and start from zero.
type Counters struct {
	Date     string         `json:"date"`
	Total    int            `json:"total"`
	PerInbox map[string]int `json:"per_inbox"`
}

// Limits carries the quota caps from the controls file. Nil means
// unlimited.
type Limits struct {
	Daily    *int
	PerInbox *int
}

// CounterStore serializes check-and-consume of the daily quota.
// Consume must be atomic: two concurrent callers may never both pass a
// check that only one of them fits under. Implementations back this
// with a file lock or a Redis transaction.
type CounterStore interface {
	// Snapshot returns today's counters without modifying them.
	Snapshot(ctx context.Context, date string) (Counters, error)

	// Consume checks the limits for (date, inbox) and, when allowed
	// and dry is false, increments the counters in the same critical
	// section. It returns whether the send may proceed and the reason
	// when it may not.
	Consume(ctx context.Context, date, inbox string, limits Limits, dry bool) (bool, Reason, error)
}
