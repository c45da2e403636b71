package sendwindow

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Reason explains why sending is not allowed right now.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonDisabled      Reason = "disabled"
	ReasonTime          Reason = "time"
	ReasonDailyLimit    Reason = "daily_limit"
	ReasonPerInboxLimit Reason = "per_inbox_limit"
	ReasonError         Reason = "error"
)

// Policy decides whether an outbound send is permitted right now and,
// for live checks, consumes quota in the same operation. Any internal
// failure blocks the send: the policy never fails open.
type Policy struct {
	controls Controls
	counters CounterStore
	loc      *time.Location
	logger   *log.Logger

	// Now is swappable for tests.
	Now func() time.Time
}

func NewPolicy(controls Controls, counters CounterStore, logger *log.Logger) (*Policy, error) {
	loc, err := time.LoadLocation(controls.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", controls.Timezone, err)
	}
	return &Policy{
		controls: controls,
		counters: counters,
		loc:      loc,
		logger:   logger,
		Now:      time.Now,
	}, nil
}

// Controls returns the rules the policy was built with.
func (p *Policy) Controls() Controls {
	return p.controls
}

// Today returns the quota reset key for the current instant.
func (p *Policy) Today() string {
	return p.Now().In(p.loc).Format("2006-01-02")
}

// Snapshot exposes today's counters for status reporting.
func (p *Policy) Snapshot(ctx context.Context) (Counters, error) {
	return p.counters.Snapshot(ctx, p.Today())
}

// Evaluate implements the send gate. With dryRun the full decision is
// computed but no quota is consumed; with bypassTime the day/window
// check is skipped for this call while quotas still apply.
func (p *Policy) Evaluate(ctx context.Context, inbox string, dryRun, bypassTime bool) (bool, Reason) {
	if !p.controls.Enabled() {
		return false, ReasonDisabled
	}

	now := p.Now().In(p.loc)

	if !bypassTime {
		if !p.withinWindow(now) {
			return false, ReasonTime
		}
	}

	allowed, reason, err := p.counters.Consume(ctx, now.Format("2006-01-02"), inbox, p.controls.Limits(), dryRun)
	if err != nil {
		if p.logger != nil {
			p.logger.Printf("counter store error, failing closed: %v", err)
		}
		return false, ReasonError
	}
	if !allowed {
		return false, reason
	}
	return true, ReasonNone
}

// withinWindow checks the weekday token and the [start, end) wall
// clock bounds in the configured timezone.
func (p *Policy) withinWindow(now time.Time) bool {
	day := now.Format("Mon")
	ok := false
	for _, d := range p.controls.DaysAllowed {
		if d == day {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}

	start, _ := parseClock(p.controls.StartTime)
	end, _ := parseClock(p.controls.EndTime)
	cur := now.Hour()*60 + now.Minute()
	return cur >= start && cur < end
}
