package dispatch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"mailsprint/models"

	"github.com/sirupsen/logrus"
)

// SendFunc performs one send attempt for a lead through the given
// inbox. The bool reports whether a message actually went out; skips
// (window closed, already sent) return false with a nil error.
type SendFunc func(ctx context.Context, lead *models.Lead, inbox string) (bool, error)

// AssignFunc resolves the inbox for a lead. Implementations must be
// sticky: an inbox already persisted for the lead is returned as-is,
// so retries and restarts never reshuffle assignments.
type AssignFunc func(leadID string) (string, error)

// Stats summarizes one dispatch pass.
type Stats struct {
	Sent     int
	Skipped  int
	Errors   int
	PerInbox map[string]int
}

// Dispatcher fans leads out across sender inboxes, one worker per
// inbox. Workers are independent of each other; ordering and pacing
// hold only within a single inbox. Quota caps are not enforced here;
// they belong to the send path so that sequential and parallel runs
// share one policy.
type Dispatcher struct {
	Assign AssignFunc
	Send   SendFunc
	Logger *logrus.Logger

	// Successive sends from one inbox are separated by at least MinGap,
	// plus up to Jitter of random slack.
	MinGap time.Duration
	Jitter time.Duration

	// Sleep is swappable for tests. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration)
}

func (d *Dispatcher) sleep(ctx context.Context, dur time.Duration) {
	if d.Sleep != nil {
		d.Sleep(ctx, dur)
		return
	}
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (d *Dispatcher) gap() time.Duration {
	gap := d.MinGap
	if gap < 0 {
		gap = 0
	}
	if d.Jitter > 0 {
		gap += time.Duration(rand.Int63n(int64(d.Jitter)))
	}
	return gap
}

// Run assigns every lead to an inbox, then drains each inbox's queue
// in its own goroutine. Returns when all workers finish or the context
// is cancelled; completed sends stay committed either way.
func (d *Dispatcher) Run(ctx context.Context, leads []models.Lead, inboxes []string) Stats {
	stats := Stats{PerInbox: make(map[string]int, len(inboxes))}
	if len(inboxes) == 0 || len(leads) == 0 {
		return stats
	}

	queues := make(map[string][]*models.Lead, len(inboxes))
	next := 0
	for i := range leads {
		lead := &leads[i]
		inbox := ""
		if d.Assign != nil {
			assigned, err := d.Assign(lead.Identity())
			if err != nil {
				d.Logger.WithError(err).WithField("lead", lead.Identity()).
					Error("inbox assignment failed")
				stats.Errors++
				continue
			}
			inbox = assigned
		}
		if inbox == "" {
			inbox = inboxes[next%len(inboxes)]
			next++
		}
		queues[inbox] = append(queues[inbox], lead)
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for inbox, queue := range queues {
		wg.Add(1)
		go func(inbox string, queue []*models.Lead) {
			defer wg.Done()
			d.drain(ctx, inbox, queue, &stats, &mu)
		}(inbox, queue)
	}
	wg.Wait()
	return stats
}

func (d *Dispatcher) drain(ctx context.Context, inbox string, queue []*models.Lead, stats *Stats, mu *sync.Mutex) {
	for _, lead := range queue {
		if ctx.Err() != nil {
			return
		}
		sent, err := d.Send(ctx, lead, inbox)

		mu.Lock()
		switch {
		case err != nil:
			stats.Errors++
		case sent:
			stats.Sent++
			stats.PerInbox[inbox]++
		default:
			stats.Skipped++
		}
		mu.Unlock()

		if err != nil {
			d.Logger.WithError(err).WithFields(logrus.Fields{"lead": lead.Identity(), "inbox": inbox}).
				Error("dispatch send failed")
			continue
		}
		if sent {
			d.sleep(ctx, d.gap())
		}
	}
}
