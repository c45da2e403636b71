package dispatch

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"mailsprint/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func leads(emails ...string) []models.Lead {
	out := make([]models.Lead, len(emails))
	for i, e := range emails {
		out[i] = models.Lead{Email: e}
	}
	return out
}

// sendRecorder is a thread-safe Send stub.
type sendRecorder struct {
	mu      sync.Mutex
	byInbox map[string][]string
	result  func(leadID, inbox string) (bool, error)
}

func newSendRecorder() *sendRecorder {
	return &sendRecorder{
		byInbox: map[string][]string{},
		result:  func(string, string) (bool, error) { return true, nil },
	}
}

func (r *sendRecorder) send(ctx context.Context, lead *models.Lead, inbox string) (bool, error) {
	r.mu.Lock()
	r.byInbox[inbox] = append(r.byInbox[inbox], lead.Identity())
	r.mu.Unlock()
	return r.result(lead.Identity(), inbox)
}

func TestRoundRobinWhenUnassigned(t *testing.T) {
	rec := newSendRecorder()
	d := &Dispatcher{
		Send:   rec.send,
		Logger: testLogger(),
		Sleep:  func(context.Context, time.Duration) {},
	}

	stats := d.Run(context.Background(), leads("a@x", "b@x", "c@x", "d@x"), []string{"one@me.io", "two@me.io"})
	assert.Equal(t, 4, stats.Sent)
	assert.Len(t, rec.byInbox["one@me.io"], 2)
	assert.Len(t, rec.byInbox["two@me.io"], 2)
	assert.Equal(t, 2, stats.PerInbox["one@me.io"])
	assert.Equal(t, 2, stats.PerInbox["two@me.io"])
}

func TestStickyAssignmentHonored(t *testing.T) {
	rec := newSendRecorder()
	assigned := map[string]string{
		"a@x": "one@me.io",
		"b@x": "one@me.io",
		"c@x": "two@me.io",
	}
	d := &Dispatcher{
		Assign: func(leadID string) (string, error) { return assigned[leadID], nil },
		Send:   rec.send,
		Logger: testLogger(),
		Sleep:  func(context.Context, time.Duration) {},
	}

	stats := d.Run(context.Background(), leads("a@x", "b@x", "c@x"), []string{"one@me.io", "two@me.io"})
	assert.Equal(t, 3, stats.Sent)
	// Queue order within one inbox follows lead order.
	assert.Equal(t, []string{"a@x", "b@x"}, rec.byInbox["one@me.io"])
	assert.Equal(t, []string{"c@x"}, rec.byInbox["two@me.io"])
}

func TestPacingBetweenSends(t *testing.T) {
	rec := newSendRecorder()
	var mu sync.Mutex
	var gaps []time.Duration
	d := &Dispatcher{
		Send:   rec.send,
		Logger: testLogger(),
		MinGap: 2 * time.Second,
		Sleep: func(_ context.Context, dur time.Duration) {
			mu.Lock()
			gaps = append(gaps, dur)
			mu.Unlock()
		},
	}

	d.Run(context.Background(), leads("a@x", "b@x", "c@x"), []string{"one@me.io"})
	require.Len(t, gaps, 3)
	for _, gap := range gaps {
		assert.GreaterOrEqual(t, gap, 2*time.Second)
	}
}

func TestJitterStaysWithinBounds(t *testing.T) {
	d := &Dispatcher{MinGap: 2 * time.Second, Jitter: time.Second}
	for i := 0; i < 50; i++ {
		gap := d.gap()
		assert.GreaterOrEqual(t, gap, 2*time.Second)
		assert.Less(t, gap, 3*time.Second)
	}
}

func TestNegativeMinGapClampsToZero(t *testing.T) {
	d := &Dispatcher{MinGap: -5 * time.Second, Jitter: time.Second}
	for i := 0; i < 50; i++ {
		gap := d.gap()
		assert.GreaterOrEqual(t, gap, time.Duration(0))
		assert.Less(t, gap, time.Second)
	}

	// Without jitter the clamped gap is exactly zero.
	d = &Dispatcher{MinGap: -5 * time.Second}
	assert.Equal(t, time.Duration(0), d.gap())
}

func TestSkipsDoNotPace(t *testing.T) {
	rec := newSendRecorder()
	rec.result = func(string, string) (bool, error) { return false, nil }
	slept := 0
	d := &Dispatcher{
		Send:   rec.send,
		Logger: testLogger(),
		Sleep:  func(context.Context, time.Duration) { slept++ },
	}

	stats := d.Run(context.Background(), leads("a@x", "b@x"), []string{"one@me.io"})
	assert.Equal(t, 2, stats.Skipped)
	assert.Zero(t, stats.Sent)
	assert.Zero(t, slept)
}

func TestErrorsCountedAndIsolated(t *testing.T) {
	rec := newSendRecorder()
	rec.result = func(leadID, inbox string) (bool, error) {
		if leadID == "bad@x" {
			return false, errors.New("smtp down")
		}
		return true, nil
	}
	d := &Dispatcher{
		Send:   rec.send,
		Logger: testLogger(),
		Sleep:  func(context.Context, time.Duration) {},
	}

	stats := d.Run(context.Background(), leads("bad@x", "good@x"), []string{"one@me.io"})
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.Sent)
	// The failed lead did not stop the rest of the queue.
	assert.Equal(t, []string{"bad@x", "good@x"}, rec.byInbox["one@me.io"])
}

func TestCancelledContextStopsWork(t *testing.T) {
	rec := newSendRecorder()
	d := &Dispatcher{
		Send:   rec.send,
		Logger: testLogger(),
		Sleep:  func(context.Context, time.Duration) {},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats := d.Run(ctx, leads("a@x", "b@x"), []string{"one@me.io"})
	assert.Zero(t, stats.Sent)
	assert.Empty(t, rec.byInbox)
}

func TestAssignFailureCountsError(t *testing.T) {
	rec := newSendRecorder()
	d := &Dispatcher{
		Assign: func(string) (string, error) { return "", errors.New("no capacity") },
		Send:   rec.send,
		Logger: testLogger(),
	}

	stats := d.Run(context.Background(), leads("a@x"), []string{"one@me.io"})
	assert.Equal(t, 1, stats.Errors)
	assert.Zero(t, stats.Sent)
}
