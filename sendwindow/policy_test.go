package sendwindow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mailsprint/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-03-04 is a Wednesday.
var wednesdayMorning = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func testControls() Controls {
	return Controls{
		DaysAllowed: []string{"Mon", "Tue", "Wed", "Thu", "Fri"},
		StartTime:   "09:00",
		EndTime:     "17:00",
		Timezone:    "UTC",
	}
}

func testPolicy(t *testing.T, controls Controls, counters CounterStore, now time.Time) *Policy {
	t.Helper()
	p, err := NewPolicy(controls, counters, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	p.Now = func() time.Time { return now }
	return p
}

func fileStore(t *testing.T) *FileCounterStore {
	t.Helper()
	return NewFileCounterStore(filepath.Join(t.TempDir(), "counters.json"))
}

func TestEvaluateAllowsInsideWindow(t *testing.T) {
	p := testPolicy(t, testControls(), fileStore(t), wednesdayMorning)

	allowed, reason := p.Evaluate(context.Background(), "", true, false)
	assert.True(t, allowed)
	assert.Equal(t, ReasonNone, reason)
}

func TestEvaluateBlocksOutsideHours(t *testing.T) {
	evening := time.Date(2026, 3, 4, 18, 30, 0, 0, time.UTC)
	p := testPolicy(t, testControls(), fileStore(t), evening)

	allowed, reason := p.Evaluate(context.Background(), "", true, false)
	assert.False(t, allowed)
	assert.Equal(t, ReasonTime, reason)
}

func TestEvaluateStartOfWindowInclusive(t *testing.T) {
	justBefore := time.Date(2026, 3, 4, 8, 59, 0, 0, time.UTC)
	p := testPolicy(t, testControls(), fileStore(t), justBefore)

	allowed, reason := p.Evaluate(context.Background(), "", true, false)
	assert.False(t, allowed)
	assert.Equal(t, ReasonTime, reason)

	atStart := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	p = testPolicy(t, testControls(), fileStore(t), atStart)

	allowed, reason = p.Evaluate(context.Background(), "", true, false)
	assert.True(t, allowed)
	assert.Equal(t, ReasonNone, reason)
}

func TestEvaluateBlocksEndOfWindowExclusive(t *testing.T) {
	atEnd := time.Date(2026, 3, 4, 17, 0, 0, 0, time.UTC)
	p := testPolicy(t, testControls(), fileStore(t), atEnd)

	allowed, reason := p.Evaluate(context.Background(), "", true, false)
	assert.False(t, allowed)
	assert.Equal(t, ReasonTime, reason)
}

func TestEvaluateBlocksDisallowedDay(t *testing.T) {
	saturday := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	p := testPolicy(t, testControls(), fileStore(t), saturday)

	allowed, reason := p.Evaluate(context.Background(), "", true, false)
	assert.False(t, allowed)
	assert.Equal(t, ReasonTime, reason)
}

func TestBypassTimeStillEnforcesQuota(t *testing.T) {
	controls := testControls()
	controls.DailyLimit = utils.Pointer(1)
	saturday := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	p := testPolicy(t, controls, fileStore(t), saturday)

	allowed, reason := p.Evaluate(context.Background(), "", false, true)
	assert.True(t, allowed)
	assert.Equal(t, ReasonNone, reason)

	allowed, reason = p.Evaluate(context.Background(), "", false, true)
	assert.False(t, allowed)
	assert.Equal(t, ReasonDailyLimit, reason)
}

func TestEvaluateDisabled(t *testing.T) {
	controls := testControls()
	controls.OutreachEnabled = utils.Pointer(false)
	p := testPolicy(t, controls, fileStore(t), wednesdayMorning)

	allowed, reason := p.Evaluate(context.Background(), "", true, false)
	assert.False(t, allowed)
	assert.Equal(t, ReasonDisabled, reason)
}

func TestDryRunNeverConsumes(t *testing.T) {
	controls := testControls()
	controls.DailyLimit = utils.Pointer(2)
	p := testPolicy(t, controls, fileStore(t), wednesdayMorning)

	for i := 0; i < 5; i++ {
		allowed, reason := p.Evaluate(context.Background(), "sales@acme.io", true, false)
		assert.True(t, allowed, "dry check %d", i)
		assert.Equal(t, ReasonNone, reason)
	}

	counters, err := p.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, counters.Total)
	assert.Empty(t, counters.PerInbox)
}

func TestDailyLimitEnforced(t *testing.T) {
	controls := testControls()
	controls.DailyLimit = utils.Pointer(2)
	p := testPolicy(t, controls, fileStore(t), wednesdayMorning)

	for i := 0; i < 2; i++ {
		allowed, _ := p.Evaluate(context.Background(), "", false, false)
		require.True(t, allowed, "send %d", i)
	}

	allowed, reason := p.Evaluate(context.Background(), "", false, false)
	assert.False(t, allowed)
	assert.Equal(t, ReasonDailyLimit, reason)

	counters, err := p.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counters.Total)
}

func TestPerInboxLimitEnforced(t *testing.T) {
	controls := testControls()
	controls.PerInboxLimit = utils.Pointer(1)
	p := testPolicy(t, controls, fileStore(t), wednesdayMorning)

	allowed, _ := p.Evaluate(context.Background(), "a@acme.io", false, false)
	require.True(t, allowed)

	allowed, reason := p.Evaluate(context.Background(), "a@acme.io", false, false)
	assert.False(t, allowed)
	assert.Equal(t, ReasonPerInboxLimit, reason)

	// Another inbox still has room.
	allowed, _ = p.Evaluate(context.Background(), "b@acme.io", false, false)
	assert.True(t, allowed)
}

func TestStaleCountersReset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counters.json")
	stale := Counters{Date: "2026-03-03", Total: 99, PerInbox: map[string]int{"a@acme.io": 50}}
	data, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	controls := testControls()
	controls.DailyLimit = utils.Pointer(10)
	p := testPolicy(t, controls, NewFileCounterStore(path), wednesdayMorning)

	allowed, reason := p.Evaluate(context.Background(), "a@acme.io", false, false)
	assert.True(t, allowed)
	assert.Equal(t, ReasonNone, reason)

	counters, err := p.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026-03-04", counters.Date)
	assert.Equal(t, 1, counters.Total)
	assert.Equal(t, 1, counters.PerInbox["a@acme.io"])
}

type brokenStore struct{}

func (brokenStore) Snapshot(ctx context.Context, date string) (Counters, error) {
	return Counters{}, errors.New("disk on fire")
}

func (brokenStore) Consume(ctx context.Context, date, inbox string, limits Limits, dry bool) (bool, Reason, error) {
	return false, ReasonError, errors.New("disk on fire")
}

func TestFailsClosedOnCounterError(t *testing.T) {
	p := testPolicy(t, testControls(), brokenStore{}, wednesdayMorning)

	allowed, reason := p.Evaluate(context.Background(), "", false, false)
	assert.False(t, allowed)
	assert.Equal(t, ReasonError, reason)
}

func TestLoadControlsRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "controls.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"days_allowed": ["Funday"]}`), 0o644))

	_, err := LoadControls(path)
	assert.Error(t, err)
}

func TestLoadControlsDefaultsEnabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "controls.json")
	body := `{"days_allowed": ["Mon"], "start_time": "08:00", "end_time": "12:00", "timezone": "UTC"}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	controls, err := LoadControls(path)
	require.NoError(t, err)
	assert.True(t, controls.Enabled())
	assert.Nil(t, controls.DailyLimit)
}
