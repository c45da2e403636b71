package steps

import (
	"context"
	"testing"
	"time"

	"mailsprint/sequence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitUntilSchedulesDeadline(t *testing.T) {
	deps, state, _ := testDeps(&stubWindow{allowed: true}, &stubTransport{})
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	deps.Now = func() time.Time { return now }

	step, err := New(&sequence.StepConfig{
		ID:    "wait_3d",
		Type:  sequence.TypeWaitUntil,
		Delay: sequence.Delay{Days: 3},
	})
	require.NoError(t, err)

	res, err := step.Run(context.Background(), testLead(), deps, "seq", false)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "scheduled", res.Notes)

	assert.Equal(t, []string{"wait_3d"}, state.advances)
	require.NotNil(t, state.lastNextAt)
	assert.True(t, state.lastNextAt.Equal(now.Add(72*time.Hour)))
}

func TestWaitUntilDryRun(t *testing.T) {
	deps, state, _ := testDeps(&stubWindow{allowed: true}, &stubTransport{})

	step, err := New(&sequence.StepConfig{
		ID:    "wait_3d",
		Type:  sequence.TypeWaitUntil,
		Delay: sequence.Delay{Hours: 1},
	})
	require.NoError(t, err)

	res, err := step.Run(context.Background(), testLead(), deps, "seq", true)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Empty(t, state.advances)
}

func TestUpdateCRMWritesFieldsAndAdvances(t *testing.T) {
	deps, state, records := testDeps(&stubWindow{allowed: true}, &stubTransport{})

	step, err := New(&sequence.StepConfig{
		ID:     "close_out",
		Type:   sequence.TypeUpdateCRM,
		Fields: map[string]string{"Messaging Status": "Sequence Complete"},
	})
	require.NoError(t, err)

	res, err := step.Run(context.Background(), testLead(), deps, "seq", false)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)

	require.Len(t, records.updates, 1)
	assert.Equal(t, "Sequence Complete", records.updates[0]["Messaging Status"])
	assert.Equal(t, []string{"close_out"}, state.advances)
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(&sequence.StepConfig{ID: "x", Type: "smoke_signal"})
	assert.Error(t, err)
}
