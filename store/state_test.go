package store

import (
	"path/filepath"
	"testing"
	"time"

	"mailsprint/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Lead{},
		&models.LeadCustomField{},
		&models.Sender{},
		&models.SequencePointer{},
		&models.SendRecord{},
		&models.SendActivity{},
	))
	return db
}

func createLead(t *testing.T, db *gorm.DB, email string) *models.Lead {
	t.Helper()
	lead := &models.Lead{Email: email, FirstName: "Jess", Company: "Acme", Client: "acme"}
	require.NoError(t, db.Create(lead).Error)
	return lead
}

func TestGetPointerDefaults(t *testing.T) {
	st := NewState(testDB(t))

	p, err := st.GetPointer("new@acme.io", "opener_followups")
	require.NoError(t, err)
	assert.Nil(t, p.CurrentStepID)
	assert.Nil(t, p.NextActionAt)
	assert.Equal(t, models.StatusActive, p.Status)
}

func TestAdvanceCreatesAndUpdatesPointer(t *testing.T) {
	st := NewState(testDB(t))

	deadline := time.Date(2026, 3, 7, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.Advance("a@acme.io", "seq", "wait_3d", &deadline))

	p, err := st.GetPointer("a@acme.io", "seq")
	require.NoError(t, err)
	require.NotNil(t, p.CurrentStepID)
	assert.Equal(t, "wait_3d", *p.CurrentStepID)
	require.NotNil(t, p.NextActionAt)
	assert.True(t, p.NextActionAt.Equal(deadline))
	assert.Equal(t, models.StatusActive, p.Status)

	// Advancing past the wait clears the deadline.
	require.NoError(t, st.Advance("a@acme.io", "seq", "followup_1", nil))
	p, err = st.GetPointer("a@acme.io", "seq")
	require.NoError(t, err)
	assert.Equal(t, "followup_1", *p.CurrentStepID)
	assert.Nil(t, p.NextActionAt)
}

func TestSetStatusDone(t *testing.T) {
	st := NewState(testDB(t))

	require.NoError(t, st.SetStatus("a@acme.io", "seq", models.StatusDone))
	p, err := st.GetPointer("a@acme.io", "seq")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, p.Status)
}

func TestMarkRepliedStopsEverySequence(t *testing.T) {
	db := testDB(t)
	st := NewState(db)
	createLead(t, db, "a@acme.io")

	require.NoError(t, st.Advance("a@acme.io", "seq_one", "step1", nil))
	require.NoError(t, st.Advance("a@acme.io", "seq_two", "step1", nil))

	require.NoError(t, st.MarkReplied("a@acme.io"))

	stopped, err := st.ShouldStopAll("a@acme.io")
	require.NoError(t, err)
	assert.True(t, stopped)

	for _, seq := range []string{"seq_one", "seq_two"} {
		p, err := st.GetPointer("a@acme.io", seq)
		require.NoError(t, err)
		assert.Equal(t, models.StatusReplied, p.Status, seq)
	}

	var lead models.Lead
	require.NoError(t, db.Where("email = ?", "a@acme.io").First(&lead).Error)
	assert.NotNil(t, lead.RepliedAt)
}

func TestStopAllSetsStoppedAt(t *testing.T) {
	db := testDB(t)
	st := NewState(db)
	createLead(t, db, "a@acme.io")

	require.NoError(t, st.StopAll("a@acme.io"))

	stopped, err := st.ShouldStopAll("a@acme.io")
	require.NoError(t, err)
	assert.True(t, stopped)

	var lead models.Lead
	require.NoError(t, db.Where("email = ?", "a@acme.io").First(&lead).Error)
	assert.NotNil(t, lead.StoppedAt)
	assert.Nil(t, lead.RepliedAt)
}

func TestShouldStopAllDoNotContact(t *testing.T) {
	db := testDB(t)
	st := NewState(db)
	lead := createLead(t, db, "dnc@acme.io")
	require.NoError(t, db.Model(lead).Update("is_do_not_contact", true).Error)

	stopped, err := st.ShouldStopAll("dnc@acme.io")
	require.NoError(t, err)
	assert.True(t, stopped)
}

func TestShouldStopAllUnknownLead(t *testing.T) {
	st := NewState(testDB(t))

	stopped, err := st.ShouldStopAll("ghost@acme.io")
	require.NoError(t, err)
	assert.False(t, stopped)
}

func TestLedgerRoundTrip(t *testing.T) {
	st := NewState(testDB(t))

	sent, err := st.WasSent("a@acme.io", "seq", "followup_1", "fp1")
	require.NoError(t, err)
	assert.False(t, sent)

	require.NoError(t, st.MarkSent("a@acme.io", "seq", "followup_1", "fp1"))

	sent, err = st.WasSent("a@acme.io", "seq", "followup_1", "fp1")
	require.NoError(t, err)
	assert.True(t, sent)

	// A different fingerprint means different content, so not a dupe.
	sent, err = st.WasSent("a@acme.io", "seq", "followup_1", "fp2")
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestRecordActivity(t *testing.T) {
	db := testDB(t)
	st := NewState(db)

	require.NoError(t, st.RecordActivity("a@acme.io", "seq", "followup_1", "sales@me.io", "<id@me.io>", "Quick follow-up"))

	var rows []models.SendActivity
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "sales@me.io", rows[0].Inbox)
	assert.False(t, rows[0].SentAt.IsZero())
}
