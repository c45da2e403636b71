package store

import (
	"errors"
	"testing"
	"time"

	"mailsprint/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateFieldsMappedColumns(t *testing.T) {
	db := testDB(t)
	crm := NewCRM(db)
	createLead(t, db, "a@acme.io")

	ts := time.Date(2026, 3, 4, 15, 4, 5, 0, time.UTC)
	err := crm.UpdateFields("a@acme.io", map[string]string{
		"Messaging Status":            "Follow-Up Sent",
		"Follow-Up Stage":             "Follow Up #1",
		"Owner / Assigned To":         "sales@me.io",
		"Last Message Sent Timestamp": ts.Format(time.RFC3339),
	})
	require.NoError(t, err)

	var lead models.Lead
	require.NoError(t, db.Where("email = ?", "a@acme.io").First(&lead).Error)
	assert.Equal(t, "Follow-Up Sent", lead.MessagingStatus)
	assert.Equal(t, "Follow Up #1", lead.FollowUpStage)
	assert.Equal(t, "sales@me.io", lead.AssignedSender)
	require.NotNil(t, lead.LastContactAt)
	assert.True(t, lead.LastContactAt.Equal(ts))
}

func TestUpdateFieldsCustomFallthrough(t *testing.T) {
	db := testDB(t)
	crm := NewCRM(db)
	lead := createLead(t, db, "a@acme.io")

	require.NoError(t, crm.UpdateFields("a@acme.io", map[string]string{"Pain Point": "manual invoicing"}))
	require.NoError(t, crm.UpdateFields("a@acme.io", map[string]string{"Pain Point": "slow onboarding"}))

	var fields []models.LeadCustomField
	require.NoError(t, db.Where("lead_id = ?", lead.ID).Find(&fields).Error)
	require.Len(t, fields, 1)
	assert.Equal(t, "Pain Point", fields[0].Name)
	assert.Equal(t, "slow onboarding", fields[0].Value)
}

func TestUpdateFieldsUnknownLead(t *testing.T) {
	crm := NewCRM(testDB(t))
	assert.Error(t, crm.UpdateFields("ghost@acme.io", map[string]string{"Messaging Status": "x"}))
}

func TestLoadLeadsFilters(t *testing.T) {
	db := testDB(t)
	crm := NewCRM(db)

	createLead(t, db, "keep@acme.io")
	bounced := createLead(t, db, "bounced@acme.io")
	require.NoError(t, db.Model(bounced).Update("is_bounced", true).Error)
	unsub := createLead(t, db, "unsub@acme.io")
	require.NoError(t, db.Model(unsub).Update("is_unsubscribed", true).Error)
	other := &models.Lead{Email: "other@globex.io", Client: "globex"}
	require.NoError(t, db.Create(other).Error)

	leads, err := crm.LoadLeads("acme")
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "keep@acme.io", leads[0].Identity())

	// Empty client loads every partition.
	leads, err = crm.LoadLeads("")
	require.NoError(t, err)
	assert.Len(t, leads, 2)
}

func TestAssignSenderSticky(t *testing.T) {
	db := testDB(t)
	crm := NewCRM(db)
	createLead(t, db, "a@acme.io")

	picks := 0
	pick := func() (string, error) {
		picks++
		return "sales@me.io", nil
	}

	inbox, err := crm.AssignSender("a@acme.io", pick)
	require.NoError(t, err)
	assert.Equal(t, "sales@me.io", inbox)
	assert.Equal(t, 1, picks)

	// Second call reads the persisted assignment back; pick not called.
	inbox, err = crm.AssignSender("a@acme.io", pick)
	require.NoError(t, err)
	assert.Equal(t, "sales@me.io", inbox)
	assert.Equal(t, 1, picks)
}

func TestAssignSenderPickFailure(t *testing.T) {
	db := testDB(t)
	crm := NewCRM(db)
	createLead(t, db, "a@acme.io")

	_, err := crm.AssignSender("a@acme.io", func() (string, error) {
		return "", errors.New("no capacity")
	})
	assert.Error(t, err)

	// Nothing persisted on failure.
	var lead models.Lead
	require.NoError(t, db.Where("email = ?", "a@acme.io").First(&lead).Error)
	assert.Empty(t, lead.AssignedSender)
}
