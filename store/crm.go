package store

import (
	"errors"
	"fmt"
	"time"

	"mailsprint/models"

	"gorm.io/gorm"
)

// CRM is the record-store side of the lead table: profile reads and
// field writes, addressed by CRM column names so step configs can use
// the same names the spreadsheet did.
type CRM struct {
	db *gorm.DB
}

func NewCRM(db *gorm.DB) *CRM {
	return &CRM{db: db}
}

// columnFor maps the CRM field names used in sequence configs onto
// lead columns. Anything unmapped lands in custom fields.
func columnFor(name string) (string, bool) {
	switch name {
	case "Messaging Status":
		return "messaging_status", true
	case "Follow-Up Stage":
		return "follow_up_stage", true
	case "Owner / Assigned To":
		return "assigned_sender", true
	case "First Name":
		return "first_name", true
	case "Last Name":
		return "last_name", true
	case "Company", "Company Name":
		return "company", true
	}
	return "", false
}

// UpdateFields writes a field→value map for the lead. Timestamps sent
// as "Last Message Sent Timestamp" update the last-contact column.
func (c *CRM) UpdateFields(leadID string, fields map[string]string) error {
	var lead models.Lead
	if err := c.db.Where("email = ?", leadID).First(&lead).Error; err != nil {
		return fmt.Errorf("lead %s not found: %w", leadID, err)
	}

	return c.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{}
		var custom []models.LeadCustomField

		for name, value := range fields {
			if name == "Last Message Sent Timestamp" {
				ts, err := time.Parse(time.RFC3339, value)
				if err != nil {
					ts = time.Now().UTC()
				}
				updates["last_contact_at"] = ts
				continue
			}
			if col, ok := columnFor(name); ok {
				updates[col] = value
				continue
			}
			custom = append(custom, models.LeadCustomField{LeadID: lead.ID, Name: name, Value: value})
		}

		if len(updates) > 0 {
			if err := tx.Model(&models.Lead{}).Where("id = ?", lead.ID).Updates(updates).Error; err != nil {
				return err
			}
		}

		for _, cf := range custom {
			var existing models.LeadCustomField
			err := tx.Where("lead_id = ? AND name = ?", cf.LeadID, cf.Name).First(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if err := tx.Create(&cf).Error; err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}
			if err := tx.Model(&existing).Update("value", cf.Value).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadLeads returns the leads for a client partition, deduplicated by
// identity (first occurrence wins) with bounced, unsubscribed and
// do-not-contact rows excluded.
func (c *CRM) LoadLeads(client string) ([]models.Lead, error) {
	var rows []models.Lead
	q := c.db.Preload("CustomFields").
		Where("is_bounced = ? AND is_unsubscribed = ? AND is_do_not_contact = ?", false, false, false).
		Order("id")
	if client != "" {
		q = q.Where("client = ?", client)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load leads for client %q: %w", client, err)
	}

	seen := make(map[string]struct{}, len(rows))
	leads := rows[:0]
	for _, lead := range rows {
		id := lead.Identity()
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		leads = append(leads, lead)
	}
	return leads, nil
}

// AssignSender returns the lead's sticky inbox, picking and persisting
// one via pick only when the lead has never been assigned. An existing
// assignment is always honored, never reassigned.
func (c *CRM) AssignSender(leadID string, pick func() (string, error)) (string, error) {
	var lead models.Lead
	if err := c.db.Where("email = ?", leadID).First(&lead).Error; err != nil {
		return "", fmt.Errorf("lead %s not found: %w", leadID, err)
	}
	if lead.AssignedSender != "" {
		return lead.AssignedSender, nil
	}

	inbox, err := pick()
	if err != nil {
		return "", err
	}
	if err := c.db.Model(&models.Lead{}).Where("id = ?", lead.ID).
		Update("assigned_sender", inbox).Error; err != nil {
		return "", err
	}
	return inbox, nil
}
