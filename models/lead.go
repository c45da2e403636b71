package models

import (
	"time"

	"gorm.io/gorm"
)

// Lead represents a single prospect being progressed through outreach
type Lead struct {
	gorm.Model
	Email     string `gorm:"not null;uniqueIndex" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Position  string `json:"position"`
	Website   string `json:"website"`

	// Client partition this lead belongs to
	Client string `gorm:"index" json:"client"`

	// Sticky sender assignment: once a lead has been contacted from an
	// inbox, every later touch comes from the same inbox
	AssignedSender string `gorm:"index" json:"assigned_sender"`

	// Status flags
	IsBounced      bool `gorm:"default:false" json:"is_bounced"`
	IsUnsubscribed bool `gorm:"default:false" json:"is_unsubscribed"`
	IsDoNotContact bool `gorm:"default:false" json:"is_do_not_contact"`

	// Global terminal signals. RepliedAt/StoppedAt halt every sequence
	// for this lead, not just the one that was running.
	RepliedAt *time.Time `json:"replied_at"`
	StoppedAt *time.Time `json:"stopped_at"`

	// Metadata
	Source          string     `json:"source"`
	MessagingStatus string     `json:"messaging_status"`
	FollowUpStage   string     `json:"follow_up_stage"`
	LastContactAt   *time.Time `json:"last_contact_at"`

	// Relations
	CustomFields []LeadCustomField `gorm:"foreignKey:LeadID" json:"custom_fields,omitempty"`
}

// Identity returns the identifier the sequence engine keys state by.
func (l *Lead) Identity() string {
	return l.Email
}

// Field looks up a profile value by its CRM column name, falling back
// to custom fields. Unknown names return "".
func (l *Lead) Field(name string) string {
	switch name {
	case "Email":
		return l.Email
	case "First Name", "FirstName":
		return l.FirstName
	case "Last Name", "LastName":
		return l.LastName
	case "Company", "Company Name":
		return l.Company
	case "Position":
		return l.Position
	case "Website":
		return l.Website
	case "Client", "Client Name":
		return l.Client
	case "Messaging Status":
		return l.MessagingStatus
	case "Follow-Up Stage":
		return l.FollowUpStage
	case "Owner / Assigned To":
		return l.AssignedSender
	}
	for _, cf := range l.CustomFields {
		if cf.Name == name {
			return cf.Value
		}
	}
	return ""
}

// LeadCustomField represents custom fields for leads
type LeadCustomField struct {
	gorm.Model
	LeadID uint   `gorm:"not null;index" json:"lead_id"`
	Name   string `gorm:"not null;index" json:"name"`
	Value  string `gorm:"type:text" json:"value"`
}
