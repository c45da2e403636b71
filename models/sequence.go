package models

import (
	"time"

	"gorm.io/gorm"
)

// Pointer statuses. DONE, STOPPED and REPLIED are terminal: once a
// (lead, sequence) reaches one of them no further steps ever run.
const (
	StatusActive  = "ACTIVE"
	StatusDone    = "DONE"
	StatusStopped = "STOPPED"
	StatusReplied = "REPLIED"
)

// SequencePointer is the per-lead, per-sequence progress marker:
// which step was last executed, when the next one becomes eligible,
// and whether the lead is still active in the sequence.
type SequencePointer struct {
	gorm.Model
	LeadID     string `gorm:"not null;uniqueIndex:idx_pointer_lead_seq" json:"lead_id"`
	SequenceID string `gorm:"not null;uniqueIndex:idx_pointer_lead_seq" json:"sequence_id"`

	CurrentStepID *string    `json:"current_step_id"`
	NextActionAt  *time.Time `json:"next_action_at"`
	Status        string     `gorm:"not null;default:'ACTIVE'" json:"status"`
}

// Terminal reports whether the pointer can never advance again.
func (p *SequencePointer) Terminal() bool {
	return p.Status == StatusDone || p.Status == StatusStopped || p.Status == StatusReplied
}

// SendRecord is one row of the idempotency ledger. Presence of a
// (lead, sequence, step, fingerprint) row means that exact content has
// already been delivered; rows are append-only and never deleted.
type SendRecord struct {
	gorm.Model
	LeadID      string `gorm:"not null;uniqueIndex:idx_send_ledger" json:"lead_id"`
	SequenceID  string `gorm:"not null;uniqueIndex:idx_send_ledger" json:"sequence_id"`
	StepID      string `gorm:"not null;uniqueIndex:idx_send_ledger" json:"step_id"`
	Fingerprint string `gorm:"not null;uniqueIndex:idx_send_ledger;size:64" json:"fingerprint"`
}

// SendActivity is the audit trail of live sends
type SendActivity struct {
	gorm.Model
	LeadID     string    `gorm:"not null;index" json:"lead_id"`
	SequenceID string    `gorm:"index" json:"sequence_id"`
	StepID     string    `json:"step_id"`
	Inbox      string    `gorm:"index" json:"inbox"`
	MessageID  string    `json:"message_id"`
	Subject    string    `json:"subject"`
	SentAt     time.Time `gorm:"not null" json:"sent_at"`
}
