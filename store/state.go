package store

import (
	"errors"
	"fmt"
	"time"

	"mailsprint/models"

	"gorm.io/gorm"
)

// Pointer is the read view of a lead's progress in one sequence.
type Pointer struct {
	CurrentStepID *string
	NextActionAt  *time.Time
	Status        string
}

// State is the durable per-lead sequence state: progress pointers,
// global stop signals, and the idempotency ledger. Pointers are only
// ever mutated through Advance/SetStatus/StopAll/MarkReplied.
type State struct {
	db *gorm.DB

	// Now is swappable for tests.
	Now func() time.Time
}

func NewState(db *gorm.DB) *State {
	return &State{db: db, Now: time.Now}
}

// GetPointer returns the pointer for (lead, sequence), defaulting to
// an ACTIVE pointer with no current step when none exists yet.
func (s *State) GetPointer(leadID, sequenceID string) (Pointer, error) {
	var p models.SequencePointer
	err := s.db.Where("lead_id = ? AND sequence_id = ?", leadID, sequenceID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Pointer{Status: models.StatusActive}, nil
	}
	if err != nil {
		return Pointer{}, fmt.Errorf("load pointer for %s/%s: %w", leadID, sequenceID, err)
	}
	return Pointer{
		CurrentStepID: p.CurrentStepID,
		NextActionAt:  p.NextActionAt,
		Status:        p.Status,
	}, nil
}

// Advance records that stepID was reached and sets the wait deadline
// (nil means eligible immediately). The pointer row is created lazily
// on first contact.
func (s *State) Advance(leadID, sequenceID, stepID string, nextActionAt *time.Time) error {
	return s.upsertPointer(leadID, sequenceID, func(p *models.SequencePointer) {
		p.CurrentStepID = &stepID
		p.NextActionAt = nextActionAt
	})
}

// SetStatus sets the status of one (lead, sequence) pointer.
func (s *State) SetStatus(leadID, sequenceID, status string) error {
	return s.upsertPointer(leadID, sequenceID, func(p *models.SequencePointer) {
		p.Status = status
	})
}

// StopAll halts every sequence for the lead. The stop is global: one
// prospect is one conversation, so a stop in any sequence silences all
// of them.
func (s *State) StopAll(leadID string) error {
	return s.markTerminal(leadID, models.StatusStopped)
}

// MarkReplied records an inbound reply, which is a global terminal
// signal like StopAll.
func (s *State) MarkReplied(leadID string) error {
	return s.markTerminal(leadID, models.StatusReplied)
}

func (s *State) markTerminal(leadID, status string) error {
	now := s.Now()
	return s.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{}
		if status == models.StatusReplied {
			updates["replied_at"] = now
		} else {
			updates["stopped_at"] = now
		}
		if err := tx.Model(&models.Lead{}).Where("email = ?", leadID).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Model(&models.SequencePointer{}).
			Where("lead_id = ?", leadID).
			Update("status", status).Error
	})
}

// ShouldStopAll reports whether the lead carries a global terminal
// signal (stopped or replied).
func (s *State) ShouldStopAll(leadID string) (bool, error) {
	var lead models.Lead
	err := s.db.Select("replied_at", "stopped_at", "is_do_not_contact").
		Where("email = ?", leadID).First(&lead).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load lead %s: %w", leadID, err)
	}
	return lead.RepliedAt != nil || lead.StoppedAt != nil || lead.IsDoNotContact, nil
}

// WasSent checks the idempotency ledger for an exact
// (lead, sequence, step, fingerprint) match.
func (s *State) WasSent(leadID, sequenceID, stepID, fingerprint string) (bool, error) {
	var count int64
	err := s.db.Model(&models.SendRecord{}).
		Where("lead_id = ? AND sequence_id = ? AND step_id = ? AND fingerprint = ?",
			leadID, sequenceID, stepID, fingerprint).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("ledger lookup for %s/%s/%s: %w", leadID, sequenceID, stepID, err)
	}
	return count > 0, nil
}

// MarkSent appends to the idempotency ledger. Call it only after the
// send was confirmed; a crash between the confirmed send and this
// write is an accepted at-least-once window.
func (s *State) MarkSent(leadID, sequenceID, stepID, fingerprint string) error {
	record := models.SendRecord{
		LeadID:      leadID,
		SequenceID:  sequenceID,
		StepID:      stepID,
		Fingerprint: fingerprint,
	}
	if err := s.db.Create(&record).Error; err != nil {
		return fmt.Errorf("ledger insert for %s/%s/%s: %w", leadID, sequenceID, stepID, err)
	}
	return nil
}

// RecordActivity appends one audit row for a live send.
func (s *State) RecordActivity(leadID, sequenceID, stepID, inbox, messageID, subject string) error {
	activity := models.SendActivity{
		LeadID:     leadID,
		SequenceID: sequenceID,
		StepID:     stepID,
		Inbox:      inbox,
		MessageID:  messageID,
		Subject:    subject,
		SentAt:     s.Now(),
	}
	return s.db.Create(&activity).Error
}

func (s *State) upsertPointer(leadID, sequenceID string, mutate func(*models.SequencePointer)) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var p models.SequencePointer
		err := tx.Where("lead_id = ? AND sequence_id = ?", leadID, sequenceID).First(&p).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			p = models.SequencePointer{
				LeadID:     leadID,
				SequenceID: sequenceID,
				Status:     models.StatusActive,
			}
			mutate(&p)
			return tx.Create(&p).Error
		}
		if err != nil {
			return err
		}
		mutate(&p)
		return tx.Save(&p).Error
	})
}
