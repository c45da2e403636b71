package steps

import (
	"context"

	"mailsprint/models"
	"mailsprint/sequence"

	"github.com/sirupsen/logrus"
)

// UpdateCRMStep writes a fixed field map onto the lead record and
// advances the pointer.
type UpdateCRMStep struct {
	cfg *sequence.StepConfig
}

func (s *UpdateCRMStep) ID() string {
	return s.cfg.ID
}

func (s *UpdateCRMStep) Run(ctx context.Context, lead *models.Lead, deps *Deps, sequenceID string, dryRun bool) (Result, error) {
	leadID := lead.Identity()
	if leadID == "" {
		deps.Logger.Warn("update_crm: missing lead identifier; skipping")
		return Result{Status: StatusSkip, Notes: NoteNoLeadID}, nil
	}

	if dryRun {
		deps.Logger.WithFields(logrus.Fields{"lead": leadID, "fields": s.cfg.Fields}).
			Info("[DRY RUN] would update CRM")
		return Result{Status: StatusOK, Notes: "simulated"}, nil
	}

	if err := deps.Records.UpdateFields(leadID, s.cfg.Fields); err != nil {
		return Result{}, err
	}
	if err := deps.State.Advance(leadID, sequenceID, s.cfg.ID, nil); err != nil {
		return Result{}, err
	}

	deps.Logger.WithFields(logrus.Fields{"lead": leadID, "fields": s.cfg.Fields}).
		Info("CRM updated")
	return Result{Status: StatusOK, Notes: "crm-updated"}, nil
}
