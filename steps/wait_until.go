package steps

import (
	"context"

	"mailsprint/models"
	"mailsprint/sequence"
	"mailsprint/utils"

	"github.com/sirupsen/logrus"
)

// WaitUntilStep schedules the next eligible time for the lead and
// advances the pointer past itself.
type WaitUntilStep struct {
	cfg *sequence.StepConfig
}

func (s *WaitUntilStep) ID() string {
	return s.cfg.ID
}

func (s *WaitUntilStep) Run(ctx context.Context, lead *models.Lead, deps *Deps, sequenceID string, dryRun bool) (Result, error) {
	leadID := lead.Identity()
	if leadID == "" {
		return Result{Status: StatusSkip, Notes: NoteNoLeadID}, nil
	}

	next := deps.now().Add(s.cfg.Delay.Duration())

	if dryRun {
		deps.Logger.WithFields(logrus.Fields{"lead": leadID, "until": next}).
			Info("[DRY RUN] would schedule wait")
		return Result{Status: StatusOK, Notes: "simulated"}, nil
	}

	if err := deps.State.Advance(leadID, sequenceID, s.cfg.ID, &next); err != nil {
		return Result{}, err
	}
	deps.Logger.WithFields(logrus.Fields{"lead": leadID, "until": next}).
		Infof("scheduled wait of %s", utils.FormatDuration(s.cfg.Delay.Duration()))
	return Result{Status: StatusOK, Notes: "scheduled"}, nil
}
