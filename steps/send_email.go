package steps

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"mailsprint/models"
	"mailsprint/sequence"
	"mailsprint/utils"

	"github.com/badoux/checkmail"
	"github.com/sirupsen/logrus"
)

// SendEmailStep renders and delivers one message, guarded by the send
// window and the idempotency ledger.
type SendEmailStep struct {
	cfg *sequence.StepConfig
}

func (s *SendEmailStep) ID() string {
	return s.cfg.ID
}

func (s *SendEmailStep) Run(ctx context.Context, lead *models.Lead, deps *Deps, sequenceID string, dryRun bool) (Result, error) {
	leadID := lead.Identity()
	if leadID == "" {
		deps.Logger.Warn("send_email: missing lead identifier; skipping")
		return Result{Status: StatusSkip, Notes: NoteNoLeadID}, nil
	}
	if err := checkmail.ValidateFormat(leadID); err != nil {
		deps.Logger.WithField("lead", leadID).Warn("send_email: unusable lead identifier; skipping")
		return Result{Status: StatusSkip, Notes: NoteNoLeadID}, nil
	}

	inbox := lead.AssignedSender

	// Dry pre-check so a closed window is reported without burning
	// quota; the consuming check happens after the ledger lookup.
	if allowed, reason := deps.Window.Evaluate(ctx, inbox, true, deps.BypassTime); !allowed {
		deps.Logger.WithFields(logrus.Fields{"lead": leadID, "reason": reason}).
			Info("outside allowed send window; skipping")
		return Result{Status: StatusSkip, Notes: NoteSendWindowPrefix + string(reason)}, nil
	}

	rendered, err := deps.Renderer.Render(ctx, s.cfg, lead)
	if err != nil {
		return Result{}, fmt.Errorf("render step %s for %s: %w", s.cfg.ID, leadID, err)
	}

	subject := utils.OneParagraph(utils.RemoveBrackets(rendered.Subject))
	body := utils.OneParagraph(utils.StripHTMLTags(utils.RemoveBrackets(rendered.Body)))

	fingerprint := Fingerprint(leadID, s.cfg.ID, body)
	sent, err := deps.State.WasSent(leadID, sequenceID, s.cfg.ID, fingerprint)
	if err != nil {
		return Result{}, err
	}
	if sent {
		deps.Logger.WithFields(logrus.Fields{"lead": leadID, "step": s.cfg.ID}).
			Info("already sent; skipping")
		if !dryRun {
			// A ledger hit with a stale pointer means a crash landed
			// between MarkSent and Advance; repair the pointer so the
			// lead is not stuck on this step forever.
			if err := deps.State.Advance(leadID, sequenceID, s.cfg.ID, nil); err != nil {
				return Result{}, err
			}
		}
		return Result{Status: StatusSkip, Notes: NoteAlreadySent}, nil
	}

	if dryRun {
		deps.Logger.WithFields(logrus.Fields{"lead": leadID, "subject": subject}).
			Info("[DRY RUN] would send")
		return Result{Status: StatusOK, Notes: "simulated"}, nil
	}

	// Live: consume quota now that the ledger says this is a new send.
	if allowed, reason := deps.Window.Evaluate(ctx, inbox, false, deps.BypassTime); !allowed {
		return Result{Status: StatusSkip, Notes: NoteSendWindowPrefix + string(reason)}, nil
	}

	messageID, err := deps.Transport.Send(ctx, inbox, leadID, subject, body)
	if err != nil {
		return Result{}, fmt.Errorf("send step %s to %s: %w", s.cfg.ID, leadID, err)
	}

	if err := deps.State.MarkSent(leadID, sequenceID, s.cfg.ID, fingerprint); err != nil {
		return Result{}, err
	}
	if err := deps.State.RecordActivity(leadID, sequenceID, s.cfg.ID, inbox, messageID, subject); err != nil {
		deps.Logger.WithError(err).Warn("failed to record send activity")
	}
	if err := deps.State.Advance(leadID, sequenceID, s.cfg.ID, nil); err != nil {
		return Result{}, err
	}

	if err := deps.Records.UpdateFields(leadID, map[string]string{
		"Last Message Sent Timestamp": deps.now().UTC().Format(time.RFC3339),
	}); err != nil {
		deps.Logger.WithError(err).WithField("lead", leadID).
			Warn("could not stamp last-sent timestamp")
	}

	deps.Logger.WithFields(logrus.Fields{"lead": leadID, "subject": subject, "message_id": messageID}).
		Info("sent")
	return Result{Status: StatusOK, Notes: "sent"}, nil
}

// Fingerprint hashes the rendered content for idempotency keying. Any
// change to the body produces a new fingerprint, which counts as a new
// send rather than a duplicate.
func Fingerprint(leadID, stepID, body string) string {
	sum := sha256.Sum256([]byte(leadID + "|" + stepID + "|" + body))
	return hex.EncodeToString(sum[:])
}
