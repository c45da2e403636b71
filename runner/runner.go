package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mailsprint/models"
	"mailsprint/sendwindow"
	"mailsprint/sequence"
	"mailsprint/steps"
	"mailsprint/store"
	"mailsprint/utils"

	"github.com/sirupsen/logrus"
)

// ErrLiveNotArmed is returned when a live run is requested without the
// explicit arming flag. This is a hard refusal, not a warning.
var ErrLiveNotArmed = errors.New("refusing to run live: live mode is not armed (set SEQ_RUNNER_LIVE=YES)")

// Options configures one tick of a sequence.
type Options struct {
	SequenceID  string
	DryRun      bool
	LiveArmed   bool
	MaxActions  int
	Client      string
	EmailFilter string
	BypassTime  bool
}

// Summary aggregates one tick's outcomes; it is the primary
// observability surface of a run.
type Summary struct {
	LeadsLoaded int
	Actions     int
	OK          int

	SkipsTime     int
	SkipsQuota    int
	SkipsDisabled int
	SkipsError    int
	SkipsWaiting  int
	SkipsStopped  int
	SkipsOther    int

	// Blocked carries the preflight reason when the whole run was
	// skipped before touching any lead.
	Blocked sendwindow.Reason
}

// Log writes the end-of-run report.
func (s Summary) Log(logger *logrus.Logger, client, sequenceID string) {
	logger.Infof("Run finished. Actions attempted: %d", s.Actions)
	logger.Infof("Summary for client %q / sequence %q:", client, sequenceID)
	logger.Infof("  Leads loaded: %d", s.LeadsLoaded)
	logger.Infof("  OK actions: %d", s.OK)
	logger.Infof("  Skipped (time window): %d", s.SkipsTime)
	logger.Infof("  Skipped (quota limits): %d", s.SkipsQuota)
	logger.Infof("  Skipped (disabled): %d", s.SkipsDisabled)
	logger.Infof("  Skipped (errors): %d", s.SkipsError)
	logger.Infof("  Skipped (waiting): %d", s.SkipsWaiting)
	logger.Infof("  Skipped (stopped/replied): %d", s.SkipsStopped)
	logger.Infof("  Skipped (other): %d", s.SkipsOther)
}

// Runner executes at most one step per lead per invocation. It holds
// no timers: an external scheduler re-invokes it, and repeated
// invocations are safe because all progress lives in the state store.
type Runner struct {
	Sequences *sequence.File
	State     *store.State
	CRM       *store.CRM
	Deps      steps.Deps
	Logger    *logrus.Logger

	// Now is swappable for tests.
	Now func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// RunOnce performs one tick. Configuration problems (unknown sequence,
// bad step config, unarmed live mode) abort before any side effect;
// per-lead failures are counted and never abort the run.
func (r *Runner) RunOnce(ctx context.Context, opts Options) (Summary, error) {
	def, err := r.Sequences.Get(opts.SequenceID)
	if err != nil {
		return Summary{}, err
	}

	if !opts.DryRun && !opts.LiveArmed {
		return Summary{}, ErrLiveNotArmed
	}

	if opts.MaxActions <= 0 {
		opts.MaxActions = 50
	}

	executors := make(map[string]steps.Step, len(def.Steps))
	for i := range def.Steps {
		step, err := steps.New(&def.Steps[i])
		if err != nil {
			return Summary{}, fmt.Errorf("sequence %q: %w", opts.SequenceID, err)
		}
		executors[step.ID()] = step
	}

	deps := r.Deps
	deps.BypassTime = opts.BypassTime
	deps.Now = r.Now

	// Preflight: a closed window means nothing to do this tick. The
	// check is always dry so it never consumes quota.
	if allowed, reason := deps.Window.Evaluate(ctx, "", true, opts.BypassTime); !allowed {
		r.Logger.WithField("reason", reason).Info("send window closed; exiting early")
		return Summary{Blocked: reason}, nil
	}

	leads, err := r.CRM.LoadLeads(opts.Client)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{LeadsLoaded: len(leads)}
	now := r.now()

	for i := range leads {
		if summary.Actions >= opts.MaxActions {
			break
		}
		lead := &leads[i]
		leadID := lead.Identity()

		if opts.EmailFilter != "" && utils.Norm(opts.EmailFilter) != utils.Norm(leadID) {
			continue
		}

		stopped, err := r.State.ShouldStopAll(leadID)
		if err != nil {
			r.Logger.WithError(err).WithField("lead", leadID).Error("stop check failed")
			summary.SkipsError++
			continue
		}
		if stopped {
			summary.SkipsStopped++
			continue
		}

		pointer, err := r.State.GetPointer(leadID, opts.SequenceID)
		if err != nil {
			r.Logger.WithError(err).WithField("lead", leadID).Error("pointer load failed")
			summary.SkipsError++
			continue
		}
		if pointer.Status != models.StatusActive {
			summary.SkipsStopped++
			continue
		}
		if pointer.NextActionAt != nil && pointer.NextActionAt.After(now) {
			summary.SkipsWaiting++
			continue
		}

		nextID := def.NextStepID(pointer.CurrentStepID)
		if nextID == nil {
			if err := r.State.SetStatus(leadID, opts.SequenceID, models.StatusDone); err != nil {
				r.Logger.WithError(err).WithField("lead", leadID).Error("could not mark DONE")
			}
			continue
		}
		step := executors[*nextID]

		if !opts.DryRun {
			if label := def.FollowUpLabel(*nextID); label != "" {
				if err := r.CRM.UpdateFields(leadID, map[string]string{"Follow-Up Stage": label}); err != nil {
					r.Logger.WithError(err).WithField("lead", leadID).
						Warnf("could not set Follow-Up Stage %q before sending", label)
				}
			}
		}

		res, err := runStep(ctx, step, lead, &deps, opts.SequenceID, opts.DryRun)
		if err != nil {
			r.Logger.WithError(err).WithFields(logrus.Fields{"lead": leadID, "step": *nextID}).
				Error("step failed")
			summary.SkipsError++
			continue
		}

		switch res.Status {
		case steps.StatusOK:
			summary.OK++
			summary.Actions++
		case steps.StatusSkip:
			summary.Actions++
			classifySkip(res.Notes, &summary)
		default:
			summary.SkipsOther++
		}
		r.Logger.WithFields(logrus.Fields{
			"lead": leadID, "step": *nextID, "status": res.Status, "notes": res.Notes,
		}).Info("ran step")
	}

	return summary, nil
}

// runStep isolates executor panics so a misbehaving step cannot take
// down the whole tick.
func runStep(ctx context.Context, step steps.Step, lead *models.Lead, deps *steps.Deps, sequenceID string, dryRun bool) (res steps.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step %s panicked: %v", step.ID(), r)
		}
	}()
	return step.Run(ctx, lead, deps, sequenceID, dryRun)
}

func classifySkip(notes string, summary *Summary) {
	if len(notes) > len(steps.NoteSendWindowPrefix) && notes[:len(steps.NoteSendWindowPrefix)] == steps.NoteSendWindowPrefix {
		switch sendwindow.Reason(notes[len(steps.NoteSendWindowPrefix):]) {
		case sendwindow.ReasonTime:
			summary.SkipsTime++
		case sendwindow.ReasonDailyLimit, sendwindow.ReasonPerInboxLimit:
			summary.SkipsQuota++
		case sendwindow.ReasonDisabled:
			summary.SkipsDisabled++
		case sendwindow.ReasonError:
			summary.SkipsError++
		default:
			summary.SkipsOther++
		}
		return
	}
	summary.SkipsOther++
}
